package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mikelarin/draftly/internal/composer"
	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/pipeline"
	"github.com/mikelarin/draftly/internal/quota"
	"github.com/mikelarin/draftly/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Runner SuggestionRunner
	Quota  *quota.Controller
}

// NewMCPServer creates an MCP server exposing the drafting pipeline and
// knowledge base to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"draftly",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("draftly — reply suggestion service: draft replies, manage knowledge snippets and style settings, report usage."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("draft_reply",
			mcp.WithDescription("Draft a reply suggestion for a conversation. The suggestion is delivered into the conversation and also returned here."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("User to draft for"), mcp.Required()),
			mcp.WithString("channel_id", mcp.Description("Conversation channel id"), mcp.Required()),
			mcp.WithString("thread_ts", mcp.Description("Thread timestamp if replying inside a thread")),
			mcp.WithString("instruction", mcp.Description("Optional drafting instruction")),
		),
		mcpDraftReply(deps),
	)

	s.AddTool(
		mcp.NewTool("add_knowledge",
			mcp.WithDescription("Store a knowledge snippet for an organization; it becomes retrievable for future drafts once embedded."),
			mcp.WithString("org_id", mcp.Description("Organization id"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Title for the snippet")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("usage_report",
			mcp.WithDescription("Report a user's suggestion usage for the current billing period."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
		),
		mcpUsageReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"draftly://suggestions/recent",
			"Recent Suggestions",
			mcp.WithResourceDescription("Last 10 generated suggestions (text truncated)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpDraftReply(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		channelID, err := req.RequireString("channel_id")
		if err != nil {
			return mcpError("channel_id is required"), nil
		}

		trig := pipeline.Trigger{
			Kind:        pipeline.TriggerManual,
			OrgID:       orgID,
			SubjectID:   userID,
			ChannelID:   channelID,
			ThreadTS:    req.GetString("thread_ts", ""),
			Instruction: req.GetString("instruction", ""),
			UseCase:     composer.UseCaseAdHoc,
		}

		result, err := deps.Runner.Run(ctx, trig)
		if err != nil {
			return mcpError(fmt.Sprintf("draft failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"suggestion_id": result.SuggestionID,
			"text":          result.Text,
			"quota_used":    result.Quota.Used,
			"quota_limit":   result.Quota.Limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, err := req.RequireString("org_id")
		if err != nil {
			return mcpError("org_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		tagsJSON := "[]"
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		sn := storage.Snippet{
			ID:        uuid.New().String(),
			OrgID:     orgID,
			Title:     title,
			Content:   content,
			Source:    "mcp",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveSnippet(sn); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		payload, err := json.Marshal(knowledge.EmbedJobPayload{SnippetID: sn.ID})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal embed payload: %v", err)), nil
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        knowledge.JobType,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("saved snippet but failed to queue embedding: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored snippet %s", sn.ID)), nil
	}
}

func mcpUsageReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		d, err := deps.Quota.Report(ctx, userID, time.Now())
		if err != nil {
			return mcpError(fmt.Sprintf("usage report failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"user_id": userID,
			"period":  d.PeriodKey,
			"used":    d.Used,
			"limit":   d.Limit,
			"level":   string(d.Level),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		suggestions, err := deps.Store.ListRecentSuggestions(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent suggestions: %w", err)
		}

		type suggestionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Trigger   string `json:"trigger"`
			Text      string `json:"text"`
		}

		summaries := make([]suggestionSummary, len(suggestions))
		for i, sg := range suggestions {
			text := sg.Text
			if utf8.RuneCountInString(text) > 200 {
				runes := []rune(text)
				text = string(runes[:200]) + "..."
			}
			summaries[i] = suggestionSummary{
				ID:        sg.ID,
				CreatedAt: sg.CreatedAt.Format(time.RFC3339),
				Trigger:   sg.TriggerKind,
				Text:      text,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal suggestions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
