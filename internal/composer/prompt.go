// Package composer assembles the generation prompt from conversation
// context, resolved style, retrieved snippets, and the advisory intent
// signal. It produces a ChatRequest ready for the model client.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikelarin/draftly/internal/convo"
	"github.com/mikelarin/draftly/internal/knowledge"
	"github.com/mikelarin/draftly/internal/model"
	"github.com/mikelarin/draftly/internal/style"
)

const defaultMaxContextTokens = 4000

// UseCase selects the system template for a generation request.
type UseCase int

const (
	// UseCaseAdHoc drafts a conversational reply to the latest message.
	UseCaseAdHoc UseCase = iota
	// UseCaseTask drafts a reply that addresses a concrete request or
	// action item in the conversation.
	UseCaseTask
	// UseCaseReport drafts a status-summary style reply.
	UseCaseReport
)

func (u UseCase) String() string {
	switch u {
	case UseCaseTask:
		return "task"
	case UseCaseReport:
		return "report"
	default:
		return "ad_hoc"
	}
}

var systemTemplates = map[UseCase]string{
	UseCaseAdHoc: "You draft reply suggestions for a workplace messaging platform. " +
		"Write a single natural reply to the most recent message, in the author's voice. " +
		"Output only the reply text, no preamble or quotes.",
	UseCaseTask: "You draft reply suggestions for a workplace messaging platform. " +
		"The conversation contains a request or action item. Write a single reply that " +
		"directly addresses it: acknowledge, commit or decline clearly, and state next steps. " +
		"Output only the reply text.",
	UseCaseReport: "You draft reply suggestions for a workplace messaging platform. " +
		"Write a single reply that summarizes the relevant status or findings from the " +
		"conversation in a few concise sentences. Output only the reply text.",
}

// Input carries everything the composer folds into a prompt.
type Input struct {
	UseCase  UseCase
	Messages []convo.Message
	Style    style.Effective
	Snippets []knowledge.ScoredRecord
	Signal   model.Signal
	// Instruction is an optional user-supplied hint (e.g. from a manual
	// trigger or a refine action).
	Instruction string
}

// Composer builds chat requests under a token budget for injected context.
type Composer struct {
	model            string
	maxContextTokens int
}

// New creates a Composer targeting the given generation model. A
// non-positive budget uses the default (4000 tokens).
func New(modelName string, maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{model: modelName, maxContextTokens: maxContextTokens}
}

// Compose builds the ChatRequest: a system message from the use-case
// template plus style, signal, and snippet sections, then the transcript
// and final drafting instruction as the user message.
func (c *Composer) Compose(in Input) model.ChatRequest {
	var sys strings.Builder
	sys.WriteString(systemTemplates[in.UseCase])

	if s := styleSection(in.Style); s != "" {
		sys.WriteString("\n\n[Voice]\n")
		sys.WriteString(s)
	}
	if s := signalSection(in.Signal); s != "" {
		sys.WriteString("\n\n[Conversation Signal]\n")
		sys.WriteString(s)
	}
	if s := c.snippetSection(sys.String(), in.Snippets); s != "" {
		sys.WriteString(s)
	}

	var user strings.Builder
	if len(in.Messages) > 0 {
		user.WriteString("Conversation so far:\n")
		user.WriteString(renderTranscript(in.Messages))
		user.WriteString("\n")
	}
	if in.Instruction != "" {
		user.WriteString("Instruction: ")
		user.WriteString(in.Instruction)
		user.WriteString("\n")
	}
	user.WriteString("Draft the reply now.")

	return model.ChatRequest{
		Model: c.model,
		Messages: []model.ChatMessage{
			{Role: "system", Content: sys.String()},
			{Role: "user", Content: user.String()},
		},
		Temperature: 0.7,
	}
}

// styleSection renders the effective style as prompt guidance.
func styleSection(eff style.Effective) string {
	if eff.IsZero() {
		return ""
	}
	var lines []string
	if eff.Tone != "" {
		lines = append(lines, "Tone: "+eff.Tone)
	}
	if eff.Formality != "" {
		lines = append(lines, "Formality: "+eff.Formality)
	}
	if len(eff.PreferredPhrases) > 0 {
		lines = append(lines, "Prefer phrases like: "+strings.Join(eff.PreferredPhrases, "; "))
	}
	if len(eff.AvoidPhrases) > 0 {
		lines = append(lines, "Avoid phrases like: "+strings.Join(eff.AvoidPhrases, "; "))
	}
	if eff.CustomGuidance != "" {
		lines = append(lines, eff.CustomGuidance)
	}
	return strings.Join(lines, "\n")
}

// signalSection renders the advisory classifier output. Low-confidence
// signals are dropped entirely rather than hedged in the prompt.
func signalSection(sig model.Signal) string {
	if sig.Confidence < 0.5 {
		return ""
	}
	var lines []string
	if sig.Tone != "" && sig.Tone != "neutral" {
		lines = append(lines, "The incoming message reads as "+sig.Tone+".")
	}
	if len(sig.Topics) > 0 {
		lines = append(lines, "Topics: "+strings.Join(sig.Topics, ", "))
	}
	if sig.RiskLevel == "high" {
		lines = append(lines, "The exchange looks sensitive; keep the reply measured.")
	}
	return strings.Join(lines, "\n")
}

// snippetSection injects retrieved snippets under the remaining token
// budget, dropping lowest-scoring entries first.
func (c *Composer) snippetSection(already string, snippets []knowledge.ScoredRecord) string {
	if len(snippets) == 0 {
		return ""
	}

	sorted := make([]knowledge.ScoredRecord, len(snippets))
	copy(sorted, snippets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	header := "\n\n[Relevant Knowledge]\n"
	remaining := c.maxContextTokens - EstimateTokens(already) - EstimateTokens(header)

	var entries []string
	for _, sn := range sorted {
		entry := fmt.Sprintf("(score %.2f)\n%s\n\n", sn.Score, sn.TextChunk)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		entries = append(entries, entry)
		remaining -= tokens
	}

	if len(entries) == 0 {
		return ""
	}
	return header + strings.Join(entries, "")
}

// renderTranscript formats messages oldest-first as "author: text" lines.
func renderTranscript(msgs []convo.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString("<@")
		sb.WriteString(m.AuthorID)
		sb.WriteString(">: ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// EstimateTokens is a rough count using the 4-chars-per-token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
