package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// --- quota ---

var quotaCmd = &cobra.Command{
	Use:   "quota <subject-id>",
	Short: "Show a user's suggestion usage for the current period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/quota/"+args[0])
		if err != nil {
			return err
		}

		var report struct {
			Period string `json:"period"`
			Used   int    `json:"used"`
			Limit  int    `json:"limit"`
			Level  string `json:"level"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printStatus("Period", "%s", report.Period)
		printStatus("Used", "%d of %d", report.Used, report.Limit)
		printStatus("Level", "%s", report.Level)
		return nil
	},
}

// --- snippet ---

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Manage knowledge snippets",
}

var snippetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a knowledge snippet",
	Long: `Add a knowledge snippet for an organization.

Examples:
  draftly snippet add --org acme --text "Our refund window is 30 days" --tags policy
  draftly snippet add --org acme --url https://example.com/handbook
  draftly snippet add --org acme --pdf ./onboarding.pdf --title "Onboarding guide"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		pdf, _ := cmd.Flags().GetString("pdf")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if org == "" {
			return fmt.Errorf("--org is required")
		}
		if text == "" && url == "" && pdf == "" {
			return fmt.Errorf("one of --text, --url, or --pdf is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{"org_id": org}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case pdf != "":
			data, err := os.ReadFile(pdf)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			req["type"] = "pdf"
			req["content"] = base64.StdEncoding.EncodeToString(data)
			if title == "" {
				req["title"] = pdf
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/snippets", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued snippet %s", result["id"])
		return nil
	},
}

var snippetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's snippets",
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		if org == "" {
			return fmt.Errorf("--org is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/snippets?org_id="+org)
		if err != nil {
			return err
		}

		var snippets []struct {
			ID    string `json:"ID"`
			Title string `json:"Title"`
		}
		if err := decodeJSON(resp, &snippets); err != nil {
			return err
		}

		if len(snippets) == 0 {
			fmt.Println("no snippets")
			return nil
		}
		for _, sn := range snippets {
			fmt.Printf("%s  %s\n", sn.ID, sn.Title)
		}
		return nil
	},
}

var snippetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/snippets/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted snippet %s", args[0])
		return nil
	},
}

// --- style ---

var styleCmd = &cobra.Command{
	Use:   "style",
	Short: "Manage style settings",
}

var styleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a style record as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		user, _ := cmd.Flags().GetString("user")
		if org == "" {
			return fmt.Errorf("--org is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/orgs/" + org + "/style"
		if user != "" {
			path = "/orgs/" + org + "/users/" + user + "/style"
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var style any
		if err := decodeJSON(resp, &style); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(style)
	},
}

var styleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update a style record",
	Long: `Update organization or user style settings. Only provided flags change.

Examples:
  draftly style set --org acme --tone friendly --formality casual
  draftly style set --org acme --mode override
  draftly style set --org acme --user U123 --tone direct`,
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		user, _ := cmd.Flags().GetString("user")
		if org == "" {
			return fmt.Errorf("--org is required")
		}

		req := map[string]any{}
		if cmd.Flags().Changed("tone") {
			v, _ := cmd.Flags().GetString("tone")
			req["tone"] = v
		}
		if cmd.Flags().Changed("formality") {
			v, _ := cmd.Flags().GetString("formality")
			req["formality"] = v
		}
		if cmd.Flags().Changed("guidance") {
			v, _ := cmd.Flags().GetString("guidance")
			req["custom_guidance"] = v
		}
		if cmd.Flags().Changed("mode") {
			v, _ := cmd.Flags().GetString("mode")
			req["precedence_mode"] = v
		}
		if len(req) == 0 {
			return fmt.Errorf("nothing to set; pass at least one of --tone, --formality, --guidance, --mode")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/orgs/" + org + "/style"
		if user != "" {
			path = "/orgs/" + org + "/users/" + user + "/style"
		}

		resp, err := client.put(cmd.Context(), path, req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Style updated")
		return nil
	},
}

func init() {
	snippetAddCmd.Flags().String("org", "", "organization id")
	snippetAddCmd.Flags().String("text", "", "text content")
	snippetAddCmd.Flags().String("url", "", "URL to fetch and ingest")
	snippetAddCmd.Flags().String("pdf", "", "PDF file path")
	snippetAddCmd.Flags().String("title", "", "title for the snippet")
	snippetAddCmd.Flags().String("tags", "", "comma-separated tags")
	snippetListCmd.Flags().String("org", "", "organization id")
	snippetCmd.AddCommand(snippetAddCmd, snippetListCmd, snippetDeleteCmd)

	styleShowCmd.Flags().String("org", "", "organization id")
	styleShowCmd.Flags().String("user", "", "user id (omit for org style)")
	styleSetCmd.Flags().String("org", "", "organization id")
	styleSetCmd.Flags().String("user", "", "user id (omit for org style)")
	styleSetCmd.Flags().String("tone", "", "tone guidance")
	styleSetCmd.Flags().String("formality", "", "formality guidance")
	styleSetCmd.Flags().String("guidance", "", "free-form custom guidance")
	styleSetCmd.Flags().String("mode", "", "org precedence mode: override, layer, fallback")
	styleCmd.AddCommand(styleShowCmd, styleSetCmd)
}
