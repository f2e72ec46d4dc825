package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicelocal/voicelocal/internal/llm"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

var importTriage bool

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a JSON file",
	Long: `Import issues from a JSON array, such as the output of 'voicelocal export'.

Each entry needs title, description and location; category, priority,
imageUrl and status are optional. Votes, comments and authorship are not
imported: every issue is reported by the acting user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0])
	},
}

func init() {
	issueImportCmd.Flags().BoolVar(&importTriage, "triage", false, "Fill missing categories and priorities from keyword rules")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	var entries []models.IssueInput
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if len(entries) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if importTriage {
		for i := range entries {
			fillTriage(&entries[i])
		}
	}

	// Preview table
	table := ui.Table([]string{"#", "Title", "Location", "Category", "Priority"})
	for i, e := range entries {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Title,
			e.Location,
			e.Category,
			string(e.Priority),
		})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would import %d issues as %s", len(entries), actor.DisplayName)
		return nil
	}

	return createImportedIssues(context.Background(), s, entries, actor)
}

func fillTriage(in *models.IssueInput) {
	if in.Category != "" && in.Priority != "" {
		return
	}
	t := llm.HeuristicTriage(in.Title, in.Description)
	if in.Category == "" {
		in.Category = t.Category
	}
	if in.Priority == "" {
		in.Priority = t.Priority
	}
}

// createImportedIssues creates each valid entry and reports the rest.
func createImportedIssues(ctx context.Context, s store.Store, entries []models.IssueInput, actor *models.User) error {
	created, skipped := 0, 0
	for i, in := range entries {
		if err := in.ValidateForm(); err != nil {
			ui.Warning("Skipping #%d %q: %v", i+1, in.Title, err)
			skipped++
			continue
		}
		if _, err := s.CreateIssue(ctx, in, actor); err != nil {
			ui.Warning("Failed to create #%d %q: %v", i+1, in.Title, err)
			skipped++
			continue
		}
		created++
	}

	ui.Success("Imported %d issues", created)
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
