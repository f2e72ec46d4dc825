package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/models"
)

var (
	exportFormat  string
	exportDeleted bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV, or Markdown",
	Long:  "Export every live issue (and with --deleted, soft-deleted ones too) in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize issue activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().BoolVar(&exportDeleted, "deleted", false, "Include soft-deleted issues (admin)")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issues, err := s.ListIssues(ctx)
	if err != nil {
		return err
	}
	if exportDeleted {
		actor, err := currentActor()
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return fmt.Errorf("exporting deleted issues requires an admin")
		}
		deleted, err := s.ListDeletedIssues(ctx)
		if err != nil {
			return err
		}
		issues = append(issues, deleted...)
	}

	return writeIssues(ui.Out, exportFormat, issues)
}

func writeIssues(w io.Writer, format string, issues []*models.Issue) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"ID", "Title", "Location", "Status", "Category", "Priority", "Upvotes", "Downvotes", "Comments", "Author", "Deleted", "Created"})
		for _, i := range issues {
			_ = cw.Write([]string{
				i.ID, i.Title, i.Location, string(i.Status), i.Category, string(i.Priority),
				strconv.Itoa(i.Upvotes), strconv.Itoa(i.Downvotes), strconv.Itoa(len(i.Comments)),
				i.Author, strconv.FormatBool(i.IsDeleted), i.CreatedAt.Format("2006-01-02"),
			})
		}
		cw.Flush()
		return cw.Error()
	case "markdown":
		fmt.Fprintln(w, "# Issues")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Title | Location | Status | Priority | Score | Comments |")
		fmt.Fprintln(w, "|-------|----------|--------|----------|-------|----------|")
		for _, i := range issues {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %d | %d |\n",
				mdEscape(i.Title), mdEscape(i.Location), i.Status, i.Priority, i.Score(), len(i.Comments))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", format)
	}
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func reportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	issues, err := s.ListIssues(context.Background())
	if err != nil {
		return err
	}
	sum := feed.Summarize(issues)

	fmt.Fprintln(ui.Out, "# Issue Report")
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "- Issues: %d (%d open, %d in-progress, %d resolved, %d rejected)\n",
		sum.Total,
		sum.ByStatus[models.IssueStatusOpen],
		sum.ByStatus[models.IssueStatusInProgress],
		sum.ByStatus[models.IssueStatusResolved],
		sum.ByStatus[models.IssueStatusRejected])
	fmt.Fprintf(ui.Out, "- Votes: %d, comments: %d\n", sum.TotalVotes, sum.TotalComments)
	fmt.Fprintf(ui.Out, "- Resolution rate: %d%%\n", sum.ResolutionRate)

	if len(sum.Trending) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "## Trending")
		for _, i := range sum.Trending {
			fmt.Fprintf(ui.Out, "- %s (%+d) %s\n", i.Title, i.Score(), i.Status)
		}
	}

	cats := feed.Categories(issues)
	if len(cats) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "## Categories")
		for _, c := range cats {
			fmt.Fprintf(ui.Out, "- %s: %d\n", c.Name, c.Count)
		}
	}
	return nil
}
