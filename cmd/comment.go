package cmd

import (
	"context"
	"fmt"
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/output"
	"github.com/voicelocal/voicelocal/internal/store"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Discuss an issue",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <issue-id> <text>",
	Short: "Comment on an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentAddRun(args[0], strings.Join(args[1:], " "))
	},
}

var commentListCmd = &cobra.Command{
	Use:     "list <issue-id>",
	Aliases: []string{"ls"},
	Short:   "List an issue's comments, oldest first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentListRun(args[0])
	},
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <issue-id> <comment-id> <text>",
	Short: "Replace the text of your comment",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentEditRun(args[0], args[1], strings.Join(args[2:], " "))
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id> <comment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete your comment",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentDeleteRun(args[0], args[1])
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd)
	commentCmd.AddCommand(commentListCmd)
	commentCmd.AddCommand(commentEditCmd)
	commentCmd.AddCommand(commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}

func commentAddRun(issueID, content string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	if err := models.ValidateCommentForm(content); err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, issueID, false)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would comment on %s: %s", shortID(issue.ID), content)
		return nil
	}

	c, err := s.AddComment(ctx, issue.ID, models.CommentInput{
		Author:   actor.DisplayName,
		AuthorID: actor.ID,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	ui.Success("Added comment %s on %s", output.Cyan(shortID(c.ID)), output.Cyan(shortID(issue.ID)))
	return nil
}

func commentListRun(issueID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := findIssue(context.Background(), s, issueID, false)
	if err != nil {
		return err
	}
	if len(issue.Comments) == 0 {
		ui.Info("No comments yet.")
		return nil
	}

	table := ui.Table([]string{"ID", "Author", "Posted", "Comment"})
	for _, c := range issue.Comments {
		_ = table.Append([]string{
			shortID(c.ID),
			c.Author,
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
			c.Content,
		})
	}
	_ = table.Render()
	return nil
}

// resolveComment finds a comment on issue by full ID or unique prefix.
func resolveComment(issue *models.Issue, id string) (*models.Comment, error) {
	if i := issue.FindComment(id); i >= 0 {
		return issue.Comments[i], nil
	}
	upper := strings.ToUpper(id)
	var match *models.Comment
	for _, c := range issue.Comments {
		if strings.HasPrefix(c.ID, upper) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous comment ID %s", id)
			}
			match = c
		}
	}
	if match == nil {
		return nil, &store.NotFoundError{Kind: "comment", ID: id}
	}
	return match, nil
}

func commentEditRun(issueID, commentID, content string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	if err := models.ValidateCommentForm(content); err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, issueID, false)
	if err != nil {
		return err
	}
	c, err := resolveComment(issue, commentID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && c.AuthorID != actor.ID {
		return fmt.Errorf("only the author or an admin can edit comment %s", shortID(c.ID))
	}

	if dryRun {
		ui.DryRunMsg("Would edit comment %s", shortID(c.ID))
		fmt.Fprintf(ui.Out, "  %s\n", inlineDiff(c.Content, content))
		return nil
	}

	if _, err := s.EditComment(ctx, issue.ID, c.ID, content); err != nil {
		return fmt.Errorf("edit comment: %w", err)
	}
	ui.Success("Edited comment %s", output.Cyan(shortID(c.ID)))
	fmt.Fprintf(ui.Out, "  %s\n", inlineDiff(c.Content, content))
	return nil
}

func commentDeleteRun(issueID, commentID string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, issueID, false)
	if err != nil {
		return err
	}
	c, err := resolveComment(issue, commentID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && c.AuthorID != actor.ID {
		return fmt.Errorf("only the author or an admin can delete comment %s", shortID(c.ID))
	}

	if dryRun {
		ui.DryRunMsg("Would delete comment %s", shortID(c.ID))
		return nil
	}
	if err := s.DeleteComment(ctx, issue.ID, c.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	ui.Success("Deleted comment %s", output.Cyan(shortID(c.ID)))
	return nil
}

// inlineDiff renders a word-level change from old to new, marking removals
// as [-text-] and insertions as {+text+}.
func inlineDiff(old, new string) string {
	dmp := diffpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(old, new, false))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffpatch.DiffDelete:
			b.WriteString(output.Red("[-" + d.Text + "-]"))
		case diffpatch.DiffInsert:
			b.WriteString(output.Green("{+" + d.Text + "+}"))
		case diffpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
