package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/llm"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/output"
	"github.com/voicelocal/voicelocal/internal/store"
)

var (
	issueTitle    string
	issueDesc     string
	issueLocation string
	issueCategory string
	issuePriority string
	issueImage    string
	issueStatus   string
	issueTriage   bool

	issueListSearch   string
	issueListStatus   string
	issueListCategory string
	issueListPriority string
	issueListAuthor   string
	issueListSort     string
	issueListWhere    string
	issueListPage     int

	issueHardDelete bool
	issueApply      bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Report, browse and manage civic issues",
	Long:  "Report local problems, browse the feed, vote and moderate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues, newest first",
	Long: `List live issues with optional search, filters, sorting and paging.

--where takes a boolean expression over: title, description, location, status,
category, priority, upvotes, downvotes, score, comments, author, ageHours.
Example: --where 'score >= 10 && status == "open"'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Edit an issue (author or admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Flags(), args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue (soft by default; --hard for admins)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueRestoreCmd = &cobra.Command{
	Use:   "restore <issue-id>",
	Short: "Restore a soft-deleted issue (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueRestoreRun(args[0])
	},
}

var issueVoteCmd = &cobra.Command{
	Use:   "vote <issue-id> up|down",
	Short: "Vote on an issue; voting the same way twice retracts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueVoteRun(args[0], args[1])
	},
}

var issueMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List issues you reported",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueMineRun()
	},
}

var issueDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "List soft-deleted issues (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeletedRun()
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Suggest a category and priority for an issue",
	Long: `Suggest a category and priority. Uses Claude when an Anthropic API key is
configured and falls back to keyword rules otherwise. --apply writes the
suggestion to the issue (admin).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "What is wrong (required)")
	issueAddCmd.Flags().StringVar(&issueLocation, "location", "", "Where it is (required)")
	issueAddCmd.Flags().StringVar(&issueCategory, "category", "", "Category (see 'voicelocal category list'; any tag is accepted)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high")
	issueAddCmd.Flags().StringVar(&issueImage, "image", "", "http(s) link to a photo")
	issueAddCmd.Flags().BoolVar(&issueTriage, "triage", false, "Fill a missing category or priority from keyword rules")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("desc")
	_ = issueAddCmd.MarkFlagRequired("location")

	issueListCmd.Flags().StringVarP(&issueListSearch, "search", "q", "", "Text to find in title, description or location")
	issueListCmd.Flags().StringVar(&issueListStatus, "status", "", "Filter by status: open, in-progress, resolved, rejected")
	issueListCmd.Flags().StringVar(&issueListCategory, "category", "", "Filter by category (see 'voicelocal category list')")
	issueListCmd.Flags().StringVar(&issueListPriority, "priority", "", "Filter by priority")
	issueListCmd.Flags().StringVar(&issueListAuthor, "author", "", "Filter by author user id")
	issueListCmd.Flags().StringVar(&issueListSort, "sort", feed.SortRecent, "Sort: recent, votes, comments")
	issueListCmd.Flags().StringVar(&issueListWhere, "where", "", "Filter expression")
	issueListCmd.Flags().IntVar(&issueListPage, "page", 1, "Page number")

	bindIssueUpdateFlags(issueUpdateCmd.Flags())

	for _, c := range []*cobra.Command{issueAddCmd, issueListCmd, issueUpdateCmd} {
		_ = c.RegisterFlagCompletionFunc("category", completeCategories)
	}

	issueDeleteCmd.Flags().BoolVar(&issueHardDelete, "hard", false, "Remove permanently (admin)")
	issueTriageCmd.Flags().BoolVar(&issueApply, "apply", false, "Write the suggestion to the issue (admin)")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueRestoreCmd)
	issueCmd.AddCommand(issueVoteCmd)
	issueCmd.AddCommand(issueMineCmd)
	issueCmd.AddCommand(issueDeletedCmd)
	issueCmd.AddCommand(issueTriageCmd)
	rootCmd.AddCommand(issueCmd)
}

// bindIssueUpdateFlags registers the editable fields. Only flags that were
// set end up in the patch.
func bindIssueUpdateFlags(fs *pflag.FlagSet) {
	fs.StringVar(&issueTitle, "title", "", "New title")
	fs.StringVar(&issueDesc, "desc", "", "New description")
	fs.StringVar(&issueLocation, "location", "", "New location")
	fs.StringVar(&issueCategory, "category", "", "New category (empty string clears)")
	fs.StringVar(&issuePriority, "priority", "", "New priority (empty string clears)")
	fs.StringVar(&issueImage, "image", "", "New photo link (empty string clears)")
	fs.StringVar(&issueStatus, "status", "", "New status")
}

func issueAddRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	in := models.IssueInput{
		Title:       issueTitle,
		Description: issueDesc,
		Location:    issueLocation,
		ImageURL:    issueImage,
		Category:    issueCategory,
		Priority:    models.IssuePriority(issuePriority),
	}
	if issueTriage && (in.Category == "" || in.Priority == "") {
		suggestion := llm.HeuristicTriage(in.Title, in.Description)
		if in.Category == "" {
			in.Category = suggestion.Category
		}
		if in.Priority == "" {
			in.Priority = suggestion.Priority
		}
		ui.VerboseLog("Triage: %s/%s (%s)", in.Category, in.Priority, suggestion.Reason)
	}
	if err := in.ValidateForm(); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would report issue: %s at %s", in.Title, in.Location)
		return nil
	}

	issue, err := s.CreateIssue(ctx, in, actor)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	ui.Success("Reported issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q := feed.Query{
		Search:   issueListSearch,
		Status:   models.IssueStatus(issueListStatus),
		Category: issueListCategory,
		Priority: models.IssuePriority(issueListPriority),
		AuthorID: issueListAuthor,
		Sort:     issueListSort,
		Where:    issueListWhere,
		Page:     issueListPage,
		PageSize: viper.GetInt("feed.page_size"),
	}
	if q.Status != "" && !q.Status.Valid() {
		return fmt.Errorf("unknown status %q (use: open, in-progress, resolved, rejected)", q.Status)
	}

	issues, err := s.ListIssues(ctx)
	if err != nil {
		return err
	}
	page, err := feed.Apply(issues, q)
	if err != nil {
		return err
	}

	if page.Total == 0 {
		ui.Info("No issues found.")
		return nil
	}

	renderIssueTable(page.Items)
	if page.TotalPages > 1 {
		fmt.Fprintf(ui.Out, "\nPage %d of %d (%d issues)\n", page.Page, page.TotalPages, page.Total)
	}
	return nil
}

func renderIssueTable(issues []*models.Issue) {
	table := ui.Table([]string{"ID", "Title", "Location", "Status", "Priority", "Score", "Comments", "Reported"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			issue.Location,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			output.ScoreColor(issue.Score()),
			fmt.Sprintf("%d", len(issue.Comments)),
			issue.CreatedAt.Local().Format("2006-01-02"),
		})
	}
	_ = table.Render()
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Location:   %s\n", issue.Location)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	if issue.Category != "" {
		fmt.Fprintf(ui.Out, "  Category:   %s\n", issue.Category)
	}
	if issue.Priority != "" {
		fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	}
	fmt.Fprintf(ui.Out, "  Votes:      %s (%d up, %d down)\n", output.ScoreColor(issue.Score()), issue.Upvotes, issue.Downvotes)
	if actor := optionalActor(); actor != nil {
		if v, ok := issue.UserVotes[actor.ID]; ok {
			fmt.Fprintf(ui.Out, "  Your vote:  %s\n", v)
		}
	}
	fmt.Fprintf(ui.Out, "  Reported:   %s by %s\n", issue.CreatedAt.Format(time.RFC3339), issue.Author)
	if issue.UpdatedAt != nil {
		fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	}
	if issue.ImageURL != "" {
		fmt.Fprintf(ui.Out, "  Photo:      %s\n", issue.ImageURL)
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)
	fmt.Fprintf(ui.Out, "\n  %s\n", issue.Description)

	if len(issue.Comments) > 0 {
		fmt.Fprintf(ui.Out, "\nComments (%d):\n", len(issue.Comments))
		for _, c := range issue.Comments {
			fmt.Fprintf(ui.Out, "  %s %s (%s): %s\n",
				output.Cyan(shortID(c.ID)), c.Author, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Content)
		}
	}
	return nil
}

func issueUpdateRun(flags *pflag.FlagSet, id string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id, actor.IsAdmin())
	if err != nil {
		return err
	}
	if err := authorizeEdit(actor, issue); err != nil {
		return err
	}

	var patch models.IssuePatch
	if flags.Changed("title") {
		patch.Title = models.Ptr(issueTitle)
	}
	if flags.Changed("desc") {
		patch.Description = models.Ptr(issueDesc)
	}
	if flags.Changed("location") {
		patch.Location = models.Ptr(issueLocation)
	}
	if flags.Changed("category") {
		patch.Category = models.Ptr(issueCategory)
	}
	if flags.Changed("priority") {
		patch.Priority = models.Ptr(models.IssuePriority(issuePriority))
	}
	if flags.Changed("image") {
		patch.ImageURL = models.Ptr(issueImage)
	}
	if flags.Changed("status") {
		patch.Status = models.Ptr(models.IssueStatus(issueStatus))
	}
	if patch.Empty() {
		return fmt.Errorf("no updates specified (use --title, --desc, --location, --category, --priority, --image or --status)")
	}
	if err := validatePatchedForm(issue, patch); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", shortID(issue.ID))
		return nil
	}

	if _, err := s.UpdateIssue(ctx, issue.ID, patch); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(shortID(issue.ID)))
	return nil
}

// validatePatchedForm applies the form rules to the issue as it would look
// after the patch.
func validatePatchedForm(issue *models.Issue, patch models.IssuePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	next := issue.Clone()
	patch.Apply(next)
	in := models.IssueInput{
		Title:       next.Title,
		Description: next.Description,
		Location:    next.Location,
		ImageURL:    next.ImageURL,
		Category:    next.Category,
		Status:      next.Status,
		Priority:    next.Priority,
	}
	return in.ValidateForm()
}

func issueDeleteRun(id string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if issueHardDelete && !actor.IsAdmin() {
		return fmt.Errorf("permanent delete requires an admin")
	}
	issue, err := findIssue(ctx, s, id, actor.IsAdmin())
	if err != nil {
		return err
	}
	if err := authorizeEdit(actor, issue); err != nil {
		return err
	}

	if issueHardDelete {
		if dryRun {
			ui.DryRunMsg("Would permanently delete issue %s: %s", shortID(issue.ID), issue.Title)
			return nil
		}
		if err := s.HardDeleteIssue(ctx, issue.ID); err != nil {
			return fmt.Errorf("delete issue: %w", err)
		}
		ui.Success("Permanently deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}
	if err := s.SoftDeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueRestoreRun(id string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("restoring issues requires an admin")
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id, true)
	if err != nil {
		return err
	}
	if !issue.IsDeleted {
		ui.Info("Issue %s is not deleted.", shortID(issue.ID))
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would restore issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}
	if err := s.RestoreIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("restore issue: %w", err)
	}
	ui.Success("Restored issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueVoteRun(id, direction string) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	t := models.VoteType(strings.ToLower(direction))
	if !t.Valid() {
		return fmt.Errorf("vote must be up or down, got %q", direction)
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id, false)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would vote %s on issue %s", t, shortID(issue.ID))
		return nil
	}

	updated, err := s.Vote(ctx, issue.ID, actor.ID, t)
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}

	switch updated.UserVotes[actor.ID] {
	case "":
		ui.Success("Removed your vote on %s", output.Cyan(shortID(updated.ID)))
	default:
		ui.Success("Voted %s on %s", updated.UserVotes[actor.ID], output.Cyan(shortID(updated.ID)))
	}
	fmt.Fprintf(ui.Out, "  Score: %s (%d up, %d down)\n", output.ScoreColor(updated.Score()), updated.Upvotes, updated.Downvotes)
	return nil
}

func issueMineRun() error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	issues, err := s.ListIssuesByAuthor(context.Background(), actor.ID)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		ui.Info("You have not reported any issues.")
		return nil
	}
	renderIssueTable(issues)
	return nil
}

func issueDeletedRun() error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("listing deleted issues requires an admin")
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	issues, err := s.ListDeletedIssues(context.Background())
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		ui.Info("No deleted issues.")
		return nil
	}
	renderIssueTable(issues)
	return nil
}

func issueTriageRun(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, s, id, false)
	if err != nil {
		return err
	}

	suggestion := suggestTriage(ctx, s, issue)
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Category:   %s\n", suggestion.Category)
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(suggestion.Priority)))
	fmt.Fprintf(ui.Out, "  Reason:     %s\n", suggestion.Reason)
	fmt.Fprintf(ui.Out, "  Source:     %s\n", suggestion.Source)

	if !issueApply {
		return nil
	}
	actor, err := currentActor()
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("applying triage requires an admin")
	}
	if dryRun {
		ui.DryRunMsg("Would set %s to %s/%s", shortID(issue.ID), suggestion.Category, suggestion.Priority)
		return nil
	}
	patch := models.IssuePatch{
		Category: models.Ptr(suggestion.Category),
		Priority: models.Ptr(suggestion.Priority),
	}
	if _, err := s.UpdateIssue(ctx, issue.ID, patch); err != nil {
		return fmt.Errorf("apply triage: %w", err)
	}
	ui.Success("Applied triage to %s", output.Cyan(shortID(issue.ID)))
	return nil
}

// suggestTriage asks the LLM when configured and falls back to keyword rules.
// The LLM is offered the category registry.
func suggestTriage(ctx context.Context, s store.Store, issue *models.Issue) *llm.Triage {
	if client := newLLMClient(); client != nil {
		var names []string
		if cats, err := s.ListCategories(ctx); err == nil {
			names = models.CategoryNames(cats)
		}
		t, err := client.SuggestTriage(ctx, issue.Title, issue.Description, issue.Location, names)
		if err == nil {
			return t
		}
		ui.Warning("LLM triage failed, using keyword rules: %v", err)
	}
	return llm.HeuristicTriage(issue.Title, issue.Description)
}

// authorizeEdit allows the issue's author and admins.
func authorizeEdit(actor *models.User, issue *models.Issue) error {
	if actor.IsAdmin() || issue.AuthorID == actor.ID {
		return nil
	}
	return fmt.Errorf("only the author or an admin can change issue %s", shortID(issue.ID))
}

// findIssue finds an issue by full ID or unique prefix. Deleted issues are
// included only when includeDeleted is set.
func findIssue(ctx context.Context, s store.Store, id string, includeDeleted bool) (*models.Issue, error) {
	get := s.GetIssue
	if includeDeleted {
		get = s.LookupIssue
	}
	issue, err := get(ctx, id)
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	candidates, err := s.ListIssues(ctx)
	if err != nil {
		return nil, err
	}
	if includeDeleted {
		deleted, err := s.ListDeletedIssues(ctx)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, deleted...)
	}

	upper := strings.ToUpper(id)
	var matches []*models.Issue
	for _, issue := range candidates {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &store.NotFoundError{Kind: "issue", ID: id}
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
