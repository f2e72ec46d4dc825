package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

// resetIssueFlags clears the package-level flag variables between runs.
func resetIssueFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		issueTitle, issueDesc, issueLocation = "", "", ""
		issueCategory, issuePriority, issueImage, issueStatus = "", "", "", ""
		issueTriage, issueHardDelete, issueApply = false, false, false
		issueListSearch, issueListStatus, issueListCategory = "", "", ""
		issueListPriority, issueListAuthor, issueListWhere = "", "", ""
		issueListSort = feed.SortRecent
		issueListPage = 1
		loginName = ""
	}
	reset()
	t.Cleanup(reset)
}

func outText(t *testing.T) string {
	t.Helper()
	return ui.Out.(*bytes.Buffer).String()
}

func resetOut() {
	ui.Out.(*bytes.Buffer).Reset()
}

func login(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, loginRun(email))
}

// reportIssue files an issue as the logged-in user and returns it.
func reportIssue(t *testing.T, title, desc, location string) *models.Issue {
	t.Helper()
	issueTitle, issueDesc, issueLocation = title, desc, location
	require.NoError(t, issueAddRun(context.Background()))
	issueTitle, issueDesc, issueLocation = "", "", ""

	issues, err := dataStore.ListIssues(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	return issues[0]
}

func updateFlags(t *testing.T, kv ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
	bindIssueUpdateFlags(fs)
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, fs.Set(kv[i], kv[i+1]))
	}
	return fs
}

func TestIssueAdd_RequiresLogin(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)

	issueTitle, issueDesc, issueLocation = "Broken bench", "The bench slats are snapped in half.", "Oak Park"
	err := issueAddRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestIssueAdd_ValidatesForm(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")

	issueTitle, issueDesc, issueLocation = "Bad", "The bench slats are snapped in half.", "Oak Park"
	err := issueAddRun(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalid)
	assert.Contains(t, err.Error(), "title")
}

func TestIssueAdd_AndList(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")

	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")
	assert.Equal(t, "alice", issue.AuthorID)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)

	resetOut()
	require.NoError(t, issueListRun())
	out := outText(t)
	assert.Contains(t, out, "Broken bench in Oak Park")
	assert.Contains(t, out, shortID(issue.ID))
}

func TestIssueAdd_Triage(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")

	issueTriage = true
	issue := reportIssue(t, "Deep pothole on Oak Road", "A deep pothole keeps growing near the school entrance.", "Oak Road")
	assert.Equal(t, "infrastructure", issue.Category)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority)
}

func TestIssueAdd_DryRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	issueTitle, issueDesc, issueLocation = "Broken bench", "The bench slats are snapped in half.", "Oak Park"
	require.NoError(t, issueAddRun(context.Background()))

	issues, err := dataStore.ListIssues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestIssueList_Filters(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")
	reportIssue(t, "Graffiti on the library", "Fresh graffiti covers the north wall of the library.", "Central Library")

	issueListSearch = "library"
	resetOut()
	require.NoError(t, issueListRun())
	out := outText(t)
	assert.Contains(t, out, "Graffiti on the library")
	assert.NotContains(t, out, "Broken bench")

	issueListSearch = ""
	issueListStatus = "closed"
	err := issueListRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")

	issueListStatus = ""
	issueListWhere = "score >"
	require.Error(t, issueListRun())
}

func TestIssueShow_PrefixAndComments(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")
	require.NoError(t, commentAddRun(issue.ID, "Still broken this morning"))

	resetOut()
	require.NoError(t, issueShowRun(shortID(issue.ID)))
	out := outText(t)
	assert.Contains(t, out, "Broken bench in Oak Park")
	assert.Contains(t, out, "Still broken this morning")
	assert.Contains(t, out, issue.ID)

	err := issueShowRun("ZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "issue not found: ZZZZ")
}

func TestIssueUpdate_Authorization(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")

	require.NoError(t, issueUpdateRun(updateFlags(t, "status", "in-progress", "priority", "low"), issue.ID))
	got, err := dataStore.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Equal(t, models.IssuePriorityLow, got.Priority)
	assert.NotNil(t, got.UpdatedAt)

	login(t, "bob@example.com")
	err = issueUpdateRun(updateFlags(t, "status", "resolved"), issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only the author or an admin")

	login(t, "admin@city.gov")
	require.NoError(t, issueUpdateRun(updateFlags(t, "status", "resolved"), issue.ID))
}

func TestIssueUpdate_Errors(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")

	err := issueUpdateRun(updateFlags(t), issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no updates specified")

	err = issueUpdateRun(updateFlags(t, "status", "done"), issue.ID)
	assert.ErrorIs(t, err, models.ErrInvalid)

	err = issueUpdateRun(updateFlags(t, "title", "Hi"), issue.ID)
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestIssueDeleteAndRestore(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")
	ctx := context.Background()

	// Only admins restore.
	require.NoError(t, issueDeleteRun(issue.ID))
	_, err := dataStore.GetIssue(ctx, issue.ID)
	require.Error(t, err)
	err = issueRestoreRun(issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an admin")

	login(t, "admin@city.gov")
	resetOut()
	require.NoError(t, issueDeletedRun())
	assert.Contains(t, outText(t), "Broken bench in Oak Park")

	require.NoError(t, issueRestoreRun(shortID(issue.ID)))
	got, err := dataStore.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDeleted)
}

func TestIssueDelete_Hard(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")

	issueHardDelete = true
	err := issueDeleteRun(issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an admin")

	login(t, "admin@city.gov")
	require.NoError(t, issueDeleteRun(issue.ID))
	_, err = dataStore.LookupIssue(context.Background(), issue.ID)
	require.Error(t, err)
}

func TestIssueVote_Toggle(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")
	ctx := context.Background()

	require.NoError(t, issueVoteRun(issue.ID, "UP"))
	got, err := dataStore.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Upvotes)

	require.NoError(t, issueVoteRun(issue.ID, "down"))
	require.NoError(t, issueVoteRun(issue.ID, "down"))
	got, err = dataStore.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Upvotes)
	assert.Equal(t, 0, got.Downvotes)
	assert.Contains(t, outText(t), "Removed your vote")

	err = issueVoteRun(issue.ID, "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "up or down")
}

func TestIssueVote_ActAs(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	issue := reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")

	actAs = "neighbour"
	t.Cleanup(func() { actAs = "" })
	require.NoError(t, issueVoteRun(issue.ID, "up"))

	got, err := dataStore.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, got.UserVotes["neighbour"])
	assert.NotContains(t, got.UserVotes, "alice")
}

func TestIssueMine(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	reportIssue(t, "Broken bench in Oak Park", "The bench slats are snapped in half.", "Oak Park")

	login(t, "bob@example.com")
	require.NoError(t, issueMineRun())
	assert.Contains(t, outText(t), "You have not reported any issues")

	login(t, "alice@example.com")
	resetOut()
	require.NoError(t, issueMineRun())
	assert.Contains(t, outText(t), "Broken bench in Oak Park")
}

func TestIssueTriage_HeuristicFallback(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	login(t, "alice@example.com")
	issue := reportIssue(t, "Streetlight out near school", "It is very dark and unsafe for kids walking home.", "School Lane")

	require.NoError(t, issueTriageRun(context.Background(), issue.ID))
	out := outText(t)
	assert.Contains(t, out, "safety")
	assert.Contains(t, out, "heuristic")

	issueApply = true
	err := issueTriageRun(context.Background(), issue.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an admin")

	login(t, "admin@city.gov")
	require.NoError(t, issueTriageRun(context.Background(), issue.ID))
	got, err := dataStore.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "safety", got.Category)
	assert.Equal(t, models.IssuePriorityHigh, got.Priority)
}

func TestRootRun_ShowsOpenIssues(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	require.NoError(t, seedRun())

	require.NoError(t, rootRun(rootCmd))
	out := outText(t)
	assert.Contains(t, out, "Pothole on Main Street")
	// The streetlight issue is resolved.
	assert.NotContains(t, out, "Streetlight out on Elm Street")
}
