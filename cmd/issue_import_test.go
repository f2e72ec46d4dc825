package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelocal/voicelocal/internal/models"
)

func writeImportFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "issues.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const importJSON = `[
  {"title": "Overflowing trash cans", "description": "The bins by the bus stop overflow every weekend.", "location": "5th & Pine"},
  {"title": "Cracked sidewalk slab", "description": "A raised slab near the bakery is a trip hazard.", "location": "Baker Street", "category": "infrastructure", "priority": "high"},
  {"title": "Bad", "description": "too short", "location": "x"}
]`

func TestIssueImport_CreatesValidEntries(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	importTriage = true
	t.Cleanup(func() { importTriage = false })

	require.NoError(t, issueImportRun(writeImportFile(t, importJSON)))
	assert.Contains(t, outText(t), "Imported 2 issues")
	assert.Contains(t, ui.ErrOut.(*bytes.Buffer).String(), "Skipped 1 issues")

	issues, err := dataStore.ListIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, "alice", issue.AuthorID)
	}

	// Most recent first; the first entry was triaged.
	trash := issues[1]
	assert.Equal(t, "Overflowing trash cans", trash.Title)
	assert.Equal(t, "transportation", trash.Category)
	assert.Equal(t, models.IssuePriorityMedium, trash.Priority)
	assert.Equal(t, models.IssuePriorityHigh, issues[0].Priority)
}

func TestIssueImport_RoundTripsExport(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	require.NoError(t, seedRun())
	resetOut()
	exportFormat = "json"
	require.NoError(t, exportRun())
	exported := outText(t)

	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	require.NoError(t, issueImportRun(writeImportFile(t, exported)))

	issues, err := dataStore.ListIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 4)
	for _, issue := range issues {
		assert.Zero(t, issue.Upvotes)
		assert.Empty(t, issue.Comments)
	}
}

func TestIssueImport_DryRun(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, issueImportRun(writeImportFile(t, importJSON)))
	issues, err := dataStore.ListIssues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestIssueImport_Errors(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	login(t, "alice@example.com")

	err := issueImportRun(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")

	err = issueImportRun(writeImportFile(t, "   \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file is empty")

	err = issueImportRun(writeImportFile(t, "{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")

	require.NoError(t, issueImportRun(writeImportFile(t, "[]")))
	assert.Contains(t, outText(t), "No issues found")
}
