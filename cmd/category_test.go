package cmd

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

func resetCategoryFlags(t *testing.T) {
	t.Helper()
	reset := func() { categoryName, categoryColor, categoryDesc = "", "", "" }
	reset()
	t.Cleanup(reset)
}

func categoryFlags(t *testing.T, kv ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("category", pflag.ContinueOnError)
	bindCategoryUpdateFlags(fs)
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, fs.Set(kv[i], kv[i+1]))
	}
	return fs
}

func TestCategory_AdminLifecycle(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	resetCategoryFlags(t)
	login(t, "admin@city.gov")
	ctx := context.Background()

	categoryColor, categoryDesc = "#FFFFFF", "Plowing and salting"
	require.NoError(t, categoryAddRun("Snow Removal"))
	categoryColor, categoryDesc = "", ""

	err := categoryAddRun("snow removal")
	assert.ErrorIs(t, err, store.ErrConflict)

	issueCategory = "snow removal"
	reportIssue(t, "Unplowed side street", "Elm Court has not been plowed since Monday.", "Elm Court")

	resetOut()
	require.NoError(t, categoryListRun())
	out := outText(t)
	assert.Contains(t, out, "Snow Removal")
	assert.Contains(t, out, "#FFFFFF")
	assert.Contains(t, out, "1")

	require.NoError(t, categoryUpdateRun(categoryFlags(t, "name", "winter", "color", ""), "snow removal"))
	cats, err := dataStore.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "winter", cats[0].Name)
	assert.Equal(t, "", cats[0].Color)
	assert.Equal(t, "Plowing and salting", cats[0].Description)

	require.NoError(t, categoryDeleteRun(shortID(cats[0].ID)))
	cats, err = dataStore.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)

	issues, err := dataStore.ListIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snow removal", issues[0].Category)

	err = categoryDeleteRun("winter")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCategory_RequiresAdmin(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	resetCategoryFlags(t)
	login(t, "alice@example.com")

	assert.ErrorContains(t, categoryAddRun("parks"), "requires an admin")
	assert.ErrorContains(t, categoryUpdateRun(categoryFlags(t, "name", "x"), "parks"), "requires an admin")
	assert.ErrorContains(t, categoryDeleteRun("parks"), "requires an admin")

	resetOut()
	require.NoError(t, categoryListRun())
	assert.Contains(t, outText(t), "No categories registered")
}

func TestCategory_UpdateValidation(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	resetCategoryFlags(t)
	login(t, "admin@city.gov")

	require.NoError(t, categoryAddRun("parks"))

	assert.ErrorContains(t, categoryUpdateRun(categoryFlags(t), "parks"), "nothing to update")
	assert.ErrorIs(t, categoryUpdateRun(categoryFlags(t, "color", "green"), "parks"), models.ErrInvalid)
	assert.ErrorIs(t, categoryAddRun(" "), models.ErrInvalid)
}

func TestCategory_SeedFillsRegistry(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	resetCategoryFlags(t)

	require.NoError(t, seedRun())
	cats, err := dataStore.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, len(models.DefaultCategories))

	names, _ := completeCategories(categoryListCmd, nil, "tr")
	assert.Equal(t, []string{"transportation"}, names)
}
