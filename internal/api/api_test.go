package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

func setupTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := NewServer(s, nil, nil, 0)
	return srv.Router(), s
}

type identity struct {
	id, name, role string
}

var (
	anon    = identity{}
	alice   = identity{id: "u-alice", name: "Alice"}
	bob     = identity{id: "u-bob", name: "Bob"}
	admin   = identity{id: "u-admin", name: "City Hall", role: "admin"}
	aliceID = &models.User{ID: "u-alice", DisplayName: "Alice"}
)

func do(t *testing.T, h http.Handler, who identity, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if who.id != "" {
		req.Header.Set(HeaderUserID, who.id)
		req.Header.Set(HeaderUserName, who.name)
		req.Header.Set(HeaderUserRole, who.role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const validIssue = `{"title":"Pothole on Main","description":"A deep pothole near the bus stop.","location":"Main St","category":"infrastructure"}`

func createViaAPI(t *testing.T, h http.Handler, who identity) *models.Issue {
	t.Helper()
	w := do(t, h, who, "POST", "/api/v1/issues", validIssue)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*models.Issue](t, w)
}

func TestListIssues_Empty(t *testing.T) {
	h, _ := setupTestServer(t)

	w := do(t, h, anon, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)

	page := decode[feed.Page](t, w)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, feed.DefaultPageSize, page.PageSize)
}

func TestIssueCRUD_API(t *testing.T) {
	h, _ := setupTestServer(t)

	created := createViaAPI(t, h, alice)
	assert.Equal(t, "Pothole on Main", created.Title)
	assert.Equal(t, "Alice", created.Author)
	assert.Equal(t, "u-alice", created.AuthorID)
	assert.Equal(t, models.IssueStatusOpen, created.Status)

	w := do(t, h, anon, "GET", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, anon, "GET", "/api/v1/issues?q=pothole", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[feed.Page](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)

	w = do(t, h, alice, "DELETE", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, anon, "GET", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateIssue_Errors(t *testing.T) {
	h, _ := setupTestServer(t)

	w := do(t, h, anon, "POST", "/api/v1/issues", validIssue)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, alice, "POST", "/api/v1/issues", `{"title":"Hole"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, alice, "POST", "/api/v1/issues", `{"title":"Hole","description":"short","location":"Main St"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "title")

	w = do(t, h, alice, "POST", "/api/v1/issues", `{"title":"Pothole on Main","description":"A deep pothole near the bus stop.","location":"Main St","upvotes":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "counters cannot be supplied")
}

func TestListIssues_QueryErrors(t *testing.T) {
	h, _ := setupTestServer(t)

	for _, q := range []string{"status=closed", "priority=urgent", "page=0", "page_size=x", "sort=alpha", "where=score%20%3E"} {
		w := do(t, h, anon, "GET", "/api/v1/issues?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	w := do(t, h, anon, "GET", "/api/v1/issues?status=all", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListIssues_SortAndPaginate(t *testing.T) {
	h, s := setupTestServer(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		issue := createViaAPI(t, h, alice)
		ids = append(ids, issue.ID)
	}
	_, err := s.Vote(ctx, ids[0], "v1", models.VoteUp)
	require.NoError(t, err)

	w := do(t, h, anon, "GET", "/api/v1/issues?sort=votes&page_size=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[feed.Page](t, w)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[0], page.Items[0].ID)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	w = do(t, h, anon, "GET", "/api/v1/issues?where=upvotes%20%3E%200", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[feed.Page](t, w)
	assert.Equal(t, 1, page.Total)
}

func TestListIssues_HugePaging(t *testing.T) {
	h, _ := setupTestServer(t)
	createViaAPI(t, h, alice)

	w := do(t, h, anon, "GET", "/api/v1/issues?page=1844674407370955162", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[feed.Page](t, w)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.TotalPages)

	w = do(t, h, anon, "GET", "/api/v1/issues?page_size=9223372036854775807", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page = decode[feed.Page](t, w)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, feed.MaxPageSize, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) ListIssues(context.Context) ([]*models.Issue, error) {
	return nil, errors.New("SQL logic error: no such table: issues (1)")
}

func TestListIssues_InternalErrorHidden(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewServer(brokenStore{store.NewMemoryStore()}, nil, logger, 0).Router()

	w := do(t, h, anon, "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode[map[string]string](t, w)["error"])
	assert.NotContains(t, w.Body.String(), "no such table")
	assert.Contains(t, logs.String(), "no such table")
}

func TestVote_API(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID + "/vote"

	w := do(t, h, anon, "POST", path, `{"type":"up"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, bob, "POST", path, `{"type":"up"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[*models.Issue](t, w)
	assert.Equal(t, 1, got.Upvotes)
	assert.Equal(t, models.VoteUp, got.UserVotes["u-bob"])

	w = do(t, h, bob, "POST", path, `{"type":"up"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[*models.Issue](t, w)
	assert.Equal(t, 0, got.Upvotes)

	w = do(t, h, bob, "POST", path, `{"type":"down"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[*models.Issue](t, w)
	assert.Equal(t, 1, got.Downvotes)

	w = do(t, h, bob, "POST", path, `{"type":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, bob, "POST", "/api/v1/issues/missing/vote", `{"type":"up"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchIssue_MergePatch(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID

	w := do(t, h, alice, "PATCH", path, `{"status":"in-progress","priority":"high"}`,
		"Content-Type", contentTypeMergePatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[*models.Issue](t, w)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Equal(t, models.IssuePriorityHigh, got.Priority)
	assert.Equal(t, "infrastructure", got.Category)
	assert.NotNil(t, got.UpdatedAt)

	// null clears an optional field
	w = do(t, h, alice, "PATCH", path, `{"category":null}`, "Content-Type", contentTypeMergePatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[*models.Issue](t, w)
	assert.Empty(t, got.Category)
	assert.Equal(t, models.IssuePriorityHigh, got.Priority)
}

func TestPatchIssue_JSONPatch(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID

	body := `[{"op":"replace","path":"/title","value":"Pothole on Main Street"},{"op":"test","path":"/status","value":"open"}]`
	w := do(t, h, alice, "PATCH", path, body, "Content-Type", contentTypeJSONPatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[*models.Issue](t, w)
	assert.Equal(t, "Pothole on Main Street", got.Title)

	body = `[{"op":"test","path":"/status","value":"resolved"}]`
	w = do(t, h, alice, "PATCH", path, body, "Content-Type", contentTypeJSONPatch)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchIssue_Rejections(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID

	tests := []struct {
		name   string
		who    identity
		body   string
		status int
	}{
		{"anonymous", anon, `{"status":"resolved"}`, http.StatusUnauthorized},
		{"not the author", bob, `{"status":"resolved"}`, http.StatusForbidden},
		{"unknown status", alice, `{"status":"closed"}`, http.StatusBadRequest},
		{"cleared title", alice, `{"title":null}`, http.StatusBadRequest},
		{"counter tampering", alice, `{"upvotes":10}`, http.StatusBadRequest},
		{"bad json", alice, `{"status":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.who, "PATCH", path, tt.body, "Content-Type", "application/json")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	// an admin may edit someone else's issue
	w := do(t, h, admin, "PATCH", path, `{"status":"resolved"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPatchIssue_NoChangeKeepsUpdatedAtUnset(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)

	w := do(t, h, alice, "PATCH", "/api/v1/issues/"+issue.ID, `{"title":"Pothole on Main"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[*models.Issue](t, w)
	assert.Nil(t, got.UpdatedAt)
}

func TestSoftDeleteRestore_API(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID

	w := do(t, h, bob, "DELETE", path, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, alice, "DELETE", path, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, alice, "GET", "/api/v1/admin/issues/deleted", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, admin, "GET", "/api/v1/admin/issues/deleted", "")
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[[]*models.Issue](t, w)
	require.Len(t, deleted, 1)
	assert.Equal(t, issue.ID, deleted[0].ID)

	w = do(t, h, alice, "POST", path+"/restore", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, admin, "POST", path+"/restore", "")
	require.Equal(t, http.StatusOK, w.Code)
	restored := decode[*models.Issue](t, w)
	assert.False(t, restored.IsDeleted)

	w = do(t, h, anon, "GET", path, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHardDelete_API(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	path := "/api/v1/issues/" + issue.ID + "?hard=true"

	w := do(t, h, alice, "DELETE", path, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, admin, "DELETE", path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, admin, "DELETE", path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, admin, "POST", "/api/v1/issues/"+issue.ID+"/restore", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestComments_API(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)
	base := "/api/v1/issues/" + issue.ID + "/comments"

	w := do(t, h, bob, "POST", base, `{"content":"Seen this too"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	c := decode[*models.Comment](t, w)
	assert.Equal(t, "Bob", c.Author)
	assert.Equal(t, "u-bob", c.AuthorID)

	w = do(t, h, bob, "POST", base, `{"content":"ok"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "comment form needs three characters")

	w = do(t, h, alice, "PUT", base+"/"+c.ID, `{"content":"Not my comment"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, bob, "PUT", base+"/"+c.ID, `{"content":"Seen this too, reported it"}`)
	require.Equal(t, http.StatusOK, w.Code)
	edited := decode[*models.Comment](t, w)
	assert.Equal(t, "Seen this too, reported it", edited.Content)
	assert.NotNil(t, edited.UpdatedAt)

	w = do(t, h, bob, "PUT", base+"/missing", `{"content":"Hello there"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, admin, "DELETE", base+"/"+c.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, anon, "GET", "/api/v1/issues/"+issue.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[*models.Issue](t, w)
	assert.Empty(t, got.Comments)
}

func TestListUserIssues_API(t *testing.T) {
	h, s := setupTestServer(t)
	createViaAPI(t, h, alice)
	createViaAPI(t, h, bob)
	_, err := s.CreateIssue(context.Background(), models.IssueInput{
		Title: "Second from Alice", Description: "Another report by Alice.", Location: "Oak Ave",
	}, aliceID)
	require.NoError(t, err)

	w := do(t, h, anon, "GET", "/api/v1/users/u-alice/issues", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*models.Issue](t, w), 2)

	w = do(t, h, anon, "GET", "/api/v1/users/nobody/issues", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestCategoriesAndSummary_API(t *testing.T) {
	h, s := setupTestServer(t)
	_, err := store.Seed(context.Background(), s)
	require.NoError(t, err)

	w := do(t, h, anon, "GET", "/api/v1/categories/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	usage := decode[[]feed.CategoryCount](t, w)
	assert.Len(t, usage, 4)

	w = do(t, h, anon, "GET", "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	cats := decode[[]*models.Category](t, w)
	assert.Len(t, cats, len(models.DefaultCategories))

	w = do(t, h, anon, "GET", "/api/v1/admin/summary", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, admin, "GET", "/api/v1/admin/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[feed.Summary](t, w)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 25, summary.ResolutionRate)
	require.NotEmpty(t, summary.Trending)
	assert.Equal(t, 44, summary.Trending[0].Score())
}

func TestCategories_API(t *testing.T) {
	h, _ := setupTestServer(t)

	w := do(t, h, anon, "GET", "/api/v1/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	body := `{"name":"snow removal","color":"#FFFFFF","description":"Plowing and salting"}`
	w = do(t, h, anon, "POST", "/api/v1/categories", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, h, alice, "POST", "/api/v1/categories", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, admin, "POST", "/api/v1/categories", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snow := decode[*models.Category](t, w)
	assert.Equal(t, "snow removal", snow.Name)
	assert.Equal(t, "#FFFFFF", snow.Color)

	w = do(t, h, admin, "POST", "/api/v1/categories", `{"name":"Snow Removal"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, h, admin, "POST", "/api/v1/categories", `{"name":"x","color":"white"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, anon, "GET", "/api/v1/categories/"+snow.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snow.ID, decode[*models.Category](t, w).ID)

	w = do(t, h, bob, "PATCH", "/api/v1/categories/"+snow.ID, `{"name":"snow"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, admin, "PATCH", "/api/v1/categories/"+snow.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, admin, "PATCH", "/api/v1/categories/"+snow.ID, `{"name":"snow","color":"#EEEEEE"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decode[*models.Category](t, w)
	assert.Equal(t, "snow", patched.Name)
	assert.Equal(t, "Plowing and salting", patched.Description)

	w = do(t, h, alice, "DELETE", "/api/v1/categories/"+snow.ID, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, admin, "DELETE", "/api/v1/categories/"+snow.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, admin, "DELETE", "/api/v1/categories/"+snow.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, anon, "GET", "/api/v1/categories/"+snow.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCategories_IssueCategoryStaysFreeForm(t *testing.T) {
	h, _ := setupTestServer(t)

	w := do(t, h, alice, "POST", "/api/v1/issues",
		`{"title":"Icy sidewalk","description":"The sidewalk outside the library is a sheet of ice.","location":"Library","category":"winter hazards"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "winter hazards", decode[*models.Issue](t, w).Category)
}

func TestTriage_Unconfigured(t *testing.T) {
	h, _ := setupTestServer(t)
	issue := createViaAPI(t, h, alice)

	w := do(t, h, alice, "POST", "/api/v1/issues/"+issue.ID+"/triage", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSAndRequestID(t *testing.T) {
	h, _ := setupTestServer(t)

	w := do(t, h, anon, "OPTIONS", "/api/v1/issues", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderUserID)

	w = do(t, h, anon, "GET", "/api/v1/issues", "")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = do(t, h, anon, "GET", "/api/v1/issues", "", HeaderRequestID, "req-42")
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
}
