package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/llm"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	llm      *llm.Client
	log      *slog.Logger
	pageSize int
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured, and logger may be nil
// to use slog.Default. A pageSize of zero uses feed.DefaultPageSize.
func NewServer(s store.Store, llmClient *llm.Client, logger *slog.Logger, pageSize int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}
	return &Server{
		store:    s,
		llm:      llmClient,
		log:      logger,
		pageSize: pageSize,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.patchIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/restore", s.restoreIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/vote", s.vote)
	mux.HandleFunc("POST /api/v1/issues/{id}/triage", s.triageIssue)

	mux.HandleFunc("POST /api/v1/issues/{id}/comments", s.addComment)
	mux.HandleFunc("PUT /api/v1/issues/{id}/comments/{commentId}", s.editComment)
	mux.HandleFunc("DELETE /api/v1/issues/{id}/comments/{commentId}", s.deleteComment)

	mux.HandleFunc("GET /api/v1/users/{id}/issues", s.listUserIssues)
	mux.HandleFunc("GET /api/v1/categories", s.listCategories)
	mux.HandleFunc("POST /api/v1/categories", s.createCategory)
	mux.HandleFunc("GET /api/v1/categories/usage", s.categoryUsage)
	mux.HandleFunc("GET /api/v1/categories/{id}", s.getCategory)
	mux.HandleFunc("PATCH /api/v1/categories/{id}", s.patchCategory)
	mux.HandleFunc("DELETE /api/v1/categories/{id}", s.deleteCategory)

	mux.HandleFunc("GET /api/v1/admin/issues/deleted", s.listDeletedIssues)
	mux.HandleFunc("GET /api/v1/admin/summary", s.summary)

	return corsMiddleware(s.logRequests(actorMiddleware(mux)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store and validation errors to status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	page, err := feed.Apply(issues, q)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) parseQuery(r *http.Request) (feed.Query, error) {
	v := r.URL.Query()
	q := feed.Query{
		Search:   v.Get("q"),
		Status:   models.IssueStatus(v.Get("status")),
		Category: v.Get("category"),
		Priority: models.IssuePriority(v.Get("priority")),
		AuthorID: v.Get("author"),
		Sort:     v.Get("sort"),
		Where:    v.Get("where"),
		PageSize: s.pageSize,
	}
	if q.Status == "all" {
		q.Status = ""
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, fmt.Errorf("unknown status %q", q.Status)
	}
	if !q.Priority.Valid() {
		return q, fmt.Errorf("unknown priority %q", q.Priority)
	}
	for _, p := range []struct {
		name   string
		target *int
	}{{"page", &q.Page}, {"page_size", &q.PageSize}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%s must be a positive integer", p.name)
		}
		*p.target = n
	}
	q.PageSize = min(q.PageSize, feed.MaxPageSize)
	return q, nil
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in models.IssueInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.ValidateForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issue, err := s.store.CreateIssue(r.Context(), in, actor)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "issue created", "issue_id", issue.ID, "title", issue.Title)
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) patchIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	issue, ok := s.loadForEdit(w, r, actor)
	if !ok {
		return
	}

	patch, err := decodeIssuePatch(r, issue)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if patch.Empty() {
		writeJSON(w, http.StatusOK, issue)
		return
	}

	updated, err := s.store.UpdateIssue(r.Context(), issue.ID, patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if r.URL.Query().Get("hard") == "true" {
		if !requireAdmin(w, actor) {
			return
		}
		if err := s.store.HardDeleteIssue(r.Context(), id); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.log.InfoContext(r.Context(), "issue hard-deleted", "issue_id", id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, ok := s.loadForEdit(w, r, actor); !ok {
		return
	}
	if err := s.store.SoftDeleteIssue(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "issue deleted", "issue_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	id := r.PathValue("id")
	if err := s.store.RestoreIssue(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// loadForEdit returns the issue if actor may change it: its author may edit
// a live issue, admins may edit any issue including soft-deleted ones.
func (s *Server) loadForEdit(w http.ResponseWriter, r *http.Request, actor *models.User) (*models.Issue, bool) {
	id := r.PathValue("id")
	var (
		issue *models.Issue
		err   error
	)
	if actor.IsAdmin() {
		issue, err = s.store.LookupIssue(r.Context(), id)
	} else {
		issue, err = s.store.GetIssue(r.Context(), id)
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return nil, false
	}
	if !actor.IsAdmin() && issue.AuthorID != actor.ID {
		writeError(w, http.StatusForbidden, "only the author or an admin can change this issue")
		return nil, false
	}
	return issue, true
}

// --- Votes ---

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Type models.VoteType `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issue, err := s.store.Vote(r.Context(), r.PathValue("id"), actor.ID, req.Type)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// --- Comments ---

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateCommentForm(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.store.AddComment(r.Context(), r.PathValue("id"), models.CommentInput{
		Author:   actor.DisplayName,
		AuthorID: actor.ID,
		Content:  req.Content,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) editComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := models.ValidateCommentForm(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.authorizeComment(w, r, actor) {
		return
	}
	c, err := s.store.EditComment(r.Context(), r.PathValue("id"), r.PathValue("commentId"), req.Content)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !s.authorizeComment(w, r, actor) {
		return
	}
	if err := s.store.DeleteComment(r.Context(), r.PathValue("id"), r.PathValue("commentId")); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeComment lets the comment's author or an admin change it.
func (s *Server) authorizeComment(w http.ResponseWriter, r *http.Request, actor *models.User) bool {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return false
	}
	commentID := r.PathValue("commentId")
	idx := issue.FindComment(commentID)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "comment not found: "+commentID)
		return false
	}
	if !actor.IsAdmin() && issue.Comments[idx].AuthorID != actor.ID {
		writeError(w, http.StatusForbidden, "only the author or an admin can change this comment")
		return false
	}
	return true
}

// --- Users & categories ---

func (s *Server) listUserIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.ListIssuesByAuthor(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

// --- Categories ---

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// categoryUsage counts live issues per category string, registered or not.
func (s *Server) categoryUsage(w http.ResponseWriter, r *http.Request) {
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed.Categories(issues))
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	var in models.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.store.CreateCategory(r.Context(), in)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) patchCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	var patch models.CategoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	c, err := s.store.UpdateCategory(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	if err := s.store.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Admin ---

func (s *Server) listDeletedIssues(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	issues, err := s.store.ListDeletedIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok || !requireAdmin(w, actor) {
		return
	}
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed.Summarize(issues))
}

// --- Triage ---

func (s *Server) triageIssue(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	triage, err := s.llm.SuggestTriage(r.Context(), issue.Title, issue.Description, issue.Location, models.CategoryNames(cats))
	if err != nil {
		s.log.ErrorContext(r.Context(), "triage failed", "issue_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "LLM triage failed")
		return
	}

	if r.URL.Query().Get("apply") == "true" {
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "only an admin can apply triage")
			return
		}
		_, err := s.store.UpdateIssue(r.Context(), id, models.IssuePatch{
			Category: &triage.Category,
			Priority: &triage.Priority,
		})
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, triage)
}
