package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/voicelocal/voicelocal/internal/models"
)

// MemoryStore implements Store over an in-process collection. Every operation
// holds the mutex, so one operation fully applies before the next is seen.
type MemoryStore struct {
	mu         sync.Mutex
	issues     []*models.Issue // most recent first
	byID       map[string]*models.Issue
	categories map[string]*models.Category
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*models.Issue),
		categories: make(map[string]*models.Category),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// --- Issues ---

func (s *MemoryStore) CreateIssue(_ context.Context, in models.IssueInput, actor *models.User) (*models.Issue, error) {
	if err := models.ValidateActor(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.IssueStatusOpen
	}
	issue := &models.Issue{
		ID:          newULID(),
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		ImageURL:    in.ImageURL,
		Status:      status,
		Category:    in.Category,
		Priority:    in.Priority,
		UserVotes:   map[string]models.VoteType{},
		Comments:    []*models.Comment{},
		Author:      actor.DisplayName,
		AuthorID:    actor.ID,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = slices.Insert(s.issues, 0, issue)
	s.byID[issue.ID] = issue
	return issue.Clone(), nil
}

func (s *MemoryStore) UpdateIssue(_ context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	if !ok {
		return nil, issueNotFound(id)
	}
	patch.Apply(issue)
	now := time.Now().UTC()
	issue.UpdatedAt = &now
	return issue.Clone(), nil
}

func (s *MemoryStore) SoftDeleteIssue(ctx context.Context, id string) error {
	_, err := s.UpdateIssue(ctx, id, models.IssuePatch{IsDeleted: models.Ptr(true)})
	return err
}

func (s *MemoryStore) RestoreIssue(ctx context.Context, id string) error {
	_, err := s.UpdateIssue(ctx, id, models.IssuePatch{IsDeleted: models.Ptr(false)})
	return err
}

func (s *MemoryStore) HardDeleteIssue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return issueNotFound(id)
	}
	delete(s.byID, id)
	s.issues = slices.DeleteFunc(s.issues, func(i *models.Issue) bool { return i.ID == id })
	return nil
}

func (s *MemoryStore) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	if !ok || issue.IsDeleted {
		return nil, issueNotFound(id)
	}
	return issue.Clone(), nil
}

func (s *MemoryStore) LookupIssue(_ context.Context, id string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	if !ok {
		return nil, issueNotFound(id)
	}
	return issue.Clone(), nil
}

func (s *MemoryStore) ListIssues(_ context.Context) ([]*models.Issue, error) {
	return s.collect(func(i *models.Issue) bool { return !i.IsDeleted }), nil
}

func (s *MemoryStore) ListIssuesByAuthor(_ context.Context, authorID string) ([]*models.Issue, error) {
	return s.collect(func(i *models.Issue) bool { return !i.IsDeleted && i.AuthorID == authorID }), nil
}

func (s *MemoryStore) ListDeletedIssues(_ context.Context) ([]*models.Issue, error) {
	return s.collect(func(i *models.Issue) bool { return i.IsDeleted }), nil
}

// collect returns copies of the issues matching keep, in storage order.
func (s *MemoryStore) collect(keep func(*models.Issue) bool) []*models.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		if keep(issue) {
			out = append(out, issue.Clone())
		}
	}
	return out
}

// liveIssue returns the stored issue if it exists and is not soft-deleted.
// Callers must hold s.mu.
func (s *MemoryStore) liveIssue(id string) (*models.Issue, error) {
	issue, ok := s.byID[id]
	if !ok || issue.IsDeleted {
		return nil, issueNotFound(id)
	}
	return issue, nil
}

// --- Votes ---

func (s *MemoryStore) Vote(_ context.Context, issueID, userID string, t models.VoteType) (*models.Issue, error) {
	if err := validateVote(userID, t); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issue, err := s.liveIssue(issueID)
	if err != nil {
		return nil, err
	}
	issue.ApplyVote(userID, t)
	return issue.Clone(), nil
}

// --- Comments ---

func (s *MemoryStore) AddComment(_ context.Context, issueID string, in models.CommentInput) (*models.Comment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issue, err := s.liveIssue(issueID)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{
		ID:        newULID(),
		Author:    in.Author,
		AuthorID:  in.AuthorID,
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	issue.Comments = append(issue.Comments, c)
	return c.Clone(), nil
}

func (s *MemoryStore) EditComment(_ context.Context, issueID, commentID, content string) (*models.Comment, error) {
	if err := models.ValidateCommentContent(content); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	issue, err := s.liveIssue(issueID)
	if err != nil {
		return nil, err
	}
	idx := issue.FindComment(commentID)
	if idx < 0 {
		return nil, commentNotFound(commentID)
	}
	c := issue.Comments[idx]
	c.Content = content
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return c.Clone(), nil
}

func (s *MemoryStore) DeleteComment(_ context.Context, issueID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, err := s.liveIssue(issueID)
	if err != nil {
		return err
	}
	idx := issue.FindComment(commentID)
	if idx < 0 {
		return commentNotFound(commentID)
	}
	issue.Comments = slices.Delete(issue.Comments, idx, idx+1)
	return nil
}

// --- Categories ---

// nameTaken reports whether another category already uses name.
// Callers must hold s.mu.
func (s *MemoryStore) nameTaken(name, exceptID string) bool {
	key := models.CategoryKey(name)
	for _, c := range s.categories {
		if c.ID != exceptID && models.CategoryKey(c.Name) == key {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateCategory(_ context.Context, in models.CategoryInput) (*models.Category, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := &models.Category{
		ID:          newULID(),
		Name:        strings.TrimSpace(in.Name),
		Color:       in.Color,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(c.Name, "") {
		return nil, categoryExists(c.Name)
	}
	s.categories[c.ID] = c
	return c.Clone(), nil
}

func (s *MemoryStore) UpdateCategory(_ context.Context, id string, patch models.CategoryPatch) (*models.Category, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, categoryNotFound(id)
	}
	if patch.Name != nil && s.nameTaken(*patch.Name, id) {
		return nil, categoryExists(strings.TrimSpace(*patch.Name))
	}
	patch.Apply(c)
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return c.Clone(), nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return categoryNotFound(id)
	}
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) GetCategory(_ context.Context, id string) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, categoryNotFound(id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Category) int {
		return cmp.Or(
			cmp.Compare(models.CategoryKey(a.Name), models.CategoryKey(b.Name)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}
