package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicelocal/voicelocal/internal/models"
)

// ErrNotFound matches every missing issue or comment via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError names the kind and id of a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func issueNotFound(id string) error {
	return &NotFoundError{Kind: "issue", ID: id}
}

func commentNotFound(id string) error {
	return &NotFoundError{Kind: "comment", ID: id}
}

func categoryNotFound(id string) error {
	return &NotFoundError{Kind: "category", ID: id}
}

// ErrConflict matches every uniqueness violation via errors.Is.
var ErrConflict = errors.New("conflict")

// ConflictError reports a record whose unique name is already taken.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Name)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func categoryExists(name string) error {
	return &ConflictError{Kind: "category", Name: name}
}

// Store is the single source of truth for issues, their comments and their
// vote ledgers. Reads return copies; every change goes through a method.
//
// Mutations address issues by raw id, so a soft-deleted issue can still be
// updated, restored or hard-deleted. Votes and comments need a live issue.
// A missing id yields an error matching ErrNotFound.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, in models.IssueInput, actor *models.User) (*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	SoftDeleteIssue(ctx context.Context, id string) error
	RestoreIssue(ctx context.Context, id string) error
	HardDeleteIssue(ctx context.Context, id string) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	LookupIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context) ([]*models.Issue, error)
	ListIssuesByAuthor(ctx context.Context, authorID string) ([]*models.Issue, error)
	ListDeletedIssues(ctx context.Context) ([]*models.Issue, error)

	// Votes
	Vote(ctx context.Context, issueID, userID string, t models.VoteType) (*models.Issue, error)

	// Comments
	AddComment(ctx context.Context, issueID string, in models.CommentInput) (*models.Comment, error)
	EditComment(ctx context.Context, issueID, commentID, content string) (*models.Comment, error)
	DeleteComment(ctx context.Context, issueID, commentID string) error

	// Categories. Names are unique ignoring case; lists are ordered by name.
	// Deleting a category leaves issues that use its name unchanged.
	CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id string, patch models.CategoryPatch) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)

	// Lifecycle
	Close() error
}

func validateVote(userID string, t models.VoteType) error {
	if userID == "" {
		return &models.ValidationError{Field: "userId", Message: "is required"}
	}
	if !t.Valid() {
		return &models.ValidationError{Field: "type", Message: fmt.Sprintf("vote must be up or down, got %q", t)}
	}
	return nil
}
