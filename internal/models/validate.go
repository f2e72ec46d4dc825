package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ErrInvalid matches every validation failure via errors.Is.
var ErrInvalid = errors.New("invalid input")

// ValidationError reports a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, format string, a ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Validate checks the fields the store requires: non-empty title,
// description and location, and known status and priority values.
func (in IssueInput) Validate() error {
	if blank(in.Title) {
		return invalid("title", "is required")
	}
	if blank(in.Description) {
		return invalid("description", "is required")
	}
	if blank(in.Location) {
		return invalid("location", "is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return invalid("status", "unknown status %q", in.Status)
	}
	if !in.Priority.Valid() {
		return invalid("priority", "unknown priority %q", in.Priority)
	}
	return nil
}

// Form limits applied to user-submitted issues and comments.
const (
	TitleMinLen       = 5
	TitleMaxLen       = 100
	DescriptionMinLen = 20
	DescriptionMaxLen = 1000
	LocationMinLen    = 3
	LocationMaxLen    = 100
	CommentMinLen     = 3
	CommentMaxLen     = 500
)

func checkLen(field, s string, lo, hi int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < lo {
		return invalid(field, "must be at least %d characters", lo)
	}
	if n > hi {
		return invalid(field, "must be less than %d characters", hi)
	}
	return nil
}

// ValidateForm applies the submission form rules on top of Validate:
// length limits and an absolute http(s) image URL.
func (in IssueInput) ValidateForm() error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := checkLen("title", in.Title, TitleMinLen, TitleMaxLen); err != nil {
		return err
	}
	if err := checkLen("description", in.Description, DescriptionMinLen, DescriptionMaxLen); err != nil {
		return err
	}
	if err := checkLen("location", in.Location, LocationMinLen, LocationMaxLen); err != nil {
		return err
	}
	return ValidateImageURL(in.ImageURL)
}

// ValidateImageURL accepts an empty string or an absolute http(s) URL.
func ValidateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("imageUrl", "must be a valid http(s) URL")
	}
	return nil
}

// Validate checks a patch: set text fields must be non-empty and set enum
// fields must be known values.
func (p IssuePatch) Validate() error {
	if p.Title != nil && blank(*p.Title) {
		return invalid("title", "cannot be empty")
	}
	if p.Description != nil && blank(*p.Description) {
		return invalid("description", "cannot be empty")
	}
	if p.Location != nil && blank(*p.Location) {
		return invalid("location", "cannot be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("status", "unknown status %q", *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return invalid("priority", "unknown priority %q", *p.Priority)
	}
	return nil
}

// Validate checks that the comment has content and an author id.
func (in CommentInput) Validate() error {
	if blank(in.AuthorID) {
		return invalid("authorId", "is required")
	}
	return ValidateCommentContent(in.Content)
}

// ValidateCommentContent rejects empty comment text.
func ValidateCommentContent(content string) error {
	if blank(content) {
		return invalid("content", "is required")
	}
	return nil
}

// ValidateCommentForm applies the comment form length limits.
func ValidateCommentForm(content string) error {
	if err := ValidateCommentContent(content); err != nil {
		return err
	}
	return checkLen("content", content, CommentMinLen, CommentMaxLen)
}

// ValidateActor checks that an acting user is present.
func ValidateActor(u *User) error {
	if u == nil || blank(u.ID) {
		return invalid("user", "an acting user is required")
	}
	return nil
}
