package models

import (
	"maps"
	"time"
)

// IssueStatus represents the state of a reported issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusRejected   IssueStatus = "rejected"
)

// IssueStatuses lists every status in workflow order.
var IssueStatuses = []IssueStatus{
	IssueStatusOpen,
	IssueStatusInProgress,
	IssueStatusResolved,
	IssueStatusRejected,
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusRejected:
		return true
	}
	return false
}

// IssuePriority represents the urgency of an issue. The empty value means unset.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// Valid reports whether p is a known priority or unset.
func (p IssuePriority) Valid() bool {
	switch p {
	case "", IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// Issue is a reported local problem with its comments and vote ledger.
type Issue struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Location    string              `json:"location"`
	ImageURL    string              `json:"imageUrl,omitempty"`
	Status      IssueStatus         `json:"status"`
	Category    string              `json:"category,omitempty"`
	Priority    IssuePriority       `json:"priority,omitempty"`
	Upvotes     int                 `json:"upvotes"`
	Downvotes   int                 `json:"downvotes"`
	UserVotes   map[string]VoteType `json:"userVotes"`
	Comments    []*Comment          `json:"comments"`
	Author      string              `json:"author"`
	AuthorID    string              `json:"authorId"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   *time.Time          `json:"updatedAt,omitempty"`
	IsDeleted   bool                `json:"isDeleted"`
}

// Score is the net vote score used for ranking.
func (i *Issue) Score() int {
	return i.Upvotes - i.Downvotes
}

// FindComment returns the index of the comment with the given id, or -1.
func (i *Issue) FindComment(id string) int {
	for idx, c := range i.Comments {
		if c.ID == id {
			return idx
		}
	}
	return -1
}

// Clone returns a deep copy so callers can read it without sharing the
// ledger map or comment slice with the store.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	out.UserVotes = maps.Clone(i.UserVotes)
	if out.UserVotes == nil {
		out.UserVotes = map[string]VoteType{}
	}
	out.Comments = make([]*Comment, len(i.Comments))
	for idx, c := range i.Comments {
		out.Comments[idx] = c.Clone()
	}
	if i.UpdatedAt != nil {
		t := *i.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// IssueInput holds the caller-supplied fields of a new issue.
type IssueInput struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	Status      IssueStatus   `json:"status,omitempty"`
	Category    string        `json:"category,omitempty"`
	Priority    IssuePriority `json:"priority,omitempty"`
}

// IssuePatch is a partial update. Nil fields are left untouched.
type IssuePatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Location    *string        `json:"location,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	Status      *IssueStatus   `json:"status,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Priority    *IssuePriority `json:"priority,omitempty"`
	IsDeleted   *bool          `json:"isDeleted,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.ImageURL == nil && p.Status == nil && p.Category == nil &&
		p.Priority == nil && p.IsDeleted == nil
}

// Apply merges the set fields into issue. It does not touch UpdatedAt.
func (p IssuePatch) Apply(issue *Issue) {
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Location != nil {
		issue.Location = *p.Location
	}
	if p.ImageURL != nil {
		issue.ImageURL = *p.ImageURL
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
	if p.Category != nil {
		issue.Category = *p.Category
	}
	if p.Priority != nil {
		issue.Priority = *p.Priority
	}
	if p.IsDeleted != nil {
		issue.IsDeleted = *p.IsDeleted
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
