package models

import "time"

// Comment is a message attached to an issue. It has no lifecycle of its own.
type Comment struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	AuthorID  string     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a copy of the comment.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// CommentInput holds the caller-supplied fields of a new comment.
type CommentInput struct {
	Author   string `json:"author"`
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
}
