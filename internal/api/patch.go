package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/voicelocal/voicelocal/internal/models"
)

const (
	contentTypeMergePatch = "application/merge-patch+json"
	contentTypeJSONPatch  = "application/json-patch+json"
	maxPatchBytes         = 64 << 10
)

// editableIssue is the document a PATCH body applies to.
type editableIssue struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Location    string               `json:"location"`
	ImageURL    string               `json:"imageUrl"`
	Status      models.IssueStatus   `json:"status"`
	Category    string               `json:"category"`
	Priority    models.IssuePriority `json:"priority"`
}

func editableOf(i *models.Issue) editableIssue {
	return editableIssue{
		Title:       i.Title,
		Description: i.Description,
		Location:    i.Location,
		ImageURL:    i.ImageURL,
		Status:      i.Status,
		Category:    i.Category,
		Priority:    i.Priority,
	}
}

func badPatch(format string, a ...any) error {
	return &models.ValidationError{Field: "patch", Message: fmt.Sprintf(format, a...)}
}

// decodeIssuePatch applies the request body to the editable fields of issue
// and returns the fields that changed. JSON Patch (RFC 6902) is used for
// application/json-patch+json, JSON merge patch (RFC 7386) otherwise, so a
// null clears an optional field.
func decodeIssuePatch(r *http.Request, issue *models.Issue) (models.IssuePatch, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes))
	if err != nil {
		return models.IssuePatch{}, fmt.Errorf("read body: %w", err)
	}
	current := editableOf(issue)
	doc, err := json.Marshal(current)
	if err != nil {
		return models.IssuePatch{}, fmt.Errorf("marshal issue: %w", err)
	}

	var patched []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case contentTypeJSONPatch:
		ops, err := jsonpatch.DecodePatch(body)
		if err != nil {
			return models.IssuePatch{}, badPatch("invalid JSON Patch: %v", err)
		}
		patched, err = ops.Apply(doc)
		if err != nil {
			return models.IssuePatch{}, badPatch("apply JSON Patch: %v", err)
		}
	case "", "application/json", contentTypeMergePatch:
		if !json.Valid(body) {
			return models.IssuePatch{}, badPatch("invalid JSON")
		}
		patched, err = jsonpatch.MergePatch(doc, body)
		if err != nil {
			return models.IssuePatch{}, badPatch("apply merge patch: %v", err)
		}
	default:
		return models.IssuePatch{}, badPatch("unsupported content type %q", mediaType)
	}

	var next editableIssue
	dec := json.NewDecoder(bytes.NewReader(patched))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return models.IssuePatch{}, badPatch("%v", err)
	}

	form := models.IssueInput{
		Title:       next.Title,
		Description: next.Description,
		Location:    next.Location,
		ImageURL:    next.ImageURL,
		Category:    next.Category,
		Priority:    next.Priority,
	}
	if err := form.ValidateForm(); err != nil {
		return models.IssuePatch{}, err
	}

	return diffEditable(current, next), nil
}

func diffEditable(cur, next editableIssue) models.IssuePatch {
	var p models.IssuePatch
	if next.Title != cur.Title {
		p.Title = &next.Title
	}
	if next.Description != cur.Description {
		p.Description = &next.Description
	}
	if next.Location != cur.Location {
		p.Location = &next.Location
	}
	if next.ImageURL != cur.ImageURL {
		p.ImageURL = &next.ImageURL
	}
	if next.Status != cur.Status {
		p.Status = &next.Status
	}
	if next.Category != cur.Category {
		p.Category = &next.Category
	}
	if next.Priority != cur.Priority {
		p.Priority = &next.Priority
	}
	return p
}
