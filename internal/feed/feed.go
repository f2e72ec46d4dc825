// Package feed turns a store snapshot into what a reader sees: search,
// filters, sorting and pagination. Every function is pure; the input slice
// is never modified.
package feed

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/voicelocal/voicelocal/internal/models"
)

// DefaultPageSize is the number of issues per page when none is requested.
const DefaultPageSize = 10

// MaxPageSize bounds page sizes requested by API and MCP callers.
const MaxPageSize = 100

// Sort orders.
const (
	SortRecent   = "recent"
	SortVotes    = "votes"
	SortComments = "comments"
)

// Query describes one feed request. Zero values mean "no constraint".
type Query struct {
	Search   string
	Status   models.IssueStatus
	Category string
	Priority models.IssuePriority
	AuthorID string
	Sort     string
	Page     int
	PageSize int
	Where    string
}

// Page is one page of feed results.
type Page struct {
	Items      []*models.Issue `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// Apply filters, sorts and paginates issues. Issues are expected in store
// order (most recent first); the recent sort keeps that order.
func Apply(issues []*models.Issue, q Query) (*Page, error) {
	match, err := compileWhere(q.Where)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var filtered []*models.Issue
	for _, issue := range issues {
		if !matches(issue, q, search) {
			continue
		}
		if match != nil {
			ok, err := match(issue, time.Now())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		filtered = append(filtered, issue)
	}

	if err := sortIssues(filtered, q.Sort); err != nil {
		return nil, err
	}

	return paginate(filtered, q.Page, q.PageSize), nil
}

func matches(issue *models.Issue, q Query, search string) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(issue.Title), search) &&
		!strings.Contains(strings.ToLower(issue.Description), search) &&
		!strings.Contains(strings.ToLower(issue.Location), search) {
		return false
	}
	if q.Status != "" && issue.Status != q.Status {
		return false
	}
	if q.Category != "" && !strings.EqualFold(issue.Category, q.Category) {
		return false
	}
	if q.Priority != "" && issue.Priority != q.Priority {
		return false
	}
	if q.AuthorID != "" && issue.AuthorID != q.AuthorID {
		return false
	}
	return true
}

func sortIssues(issues []*models.Issue, order string) error {
	switch order {
	case "", SortRecent:
	case SortVotes:
		slices.SortStableFunc(issues, func(a, b *models.Issue) int {
			return cmp.Compare(b.Score(), a.Score())
		})
	case SortComments:
		slices.SortStableFunc(issues, func(a, b *models.Issue) int {
			return cmp.Compare(len(b.Comments), len(a.Comments))
		})
	default:
		return &models.ValidationError{
			Field:   "sort",
			Message: fmt.Sprintf("unknown sort %q (use %s, %s or %s)", order, SortRecent, SortVotes, SortComments),
		}
	}
	return nil
}

func paginate(issues []*models.Issue, page, size int) *Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	total := len(issues)
	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}
	p := &Page{
		Items:      []*models.Issue{},
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	}
	// page <= totalPages keeps (page-1)*size below total, so nothing overflows.
	if page > totalPages {
		return p
	}
	start := (page - 1) * size
	end := start + min(size, total-start)
	p.Items = issues[start:end]
	return p
}
