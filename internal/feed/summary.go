package feed

import (
	"cmp"
	"slices"
	"strings"

	"github.com/voicelocal/voicelocal/internal/models"
)

// Summary is the admin dashboard view of the live issues.
type Summary struct {
	Total          int                          `json:"total"`
	ByStatus       map[models.IssueStatus]int   `json:"byStatus"`
	ByCategory     map[string]int               `json:"byCategory"`
	ByPriority     map[models.IssuePriority]int `json:"byPriority"`
	TotalVotes     int                          `json:"totalVotes"`
	TotalComments  int                          `json:"totalComments"`
	ResolutionRate int                          `json:"resolutionRate"` // percent
	Recent         []*models.Issue              `json:"recent"`
	Trending       []*models.Issue              `json:"trending"`
}

const summaryListLen = 5

// Summarize computes dashboard totals. Issues without a category count as
// "uncategorized"; unset priorities are not counted.
func Summarize(issues []*models.Issue) Summary {
	s := Summary{
		Total:      len(issues),
		ByStatus:   map[models.IssueStatus]int{},
		ByCategory: map[string]int{},
		ByPriority: map[models.IssuePriority]int{},
	}
	for _, st := range models.IssueStatuses {
		s.ByStatus[st] = 0
	}
	for _, issue := range issues {
		s.ByStatus[issue.Status]++
		s.ByCategory[categoryKey(issue.Category)]++
		if issue.Priority != "" {
			s.ByPriority[issue.Priority]++
		}
		s.TotalVotes += issue.Upvotes + issue.Downvotes
		s.TotalComments += len(issue.Comments)
	}
	if s.Total > 0 {
		s.ResolutionRate = s.ByStatus[models.IssueStatusResolved] * 100 / s.Total
	}

	recent := slices.Clone(issues)
	slices.SortStableFunc(recent, func(a, b *models.Issue) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	s.Recent = recent[:min(summaryListLen, len(recent))]

	trending := slices.Clone(issues)
	slices.SortStableFunc(trending, func(a, b *models.Issue) int {
		return cmp.Compare(b.Score(), a.Score())
	})
	s.Trending = trending[:min(summaryListLen, len(trending))]
	return s
}

// CategoryCount is one entry of Categories.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories lists the distinct categories in use, most used first, ties
// broken by name.
func Categories(issues []*models.Issue) []CategoryCount {
	counts := map[string]int{}
	for _, issue := range issues {
		counts[categoryKey(issue.Category)]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b CategoryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func categoryKey(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "uncategorized"
	}
	return c
}
