package store

import (
	"context"
	"fmt"

	"github.com/voicelocal/voicelocal/internal/models"
)

type seedComment struct {
	author, authorID, content string
}

type seedIssue struct {
	input     models.IssueInput
	author    models.User
	upvotes   int
	downvotes int
	comments  []seedComment
}

// demoIssues are created oldest first so that the most recent one lists first.
var demoIssues = []seedIssue{
	{
		input: models.IssueInput{
			Title:       "Streetlight out on Elm Street - safety concern",
			Description: "The streetlight on Elm Street between 2nd and 3rd Avenue has been out for over a week. This area gets really dark at night and feels unsafe for pedestrians.",
			Location:    "Elm Street (2nd-3rd Ave)",
			Status:      models.IssueStatusResolved,
			Category:    "safety",
			Priority:    models.IssuePriorityHigh,
		},
		author:  models.User{ID: "6", DisplayName: "Robert Garcia"},
		upvotes: 28,
		comments: []seedComment{
			{"City Representative", "admin1", "Thank you for reporting this. The light has been repaired and should be working now."},
		},
	},
	{
		input: models.IssueInput{
			Title:       "Need more bike lanes on University Avenue",
			Description: "University Avenue is heavily used by cyclists but lacks proper bike lanes. This creates dangerous situations as bikes and cars share the narrow road.",
			Location:    "University Avenue",
			Status:      models.IssueStatusOpen,
			Category:    "transportation",
			Priority:    models.IssuePriorityMedium,
		},
		author:    models.User{ID: "7", DisplayName: "Emily Rodriguez"},
		upvotes:   56,
		downvotes: 12,
	},
	{
		input: models.IssueInput{
			Title:       "Park playground equipment is damaged and unsafe",
			Description: "Several pieces of playground equipment at Riverside Park have broken or missing parts. The swing set has a broken chain and the slide has a sharp edge that could hurt children.",
			Location:    "Riverside Park",
			Status:      models.IssueStatusInProgress,
			Category:    "parks",
			Priority:    models.IssuePriorityMedium,
		},
		author:    models.User{ID: "4", DisplayName: "David Wilson"},
		upvotes:   32,
		downvotes: 1,
		comments: []seedComment{
			{"Jennifer Lee", "5", "This is really concerning. I have young kids who play here."},
		},
	},
	{
		input: models.IssueInput{
			Title:       "Pothole on Main Street needs immediate repair",
			Description: "There's a large pothole at the intersection of Main Street and Oak Avenue that's been growing larger after recent rains. It's causing damage to vehicles and is dangerous for cyclists.",
			Location:    "Main Street & Oak Avenue",
			ImageURL:    "https://images.unsplash.com/photo-1581833971358-2c8b550f87b3?w=400",
			Status:      models.IssueStatusOpen,
			Category:    "infrastructure",
			Priority:    models.IssuePriorityHigh,
		},
		author:    models.User{ID: "1", DisplayName: "Sarah Johnson"},
		upvotes:   47,
		downvotes: 3,
		comments: []seedComment{
			{"Mike Chen", "2", "I've also noticed this. My car hit it yesterday and it felt really rough."},
			{"Lisa Brown", "3", "Has anyone contacted the city about this yet?"},
		},
	},
}

// SeedCategories fills an empty category registry with
// models.DefaultCategories and returns how many were created.
func SeedCategories(ctx context.Context, s Store) (int, error) {
	existing, err := s.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for n, in := range models.DefaultCategories {
		if _, err := s.CreateCategory(ctx, in); err != nil {
			return n, fmt.Errorf("seed category %q: %w", in.Name, err)
		}
	}
	return len(models.DefaultCategories), nil
}

// Seed loads the demo issues into an empty store and returns how many were
// created. Vote totals are cast by synthetic resident-N users. A store that
// already holds issues, live or deleted, keeps them untouched. An empty
// category registry gets the defaults either way.
func Seed(ctx context.Context, s Store) (int, error) {
	if _, err := SeedCategories(ctx, s); err != nil {
		return 0, err
	}
	live, err := s.ListIssues(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := s.ListDeletedIssues(ctx)
	if err != nil {
		return 0, err
	}
	if len(live)+len(deleted) > 0 {
		return 0, nil
	}

	for n, demo := range demoIssues {
		author := demo.author
		issue, err := s.CreateIssue(ctx, demo.input, &author)
		if err != nil {
			return n, fmt.Errorf("seed issue %q: %w", demo.input.Title, err)
		}
		resident := 0
		cast := func(count int, t models.VoteType) error {
			for range count {
				resident++
				if _, err := s.Vote(ctx, issue.ID, fmt.Sprintf("resident-%d", resident), t); err != nil {
					return fmt.Errorf("seed votes: %w", err)
				}
			}
			return nil
		}
		if err := cast(demo.upvotes, models.VoteUp); err != nil {
			return n, err
		}
		if err := cast(demo.downvotes, models.VoteDown); err != nil {
			return n, err
		}
		for _, c := range demo.comments {
			_, err := s.AddComment(ctx, issue.ID, models.CommentInput{
				Author:   c.author,
				AuthorID: c.authorID,
				Content:  c.content,
			})
			if err != nil {
				return n, fmt.Errorf("seed comment: %w", err)
			}
		}
	}
	return len(demoIssues), nil
}
