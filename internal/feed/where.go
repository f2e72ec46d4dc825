package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/voicelocal/voicelocal/internal/models"
)

// Env is the set of names a Where expression can use.
type Env struct {
	Title       string  `expr:"title"`
	Description string  `expr:"description"`
	Location    string  `expr:"location"`
	Status      string  `expr:"status"`
	Category    string  `expr:"category"`
	Priority    string  `expr:"priority"`
	Upvotes     int     `expr:"upvotes"`
	Downvotes   int     `expr:"downvotes"`
	Score       int     `expr:"score"`
	Comments    int     `expr:"comments"`
	Author      string  `expr:"author"`
	AgeHours    float64 `expr:"ageHours"`
}

func newEnv(issue *models.Issue, now time.Time) Env {
	return Env{
		Title:       issue.Title,
		Description: issue.Description,
		Location:    issue.Location,
		Status:      string(issue.Status),
		Category:    issue.Category,
		Priority:    string(issue.Priority),
		Upvotes:     issue.Upvotes,
		Downvotes:   issue.Downvotes,
		Score:       issue.Score(),
		Comments:    len(issue.Comments),
		Author:      issue.Author,
		AgeHours:    now.Sub(issue.CreatedAt).Hours(),
	}
}

type matcher func(issue *models.Issue, now time.Time) (bool, error)

// compileWhere compiles a boolean filter such as
// `score > 10 && status == "open"`. An empty expression yields a nil matcher.
func compileWhere(where string) (matcher, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return nil, nil
	}
	program, err := expr.Compile(where, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, &models.ValidationError{Field: "where", Message: err.Error()}
	}
	return func(issue *models.Issue, now time.Time) (bool, error) {
		out, err := expr.Run(program, newEnv(issue, now))
		if err != nil {
			return false, fmt.Errorf("evaluate where: %w", err)
		}
		return out.(bool), nil
	}, nil
}

// ValidateWhere reports whether where compiles.
func ValidateWhere(where string) error {
	_, err := compileWhere(where)
	return err
}
