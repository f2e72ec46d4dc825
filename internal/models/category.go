package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// CategoryNameMaxLen bounds registry names.
const CategoryNameMaxLen = 64

// Category is a managed entry in the category registry. Issues still carry a
// free-form category string; the registry lists the names offered to
// reporters and used for triage.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// CategoryInput holds the fields for a new category.
type CategoryInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CategoryPatch changes the set fields of a category.
type CategoryPatch struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Color == nil && p.Description == nil
}

// Apply copies the set fields onto c.
func (p CategoryPatch) Apply(c *Category) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
}

// Clone returns a copy of c.
func (c *Category) Clone() *Category {
	out := *c
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		out.UpdatedAt = &t
	}
	return &out
}

// CategoryKey is the case-insensitive form used for name uniqueness.
func CategoryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func validateCategoryName(name string) error {
	if blank(name) {
		return invalid("name", "is required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(name)) > CategoryNameMaxLen {
		return invalid("name", "must be at most %d characters", CategoryNameMaxLen)
	}
	return nil
}

// ValidateColor accepts an empty string or a #RRGGBB color.
func ValidateColor(color string) error {
	if color != "" && !hexColor.MatchString(color) {
		return invalid("color", "must be #RRGGBB, got %q", color)
	}
	return nil
}

// Validate checks the name and color.
func (in CategoryInput) Validate() error {
	if err := validateCategoryName(in.Name); err != nil {
		return err
	}
	return ValidateColor(in.Color)
}

// Validate checks the set fields of the patch.
func (p CategoryPatch) Validate() error {
	if p.Name != nil {
		if err := validateCategoryName(*p.Name); err != nil {
			return err
		}
	}
	if p.Color != nil {
		return ValidateColor(*p.Color)
	}
	return nil
}

// DefaultCategories populate an empty registry.
var DefaultCategories = []CategoryInput{
	{Name: "infrastructure", Color: "#6B7280", Description: "Roads, sidewalks, bridges, water and sewer"},
	{Name: "maintenance", Color: "#F59E0B", Description: "Repairs, graffiti and upkeep of public property"},
	{Name: "safety", Color: "#EF4444", Description: "Hazards, lighting and anything that endangers people"},
	{Name: "environment", Color: "#10B981", Description: "Litter, dumping, pollution, trees and noise"},
	{Name: "parks", Color: "#22C55E", Description: "Parks, playgrounds, benches and trails"},
	{Name: "transportation", Color: "#3B82F6", Description: "Transit, bike lanes, traffic and parking"},
}

// CategoryNames returns the names of cats in order.
func CategoryNames(cats []*Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

// DefaultCategoryNames returns the names of DefaultCategories.
func DefaultCategoryNames() []string {
	names := make([]string, len(DefaultCategories))
	for i, c := range DefaultCategories {
		names[i] = c.Name
	}
	return names
}
