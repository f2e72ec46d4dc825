package llm

import (
	"strings"

	"github.com/voicelocal/voicelocal/internal/models"
)

// categoryKeywords are checked in order; the first category with a matching
// keyword wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"safety", []string{"streetlight", "street light", "crime", "unsafe", "danger", "hazard", "exposed wire", "vandal"}},
	{"transportation", []string{"bike", "bicycle", "bus", "traffic", "crosswalk", "parking", "transit", "signal"}},
	{"parks", []string{"park", "playground", "swing", "slide", "bench", "trail"}},
	{"environment", []string{"litter", "trash", "garbage", "pollution", "dumping", "fallen tree", "flood", "noise"}},
	{"infrastructure", []string{"pothole", "road", "sidewalk", "bridge", "pipe", "water main", "sewer", "drain", "light"}},
	{"maintenance", []string{"graffiti", "repair", "broken", "damaged", "leak", "paint"}},
}

// HeuristicTriage infers category and priority from keywords in the title
// and description. It is used when no LLM is configured. High priority
// keywords are checked before low ones; the default is medium.
func HeuristicTriage(title, description string) *Triage {
	text := strings.ToLower(title + "\n" + description)
	t := &Triage{
		Priority: classifyPriority(text),
		Source:   "heuristic",
	}
	for _, c := range categoryKeywords {
		if kw, ok := firstMatch(text, c.keywords); ok {
			t.Category = c.category
			t.Reason = "mentions " + `"` + kw + `"`
			break
		}
	}
	if t.Category == "" {
		t.Reason = "no category keywords found"
	}
	return t
}

func classifyPriority(text string) models.IssuePriority {
	highKeywords := []string{
		"danger", "unsafe", "urgent", "immediate", "emergency", "hazard",
		"injur", "hurt", "accident", "exposed", "collapse", "flooding",
	}
	if _, ok := firstMatch(text, highKeywords); ok {
		return models.IssuePriorityHigh
	}

	lowKeywords := []string{
		"minor", "cosmetic", "nice to have", "suggestion", "would be nice", "eventually",
	}
	if _, ok := firstMatch(text, lowKeywords); ok {
		return models.IssuePriorityLow
	}

	return models.IssuePriorityMedium
}

func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
