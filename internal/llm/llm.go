package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voicelocal/voicelocal/internal/models"
)

// Triage is a suggested category and priority for an issue.
type Triage struct {
	Category string               `json:"category"`
	Priority models.IssuePriority `json:"priority"`
	Reason   string               `json:"reason"`
	Source   string               `json:"source"` // "llm" or "heuristic"
}

// Client wraps the Anthropic API for issue triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
// categories are the registry names offered to the model; an empty list
// falls back to models.DefaultCategories.
func buildTriagePrompt(title, description, location string, categories []string) (system string, user string) {
	if len(categories) == 0 {
		categories = models.DefaultCategoryNames()
	}
	system = `You triage civic issues reported by residents to their local government. Return a JSON object with exactly three fields:
- "category": one of ` + quoteList(categories) + `, or a short lowercase tag if none fits
- "priority": one of "low", "medium", "high"
- "reason": one sentence explaining the choice

Rules:
- Anything that endangers people (traffic hazards, exposed wiring, unsafe structures, dark streets at night) is "high"
- Inconveniences that do not endanger anyone are "medium"
- Cosmetic problems and suggestions are "low"
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if location != "" {
		sb.WriteString("Location: ")
		sb.WriteString(location)
		sb.WriteString("\n")
	}
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return strings.Join(quoted, ", ")
}

// SuggestTriage asks the LLM for a category and priority, preferring one of
// the given category names.
func (c *Client) SuggestTriage(ctx context.Context, title, description, location string, categories []string) (*Triage, error) {
	systemPrompt, userPrompt := buildTriagePrompt(title, description, location, categories)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return parseTriage(text)
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

func parseTriage(text string) (*Triage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	text = stripFences(text)

	var t Triage
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	t.Category = strings.ToLower(strings.TrimSpace(t.Category))
	t.Priority = models.IssuePriority(strings.ToLower(string(t.Priority)))
	if t.Priority == "" || !t.Priority.Valid() {
		return nil, fmt.Errorf("LLM returned unknown priority %q", t.Priority)
	}
	t.Source = "llm"
	return &t, nil
}
