package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// DefaultModel is used when OpenAIConfig.Model is empty.
const DefaultModel = "gpt-4o-mini"

// ErrNoSuggestion is returned when the model answers with nothing usable.
var ErrNoSuggestion = errors.New("advisor returned no usable mapping")

// OpenAIConfig configures the chat completion advisor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional; for OpenAI-compatible gateways
	Model   string
}

// OpenAI asks a chat model to map unrecognized headers onto catalog fields.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates the advisor. Retries are disabled; the caller bounds the
// call with a timeout and falls back to the deterministic mapping.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai advisor: api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

const systemPrompt = `You map spreadsheet column headers to the fields of a fleet management system.
Reply with a single JSON object whose keys are column headers copied exactly and whose values are field names from the list.
Only include headers you are confident about. Never use a field twice. Do not add any other text.`

// Suggest implements core.Advisor.
func (a *OpenAI) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	cat, err := core.CatalogFor(entityType)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(cat, headers)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoSuggestion
	}

	return parseSuggestion(resp.Choices[0].Message.Content, headers, cat)
}

// buildPrompt lists the catalog fields and the headers to map.
func buildPrompt(cat *core.Catalog, headers []string) string {
	var b strings.Builder
	b.WriteString("Fields:\n")
	for _, f := range cat.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Label)
		if len(f.Synonyms) > 0 {
			fmt.Fprintf(&b, "; also called %s", strings.Join(f.Synonyms, ", "))
		}
		b.WriteString(")\n")
	}
	b.WriteString("\nHeaders:\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	return b.String()
}

// parseSuggestion extracts the JSON object from a model reply and keeps only
// pairs naming a real header and a catalog field. Each field is used once.
func parseSuggestion(content string, headers []string, cat *core.Catalog) (core.ColumnMapping, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrNoSuggestion
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse advisor reply: %w", err)
	}

	out := make(core.ColumnMapping)
	claimed := make(map[string]bool)
	// Header order keeps the result stable when the model repeats a field.
	for _, h := range headers {
		field := strings.TrimSpace(raw[h])
		if field == "" || !cat.Has(field) || claimed[field] {
			continue
		}
		out[h] = field
		claimed[field] = true
	}
	return out, nil
}
