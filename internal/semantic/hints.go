package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"finscan/internal/logger"
	"finscan/pkg/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// maxHintChars bounds the page text sent for a hint
const maxHintChars = 3000

// HintProvider suggests a financial section for page text. Suggestions are
// advisory: they only ever replace the fallback label.
type HintProvider interface {
	Suggest(ctx context.Context, text string) (*Hint, error)
}

// Hint is one advisory suggestion
type Hint struct {
	Section    models.FinancialType `json:"section"`
	Confidence float64              `json:"confidence"`
	Reason     string               `json:"reason"`
	Model      string               `json:"-"`
}

// OpenAIHints implements HintProvider with a chat completion
type OpenAIHints struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIHints creates a hint provider. An empty model uses GPT-4o mini.
func NewOpenAIHints(client *openai.Client, model string) *OpenAIHints {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIHints{
		client: client,
		model:  model,
		log:    logger.WithComponent("semantic-hints"),
	}
}

// Suggest asks the model for one label of the taxonomy
func (h *OpenAIHints) Suggest(ctx context.Context, text string) (*Hint, error) {
	const op = "Suggest"

	if r := []rune(text); len(r) > maxHintChars {
		text = string(r[:maxHintChars])
	}

	labels := make([]string, len(models.FinancialTypes))
	for i, t := range models.FinancialTypes {
		labels[i] = string(t)
	}

	prompt := fmt.Sprintf(`Classify this page of a Finnish or English municipal financial report.

PAGE TEXT:
%s

Choose exactly one section from: %s

Answer only with JSON in this format:
{
  "section": "notes",
  "confidence": 0.6,
  "reason": "numbered note headings"
}`, text, strings.Join(labels, ", "))

	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: h.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no response choices", op)
	}

	hint, err := parseHint(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hint.Model = h.model
	return hint, nil
}

// parseHint reads the JSON answer, tolerating markdown code fences
func parseHint(response string) (*Hint, error) {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cleaned), "```"))

	var hint Hint
	if err := json.Unmarshal([]byte(cleaned), &hint); err != nil {
		return nil, fmt.Errorf("parse hint response: %w", err)
	}
	if !hint.Section.Valid() {
		return nil, fmt.Errorf("hint section %q is not in the taxonomy", hint.Section)
	}
	return &hint, nil
}

// ApplyHints asks the hint provider about every page still at the fallback
// label. Accepted hints are recorded at ConfHint with evidence
// "hint:<model>". Provider failures leave the page unchanged. It returns
// the number of pages relabelled.
func (c *Classifier) ApplyHints(ctx context.Context, pages []models.Page) int {
	if c.hints == nil {
		return 0
	}
	n := 0
	for i := range pages {
		p := &pages[i]
		if !IsFallback(p) {
			continue
		}
		if ctx.Err() != nil {
			return n
		}
		hint, err := c.hints.Suggest(ctx, p.AllText())
		if err != nil {
			c.log.Warn().Err(err).Int("page", p.Index).Msg("Section hint failed")
			continue
		}
		apply(p, Decision{
			Section:    string(hint.Section),
			Confidence: ConfHint,
			Evidence:   []string{EvidenceFallback, "hint:" + hint.Model},
		})
		n++
		c.log.Debug().
			Int("page", p.Index).
			Str("section", p.Section).
			Float64("model_confidence", hint.Confidence).
			Str("reason", hint.Reason).
			Msg("Applied section hint")
	}
	return n
}
