// Package llm is the client for the language-model classification service used as
// the last classifier tier.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/formatting"
)

// Request is one description to classify along with its invoice context.
type Request struct {
	Description   string
	CompanyCode   string
	TransportMode string
	Amount        *float64
	Currency      string
	Categories    []rules.Category
}

// Alternative is a lower-ranked category the model considered.
type Alternative struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Answer is the model's structured classification.
type Answer struct {
	Category     string        `json:"category"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	Alternatives []Alternative `json:"alternatives"`
}

// Client calls the Anthropic Messages API. Calls wait on the shared limiter so
// LLM traffic counts against the same budget as OCR traffic.
type Client struct {
	client       anthropic.Client
	model        string
	maxTokens    int64
	instructions string
	limiter      *rate.Limiter
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// New creates a Client. It returns ErrNotConfigured when the provider is "none".
func New(cfg Config, limiter *rate.Limiter, metrics *telemetry.Metrics, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.TimeoutDuration()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		maxTokens:    int64(cfg.MaxTokens),
		instructions: cfg.Instructions,
		limiter:      limiter,
		metrics:      metrics,
		logger:       logger.With("system", "llm"),
	}, nil
}

// Classify asks the model for a category. Transport failures wrap ErrUnavailable;
// answers that cannot be parsed or name an unknown category wrap ErrMalformed.
func (c *Client) Classify(ctx context.Context, req Request) (*Answer, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{
				Text:         ComposeSystemPrompt(c.instructions, req.Categories),
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(ComposeUserPrompt(req))),
		},
	})
	c.metrics.ExternalCall("llm", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.DebugContext(ctx, "llm response",
		"tokens_in", message.Usage.InputTokens,
		"tokens_out", message.Usage.OutputTokens,
		"cache_read", message.Usage.CacheReadInputTokens,
	)

	for _, block := range message.Content {
		if block.Type == "text" {
			return parseAnswer(block.Text, req.Categories)
		}
	}
	return nil, fmt.Errorf("%w: no text content", ErrMalformed)
}

func parseAnswer(text string, categories []rules.Category) (*Answer, error) {
	answer, err := formatting.Parse[Answer](text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.Code] = true
	}
	if !known[answer.Category] {
		return nil, fmt.Errorf("%w: unknown category %q", ErrMalformed, answer.Category)
	}
	answer.Confidence = clamp(answer.Confidence)

	alts := answer.Alternatives[:0]
	for _, a := range answer.Alternatives {
		if known[a.Category] && a.Category != answer.Category {
			a.Confidence = clamp(a.Confidence)
			alts = append(alts, a)
		}
	}
	answer.Alternatives = alts

	return &answer, nil
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
