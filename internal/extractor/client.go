// Package extractor reads invoice fields out of a PDF with an OpenAI chat model.
package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel is used when the caller names none
	DefaultModel = "gpt-4o"

	// DefaultMaxRetries bounds retries on rate limit responses
	DefaultMaxRetries = 3

	// BaseBackoff is the first wait after a rate limit response
	BaseBackoff = 2 * time.Second

	// MaxBackoff caps the wait between retries
	MaxBackoff = 32 * time.Second
)

const systemPrompt = "Return only JSON. No markdown. Use YYYY-MM-DD for dates."

const promptTemplate = `Extract invoice fields and return STRICT JSON with keys:
invoice_number, vendor, invoice_date (YYYY-MM-DD), due_date (YYYY-MM-DD),
currency, subtotal, tax, total, payment_terms, confidence, flags, summary,
line_items (array of {description, quantity, unit_price, amount}).

Use null for any field that is not on the document.
In the summary field, include details about pricing (hourly rates, flat fees) if visible.

Email context (may help):
From: %s
Subject: %s
`

type completionAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Config holds extraction client settings
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	BaseBackoff time.Duration
}

// Client extracts invoices through the chat completions API
type Client struct {
	api         completionAPI
	model       string
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// New creates an extraction client. The SDK's own retries are disabled so
// rate limits follow this client's backoff.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("extraction api key is not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	oc := openai.NewClient(opts...)

	return newClient(&oc.Chat.Completions, cfg, logger), nil
}

func newClient(api completionAPI, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		api:         api,
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger.With(slog.String("component", "extractor")),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = BaseBackoff
	}
	return c
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Extract sends the PDF and the email context to the model and parses the
// reply. Every failure wraps domain.ErrExtraction.
func (c *Client) Extract(ctx context.Context, pdf []byte, source domain.Source) (*domain.Invoice, error) {
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrExtraction)
	}

	content, err := c.completeWithRetry(ctx, c.params(pdf, source))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}

	invoice, err := ParseInvoice(content)
	if err != nil {
		c.logger.Warn("Unparsable model output", slog.Int("length", len(content)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	return invoice, nil
}

func (c *Client) params(pdf []byte, source domain.Source) openai.ChatCompletionNewParams {
	filename := "invoice.pdf"
	prompt := fmt.Sprintf(promptTemplate, source.Sender, source.Subject)
	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)

	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(dataURL),
					Filename: openai.String(filename),
				}),
				openai.TextContentPart(prompt),
			}),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}
}

func (c *Client) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			c.logger.Warn("Extraction rate limited, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.api.New(ctx, params)
		if err != nil {
			lastErr = classify(err)
			if domain.IsRetryable(lastErr) {
				continue
			}
			return "", fmt.Errorf("chat completion: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", errors.New("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", c.maxRetries, lastErr)
}

// classify marks rate limit responses retryable
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return domain.NewRetryableError(err)
	}
	return err
}
