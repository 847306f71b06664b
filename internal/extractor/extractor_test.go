package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelReply = `{
  "invoice_number": "INV-2026-001",
  "vendor": " Nexus Path Consulting Group LLC ",
  "invoice_date": "2025-12-24",
  "due_date": "2026-01-23",
  "currency": "usd",
  "subtotal": "$29,570.50",
  "tax": 2624.38,
  "total": "32,194.88",
  "payment_terms": "Net 30",
  "confidence": 1.4,
  "flags": ["", "handwritten note on page 2"],
  "summary": "Consulting services, 120 hours at $246.42/hr",
  "line_items": [
    {"description": "Consulting", "quantity": 120, "unit_price": "$246.42", "amount": 29570.50}
  ]
}`

func TestParseInvoice(t *testing.T) {
	inv, err := ParseInvoice(modelReply)
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-001", *inv.InvoiceNumber)
	assert.Equal(t, "Nexus Path Consulting Group LLC", *inv.Vendor)
	assert.Equal(t, "USD", *inv.Currency)
	assert.Equal(t, 29570.50, *inv.Subtotal)
	assert.Equal(t, 2624.38, *inv.Tax)
	assert.Equal(t, 32194.88, *inv.Total)
	assert.Equal(t, "Net 30", *inv.PaymentTerms)
	assert.Equal(t, 1.0, *inv.Confidence, "confidence is clamped")
	assert.Equal(t, []string{"handwritten note on page 2"}, inv.Flags)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Consulting", inv.LineItems[0].Description)
	assert.Equal(t, 246.42, *inv.LineItems[0].UnitPrice)
}

func TestParseInvoice_MissingAndUnreadableFields(t *testing.T) {
	inv, err := ParseInvoice(`{"invoice_number": 1042, "vendor": "", "subtotal": "N/A", "total": null}`)
	require.NoError(t, err)

	assert.Equal(t, "1042", *inv.InvoiceNumber)
	assert.Nil(t, inv.Vendor)
	assert.Nil(t, inv.Subtotal)
	assert.Nil(t, inv.Total)
	assert.Nil(t, inv.Currency)
	assert.False(t, inv.IsEmpty())
}

func TestParseInvoice_SchemaViolation(t *testing.T) {
	_, err := ParseInvoice(`{"total": {"amount": 5}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match invoice schema")

	_, err = ParseInvoice(`{"flags": "not a list"}`)
	require.Error(t, err)
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`, false},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding prose", `The invoice: {"a":{"b":2}} hope this helps`, `{"a":{"b":2}}`, false},
		{"no object", "I could not read the document", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanResponse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeCompletions struct {
	replies []string
	errs    []error
	calls   int
	params  []openai.ChatCompletionNewParams
}

func (f *fakeCompletions) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	i := f.calls
	f.calls++
	f.params = append(f.params, body)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.replies[i]}}},
	}, nil
}

func rateLimited() error {
	return &openai.Error{
		StatusCode: http.StatusTooManyRequests,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil),
		Response:   &http.Response{StatusCode: http.StatusTooManyRequests},
	}
}

func testClient(api completionAPI) *Client {
	return newClient(api, Config{Model: "gpt-4o-mini", MaxRetries: 2, BaseBackoff: time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtract(t *testing.T) {
	api := &fakeCompletions{replies: []string{modelReply}}
	c := testClient(api)

	inv, err := c.Extract(context.Background(), []byte("%PDF-1.7"), domain.Source{Sender: "billing@nexuspath.example", Subject: "Invoice"})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-001", *inv.InvoiceNumber)

	require.Len(t, api.params, 1)
	assert.Equal(t, "gpt-4o-mini", string(api.params[0].Model))
	assert.Len(t, api.params[0].Messages, 2)
}

func TestExtract_RetriesRateLimits(t *testing.T) {
	api := &fakeCompletions{
		errs:    []error{rateLimited(), rateLimited(), nil},
		replies: []string{"", "", modelReply},
	}
	c := testClient(api)

	inv, err := c.Extract(context.Background(), []byte("%PDF"), domain.Source{})
	require.NoError(t, err)
	assert.NotNil(t, inv.Total)
	assert.Equal(t, 3, api.calls)
}

func TestExtract_GivesUpAfterMaxRetries(t *testing.T) {
	api := &fakeCompletions{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	c := testClient(api)

	_, err := c.Extract(context.Background(), []byte("%PDF"), domain.Source{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.Equal(t, 3, api.calls)
}

func TestExtract_OtherErrorsAreNotRetried(t *testing.T) {
	api := &fakeCompletions{errs: []error{errors.New("connection refused")}}
	c := testClient(api)

	_, err := c.Extract(context.Background(), []byte("%PDF"), domain.Source{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, api.calls)
}

func TestExtract_UnparsableReply(t *testing.T) {
	api := &fakeCompletions{replies: []string{"Sorry, I cannot help with that."}}
	c := testClient(api)

	_, err := c.Extract(context.Background(), []byte("%PDF"), domain.Source{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
}

func TestExtract_EmptyDocument(t *testing.T) {
	api := &fakeCompletions{}
	_, err := testClient(api).Extract(context.Background(), nil, domain.Source{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtraction))
	assert.Equal(t, 0, api.calls)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	c, err := New(Config{APIKey: "sk-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestClassify(t *testing.T) {
	assert.True(t, domain.IsRetryable(classify(rateLimited())))

	serverErr := &openai.Error{
		StatusCode: http.StatusInternalServerError,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil),
		Response:   &http.Response{StatusCode: http.StatusInternalServerError},
	}
	assert.False(t, domain.IsRetryable(classify(serverErr)))
	assert.False(t, domain.IsRetryable(classify(errors.New("eof"))))
}
