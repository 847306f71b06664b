package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	bodies       [][]byte
	contentTypes []string
	err          error
}

func (f *fakeBroker) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	f.bodies = append(f.bodies, body)
	f.contentTypes = append(f.contentTypes, contentType)
	return f.err
}

func TestPublishJobEvent(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker)
	at := time.Date(2026, 1, 5, 14, 3, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	job := domain.Job{
		ID:     "4b7c2d8e-0000-4000-8000-000000000001",
		Status: domain.StatusDone,
		Source: domain.Source{MessageID: "<abc@mail>", Origin: domain.OriginScheduled},
		Invoice: &domain.Invoice{
			InvoiceNumber: domain.String("INV-2026-001"),
			Total:         domain.Float(32194.88),
		},
		Verification: &domain.VerificationResult{AllChecksPassed: true, ChecksPassed: 5, TotalChecks: 5},
		Notification: &domain.NotificationResult{Posted: true},
	}

	require.NoError(t, p.PublishJobEvent(context.Background(), job))
	require.Len(t, broker.bodies, 1)
	assert.Equal(t, "application/json", broker.contentTypes[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(broker.bodies[0], &got))
	assert.Equal(t, job.ID, got["job_id"])
	assert.Equal(t, "done", got["status"])
	assert.Equal(t, "scheduled", got["origin"])
	assert.Equal(t, "INV-2026-001", got["invoice_number"])
	assert.Equal(t, 32194.88, got["total"])
	assert.Equal(t, "USD", got["currency"])
	assert.Equal(t, true, got["all_checks_passed"])
	assert.Equal(t, float64(5), got["checks_passed"])
	assert.Equal(t, true, got["posted"])
	assert.Equal(t, "2026-01-05T14:03:00Z", got["occurred_at"])
	assert.NotContains(t, got, "error")
}

func TestPublishJobEvent_FailedJobWithoutResults(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker)

	job := domain.Job{ID: "j-1", Status: domain.StatusFailed, Error: "extraction failed: timeout"}
	require.NoError(t, p.PublishJobEvent(context.Background(), job))

	var got JobEvent
	require.NoError(t, json.Unmarshal(broker.bodies[0], &got))
	assert.Nil(t, got.InvoiceNumber)
	assert.Nil(t, got.Total)
	assert.False(t, got.Posted)
	assert.Equal(t, "extraction failed: timeout", got.Error)
}

func TestPublishJobEvent_Errors(t *testing.T) {
	p := NewPublisher(&fakeBroker{})
	err := p.PublishJobEvent(context.Background(), domain.Job{ID: "j-2", Status: domain.StatusVerifying})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")

	p = NewPublisher(&fakeBroker{err: errors.New("channel closed")})
	err = p.PublishJobEvent(context.Background(), domain.Job{ID: "j-3", Status: domain.StatusDone})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}
