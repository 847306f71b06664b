// Package events announces jobs that reached a terminal state on the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
)

// Broker is the publishing half of the RabbitMQ client
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// JobEvent is the message body published for a finished job
type JobEvent struct {
	JobID           string        `json:"job_id"`
	Status          domain.Status `json:"status"`
	Origin          domain.Origin `json:"origin"`
	MessageID       string        `json:"message_id"`
	InvoiceNumber   *string       `json:"invoice_number"`
	Total           *float64      `json:"total"`
	Currency        string        `json:"currency"`
	AllChecksPassed bool          `json:"all_checks_passed"`
	ChecksPassed    int           `json:"checks_passed"`
	Posted          bool          `json:"posted"`
	Error           string        `json:"error,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

// Publisher serializes job events onto a broker
type Publisher struct {
	broker Broker
	now    func() time.Time
}

// NewPublisher creates a publisher over broker
func NewPublisher(broker Broker) *Publisher {
	return &Publisher{
		broker: broker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewJobEvent projects a terminal job into its event
func NewJobEvent(job domain.Job, at time.Time) JobEvent {
	event := JobEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Origin:     job.Source.Origin,
		MessageID:  job.Source.MessageID,
		Error:      job.Error,
		OccurredAt: at,
	}
	if job.Invoice != nil {
		event.InvoiceNumber = job.Invoice.InvoiceNumber
		event.Total = job.Invoice.Total
		event.Currency = job.Invoice.CurrencyOrDefault()
	}
	if v := job.Verification; v != nil {
		event.AllChecksPassed = v.AllChecksPassed
		event.ChecksPassed = v.ChecksPassed
	}
	if n := job.Notification; n != nil {
		event.Posted = n.Posted
	}
	return event
}

// PublishJobEvent publishes the event for a terminal job
func (p *Publisher) PublishJobEvent(ctx context.Context, job domain.Job) error {
	if !job.Status.IsTerminal() {
		return fmt.Errorf("job %s is not terminal: %s", job.ID, job.Status)
	}

	body, err := json.Marshal(NewJobEvent(job, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}
