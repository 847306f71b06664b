package domain

import (
	"time"
)

// Status is the lifecycle state of an invoice job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusExtracting Status = "extracting"
	StatusVerifying  Status = "verifying"
	StatusNotifying  Status = "notifying"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Origin identifies what created a job
type Origin string

const (
	OriginScheduled Origin = "scheduled"
	OriginOnDemand  Origin = "on_demand"
	OriginUpload    Origin = "upload"
)

var statusOrder = map[Status]int{
	StatusQueued:     0,
	StatusExtracting: 1,
	StatusVerifying:  2,
	StatusNotifying:  3,
	StatusDone:       4,
}

// AllStatuses lists statuses in lifecycle order
func AllStatuses() []Status {
	return []Status{StatusQueued, StatusExtracting, StatusVerifying, StatusNotifying, StatusDone, StatusFailed}
}

// IsTerminal reports whether no further mutation is allowed
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Jobs advance one stage at a time, or jump to failed from any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	nxt, ok := statusOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Source describes where a job's attachment came from
type Source struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	Origin     Origin    `json:"origin"`
}

// Attachment is the raw PDF owned by a job until it reaches a terminal state
type Attachment struct {
	Filename string `json:"filename"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// Released reports whether the attachment bytes have been dropped
func (a Attachment) Released() bool {
	return a.Data == nil
}

// NotificationResult is the outcome of posting a job to the team channel
type NotificationResult struct {
	Posted      bool   `json:"posted"`
	Channel     string `json:"channel,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
	MessageRef  string `json:"message_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Job tracks a single email attachment through extraction, verification and notification
type Job struct {
	ID           string              `json:"job_id"`
	Status       Status              `json:"status"`
	Source       Source              `json:"source"`
	Attachment   Attachment          `json:"attachment"`
	Invoice      *Invoice            `json:"invoice,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Notification *NotificationResult `json:"notification,omitempty"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// DedupKey returns the (message id, checksum) pair that identifies a job's input
func (j *Job) DedupKey() DedupKey {
	return DedupKey{MessageID: j.Source.MessageID, Checksum: j.Attachment.Checksum}
}

// Clone returns a copy safe to hand out of the store.
// Attachment bytes are never written after creation and are shared.
func (j *Job) Clone() Job {
	c := *j
	if j.Invoice != nil {
		inv := j.Invoice.Clone()
		c.Invoice = &inv
	}
	if j.Verification != nil {
		v := j.Verification.Clone()
		c.Verification = &v
	}
	if j.Notification != nil {
		n := *j.Notification
		c.Notification = &n
	}
	return c
}

// DedupKey identifies a processed attachment
type DedupKey struct {
	MessageID string
	Checksum  string
}

// Email is an unread invoice message returned by the mail source
type Email struct {
	MessageID   string
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Attachments []EmailAttachment
}

// EmailAttachment is a PDF attachment of an Email
type EmailAttachment struct {
	Filename string
	Data     []byte
}
