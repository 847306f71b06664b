package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a required rule or credential is missing
	ErrConfiguration = errors.New("configuration error")

	// ErrAttachmentTooLarge is returned when an attachment exceeds the size limit
	ErrAttachmentTooLarge = errors.New("attachment too large")

	// ErrExtraction is returned when the extraction service fails or the document is unparsable
	ErrExtraction = errors.New("extraction failed")

	// ErrVerificationIncomplete is returned when there are no extracted fields to verify
	ErrVerificationIncomplete = errors.New("verification incomplete")

	// ErrNotification is returned when posting to the team channel fails
	ErrNotification = errors.New("notification failed")

	// ErrAlreadyRunning is returned when a trigger arrives during an ingestion run
	ErrAlreadyRunning = errors.New("ingestion run already in progress")

	// ErrNotFound is returned for an unknown job id
	ErrNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when mutating a job that is done or failed
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrInvalidTransition is returned for a status change outside the lifecycle
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StageError records which pipeline stage failed and the kind of failure
type StageError struct {
	Kind  error
	Stage Status
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	if errors.Is(e.Err, e.Kind) {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Err.Error())
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStageError wraps err with its kind and the stage it happened in
func NewStageError(kind error, stage Status, err error) error {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// ConfigError wraps a configuration problem
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// RetryableError wraps transient errors that may succeed on another attempt
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
