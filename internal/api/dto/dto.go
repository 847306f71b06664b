package dto

import (
	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/scheduler"
	"github.com/cuongbtq/invoice-verifier/internal/status"
)

// CheckRequest carries optional caller credentials for an on-demand check
type CheckRequest struct {
	Email       string `json:"email"`
	AppPassword string `json:"app_password"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
}

// Credentials converts the request, nil when no field is set
func (r CheckRequest) Credentials() *domain.Credentials {
	creds := domain.Credentials{
		MailUser:     r.Email,
		MailPassword: r.AppPassword,
		APIKey:       r.APIKey,
		Model:        r.Model,
	}
	if creds.IsZero() {
		return nil
	}
	return &creds
}

// CheckResponse reports a completed on-demand check
type CheckResponse struct {
	Status            string   `json:"status"`
	CheckedAt         string   `json:"checked_at"`
	EmailsFound       int      `json:"emails_found"`
	InvoicesFound     int      `json:"invoices_found"`
	InvoicesProcessed int      `json:"invoices_processed"`
	Duplicates        int      `json:"duplicates"`
	JobIDs            []string `json:"job_ids"`
	Errors            []string `json:"errors"`
	Message           string   `json:"message"`
}

// CheckHistoryResponse lists recent checks, oldest first
type CheckHistoryResponse struct {
	TotalChecks int                     `json:"total_checks"`
	History     []scheduler.CheckRecord `json:"history"`
}

// SubmitInvoiceResponse acknowledges a manual upload
type SubmitInvoiceResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// ListJobsRequest holds list query parameters
type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is one page of jobs
type ListJobsResponse struct {
	Jobs       []status.JobListItem `json:"jobs"`
	Total      int                  `json:"total"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// JobResponse is the full job record with its summary
type JobResponse struct {
	JobID       string         `json:"job_id"`
	Summary     status.Summary `json:"summary"`
	FullDetails domain.Job     `json:"full_details"`
}

// JobSummaryResponse is the summary without the record
type JobSummaryResponse struct {
	JobID   string         `json:"job_id"`
	Summary status.Summary `json:"summary"`
}

// ScheduleInfo describes the daily trigger
type ScheduleInfo struct {
	DailyTime    string `json:"daily_time"`
	Timezone     string `json:"timezone"`
	LookbackDays int    `json:"lookback_days"`
	NextRun      string `json:"next_run,omitempty"`
	LastRun      string `json:"last_run,omitempty"`
}

// HealthResponse reports service state. Credential values are never included.
type HealthResponse struct {
	Status            string                `json:"status"`
	Service           string                `json:"service"`
	Version           string                `json:"version"`
	RunInProgress     bool                  `json:"run_in_progress"`
	MonitoringEnabled bool                  `json:"monitoring_enabled"`
	Configured        config.Presence       `json:"configured"`
	Schedule          ScheduleInfo          `json:"schedule"`
	Jobs              map[domain.Status]int `json:"jobs"`
	TotalChecks       int                   `json:"total_checks"`
	Archive           string                `json:"archive"`
	Events            string                `json:"events"`
}
