package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/scheduler"
	"github.com/cuongbtq/invoice-verifier/internal/status"
	"github.com/gin-gonic/gin"
)

// JobReader is the read side of the job store
type JobReader interface {
	Get(id string) (domain.Job, error)
	List() []domain.Job
	Counts() map[domain.Status]int
}

// Ingestion triggers runs and accepts uploads
type Ingestion interface {
	TriggerNow(ctx context.Context, creds *domain.Credentials) (pipeline.RunReport, error)
	Submit(ctx context.Context, upload pipeline.Upload) (domain.Job, error)
	Running() bool
	NextRun() time.Time
	LastRun() time.Time
	History(n int) []scheduler.CheckRecord
}

// DatabaseChecker pings the archive database
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerChecker reports the event broker connection
type BrokerChecker interface {
	IsConnected() bool
}

// ServiceInfo is the static part of the health report
type ServiceInfo struct {
	Name              string
	Version           string
	DailyTime         string
	Timezone          string
	LookbackDays      int
	Configured        config.Presence
	MonitoringEnabled bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Jobs           JobReader
	Ingestion      Ingestion
	Summaries      *status.Cache
	Service        ServiceInfo
	MaxUploadBytes int64
	// Database and Broker are nil when the archive or events are disabled
	Database DatabaseChecker
	Broker   BrokerChecker
}

// statusFor maps an error kind to its HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and answered with fallback so their details stay server-side.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(code, gin.H{"error": fallback})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
