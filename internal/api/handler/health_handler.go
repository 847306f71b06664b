package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/invoice-verifier/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// HealthHandler reports service state
type HealthHandler struct {
	logger    *slog.Logger
	jobs      JobReader
	ingestion Ingestion
	service   ServiceInfo
	database  DatabaseChecker
	broker    BrokerChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		ingestion: deps.Ingestion,
		service:   deps.Service,
		database:  deps.Database,
		broker:    deps.Broker,
	}
}

// Health handles GET /health
// The archive and event sinks are best effort, so losing them degrades the
// report without failing it.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:            "healthy",
		Service:           h.service.Name,
		Version:           h.service.Version,
		RunInProgress:     h.ingestion.Running(),
		MonitoringEnabled: h.service.MonitoringEnabled,
		Configured:        h.service.Configured,
		Schedule: dto.ScheduleInfo{
			DailyTime:    h.service.DailyTime,
			Timezone:     h.service.Timezone,
			LookbackDays: h.service.LookbackDays,
			NextRun:      formatTime(h.ingestion.NextRun()),
			LastRun:      formatTime(h.ingestion.LastRun()),
		},
		Jobs:        h.jobs.Counts(),
		TotalChecks: len(h.ingestion.History(0)),
		Archive:     "disabled",
		Events:      "disabled",
	}

	if h.database != nil {
		resp.Archive = "ok"
		if err := h.database.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("Archive database unhealthy", slog.String("error", err.Error()))
			resp.Archive = "unavailable"
			resp.Status = "degraded"
		}
	}
	if h.broker != nil {
		resp.Events = "connected"
		if !h.broker.IsConnected() {
			resp.Events = "disconnected"
			resp.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}
