package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/invoice-verifier/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const historyLimit = 20

// CheckHandler triggers mailbox checks and reports their history
type CheckHandler struct {
	logger    *slog.Logger
	ingestion Ingestion
}

// NewCheckHandler creates a new CheckHandler instance
func NewCheckHandler(deps *Dependencies) *CheckHandler {
	return &CheckHandler{
		logger:    deps.Logger,
		ingestion: deps.Ingestion,
	}
}

// TriggerCheck handles POST /api/v1/checks
// Runs an ingestion synchronously, with caller credentials when a body is sent
func (h *CheckHandler) TriggerCheck(c *gin.Context) {
	var req dto.CheckRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	creds := req.Credentials()
	h.logger.Info("Manual check triggered", slog.Bool("caller_credentials", creds != nil))

	// a dropped client must not abandon jobs mid-run
	ctx := context.WithoutCancel(c.Request.Context())
	report, err := h.ingestion.TriggerNow(ctx, creds)
	if err != nil {
		respondError(c, h.logger, err, "Failed to check mailbox")
		return
	}

	c.JSON(http.StatusOK, dto.CheckResponse{
		Status:            "complete",
		CheckedAt:         formatTime(report.FinishedAt),
		EmailsFound:       report.EmailsFound,
		InvoicesFound:     report.InvoicesFound,
		InvoicesProcessed: report.InvoicesProcessed,
		Duplicates:        report.Duplicates,
		JobIDs:            report.JobIDs,
		Errors:            report.Errors,
		Message: fmt.Sprintf("Checked mailbox: found %d invoice(s), processed %d",
			report.InvoicesFound, report.InvoicesProcessed),
	})
}

// GetHistory handles GET /api/v1/checks/history
func (h *CheckHandler) GetHistory(c *gin.Context) {
	all := h.ingestion.History(0)
	recent := all
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}

	c.JSON(http.StatusOK, dto.CheckHistoryResponse{
		TotalChecks: len(all),
		History:     recent,
	})
}
