package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/invoice-verifier/internal/api/dto"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler accepts PDFs uploaded directly
type InvoiceHandler struct {
	logger    *slog.Logger
	ingestion Ingestion
	maxBytes  int64
}

// NewInvoiceHandler creates a new InvoiceHandler instance
func NewInvoiceHandler(deps *Dependencies) *InvoiceHandler {
	maxBytes := deps.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = pipeline.DefaultMaxAttachmentBytes
	}
	return &InvoiceHandler{
		logger:    deps.Logger,
		ingestion: deps.Ingestion,
		maxBytes:  maxBytes,
	}
}

// SubmitInvoice handles POST /api/v1/invoices
// Queues the invoice_pdf form file and answers before processing finishes
func (h *InvoiceHandler) SubmitInvoice(c *gin.Context) {
	fh, err := c.FormFile("invoice_pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invoice_pdf missing",
		})
		return
	}
	if fh.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "empty pdf",
		})
		return
	}
	if fh.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "pdf too large",
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, err, "Failed to read upload")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, err, "Failed to read upload")
		return
	}

	job, err := h.ingestion.Submit(c.Request.Context(), pipeline.Upload{
		Filename: fh.Filename,
		Data:     data,
		Sender:   c.PostForm("email_from"),
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to submit invoice")
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitInvoiceResponse{
		Status: "accepted",
		JobID:  job.ID,
	})
}
