package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/api/dto"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/export"
	"github.com/cuongbtq/invoice-verifier/internal/status"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobReader
	summaries *status.Cache
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		summaries: deps.Summaries,
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the full job record and its summary
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		JobID:       job.ID,
		Summary:     h.summaries.Summary(job),
		FullDetails: job,
	})
}

// GetJobSummary handles GET /api/v1/jobs/:job_id/summary
func (h *JobHandler) GetJobSummary(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.JobSummaryResponse{
		JobID:   job.ID,
		Summary: h.summaries.Summary(job),
	})
}

func (h *JobHandler) lookup(c *gin.Context) (domain.Job, bool) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return domain.Job{}, false
	}

	job, err := h.jobs.Get(jobID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return domain.Job{}, false
	}
	return job, true
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs in insertion order with an optional status filter
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	filter := domain.Status(req.Status)
	if filter != "" && !filter.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown status %q", req.Status),
		})
		return
	}

	jobs := h.jobs.List()

	cursor, err := DecodeJobCursor(req.Cursor)
	if err == nil && cursor != nil && (cursor.Position >= len(jobs) || jobs[cursor.Position].ID != cursor.JobID) {
		err = fmt.Errorf("cursor does not match any job")
	}
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	start := 0
	if cursor != nil {
		start = cursor.Position + 1
	}

	items := make([]status.JobListItem, 0, req.PageSize)
	total, last, hasMore := 0, -1, false
	for i, job := range jobs {
		if filter != "" && job.Status != filter {
			continue
		}
		total++
		if i < start || hasMore {
			continue
		}
		if len(items) == req.PageSize {
			hasMore = true
			continue
		}
		items = append(items, status.ListItem(job))
		last = i
	}

	resp := dto.ListJobsResponse{Jobs: items, Total: total}
	if hasMore {
		resp.NextCursor = EncodeJobCursor(&JobCursor{Position: last, JobID: jobs[last].ID})
	}

	c.JSON(http.StatusOK, resp)
}

// ExportJobs handles GET /api/v1/jobs/export
// Streams every job as an XLSX workbook
func (h *JobHandler) ExportJobs(c *gin.Context) {
	jobs := h.jobs.List()

	data, err := export.JobsXLSX(jobs)
	if err != nil {
		respondError(c, h.logger, err, "Failed to export jobs")
		return
	}

	filename := fmt.Sprintf("invoice-jobs-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)

	h.logger.Info("Jobs exported", slog.Int("count", len(jobs)))
}
