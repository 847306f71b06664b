package router

import (
	"github.com/cuongbtq/invoice-verifier/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	checkHandler := handler.NewCheckHandler(deps)
	invoiceHandler := handler.NewInvoiceHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		checks := v1.Group("/checks")
		{
			// POST /api/v1/checks - Check the mailbox now
			checks.POST("", checkHandler.TriggerCheck)

			// GET /api/v1/checks/history - Recent checks
			checks.GET("/history", checkHandler.GetHistory)
		}

		// POST /api/v1/invoices - Upload a PDF for processing
		v1.POST("/invoices", invoiceHandler.SubmitInvoice)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/export - Download every job as XLSX
			jobs.GET("/export", jobHandler.ExportJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/summary - Get the job summary only
			jobs.GET("/:job_id/summary", jobHandler.GetJobSummary)
		}
	}

	return r
}
