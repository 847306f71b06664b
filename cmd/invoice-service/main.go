package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/api/handler"
	"github.com/cuongbtq/invoice-verifier/internal/api/router"
	"github.com/cuongbtq/invoice-verifier/internal/app"
	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("INVOICE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/invoice-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting invoice service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("monitoring_enabled", cfg.MonitoringEnabled()),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	svc, err := app.New(startCtx, cfg, appLogger.Logger)
	cancelStart()
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if cfg.MonitoringEnabled() {
		svc.Scheduler.Start()
	} else {
		appLogger.Warn("Scheduled monitoring disabled, process credentials incomplete",
			slog.Any("configured", cfg.Configured()),
		)
	}

	r := initRouter(cfg, svc)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down service...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.String("error", err.Error()))
		svc.Close()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.String("error", err.Error()))
		shutdownErr = err
	}

	if err := svc.Scheduler.Stop(ctx); err != nil {
		appLogger.Warn("Scheduler did not stop cleanly", slog.String("error", err.Error()))
	}

	uploadsDone := make(chan struct{})
	go func() {
		svc.Pipeline.Wait()
		close(uploadsDone)
	}()
	select {
	case <-uploadsDone:
	case <-ctx.Done():
		appLogger.Warn("Background uploads still running at shutdown")
	}

	if err := svc.Close(); err != nil {
		appLogger.Warn("Failed to close clients", slog.String("error", err.Error()))
	}

	appLogger.Info("Service shutdown complete")
	return shutdownErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, svc *app.App) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:    svc.Logger,
		Jobs:      svc.Store,
		Ingestion: svc.Scheduler,
		Summaries: svc.Summaries,
		Service: handler.ServiceInfo{
			Name:              cfg.App.Name,
			Version:           cfg.App.Version,
			DailyTime:         cfg.Schedule.DailyTime,
			Timezone:          cfg.Schedule.Timezone,
			LookbackDays:      cfg.Pipeline.LookbackDays,
			Configured:        cfg.Configured(),
			MonitoringEnabled: cfg.MonitoringEnabled(),
		},
		MaxUploadBytes: svc.Pipeline.MaxAttachmentBytes(),
	}
	if svc.DB != nil {
		handlerDeps.Database = svc.DB
	}
	if svc.Broker != nil {
		handlerDeps.Broker = svc.Broker
	}

	return router.SetupRouter(handlerDeps)
}
