// Package app assembles the ingestion service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/invoice-verifier/internal/archive"
	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/internal/events"
	"github.com/cuongbtq/invoice-verifier/internal/jobstore"
	"github.com/cuongbtq/invoice-verifier/internal/notify"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/scheduler"
	"github.com/cuongbtq/invoice-verifier/internal/status"
	"github.com/cuongbtq/invoice-verifier/shared/postgresql"
	"github.com/cuongbtq/invoice-verifier/shared/rabbitmq"
)

// App holds the wired service components
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *jobstore.Store
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Summaries *status.Cache
	Sources   *SourceFactory
	Archive   *archive.Repository
	DB        *postgresql.Client
	Broker    *rabbitmq.Client
}

// New wires every component. The archive and the event publisher are only
// connected when enabled in config; a missing notifier is reported per job.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     jobstore.New(logger),
		Summaries: status.NewCache(cfg.Cache.Size, cfg.Cache.TTL),
		Sources:   NewSourceFactory(cfg, logger),
	}

	pcfg := &pipeline.Config{
		Logger:             logger,
		Store:              a.Store,
		Rules:              cfg.Rules,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes(),
		LookbackDays:       cfg.Pipeline.LookbackDays,
		SubjectFilter:      cfg.Pipeline.SubjectFilter,
		MarkRead:           cfg.MarkReadPolicy(),
		ExtractTimeout:     cfg.Pipeline.ExtractTimeout,
		NotifyTimeout:      cfg.Pipeline.NotifyTimeout,
		UploadWorkers:      cfg.Pipeline.UploadWorkers,
		UploadQueueSize:    cfg.Pipeline.UploadQueueSize,
	}

	if cfg.Configured().Notification {
		n, err := notify.New(notify.Config{
			BotToken:    cfg.Notification.BotToken,
			ChannelID:   cfg.Notification.ChannelID,
			ChannelName: cfg.Notification.ChannelName,
		}, logger)
		if err != nil {
			return nil, err
		}
		pcfg.Notifier = n
	} else {
		logger.Warn("Slack is not configured, jobs will fail at notification")
	}

	if cfg.Database.Enabled {
		db, err := postgresql.NewClient(ctx, &postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to job archive: %w", err)
		}
		a.DB = db
		a.Archive = archive.NewRepository(db)
		if err := a.Archive.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		pcfg.Archive = a.Archive
	}

	if cfg.RabbitMQ.Enabled {
		r := cfg.RabbitMQ
		broker, err := rabbitmq.NewClient(ctx, &rabbitmq.Config{
			Host:               r.Host,
			Port:               r.Port,
			User:               r.User,
			Password:           r.Password,
			VHost:              r.VHost,
			ExchangeName:       r.Exchange.Name,
			ExchangeType:       r.Exchange.Type,
			ExchangeDurable:    r.Exchange.Durable,
			ExchangeAutoDelete: r.Exchange.AutoDelete,
			RoutingKey:         r.RoutingKey,
			RetryAttempts:      r.Connection.RetryAttempts,
			RetryInterval:      r.Connection.RetryInterval,
			Heartbeat:          r.Connection.Heartbeat,
			PublishRetries:     r.Publish.RetryAttempts,
			PublishRetryDelay:  r.Publish.RetryInterval,
			PublishBackoffMult: r.Publish.BackoffMultiplier,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to event broker: %w", err)
		}
		a.Broker = broker
		pcfg.Events = events.NewPublisher(broker)
	}

	a.Pipeline = pipeline.New(pcfg)

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler, err = scheduler.New(&scheduler.Config{
		Logger:      logger,
		Runner:      a.Pipeline,
		Sources:     a.Sources,
		Credentials: cfg.Credentials(),
		DailyTime:   cfg.Schedule.DailyTime,
		Location:    loc,
		HistorySize: cfg.Schedule.HistorySize,
		RunTimeout:  cfg.Schedule.RunTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the archive and broker connections
func (a *App) Close() error {
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
