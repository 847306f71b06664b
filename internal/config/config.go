package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // schedule time zones on hosts without zoneinfo

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/scheduler"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
	"github.com/cuongbtq/invoice-verifier/internal/worker"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultPort is the HTTP port used when none is configured
	DefaultPort = 10000
	// DefaultModel is the extraction model used when none is configured
	DefaultModel = "gpt-4o"
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Rules        verification.Rules `yaml:"rules"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Mail         MailConfig         `yaml:"mail"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Notification NotificationConfig `yaml:"notification"`
	Cache        CacheConfig        `yaml:"cache"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// ScheduleConfig holds the daily trigger settings
type ScheduleConfig struct {
	DailyTime   string        `yaml:"daily_time"`
	Timezone    string        `yaml:"timezone"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
	HistorySize int           `yaml:"history_size"`
}

// PipelineConfig holds ingestion settings
type PipelineConfig struct {
	MaxAttachmentMB int           `yaml:"max_attachment_mb"`
	LookbackDays    int           `yaml:"lookback_days"`
	SubjectFilter   string        `yaml:"subject_filter"`
	MarkRead        string        `yaml:"mark_read"`
	ExtractTimeout  time.Duration `yaml:"extract_timeout"`
	NotifyTimeout   time.Duration `yaml:"notify_timeout"`
	UploadWorkers   int           `yaml:"upload_workers"`
	UploadQueueSize int           `yaml:"upload_queue_size"`
}

// MailConfig holds IMAP mailbox settings
type MailConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	AppPassword string        `yaml:"app_password"`
	Mailbox     string        `yaml:"mailbox"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ExtractionConfig holds the document extraction service settings
type ExtractionConfig struct {
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// NotificationConfig holds team channel settings
type NotificationConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChannelID   string `yaml:"channel_id"`
	ChannelName string `yaml:"channel_name"`
}

// CacheConfig holds the terminal summary cache settings
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the job archive
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration for job events
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Presence reports which process-wide integrations have their secrets set.
// It never carries the values.
type Presence struct {
	Mail         bool `json:"mail"`
	Extraction   bool `json:"extraction"`
	Notification bool `json:"notification"`
}

// Load reads and parses the configuration file, applies secret overrides
// from the environment and fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv(os.LookupEnv)
	config.ApplyDefaults()

	return &config, nil
}

// ApplyEnv overrides secrets with environment values when they are set
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		"IMAP_USER":         &c.Mail.User,
		"IMAP_APP_PASSWORD": &c.Mail.AppPassword,
		"OPENAI_API_KEY":    &c.Extraction.APIKey,
		"OPENAI_MODEL":      &c.Extraction.Model,
		"SLACK_BOT_TOKEN":   &c.Notification.BotToken,
		"SLACK_CHANNEL_ID":  &c.Notification.ChannelID,
		"DATABASE_PASSWORD": &c.Database.Password,
		"RABBITMQ_PASSWORD": &c.RabbitMQ.Password,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
}

// ApplyDefaults fills in every unset value the service can run without
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.App.Name == "" {
		c.App.Name = "invoice-service"
	}

	defaults := verification.DefaultRules()
	if c.Rules.Version == "" {
		c.Rules.Version = defaults.Version
	}
	if c.Rules.ExpectedVendor == "" {
		c.Rules.ExpectedVendor = defaults.ExpectedVendor
	}
	if c.Rules.ExpectedSubtotal == 0 {
		c.Rules.ExpectedSubtotal = defaults.ExpectedSubtotal
	}
	if c.Rules.TaxRate == 0 {
		c.Rules.TaxRate = defaults.TaxRate
	}
	if c.Rules.ExpectedTotal == 0 {
		c.Rules.ExpectedTotal = defaults.ExpectedTotal
	}
	if c.Rules.NetDays == 0 {
		c.Rules.NetDays = defaults.NetDays
	}
	if c.Rules.Tolerance == nil {
		c.Rules.Tolerance = defaults.Tolerance
	}
	if c.Rules.Advisories == nil {
		c.Rules.Advisories = defaults.Advisories
	}

	if c.Schedule.DailyTime == "" {
		c.Schedule.DailyTime = scheduler.DefaultDailyTime
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	if c.Schedule.HistorySize == 0 {
		c.Schedule.HistorySize = scheduler.DefaultHistorySize
	}

	if c.Pipeline.MaxAttachmentMB == 0 {
		c.Pipeline.MaxAttachmentMB = pipeline.DefaultMaxAttachmentBytes >> 20
	}
	if c.Pipeline.LookbackDays == 0 {
		c.Pipeline.LookbackDays = pipeline.DefaultLookbackDays
	}
	if c.Pipeline.SubjectFilter == "" {
		c.Pipeline.SubjectFilter = pipeline.DefaultSubjectFilter
	}
	if c.Pipeline.MarkRead == "" {
		c.Pipeline.MarkRead = string(pipeline.MarkReadAfterFetch)
	}
	if c.Pipeline.UploadWorkers == 0 {
		c.Pipeline.UploadWorkers = worker.DefaultConcurrency
	}
	if c.Pipeline.UploadQueueSize == 0 {
		c.Pipeline.UploadQueueSize = worker.DefaultQueueSize
	}

	if c.Mail.Host == "" {
		c.Mail.Host = "imap.gmail.com"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 993
	}
	if c.Mail.Mailbox == "" {
		c.Mail.Mailbox = "INBOX"
	}
	if c.Mail.DialTimeout == 0 {
		c.Mail.DialTimeout = 30 * time.Second
	}

	if c.Extraction.Model == "" {
		c.Extraction.Model = DefaultModel
	}
	if c.Extraction.MaxRetries == 0 {
		c.Extraction.MaxRetries = 3
	}
	if c.Extraction.RetryInterval == 0 {
		c.Extraction.RetryInterval = 2 * time.Second
	}

	if c.Notification.ChannelName == "" {
		c.Notification.ChannelName = "invoice-approval"
	}

	if c.Cache.Size == 0 {
		c.Cache.Size = 1000
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}
}

// Validate checks if the configuration is valid. Every error wraps
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return domain.ConfigError("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Rules.Validate(); err != nil {
		return domain.ConfigError("invalid rules: %v", err)
	}

	if _, _, err := scheduler.ParseDailyTime(c.Schedule.DailyTime); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Pipeline.MaxAttachmentMB <= 0 {
		return domain.ConfigError("pipeline max_attachment_mb must be greater than 0")
	}
	if c.Pipeline.LookbackDays <= 0 {
		return domain.ConfigError("pipeline lookback_days must be greater than 0")
	}
	if _, err := pipeline.ParseMarkReadPolicy(c.Pipeline.MarkRead); err != nil {
		return domain.ConfigError("invalid pipeline mark_read: %v", err)
	}
	if c.Pipeline.UploadWorkers < 0 || c.Pipeline.UploadQueueSize < 0 {
		return domain.ConfigError("pipeline upload_workers and upload_queue_size must not be negative")
	}

	if c.Mail.Port < MinPort || c.Mail.Port > MaxPort {
		return domain.ConfigError("invalid mail port: %d (must be between %d and %d)", c.Mail.Port, MinPort, MaxPort)
	}

	if c.Extraction.MaxRetries < 0 {
		return domain.ConfigError("extraction max_retries must not be negative")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return domain.ConfigError("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return domain.ConfigError("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return domain.ConfigError("database name is required")
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return domain.ConfigError("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return domain.ConfigError("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return domain.ConfigError("rabbitmq exchange name is required")
		}
	}

	return nil
}

// Location loads the schedule time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, domain.ConfigError("invalid schedule timezone %q: %v", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// MaxAttachmentBytes returns the attachment size limit in bytes
func (c *Config) MaxAttachmentBytes() int64 {
	return int64(c.Pipeline.MaxAttachmentMB) << 20
}

// MarkReadPolicy returns the parsed read-marking policy
func (c *Config) MarkReadPolicy() pipeline.MarkReadPolicy {
	policy, err := pipeline.ParseMarkReadPolicy(c.Pipeline.MarkRead)
	if err != nil {
		return pipeline.MarkReadAfterFetch
	}
	return policy
}

// Credentials returns the process-wide credentials for scheduled runs
func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{
		MailUser:     c.Mail.User,
		MailPassword: c.Mail.AppPassword,
		APIKey:       c.Extraction.APIKey,
		Model:        c.Extraction.Model,
	}
}

// Configured reports which integrations have their secrets set
func (c *Config) Configured() Presence {
	return Presence{
		Mail:         c.Mail.User != "" && c.Mail.AppPassword != "",
		Extraction:   c.Extraction.APIKey != "",
		Notification: c.Notification.BotToken != "" && c.Notification.ChannelID != "",
	}
}

// MonitoringEnabled reports whether scheduled runs have everything they need
func (c *Config) MonitoringEnabled() bool {
	p := c.Configured()
	return p.Mail && p.Extraction && p.Notification
}
