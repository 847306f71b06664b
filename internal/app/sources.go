package app

import (
	"log/slog"

	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/extractor"
	"github.com/cuongbtq/invoice-verifier/internal/mailbox"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/scheduler"
)

// SourceFactory builds a mailbox and an extraction client per run from the
// credentials the run was triggered with. Connection settings come from config.
type SourceFactory struct {
	mail       config.MailConfig
	subject    string
	extraction config.ExtractionConfig
	logger     *slog.Logger
}

var _ scheduler.SourceFactory = (*SourceFactory)(nil)

// NewSourceFactory creates a factory from the mail and extraction settings
func NewSourceFactory(cfg *config.Config, logger *slog.Logger) *SourceFactory {
	return &SourceFactory{
		mail:       cfg.Mail,
		subject:    cfg.Pipeline.SubjectFilter,
		extraction: cfg.Extraction,
		logger:     logger,
	}
}

// Build returns run sources bound to creds. Uploads only need the api key,
// so missing mailbox credentials are left for the scheduler to reject.
func (f *SourceFactory) Build(creds domain.Credentials) (pipeline.Sources, error) {
	ext, err := f.Extractor(creds)
	if err != nil {
		return pipeline.Sources{}, err
	}

	mail := mailbox.New(mailbox.Config{
		Host:          f.mail.Host,
		Port:          f.mail.Port,
		User:          creds.MailUser,
		Password:      creds.MailPassword,
		Mailbox:       f.mail.Mailbox,
		SubjectFilter: f.subject,
		DialTimeout:   f.mail.DialTimeout,
	}, f.logger)

	return pipeline.Sources{Mail: mail, Extractor: ext}, nil
}

// Extractor builds only the extraction client, for uploads that skip the mailbox
func (f *SourceFactory) Extractor(creds domain.Credentials) (*extractor.Client, error) {
	model := creds.Model
	if model == "" {
		model = f.extraction.Model
	}
	return extractor.New(extractor.Config{
		APIKey:      creds.APIKey,
		Model:       model,
		BaseURL:     f.extraction.BaseURL,
		MaxRetries:  f.extraction.MaxRetries,
		BaseBackoff: f.extraction.RetryInterval,
	}, f.logger)
}
