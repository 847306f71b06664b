// Package notify posts verified invoices to the approval channel in Slack.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/slack-go/slack"
)

// DefaultChannelName labels the channel in notification results
const DefaultChannelName = "invoice-approval"

type slackAPI interface {
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
	GetFileInfoContext(ctx context.Context, fileID string, count, page int) (*slack.File, []slack.Comment, *slack.Paging, error)
}

// Config holds Slack settings
type Config struct {
	BotToken    string
	ChannelID   string
	ChannelName string
}

// Notifier uploads the PDF with the formatted message as its initial comment
type Notifier struct {
	api         slackAPI
	channelID   string
	channelName string
	logger      *slog.Logger
}

var _ pipeline.Notifier = (*Notifier)(nil)

// New creates a Slack notifier
func New(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, domain.ConfigError("slack bot token is not set")
	}
	if cfg.ChannelID == "" {
		return nil, domain.ConfigError("slack channel id is not set")
	}
	return newNotifier(slack.New(cfg.BotToken), cfg, logger), nil
}

func newNotifier(api slackAPI, cfg Config, logger *slog.Logger) *Notifier {
	name := cfg.ChannelName
	if name == "" {
		name = DefaultChannelName
	}
	return &Notifier{
		api:         api,
		channelID:   cfg.ChannelID,
		channelName: name,
		logger:      logger.With(slog.String("component", "notify")),
	}
}

// Post uploads pdf to the channel. A permalink lookup failure after a
// successful upload is logged and the result still counts as posted.
func (n *Notifier) Post(ctx context.Context, msg pipeline.Message, pdf []byte) (domain.NotificationResult, error) {
	result := domain.NotificationResult{
		Channel:     n.channelID,
		ChannelName: "#" + strings.TrimPrefix(n.channelName, "#"),
	}
	if len(pdf) == 0 {
		result.Error = "no document to upload"
		return result, fmt.Errorf("%w: %s", domain.ErrNotification, result.Error)
	}

	summary, err := n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        n.channelID,
		Filename:       msg.Filename,
		Title:          msg.Title,
		InitialComment: msg.Text,
		FileSize:       len(pdf),
		Reader:         bytes.NewReader(pdf),
	})
	if err != nil {
		result.Error = describe(err)
		return result, fmt.Errorf("%w: upload %s: %w", domain.ErrNotification, msg.Filename, err)
	}

	result.Posted = true
	result.MessageRef = summary.ID

	file, _, _, err := n.api.GetFileInfoContext(ctx, summary.ID, 0, 0)
	if err != nil {
		n.logger.Warn("Failed to fetch file permalink",
			slog.String("file_id", summary.ID),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.FileURL = file.Permalink

	n.logger.Info("Invoice posted",
		slog.String("file_id", summary.ID),
		slog.String("channel", result.ChannelName),
	)
	return result, nil
}

// describe renders Slack API errors by their error code
func describe(err error) string {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return "slack: " + slackErr.Err
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return fmt.Sprintf("slack: rate limited, retry after %s", rateErr.RetryAfter)
	}
	return err.Error()
}
