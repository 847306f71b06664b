package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/app"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/verification"
	"github.com/urfave/cli/v3"
)

// verifyResult is printed by the verify command
type verifyResult struct {
	File         string                    `json:"file"`
	RulesVersion string                    `json:"rules_version"`
	Invoice      *domain.Invoice           `json:"invoice"`
	Verification domain.VerificationResult `json:"verification"`
	Message      string                    `json:"message"`
}

// VerifyAction extracts one PDF and checks it against the configured rules
func VerifyAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	env, err := load(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if limit := env.cfg.MaxAttachmentBytes(); int64(len(data)) > limit {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", domain.ErrAttachmentTooLarge, path, len(data), limit)
	}

	ext, err := app.NewSourceFactory(env.cfg, env.log()).Extractor(env.cfg.Credentials())
	if err != nil {
		return err
	}

	env.log().Info("Extracting invoice", slog.String("file", path), slog.String("model", ext.Model()))

	source := domain.Source{
		MessageID:  "local:" + filepath.Base(path),
		Subject:    filepath.Base(path),
		ReceivedAt: time.Now().UTC(),
		Origin:     domain.OriginUpload,
	}
	invoice, err := ext.Extract(ctx, data, source)
	if err != nil {
		return err
	}

	result := verification.Verify(*invoice, env.cfg.Rules)
	job := domain.Job{
		ID:           source.MessageID,
		Status:       domain.StatusVerifying,
		Source:       source,
		Invoice:      invoice,
		Verification: &result,
	}

	return printJSON(cmd.Root().Writer, verifyResult{
		File:         path,
		RulesVersion: env.cfg.Rules.Version,
		Invoice:      invoice,
		Verification: result,
		Message:      pipeline.FormatMessage(job, env.cfg.Rules, time.Now()).Text,
	})
}
