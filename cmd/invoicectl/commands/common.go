package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/config"
	"github.com/cuongbtq/invoice-verifier/shared/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// environment is what every command starts from
type environment struct {
	cfg    *config.Config
	logger *logger.Logger
}

func (e *environment) Close() {
	_ = e.logger.Close()
}

// load reads the env file and the configuration. Logs go to stderr so
// stdout carries only command output.
func load(cmd *cli.Command) (*environment, error) {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.Kitchen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &environment{cfg: cfg, logger: appLogger}, nil
}

func (e *environment) log() *slog.Logger {
	return e.logger.Logger
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
