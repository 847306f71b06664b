package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/invoice-verifier/internal/archive"
	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/cuongbtq/invoice-verifier/shared/postgresql"
	"github.com/urfave/cli/v3"
)

// HistoryAction lists jobs from the Postgres archive
func HistoryAction(ctx context.Context, cmd *cli.Command) error {
	env, err := load(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	st := domain.Status(cmd.String("status"))
	if st != "" && !st.IsTerminal() {
		return fmt.Errorf("only terminal jobs are archived, got status %q", st)
	}

	db := env.cfg.Database
	if !db.Enabled {
		return errors.New("the job archive is disabled; set database.enabled in the config")
	}

	client, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		Database: db.Database,
		SSLMode:  db.SSLMode,
	}, env.log())
	if err != nil {
		return err
	}
	defer client.Close()

	rows, err := archive.NewRepository(client).ListRecent(ctx, cmd.Int("limit"), st)
	if err != nil {
		return err
	}

	return printJSON(cmd.Root().Writer, rows)
}
