package commands

import (
	"context"
	"fmt"

	"github.com/cuongbtq/invoice-verifier/internal/app"
	"github.com/cuongbtq/invoice-verifier/internal/pipeline"
	"github.com/cuongbtq/invoice-verifier/internal/status"
	"github.com/urfave/cli/v3"
)

type runOutput struct {
	Report pipeline.RunReport `json:"report"`
	Jobs   []status.Summary   `json:"jobs"`
}

// RunAction performs one ingestion run with the process credentials
func RunAction(ctx context.Context, cmd *cli.Command) error {
	env, err := load(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	svc, err := app.New(ctx, env.cfg, env.log())
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer svc.Close()

	report, err := svc.Scheduler.TriggerNow(ctx, nil)
	if err != nil {
		return err
	}

	out := runOutput{Report: report, Jobs: make([]status.Summary, 0, len(report.JobIDs))}
	for _, id := range report.JobIDs {
		job, err := svc.Store.Get(id)
		if err != nil {
			return err
		}
		out.Jobs = append(out.Jobs, status.Summarize(job))
	}

	return printJSON(cmd.Root().Writer, out)
}
