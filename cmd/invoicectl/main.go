package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/invoice-verifier/cmd/invoicectl/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "invoicectl",
		Usage: "Verify invoices and inspect the ingestion service from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "configuration file path",
				Value:   "configs/invoice-service/config.yaml",
				Sources: cli.EnvVars("INVOICE_SERVICE_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "Extract and verify a single PDF without posting it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "invoice PDF path",
						Required: true,
					},
				},
				Action: commands.VerifyAction,
			},
			{
				Name:   "run",
				Usage:  "Check the mailbox once and process every new invoice",
				Action: commands.RunAction,
			},
			{
				Name:   "rules",
				Usage:  "Print the effective verification rules",
				Action: commands.RulesAction,
			},
			{
				Name:  "history",
				Usage: "List archived jobs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum rows",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "only jobs with this status (done, failed)",
					},
				},
				Action: commands.HistoryAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
