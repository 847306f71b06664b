package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// RulesAction prints the rule set after defaults are applied
func RulesAction(ctx context.Context, cmd *cli.Command) error {
	env, err := load(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	return printJSON(cmd.Root().Writer, env.cfg.Rules)
}
