package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/parrot/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "parrot",
		Usage: "Relay Slack mentions to an LLM, one sentence at a time",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewInitCommand(),
			NewServeCommand(),
			NewAskCommand(),
			NewStatusCommand(),
			NewSessionsCommand(),
			NewSecretCommand(),
		},
	}
}
