package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether parrot serve is running",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 4*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("parrot: ALIVE (PID %d, uptime %s)\n", hb.PID, hb.Uptime)
				fmt.Printf("  gateway:   http://%s\n", hb.Addr)
				fmt.Printf("  slack:     %t\n", hb.Slack)
				if len(hb.Providers) > 0 {
					fmt.Printf("  providers: %s\n", strings.Join(hb.Providers, ", "))
				}
			case heartbeat.StatusStale:
				fmt.Printf("parrot: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("parrot: NOT RUNNING")
			}
			return nil
		},
	}
}
