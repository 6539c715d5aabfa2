package cli

import (
	"context"
	"fmt"

	"github.com/slipwayhq/slipway/internal/protocol"
)

// Represents the 'slipway status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	result, err := request[protocol.StatusResult](ctx, protocol.CmdStatus, nil)
	if err != nil {
		return err
	}

	fmt.Printf("slipway %s, pid %d, up %s\n", result.Version, result.Pid, result.Uptime)

	if len(result.Runs) == 0 {
		fmt.Println("no runs yet")
		return nil
	}

	for _, run := range result.Runs {
		line := fmt.Sprintf("%s  %-6s  %-10s  started %s", run.ID, run.Trigger, run.State, run.Started)
		if run.Finished != "" {
			line += "  finished " + run.Finished
		}
		if run.Error != "" {
			line += fmt.Sprintf("  [%s] %s", run.ErrorKind, run.Error)
		}
		fmt.Println(line)
	}
	return nil
}
