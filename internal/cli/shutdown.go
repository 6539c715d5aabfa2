package cli

import (
	"context"
	"fmt"

	"github.com/slipwayhq/slipway/internal/protocol"
)

// Represents the 'slipway shutdown' command.
type ShutdownCmd struct{}

// Executes the shutdown command.
//
// In-flight runs are cancelled and marked failed; the daemon does not wait
// for them to drain.
func (c *ShutdownCmd) Run(ctx context.Context) error {
	if _, err := request[struct{}](ctx, protocol.CmdShutdown, nil); err != nil {
		return err
	}

	fmt.Println("shutdown requested")
	return nil
}
