package cli

import (
	"context"
	"fmt"

	"github.com/slipwayhq/slipway/internal/protocol"
)

// Represents the 'slipway trigger' command.
type TriggerCmd struct {
	Push   bool   `help:"Send a push trigger instead of a manual one."`
	Branch string `help:"Branch carried by a push trigger." placeholder:"NAME"`
}

// Executes the trigger command.
//
// Manual triggers always start a run. Push triggers carry a branch and are
// ignored by the daemon unless the branch is its release branch.
func (c *TriggerCmd) Run(ctx context.Context) error {
	req := protocol.TriggerRequest{Kind: protocol.TriggerManual}
	if c.Push {
		req.Kind = protocol.TriggerPush
		req.Branch = c.Branch
	}

	result, err := request[protocol.TriggerResult](ctx, protocol.CmdTrigger, &req)
	if err != nil {
		return err
	}

	if !result.Accepted {
		fmt.Println(result.Reason)
		return nil
	}

	fmt.Printf("run %s started\n", result.RunID)
	return nil
}
