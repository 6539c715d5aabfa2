package cli

import (
	"context"
	"log/slog"

	"github.com/slipwayhq/slipway/internal/server"
)

// Represents the 'slipway start' command.
type StartCmd struct {
	Recipe              string `arg:"" optional:"" help:"Release recipe file. Defaults to slipway.yml in the working directory." placeholder:"FILE"`
	Branch              string `help:"Branch push triggers release from." placeholder:"NAME"`
	ContainerdAddress   string `help:"Containerd socket address." placeholder:"PATH"`
	ContainerdNamespace string `help:"Containerd namespace for images and containers." placeholder:"NAME"`
}

// Executes the start command.
//
// Starts the daemon on a Unix domain socket and blocks until it stops,
// either on SIGINT/SIGTERM or on a shutdown command over the socket.
func (c *StartCmd) Run(ctx context.Context) error {
	recipe := c.Recipe
	if recipe == "" {
		recipe = "slipway.yml"
	}

	srv, err := server.New(server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   c.ContainerdAddress,
		ContainerdNamespace: c.ContainerdNamespace,
		RecipePath:          recipe,
		Branch:              c.Branch,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("slipway is running")

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		srv.Stop()
	}()

	srv.Wait()
	return nil
}
