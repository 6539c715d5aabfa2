package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/pipeline"
	"github.com/slipwayhq/slipway/internal/registry"
	"github.com/slipwayhq/slipway/internal/runtime"
	"github.com/slipwayhq/slipway/internal/server"
)

// Represents the 'slipway run' command.
type RunCmd struct {
	Recipe              string `arg:"" optional:"" help:"Release recipe file. Defaults to slipway.yml in the working directory." placeholder:"FILE"`
	ContainerdAddress   string `help:"Containerd socket address." placeholder:"PATH"`
	ContainerdNamespace string `help:"Containerd namespace for images and containers." placeholder:"NAME"`
}

// Executes the run command.
//
// Runs the release pipeline once, in process, without a daemon. The
// registry credential is read from the environment, the same way the
// daemon reads it. Intended for CI jobs and recipe development.
func (c *RunCmd) Run(ctx context.Context) error {
	recipePath := c.Recipe
	if recipePath == "" {
		recipePath = "slipway.yml"
	}

	recipe, err := manifest.Load(recipePath)
	if err != nil {
		return err
	}

	credential, ok := registry.CredentialFromEnv()
	if !ok {
		slog.Warn("no registry credential in environment, publishing anonymously")
	}

	address := c.ContainerdAddress
	if address == "" {
		address = server.DefaultContainerdAddress
	}
	namespace := c.ContainerdNamespace
	if namespace == "" {
		namespace = server.DefaultContainerdNamespace
	}

	rt, err := runtime.New(address, namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := pipeline.Run(ctx, rt, pipeline.Options{
		Recipe:     recipe,
		Credential: credential,
	})
	if err != nil {
		return fmt.Errorf("run failed (%s): %w", pipeline.Classify(err), err)
	}

	fmt.Printf("published %s (run %s)\n", result.Reference, result.RunID)
	return nil
}
