// Package pipeline executes release runs against the container runtime.
//
// A run compiles the artifact in a toolchain container, resolves the shared
// libraries it loads, composes a release image from the recipe's minimal
// base, optionally slims it with an external minimization tool, and pushes
// the result to a registry. Each run moves through a validated lifecycle
// (pending, building, assembling, slimming, publishing, done) and any stage
// failure moves it to failed with a sentinel error that names the stage.
//
// Runs are independent: container IDs, image tags, and workspace
// directories are scoped to the run ID, so concurrent runs never share
// state. Registry credentials are injected per run and used only while
// publishing.
//
// Example usage:
//
//	result, err := pipeline.Run(ctx, rt, pipeline.Options{
//	    Recipe:     recipe,
//	    Credential: credential,
//	})
//	if err != nil {
//	    slog.Error("release failed", "kind", pipeline.Classify(err), "error", err)
//	    return err
//	}
//	slog.Info("released", "reference", result.Reference)
package pipeline
