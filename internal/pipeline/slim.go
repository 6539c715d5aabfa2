package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/slipwayhq/slipway/internal/slim"
)

// Minimizer shrinks an assembled image into a slimmed variant.
//
// [slim.Slimmer] satisfies it; tests substitute a fake.
type Minimizer interface {
	Minimize(ctx context.Context, target, out string, policy slim.Policy) error
}

// Runs the slimming stage and returns the image publishing should use.
//
// Failure is closed by default: a failed or unverifiable minimization
// fails the run rather than silently publishing the unslimmed image. Only
// a recipe that explicitly configures fallback publishes the assembled
// image instead, and the downgrade is logged loudly.
func (r *run) slimStage(ctx context.Context, assembled RuntimeImage) (RuntimeImage, error) {
	spec := r.recipe.Slim
	policy := slim.Policy{
		Window:        spec.WindowDuration(),
		HTTPProbe:     spec.HTTPProbe,
		ContinueAfter: spec.ContinueAfterDuration(),
	}

	err := r.minimizer.Minimize(ctx, assembled.Tag, r.slimTag(), policy)
	if err == nil {
		err = r.checkSlimImage(ctx)
	}
	if err != nil {
		if !spec.Fallback {
			return RuntimeImage{}, fmt.Errorf("%w: %w", ErrSlimming, err)
		}
		slog.Warn("slimming failed, publishing the unslimmed image instead",
			"run", r.id,
			"error", err,
		)
		return assembled, nil
	}

	r.slimmed = true

	slimmed := assembled
	slimmed.Tag = r.slimTag()
	slimmed.Archive = filepath.Join(r.workspace, "slim.tar")
	if err := r.rt.ExportImage(ctx, slimmed.Tag, slimmed.Archive); err != nil {
		slog.Warn("slim archive export failed", "run", r.id, "error", err)
		slimmed.Archive = ""
	}

	return slimmed, nil
}

// Verifies the slimmed image actually landed in the store. The tool's exit
// status alone is not trusted.
func (r *run) checkSlimImage(ctx context.Context) error {
	exists, err := r.rt.ImageExists(ctx, r.slimTag())
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("tool reported success but %s is missing", r.slimTag())
	}
	return nil
}
