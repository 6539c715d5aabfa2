package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slipwayhq/slipway/internal/registry"
)

// Publishes the release image under its final reference.
//
// The injected credential authenticates the push and nothing else; it is
// dropped as soon as the push completes. Tagged pushes are idempotent on
// the registry side, and runs racing on the same reference resolve to
// whichever push lands last.
func (r *run) publishStage(ctx context.Context, source string) (string, error) {
	ref := r.recipe.Publish.Reference()

	if err := r.rt.Tag(ctx, source, ref); err != nil {
		return "", fmt.Errorf("%w: tagging %s: %w", ErrPush, ref, err)
	}

	if r.credential.IsZero() {
		slog.Warn("no registry credential injected, pushing anonymously", "run", r.id)
	}

	if err := r.rt.Push(ctx, ref, r.credential.Resolver()); err != nil {
		if registry.IsAuthError(err) {
			return "", fmt.Errorf("%w: %s: %w", ErrAuth, ref, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrPush, ref, err)
	}

	r.credential = registry.Credential{}

	slog.Info("image published", "run", r.id, "reference", ref)
	return ref, nil
}
