package runtime

import (
	"context"
	"fmt"
	"log/slog"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/remotes"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
)

// Pushes a store image to the registry its reference names.
//
// The image must already exist in the store under ref. The resolver
// carries registry authentication; a nil resolver uses anonymous access.
// Pushing the same reference twice is idempotent: blobs already present
// registry-side are skipped and the tag is repointed at the new manifest.
func (rt *Runtime) Push(ctx context.Context, ref string, resolver remotes.Resolver) error {
	img, err := rt.client.ImageService().Get(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrImageNotFound, ref)
		}
		return wrapRuntime(err)
	}

	p, err := platforms.Parse(defaultPlatform())
	if err != nil {
		return wrapRuntime(err)
	}

	opts := []containerd.RemoteOpt{
		containerd.WithPlatformMatcher(platforms.Only(p)),
	}
	if resolver != nil {
		opts = append(opts, containerd.WithResolver(resolver))
	}

	if err := rt.client.Push(ctx, ref, img.Target, opts...); err != nil {
		return wrapRuntime(err)
	}

	slog.Info("image pushed", "ref", ref)
	return nil
}
