package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/remotes"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing the daemon to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client *containerd.Client // Containerd client for managing containers and images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, wrapRuntime(err)
	}
	return &Runtime{client: client}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Imports an OCI archive into the store and returns the tag it was placed
// under.
//
// The archive is imported into the content store, tagged with a
// deterministic name derived from the archive path, and unpacked for the
// host platform so containers can be started from it immediately.
func (rt *Runtime) ImportArchive(ctx context.Context, path string) (string, error) {
	tag := imageTag(path)

	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return "", wrapRuntime(err)
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return "", wrapRuntime(err)
	}

	if err := rt.unpackImage(ctx, tag, defaultPlatform()); err != nil {
		return "", wrapRuntime(err)
	}

	slog.Debug("archive imported", "path", path, "tag", tag)
	return tag, nil
}

// Pulls an image from a registry and unpacks it for the host platform.
//
// Images already present in the store are not fetched again; their layers
// are unpacked if a previous pull was interrupted. The resolver carries
// registry authentication; a nil resolver uses anonymous access.
func (rt *Runtime) Pull(ctx context.Context, ref string, resolver remotes.Resolver) error {
	platform := defaultPlatform()

	if _, err := rt.client.ImageService().Get(ctx, ref); err == nil {
		return rt.unpackImage(ctx, ref, platform)
	} else if !errdefs.IsNotFound(err) {
		return wrapRuntime(err)
	}

	p, err := platforms.Parse(platform)
	if err != nil {
		return wrapRuntime(err)
	}

	opts := []containerd.RemoteOpt{
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	}
	if resolver != nil {
		opts = append(opts, containerd.WithResolver(resolver))
	}

	if _, err := rt.client.Pull(ctx, ref, opts...); err != nil {
		return wrapRuntime(err)
	}

	slog.Debug("image pulled", "ref", ref)
	return nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// are supported (single OCI index with per-platform manifests).
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	// Import returns one record per image in the archive's index.json.
	// A multi-platform archive has a single entry (an OCI index that
	// internally references per-platform manifests); platform selection
	// happens later via resolveImage. Multiple records would mean
	// multiple unrelated images, which we don't support.
	if len(imported) == 0 {
		return images.Image{}, ErrEmptyArchive
	} else if len(imported) > 1 {
		return images.Image{}, ErrMultipleImages
	}

	return imported[0], nil
}

// Tags an image record under a new name.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Tags an existing store image under an additional name.
//
// The source record is kept; both names reference the same target. Used to
// give a run-scoped image its final published reference.
func (rt *Runtime) Tag(ctx context.Context, source, tag string) error {
	img, err := rt.client.ImageService().Get(ctx, source)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrImageNotFound, source)
		}
		return wrapRuntime(err)
	}

	named := images.Image{Name: tag, Target: img.Target}

	is := rt.client.ImageService()
	if _, err := is.Create(ctx, named); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return wrapRuntime(err)
		}
		if _, err := is.Update(ctx, named, "target"); err != nil {
			return wrapRuntime(err)
		}
	}

	return nil
}

// Reports whether an image with the given name exists in the store.
func (rt *Runtime) ImageExists(ctx context.Context, tag string) (bool, error) {
	if _, err := rt.client.ImageService().Get(ctx, tag); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, wrapRuntime(err)
	}
	return true, nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, tag, platform string) error {
	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return err
	}

	return image.Unpack(ctx, snapshotter)
}

// Looks up a tagged image and selects the manifest for the given platform.
//
// Multi-platform images contain manifests for multiple architectures. This
// method selects one, so that subsequent operations target the correct
// architecture.
func (rt *Runtime) resolveImage(ctx context.Context, tag, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Produces a containerd image tag from an archive path.
//
// The path is hashed to produce a tag that is always valid for OCI references
// regardless of which characters the path contains.
func imageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:latest", hex.EncodeToString(h[:]))
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}

// Starts a container from an image tag in the store.
//
// Any stale container with the same ID is cleaned up first. The container
// runs detached with a long-running task so commands can be executed in it.
func (rt *Runtime) StartFromTag(ctx context.Context, tag, id string) (*Container, error) {
	platform := defaultPlatform()

	c := &Container{
		client:   rt.client,
		id:       id,
		platform: platform,
	}

	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, wrapRuntime(err)
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, wrapRuntime(err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, wrapRuntime(err)
	}

	slog.Debug("container started", "id", id, "image", tag)
	return c, nil
}

// Removes an image and all containers created from it.
//
// Containers are discovered by querying containerd for records whose image
// field matches the tag. Each container's task is killed before the container
// and its snapshot are deleted.
func (rt *Runtime) DestroyImage(ctx context.Context, tag string) error {
	ctrs, err := rt.client.Containers(ctx, fmt.Sprintf("image==%s", tag))
	if err != nil {
		return wrapRuntime(err)
	}

	for _, ctr := range ctrs {
		if task, taskErr := ctr.Task(ctx, nil); taskErr == nil {
			task.Kill(ctx, syscall.SIGKILL)
			task.Delete(ctx, containerd.WithProcessKill)
		}
		if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
			return wrapRuntime(err)
		}
	}

	if err := rt.client.ImageService().Delete(ctx, tag); err != nil && !errdefs.IsNotFound(err) {
		return wrapRuntime(err)
	}

	slog.Debug("image destroyed", "tag", tag)
	return nil
}
