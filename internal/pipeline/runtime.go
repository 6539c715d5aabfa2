package pipeline

import (
	"context"
	"io"

	"github.com/containerd/containerd/v2/core/remotes"

	"github.com/slipwayhq/slipway/internal/runtime"
)

// ContainerRuntime is the image store surface the pipeline drives.
//
// The containerd-backed [runtime.Runtime] satisfies it through
// [adaptRuntime]; tests substitute an in-memory fake.
type ContainerRuntime interface {
	ImportArchive(ctx context.Context, path string) (string, error)
	Pull(ctx context.Context, ref string, resolver remotes.Resolver) error
	StartFromTag(ctx context.Context, tag, id string) (Container, error)
	Tag(ctx context.Context, source, tag string) error
	ImageExists(ctx context.Context, tag string) (bool, error)
	ExportImage(ctx context.Context, tag, path string) error
	Push(ctx context.Context, ref string, resolver remotes.Resolver) error
	DestroyImage(ctx context.Context, tag string) error
}

// Container is one running stage container.
type Container interface {
	Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error)
	ExecArgs(ctx context.Context, args []string) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, path string) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	CopyFrom(ctx context.Context, w io.Writer, path string) error
	Export(ctx context.Context, opts runtime.ExportOptions) error
	Stop(ctx context.Context) error
	Destroy(ctx context.Context)
}

// Adapts the concrete containerd runtime to [ContainerRuntime]. Only
// StartFromTag needs wrapping; its concrete return type narrows to the
// [Container] interface here.
type runtimeAdapter struct {
	*runtime.Runtime
}

func adaptRuntime(rt *runtime.Runtime) ContainerRuntime {
	return runtimeAdapter{Runtime: rt}
}

func (a runtimeAdapter) StartFromTag(ctx context.Context, tag, id string) (Container, error) {
	return a.Runtime.StartFromTag(ctx, tag, id)
}
