package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/paths"
	"github.com/slipwayhq/slipway/internal/registry"
	"github.com/slipwayhq/slipway/internal/runtime"
	"github.com/slipwayhq/slipway/internal/slim"
)

// Shell used for recipe commands and assembly plumbing inside containers.
const defaultShell = "/bin/sh"

// Options configure a release run.
type Options struct {
	Recipe     *manifest.Recipe    // Recipe to execute.
	RunID      string              // Run identifier; generated when empty.
	Workspace  string              // Directory for staged artifacts and archives; derived from the run ID when empty.
	Credential registry.Credential // Registry credential, used only while publishing.
	Minimizer  Minimizer           // Slimming tool; discovered on PATH when nil and slimming is enabled.
	Observer   func(State)         // Called after every state change.
}

// Result describes a completed release run.
type Result struct {
	RunID     string       // Run identifier.
	Reference string       // Published image reference.
	Artifact  Artifact     // Compiled artifact metadata.
	Libraries []Library    // Shared libraries the artifact loads.
	Image     RuntimeImage // Image the published reference was tagged from.
	Slimmed   bool         // Whether the published image is the slimmed variant.
}

// Executes a release run against the container runtime.
//
// The run moves through building, assembling, optional slimming, and
// publishing. The first failing stage moves it to failed, and the returned
// error carries that stage's sentinel for classification. Stage containers
// and run-scoped image tags are destroyed when the run finishes, whatever
// the outcome.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	return newRun(adaptRuntime(rt), opts).execute(ctx)
}

// Holds the state of one release run across its stages.
type run struct {
	rt         ContainerRuntime    // Image store and container operations.
	recipe     *manifest.Recipe    // Recipe being executed.
	id         string              // Run identifier, scoping container IDs and image tags.
	workspace  string              // Host directory for the staged artifact and archives.
	credential registry.Credential // Publish credential, dropped after the push.
	minimizer  Minimizer           // Slimming tool, resolved before the first stage.
	observer   func(State)         // State change callback.
	state      State               // Current lifecycle state.
	slimmed    bool                // Set when the slimmed image becomes the publish source.
	containers []Container         // Stage containers, destroyed when the run finishes.
}

// Creates a new [run] from the given options.
func newRun(rt ContainerRuntime, opts Options) *run {
	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}

	workspace := opts.Workspace
	if workspace == "" {
		workspace = paths.RunDir(id)
	}

	return &run{
		rt:         rt,
		recipe:     opts.Recipe,
		id:         id,
		workspace:  workspace,
		credential: opts.Credential,
		minimizer:  opts.Minimizer,
		observer:   opts.Observer,
		state:      StatePending,
	}
}

// Runs the release end-to-end.
func (r *run) execute(ctx context.Context) (*Result, error) {
	slog.Info("starting release run",
		"run", r.id,
		"workspace", r.workspace,
		"reference", r.recipe.Publish.Reference(),
		"slim", r.recipe.Slim.Enabled,
	)

	defer r.cleanup(ctx)

	if err := os.MkdirAll(r.workspace, paths.DefaultDirMode); err != nil {
		return nil, r.fail(fmt.Errorf("creating workspace: %w", err))
	}

	if err := r.ensureMinimizer(); err != nil {
		return nil, r.fail(err)
	}

	result, err := r.release(ctx)
	if err != nil {
		return nil, r.fail(err)
	}

	if err := r.transition(StateDone); err != nil {
		return nil, r.fail(err)
	}

	slog.Info("release run done", "run", r.id, "reference", result.Reference, "slimmed", result.Slimmed)
	return result, nil
}

// Drives the stages in lifecycle order.
func (r *run) release(ctx context.Context) (*Result, error) {
	if err := r.transition(StateBuilding); err != nil {
		return nil, err
	}

	builder, err := r.buildStage(ctx)
	if err != nil {
		return nil, err
	}

	artifact, err := r.stageArtifact(ctx, builder)
	if err != nil {
		return nil, err
	}

	libs, err := listDependencies(ctx, builder, r.recipe.Build.Artifact)
	if err != nil {
		return nil, err
	}
	libs = mergeForcedLibraries(libs, r.recipe.Runtime.Libraries)

	if err := r.transition(StateAssembling); err != nil {
		return nil, err
	}

	image, err := r.assembleStage(ctx, builder, artifact, libs)
	if err != nil {
		return nil, err
	}

	if r.recipe.Slim.Enabled {
		if err := r.transition(StateSlimming); err != nil {
			return nil, err
		}
		if image, err = r.slimStage(ctx, image); err != nil {
			return nil, err
		}
	}

	if err := r.transition(StatePublishing); err != nil {
		return nil, err
	}

	reference, err := r.publishStage(ctx, image.Tag)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     r.id,
		Reference: reference,
		Artifact:  artifact,
		Libraries: libs,
		Image:     image,
		Slimmed:   r.slimmed,
	}, nil
}

// Moves the run to the next lifecycle state.
func (r *run) transition(to State) error {
	if !allowedTransition(r.state, to) {
		return fmt.Errorf("%w: %s to %s", ErrTransition, r.state, to)
	}

	slog.Debug("run state", "run", r.id, "from", r.state, "to", to)
	r.state = to

	if r.observer != nil {
		r.observer(to)
	}
	return nil
}

// Marks the run failed and returns the causing error.
func (r *run) fail(err error) error {
	if terr := r.transition(StateFailed); terr != nil {
		slog.Error("recording run failure", "run", r.id, "error", terr)
	}
	slog.Error("release run failed", "run", r.id, "kind", Classify(err), "error", err)
	return err
}

// Resolves the slimming tool before any stage runs, so a missing tool
// fails the run before compile time is spent.
func (r *run) ensureMinimizer() error {
	if !r.recipe.Slim.Enabled || r.minimizer != nil {
		return nil
	}

	var opts []slim.Option
	if r.recipe.Slim.Tool != "" {
		opts = append(opts, slim.WithTool(r.recipe.Slim.Tool))
	}

	s, err := slim.New(opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSlimming, err)
	}

	r.minimizer = s
	return nil
}

// Ensures the image behind a recipe reference is in the store, returning
// the tag to start containers from.
//
// Archive references are imported; registry references are pulled
// anonymously. The injected credential is scoped to publishing and never
// used for source images.
func (r *run) ensureImage(ctx context.Context, ref string) (string, error) {
	parsed, err := manifest.ParseImageRef(ref)
	if err != nil {
		return "", err
	}

	if parsed.Kind == manifest.RefArchive {
		return r.rt.ImportArchive(ctx, parsed.Value)
	}

	if err := r.rt.Pull(ctx, parsed.Value, nil); err != nil {
		return "", err
	}
	return parsed.Value, nil
}

// Starts a stage container and registers it for cleanup.
func (r *run) startContainer(ctx context.Context, tag, stage string) (Container, error) {
	ctr, err := r.rt.StartFromTag(ctx, tag, r.containerID(stage))
	if err != nil {
		return nil, err
	}

	r.containers = append(r.containers, ctr)
	return ctr, nil
}

// Destroys stage containers and run-scoped image tags.
//
// Imported and pulled source images stay in the store as a cache for later
// runs. The final published reference also stays; like the registry, the
// local store keeps whichever racing run tagged it last.
func (r *run) cleanup(ctx context.Context) {
	for _, ctr := range r.containers {
		ctr.Destroy(ctx)
	}

	for _, tag := range []string{r.assembledTag(), r.slimTag()} {
		if err := r.rt.DestroyImage(ctx, tag); err != nil {
			slog.Warn("run image cleanup failed", "run", r.id, "tag", tag, "error", err)
		}
	}
}

// Returns the store tag for the run's assembled image.
func (r *run) assembledTag() string {
	return fmt.Sprintf("slipway/run/%s:assembled", r.id)
}

// Returns the store tag for the run's slimmed image.
func (r *run) slimTag() string {
	return fmt.Sprintf("slipway/run/%s:slim", r.id)
}

// Returns a container ID scoped to this run and stage, so concurrent runs
// never collide.
func (r *run) containerID(stage string) string {
	return fmt.Sprintf("slipway-%s-%s", r.id, stage)
}
