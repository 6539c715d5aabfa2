package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/slipwayhq/slipway/internal/runtime"
)

// Runs the assembly stage: composes the release image from the minimal
// base, the staged artifact, and the libraries the base does not provide,
// then commits it under the run's assembled tag.
//
// The committed image starts the artifact directly, runs as the recipe's
// unprivileged user, and uses the user's home as its working directory.
func (r *run) assembleStage(ctx context.Context, builder Container, artifact Artifact, libs []Library) (RuntimeImage, error) {
	spec := r.recipe.Runtime

	image := RuntimeImage{
		Tag:        r.assembledTag(),
		Base:       spec.Base,
		Entrypoint: []string{spec.Path},
		User:       spec.User,
		WorkingDir: spec.Home,
		Archive:    filepath.Join(r.workspace, "assembled.tar"),
	}

	tag, err := r.ensureImage(ctx, spec.Base)
	if err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: base image: %w", ErrAssembly, err)
	}

	base, err := r.startContainer(ctx, tag, "assemble")
	if err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	if err := markProvided(ctx, base, libs); err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: probing base libraries: %w", ErrAssembly, err)
	}

	if err := r.copyLibraries(ctx, builder, base, libs); err != nil {
		return RuntimeImage{}, err
	}

	if err := r.installArtifact(ctx, base, artifact); err != nil {
		return RuntimeImage{}, err
	}

	if err := r.createUser(ctx, base); err != nil {
		return RuntimeImage{}, err
	}

	if err := base.Stop(ctx); err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	opts := runtime.ExportOptions{
		Entrypoint:  image.Entrypoint,
		User:        image.User,
		WorkingDir:  image.WorkingDir,
		Tag:         image.Tag,
		ArchivePath: image.Archive,
	}
	if err := base.Export(ctx, opts); err != nil {
		return RuntimeImage{}, fmt.Errorf("%w: committing image: %w", ErrAssembly, err)
	}

	return image, nil
}

// Copies the libraries the base image does not provide from the build
// container into the base container.
func (r *run) copyLibraries(ctx context.Context, builder, base Container, libs []Library) error {
	for _, lib := range libs {
		if lib.Provided {
			slog.Debug("library provided by base", "run", r.id, "library", lib.Name)
			continue
		}
		if err := r.copyLibrary(ctx, builder, base, lib); err != nil {
			return fmt.Errorf("%w: library %s: %w", ErrAssembly, lib.Name, err)
		}
		slog.Debug("library copied", "run", r.id, "library", lib.Name, "path", lib.Path)
	}
	return nil
}

// Streams one library between the containers, preserving its directory
// placement so the loader finds it at the same path.
func (r *run) copyLibrary(ctx context.Context, builder, base Container, lib Library) error {
	dir := path.Dir(lib.Path)
	if err := base.MkdirAll(ctx, dir); err != nil {
		return err
	}

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- builder.CopyFrom(ctx, pw, lib.Path)
		pw.Close()
	}()

	if err := base.CopyTo(ctx, pr, dir); err != nil {
		pr.CloseWithError(err)
		<-errc
		return err
	}
	return <-errc
}

// Installs the staged artifact at its runtime path with its recorded mode.
func (r *run) installArtifact(ctx context.Context, base Container, artifact Artifact) error {
	dest := r.recipe.Runtime.Path
	dir := path.Dir(dest)

	if err := base.MkdirAll(ctx, dir); err != nil {
		return fmt.Errorf("%w: %w", ErrAssembly, err)
	}

	stream := tarFileStream(artifact.Path, artifact.Name, artifact.Mode)
	if err := base.CopyTo(ctx, stream, dir); err != nil {
		return fmt.Errorf("%w: installing artifact: %w", ErrAssembly, err)
	}

	slog.Debug("artifact installed", "run", r.id, "path", dest)
	return nil
}

// Creates the unprivileged execution user with its home directory and
// hands the artifact to it.
//
// Debian and busybox userlands spell user creation differently, so both
// are tried; an existing user of the same name is reused. Ownership
// changes on the artifact alone: the libraries and system paths stay
// root-owned so the process cannot replace them.
func (r *run) createUser(ctx context.Context, base Container) error {
	spec := r.recipe.Runtime

	command := fmt.Sprintf(
		"id -u %[1]s >/dev/null 2>&1 || useradd --create-home --home-dir %[2]s %[1]s 2>/dev/null || adduser -D -h %[2]s %[1]s",
		spec.User, spec.Home,
	)
	result, err := base.Exec(ctx, defaultShell, command, nil, "")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: creating user %s: %s", ErrAssembly, spec.User, strings.TrimSpace(result.Stderr))
	}

	if err := r.checkNotRoot(ctx, base, spec.User); err != nil {
		return err
	}

	result, err = base.ExecArgs(ctx, []string{"chown", spec.User, spec.Path})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: chown %s: %s", ErrAssembly, spec.Path, strings.TrimSpace(result.Stderr))
	}

	return nil
}

// Verifies the execution user does not resolve to uid 0 in the base
// image. The recipe rejects "root" by name, but the base's passwd file
// has the final word on what a name means.
func (r *run) checkNotRoot(ctx context.Context, base Container, user string) error {
	result, err := base.ExecArgs(ctx, []string{"id", "-u", user})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: user %s missing after creation: %s", ErrAssembly, user, strings.TrimSpace(result.Stderr))
	}
	if strings.TrimSpace(result.Stdout) == "0" {
		return fmt.Errorf("%w: user %s resolves to uid 0", ErrAssembly, user)
	}
	return nil
}
