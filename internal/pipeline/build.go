package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Runs the build stage: ensures the toolchain image, installs build
// packages, runs setup and the compile command, and verifies the artifact
// landed at its promised path.
//
// The build container is returned still running; the resolver reads the
// loader listing from it and assembly streams libraries out of it.
func (r *run) buildStage(ctx context.Context) (Container, error) {
	build := r.recipe.Build

	tag, err := r.ensureImage(ctx, build.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: toolchain image: %w", ErrCompile, err)
	}

	builder, err := r.startContainer(ctx, tag, "build")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	if install := build.InstallCommand(); install != "" {
		if err := r.execBuild(ctx, builder, install, ""); err != nil {
			return nil, err
		}
	}

	if build.Workdir != "" {
		if err := builder.MkdirAll(ctx, build.Workdir); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompile, err)
		}
	}

	for _, command := range build.Setup {
		if err := r.execBuild(ctx, builder, command, build.Workdir); err != nil {
			return nil, err
		}
	}

	if err := r.execBuild(ctx, builder, build.Command, build.Workdir); err != nil {
		return nil, err
	}

	if err := r.checkArtifact(ctx, builder, build.Artifact); err != nil {
		return nil, err
	}

	return builder, nil
}

// Runs one build command in the toolchain container.
func (r *run) execBuild(ctx context.Context, builder Container, command, workdir string) error {
	slog.Debug("build command", "run", r.id, "command", command)

	result, err := builder.Exec(ctx, defaultShell, command, nil, workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exited %d: %s", ErrCompile, command, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Verifies the compile left an executable at the artifact path.
func (r *run) checkArtifact(ctx context.Context, builder Container, artifact string) error {
	result, err := builder.ExecArgs(ctx, []string{defaultShell, "-c", `test -f "$1" && test -x "$1"`, "sh", artifact})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: no executable artifact at %s", ErrCompile, artifact)
	}
	return nil
}

// Copies the artifact out of the build container into the run workspace.
//
// The staged copy survives builder teardown and supplies the size, mode,
// and content digest recorded in the run result. The artifact takes the
// base name of its runtime path when it is installed during assembly.
func (r *run) stageArtifact(ctx context.Context, builder Container) (Artifact, error) {
	src := r.recipe.Build.Artifact
	dest := filepath.Join(r.workspace, "artifact")

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- builder.CopyFrom(ctx, pw, src)
		pw.Close()
	}()

	header, err := extractTarFile(pr, dest)
	if err != nil {
		pr.CloseWithError(err)
		<-errc
		return Artifact{}, fmt.Errorf("%w: staging artifact: %w", ErrCompile, err)
	}

	// Drain the tar trailer so the copy side finishes.
	io.Copy(io.Discard, pr)
	if copyErr := <-errc; copyErr != nil {
		return Artifact{}, fmt.Errorf("%w: staging artifact: %w", ErrCompile, copyErr)
	}

	d, err := digestFile(dest)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	artifact := Artifact{
		Name:   path.Base(r.recipe.Runtime.Path),
		Path:   dest,
		Size:   header.Size,
		Mode:   fs.FileMode(header.Mode) & fs.ModePerm,
		Digest: d,
	}

	slog.Info("artifact staged",
		"run", r.id,
		"name", artifact.Name,
		"size", artifact.Size,
		"digest", artifact.Digest,
	)
	return artifact, nil
}

// Returns the content digest of a host file.
func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return digest.FromReader(f)
}
