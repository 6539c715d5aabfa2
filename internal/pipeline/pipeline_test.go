package pipeline

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/containerd/containerd/v2/core/remotes"
	"github.com/containerd/containerd/v2/core/remotes/docker"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/registry"
	"github.com/slipwayhq/slipway/internal/runtime"
	"github.com/slipwayhq/slipway/internal/slim"
)

// Scriptable stage container recording every operation it is asked for.
type fakeContainer struct {
	id        string
	execs     []string   // Shell commands, in order.
	execArgs  [][]string // Direct argv executions, in order.
	mkdirs    []string
	copyDests []string // CopyTo destination directories.
	copyPaths []string // CopyFrom source paths.
	exports   []runtime.ExportOptions
	stopped   bool
	destroyed bool

	files    map[string]string // Content served by CopyFrom, by path.
	present  map[string]bool   // Paths that exist for probe executions.
	lddOut   string            // Loader listing returned for ldd.
	execHook func(command string) *runtime.ExecResult
	argsHook func(args []string) *runtime.ExecResult
}

func newFakeContainer(id string) *fakeContainer {
	return &fakeContainer{
		id:      id,
		files:   make(map[string]string),
		present: make(map[string]bool),
	}
}

func (c *fakeContainer) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error) {
	c.execs = append(c.execs, command)
	if c.execHook != nil {
		if result := c.execHook(command); result != nil {
			return result, nil
		}
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) ExecArgs(ctx context.Context, args []string) (*runtime.ExecResult, error) {
	c.execArgs = append(c.execArgs, args)
	if c.argsHook != nil {
		if result := c.argsHook(args); result != nil {
			return result, nil
		}
	}

	switch {
	case args[0] == "ldd":
		return &runtime.ExecResult{Stdout: c.lddOut}, nil
	case args[0] == "id":
		return &runtime.ExecResult{Stdout: "1000\n"}, nil
	case len(args) == 5 && args[2] == `test -e "$1"`:
		if c.present[args[4]] {
			return &runtime.ExecResult{}, nil
		}
		return &runtime.ExecResult{ExitCode: 1}, nil
	default:
		return &runtime.ExecResult{}, nil
	}
}

func (c *fakeContainer) MkdirAll(ctx context.Context, path string) error {
	c.mkdirs = append(c.mkdirs, path)
	return nil
}

func (c *fakeContainer) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	c.copyDests = append(c.copyDests, destDir)
	_, err := io.Copy(io.Discard, r)
	return err
}

func (c *fakeContainer) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	c.copyPaths = append(c.copyPaths, p)

	content, ok := c.files[p]
	if !ok {
		return fmt.Errorf("no file at %s", p)
	}

	tw := tar.NewWriter(w)
	header := &tar.Header{Name: path.Base(p), Mode: 0o755, Size: int64(len(content))}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.WriteString(tw, content); err != nil {
		return err
	}
	return tw.Close()
}

func (c *fakeContainer) Export(ctx context.Context, opts runtime.ExportOptions) error {
	c.exports = append(c.exports, opts)
	return nil
}

func (c *fakeContainer) Stop(ctx context.Context) error {
	c.stopped = true
	return nil
}

func (c *fakeContainer) Destroy(ctx context.Context) {
	c.destroyed = true
}

// In-memory image store backing the pipeline in tests. Build containers
// and assembly containers are told apart by the stage suffix of the
// container ID.
type fakeRuntime struct {
	builder *fakeContainer
	base    *fakeContainer

	imported  []string
	pulled    []string
	started   []string
	tags      map[string]string
	exported  map[string]string
	pushed    []string
	resolvers []remotes.Resolver
	destroyed []string

	images  map[string]bool
	pushErr error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		builder:  newFakeContainer("builder"),
		base:     newFakeContainer("base"),
		tags:     make(map[string]string),
		exported: make(map[string]string),
		images:   make(map[string]bool),
	}
}

func (f *fakeRuntime) ImportArchive(ctx context.Context, path string) (string, error) {
	f.imported = append(f.imported, path)
	return "import/" + filepath.Base(path) + ":latest", nil
}

func (f *fakeRuntime) Pull(ctx context.Context, ref string, resolver remotes.Resolver) error {
	f.pulled = append(f.pulled, ref)
	return nil
}

func (f *fakeRuntime) StartFromTag(ctx context.Context, tag, id string) (Container, error) {
	f.started = append(f.started, tag)
	if strings.HasSuffix(id, "-build") {
		return f.builder, nil
	}
	return f.base, nil
}

func (f *fakeRuntime) Tag(ctx context.Context, source, tag string) error {
	f.tags[tag] = source
	return nil
}

func (f *fakeRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	return f.images[tag], nil
}

func (f *fakeRuntime) ExportImage(ctx context.Context, tag, path string) error {
	f.exported[tag] = path
	return nil
}

func (f *fakeRuntime) Push(ctx context.Context, ref string, resolver remotes.Resolver) error {
	f.pushed = append(f.pushed, ref)
	f.resolvers = append(f.resolvers, resolver)
	return f.pushErr
}

func (f *fakeRuntime) DestroyImage(ctx context.Context, tag string) error {
	f.destroyed = append(f.destroyed, tag)
	return nil
}

// Minimizer recording its invocations. Successful minimizations register
// the output image in the fake store unless told not to.
type fakeMinimizer struct {
	rt        *fakeRuntime
	targets   []string
	outs      []string
	policies  []slim.Policy
	err       error
	skipImage bool
}

func (m *fakeMinimizer) Minimize(ctx context.Context, target, out string, policy slim.Policy) error {
	m.targets = append(m.targets, target)
	m.outs = append(m.outs, out)
	m.policies = append(m.policies, policy)

	if m.err != nil {
		return m.err
	}
	if !m.skipImage {
		m.rt.images[out] = true
	}
	return nil
}

func testRecipe() *manifest.Recipe {
	return &manifest.Recipe{
		Build: manifest.BuildSpec{
			Image:    "docker.io/library/gcc:14",
			Packages: []string{"libssl-dev"},
			Workdir:  "/src",
			Setup:    []string{"git clone https://example.com/app ."},
			Command:  "make release",
			Artifact: "/src/out/app",
		},
		Runtime: manifest.RuntimeSpec{
			Base: "docker.io/library/debian:stable-slim",
			Path: "/usr/local/bin/app",
			User: "app",
			Home: "/home/app",
		},
		Publish: manifest.PublishSpec{
			Registry:   "ghcr.io",
			Repository: "acme/app",
			Tag:        "v1",
		},
	}
}

// Prepares a fake environment where the recipe compiles an artifact that
// loads libssl, libcrypto, and libc; the base image provides libc.
func testEnv(t *testing.T, recipe *manifest.Recipe) (*fakeRuntime, Options, *[]State) {
	t.Helper()

	fake := newFakeRuntime()
	fake.builder.files["/src/out/app"] = "\x7fELF artifact bytes"
	for _, lib := range []string{
		"/lib/x86_64-linux-gnu/libssl.so.3",
		"/lib/x86_64-linux-gnu/libcrypto.so.3",
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/lib64/ld-linux-x86-64.so.2",
	} {
		fake.builder.files[lib] = "\x7fELF " + lib
	}
	fake.builder.lddOut = glibcListing
	fake.base.present["/lib/x86_64-linux-gnu/libc.so.6"] = true

	var states []State
	opts := Options{
		Recipe:    recipe,
		RunID:     "test-run",
		Workspace: t.TempDir(),
		Observer:  func(s State) { states = append(states, s) },
	}
	return fake, opts, &states
}

func TestRunPublishesAssembledImage(t *testing.T) {
	recipe := testRecipe()
	fake, opts, states := testEnv(t, recipe)

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	wantStates := []State{StateBuilding, StateAssembling, StatePublishing, StateDone}
	if !reflect.DeepEqual(*states, wantStates) {
		t.Fatalf("states = %v, want %v", *states, wantStates)
	}

	if result.Reference != "ghcr.io/acme/app:v1" {
		t.Fatalf("reference = %q, want ghcr.io/acme/app:v1", result.Reference)
	}
	if result.Slimmed {
		t.Fatal("result marked slimmed with slimming disabled")
	}

	wantImage := RuntimeImage{
		Tag:        "slipway/run/test-run:assembled",
		Base:       "docker.io/library/debian:stable-slim",
		Entrypoint: []string{"/usr/local/bin/app"},
		User:       "app",
		WorkingDir: "/home/app",
		Archive:    filepath.Join(opts.Workspace, "assembled.tar"),
	}
	if !reflect.DeepEqual(result.Image, wantImage) {
		t.Fatalf("image = %+v, want %+v", result.Image, wantImage)
	}

	// The published reference points at the assembled image and was pushed.
	assembled := "slipway/run/test-run:assembled"
	if fake.tags["ghcr.io/acme/app:v1"] != assembled {
		t.Fatalf("published tag sourced from %q, want %q", fake.tags["ghcr.io/acme/app:v1"], assembled)
	}
	if !reflect.DeepEqual(fake.pushed, []string{"ghcr.io/acme/app:v1"}) {
		t.Fatalf("pushed = %v, want the final reference once", fake.pushed)
	}

	// Build commands ran in order: install, setup, compile.
	execs := fake.builder.execs
	if len(execs) != 3 {
		t.Fatalf("builder commands = %v, want 3", execs)
	}
	if !strings.Contains(execs[0], "apt-get install") || !strings.Contains(execs[0], "libssl-dev") {
		t.Fatalf("first command = %q, want the package install", execs[0])
	}
	if execs[1] != "git clone https://example.com/app ." {
		t.Fatalf("second command = %q, want the setup command", execs[1])
	}
	if execs[2] != "make release" {
		t.Fatalf("third command = %q, want the compile command", execs[2])
	}

	if result.Artifact.Name != "app" || result.Artifact.Size != int64(len("\x7fELF artifact bytes")) {
		t.Fatalf("artifact = %+v", result.Artifact)
	}
	if result.Artifact.Digest == "" {
		t.Fatal("artifact digest not recorded")
	}
}

func TestRunCopiesOnlyMissingLibraries(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	// libc is provided by the base and must not be streamed out of the
	// builder; everything else is.
	wantCopies := []string{
		"/src/out/app",
		"/lib/x86_64-linux-gnu/libssl.so.3",
		"/lib/x86_64-linux-gnu/libcrypto.so.3",
		"/lib64/ld-linux-x86-64.so.2",
	}
	if !reflect.DeepEqual(fake.builder.copyPaths, wantCopies) {
		t.Fatalf("builder copies = %v, want %v", fake.builder.copyPaths, wantCopies)
	}

	var provided []string
	for _, lib := range result.Libraries {
		if lib.Provided {
			provided = append(provided, lib.Name)
		}
	}
	if !reflect.DeepEqual(provided, []string{"libc.so.6"}) {
		t.Fatalf("provided = %v, want [libc.so.6]", provided)
	}
}

func TestRunShipsCompressionLibrary(t *testing.T) {
	recipe := testRecipe()
	recipe.Build.Packages = append(recipe.Build.Packages, "zlib1g-dev")
	fake, opts, _ := testEnv(t, recipe)

	// The artifact links zlib; the slim base does not carry it.
	fake.builder.lddOut = glibcListing + "\tlibz.so.1 => /lib/x86_64-linux-gnu/libz.so.1 (0x00007f63f7c00000)\n"
	fake.builder.files["/lib/x86_64-linux-gnu/libz.so.1"] = "\x7fELF libz"

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	var libz *Library
	for i, lib := range result.Libraries {
		if lib.Name == "libz.so.1" {
			libz = &result.Libraries[i]
		}
	}
	if libz == nil {
		t.Fatalf("libraries = %v, libz.so.1 not resolved", result.Libraries)
	}
	if libz.Provided {
		t.Fatal("libz.so.1 marked as base-provided")
	}

	var streamed bool
	for _, p := range fake.builder.copyPaths {
		if p == "/lib/x86_64-linux-gnu/libz.so.1" {
			streamed = true
		}
	}
	if !streamed {
		t.Fatalf("builder copies = %v, want libz.so.1 streamed into the base", fake.builder.copyPaths)
	}
}

func TestRunAssemblyShape(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	if _, err := newRun(fake, opts).execute(context.Background()); err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	base := fake.base
	if !base.stopped {
		t.Fatal("base container not stopped before export")
	}

	if len(base.exports) != 1 {
		t.Fatalf("exports = %d, want 1", len(base.exports))
	}
	export := base.exports[0]
	if !reflect.DeepEqual(export.Entrypoint, []string{"/usr/local/bin/app"}) {
		t.Fatalf("entrypoint = %v, want the artifact path", export.Entrypoint)
	}
	if export.User != "app" {
		t.Fatalf("user = %q, want app", export.User)
	}
	if export.WorkingDir != "/home/app" {
		t.Fatalf("working dir = %q, want /home/app", export.WorkingDir)
	}
	if export.Tag != "slipway/run/test-run:assembled" {
		t.Fatalf("tag = %q", export.Tag)
	}
	if filepath.Base(export.ArchivePath) != "assembled.tar" {
		t.Fatalf("archive = %q, want assembled.tar in the workspace", export.ArchivePath)
	}

	// The user exists with its home before ownership changes, and only the
	// artifact changes hands.
	if len(base.execs) != 1 || !strings.Contains(base.execs[0], "useradd") || !strings.Contains(base.execs[0], "/home/app") {
		t.Fatalf("user creation commands = %v", base.execs)
	}
	var chowns [][]string
	for _, args := range base.execArgs {
		if args[0] == "chown" {
			chowns = append(chowns, args)
		}
	}
	if len(chowns) != 1 || !reflect.DeepEqual(chowns[0], []string{"chown", "app", "/usr/local/bin/app"}) {
		t.Fatalf("chowns = %v, want the artifact only", chowns)
	}
}

func TestRunCleansUp(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	if _, err := newRun(fake, opts).execute(context.Background()); err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if !fake.builder.destroyed || !fake.base.destroyed {
		t.Fatal("stage containers not destroyed")
	}

	want := []string{"slipway/run/test-run:assembled", "slipway/run/test-run:slim"}
	if !reflect.DeepEqual(fake.destroyed, want) {
		t.Fatalf("destroyed tags = %v, want %v", fake.destroyed, want)
	}
}

func TestRunCompileFailure(t *testing.T) {
	recipe := testRecipe()
	fake, opts, states := testEnv(t, recipe)

	fake.builder.execHook = func(command string) *runtime.ExecResult {
		if command == "make release" {
			return &runtime.ExecResult{ExitCode: 2, Stderr: "main.c:14: unknown type"}
		}
		return nil
	}

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("execute() error = %v, want %v", err, ErrCompile)
	}
	if Classify(err) != KindCompile {
		t.Fatalf("Classify() = %q, want %q", Classify(err), KindCompile)
	}
	if !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("error %q does not carry the compiler output", err)
	}

	if !reflect.DeepEqual(*states, []State{StateBuilding, StateFailed}) {
		t.Fatalf("states = %v", *states)
	}
	if len(fake.pushed) != 0 {
		t.Fatal("failed run must not push")
	}
	if !fake.builder.destroyed {
		t.Fatal("builder not destroyed after failure")
	}
}

func TestRunArtifactMissing(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	fake.builder.argsHook = func(args []string) *runtime.ExecResult {
		if len(args) == 5 && strings.Contains(args[2], "test -f") {
			return &runtime.ExecResult{ExitCode: 1}
		}
		return nil
	}

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("execute() error = %v, want %v", err, ErrCompile)
	}
	if !strings.Contains(err.Error(), "no executable artifact at /src/out/app") {
		t.Fatalf("error = %q", err)
	}
}

func TestRunUnresolvedDependency(t *testing.T) {
	recipe := testRecipe()
	fake, opts, states := testEnv(t, recipe)

	fake.builder.lddOut = "\tlibgone.so.5 => not found\n"

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Fatalf("execute() error = %v, want %v", err, ErrUnresolvedDependency)
	}
	if Classify(err) != KindUnresolvedDependency {
		t.Fatalf("Classify() = %q", Classify(err))
	}

	// The run halts before assembly: only the toolchain image was started.
	if len(fake.started) != 1 {
		t.Fatalf("started images = %v, want the toolchain only", fake.started)
	}
	if !reflect.DeepEqual(*states, []State{StateBuilding, StateFailed}) {
		t.Fatalf("states = %v", *states)
	}
}

func TestRunStaticArtifact(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	fake.builder.argsHook = func(args []string) *runtime.ExecResult {
		if args[0] == "ldd" {
			return &runtime.ExecResult{ExitCode: 1, Stderr: "\tnot a dynamic executable\n"}
		}
		return nil
	}

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if len(result.Libraries) != 0 {
		t.Fatalf("libraries = %v, want none for a static artifact", result.Libraries)
	}
	// Only the artifact itself leaves the builder.
	if !reflect.DeepEqual(fake.builder.copyPaths, []string{"/src/out/app"}) {
		t.Fatalf("builder copies = %v", fake.builder.copyPaths)
	}
}

func TestRunRootUserRejected(t *testing.T) {
	recipe := testRecipe()
	recipe.Runtime.User = "operator"
	fake, opts, _ := testEnv(t, recipe)

	fake.base.argsHook = func(args []string) *runtime.ExecResult {
		if args[0] == "id" {
			return &runtime.ExecResult{Stdout: "0\n"}
		}
		return nil
	}

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("execute() error = %v, want %v", err, ErrAssembly)
	}
	if !strings.Contains(err.Error(), "uid 0") {
		t.Fatalf("error = %q", err)
	}

	if len(fake.base.exports) != 0 {
		t.Fatal("image committed despite the root user")
	}
	if len(fake.pushed) != 0 {
		t.Fatal("failed run must not push")
	}
}

func TestRunImportsArchiveImages(t *testing.T) {
	recipe := testRecipe()
	recipe.Build.Image = "oci-archive:/var/lib/slipway/toolchain.tar"
	fake, opts, _ := testEnv(t, recipe)

	if _, err := newRun(fake, opts).execute(context.Background()); err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if !reflect.DeepEqual(fake.imported, []string{"/var/lib/slipway/toolchain.tar"}) {
		t.Fatalf("imported = %v", fake.imported)
	}
	if fake.started[0] != "import/toolchain.tar:latest" {
		t.Fatalf("build started from %q, want the imported tag", fake.started[0])
	}
	// The base image still arrives by pull.
	if !reflect.DeepEqual(fake.pulled, []string{"docker.io/library/debian:stable-slim"}) {
		t.Fatalf("pulled = %v", fake.pulled)
	}
}

func slimRecipe() *manifest.Recipe {
	recipe := testRecipe()
	recipe.Slim = manifest.SlimSpec{
		Enabled:       true,
		Window:        90,
		HTTPProbe:     true,
		ContinueAfter: 15,
	}
	return recipe
}

func TestRunSlimsBeforePublishing(t *testing.T) {
	recipe := slimRecipe()
	fake, opts, states := testEnv(t, recipe)
	minimizer := &fakeMinimizer{rt: fake}
	opts.Minimizer = minimizer

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	wantStates := []State{StateBuilding, StateAssembling, StateSlimming, StatePublishing, StateDone}
	if !reflect.DeepEqual(*states, wantStates) {
		t.Fatalf("states = %v, want %v", *states, wantStates)
	}

	if !reflect.DeepEqual(minimizer.targets, []string{"slipway/run/test-run:assembled"}) {
		t.Fatalf("minimizer targets = %v", minimizer.targets)
	}
	if !reflect.DeepEqual(minimizer.outs, []string{"slipway/run/test-run:slim"}) {
		t.Fatalf("minimizer outs = %v", minimizer.outs)
	}

	wantPolicy := slim.Policy{Window: 90 * time.Second, HTTPProbe: true, ContinueAfter: 15 * time.Second}
	if minimizer.policies[0] != wantPolicy {
		t.Fatalf("policy = %+v, want %+v", minimizer.policies[0], wantPolicy)
	}

	if !result.Slimmed {
		t.Fatal("result not marked slimmed")
	}
	if result.Image.Tag != "slipway/run/test-run:slim" {
		t.Fatalf("image tag = %q, want the slimmed tag", result.Image.Tag)
	}
	if filepath.Base(result.Image.Archive) != "slim.tar" {
		t.Fatalf("image archive = %q, want slim.tar in the workspace", result.Image.Archive)
	}
	if fake.tags["ghcr.io/acme/app:v1"] != "slipway/run/test-run:slim" {
		t.Fatalf("published source = %q, want the slimmed tag", fake.tags["ghcr.io/acme/app:v1"])
	}
	if filepath.Base(fake.exported["slipway/run/test-run:slim"]) != "slim.tar" {
		t.Fatalf("slim archive = %q", fake.exported["slipway/run/test-run:slim"])
	}
}

func TestRunSlimmingFailsClosed(t *testing.T) {
	recipe := slimRecipe()
	fake, opts, states := testEnv(t, recipe)
	opts.Minimizer = &fakeMinimizer{rt: fake, err: errors.New("probe never converged")}

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrSlimming) {
		t.Fatalf("execute() error = %v, want %v", err, ErrSlimming)
	}
	if Classify(err) != KindSlimming {
		t.Fatalf("Classify() = %q", Classify(err))
	}

	if len(fake.pushed) != 0 {
		t.Fatal("failed slimming must not publish")
	}
	if !reflect.DeepEqual(*states, []State{StateBuilding, StateAssembling, StateSlimming, StateFailed}) {
		t.Fatalf("states = %v", *states)
	}
}

func TestRunSlimmingMissingImageFailsClosed(t *testing.T) {
	recipe := slimRecipe()
	fake, opts, _ := testEnv(t, recipe)
	opts.Minimizer = &fakeMinimizer{rt: fake, skipImage: true}

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrSlimming) {
		t.Fatalf("execute() error = %v, want %v", err, ErrSlimming)
	}
	if len(fake.pushed) != 0 {
		t.Fatal("unverified slim image must not publish")
	}
}

func TestRunSlimmingFallback(t *testing.T) {
	recipe := slimRecipe()
	recipe.Slim.Fallback = true
	fake, opts, _ := testEnv(t, recipe)
	opts.Minimizer = &fakeMinimizer{rt: fake, err: errors.New("tool crashed")}

	result, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if result.Slimmed {
		t.Fatal("fallback result marked slimmed")
	}
	if result.Image.Tag != "slipway/run/test-run:assembled" {
		t.Fatalf("image tag = %q, want the assembled tag", result.Image.Tag)
	}
	if fake.tags["ghcr.io/acme/app:v1"] != "slipway/run/test-run:assembled" {
		t.Fatalf("published source = %q, want the assembled tag", fake.tags["ghcr.io/acme/app:v1"])
	}
}

func TestRunSlimToolMissing(t *testing.T) {
	recipe := slimRecipe()
	fake, opts, states := testEnv(t, recipe)
	t.Setenv("PATH", t.TempDir())

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrSlimming) {
		t.Fatalf("execute() error = %v, want %v", err, ErrSlimming)
	}

	// The tool is resolved before compile time is spent.
	if len(fake.started) != 0 {
		t.Fatalf("containers started despite missing tool: %v", fake.started)
	}
	if !reflect.DeepEqual(*states, []State{StateFailed}) {
		t.Fatalf("states = %v", *states)
	}
}

func TestRunPushAuthRejected(t *testing.T) {
	recipe := testRecipe()
	fake, opts, states := testEnv(t, recipe)
	fake.pushErr = fmt.Errorf("pushing manifest: %w", docker.ErrInvalidAuthorization)
	opts.Credential = registry.NewCredential("robot", "expired-token")

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("execute() error = %v, want %v", err, ErrAuth)
	}
	if Classify(err) != KindAuth {
		t.Fatalf("Classify() = %q, want %q", Classify(err), KindAuth)
	}
	if !reflect.DeepEqual(*states, []State{StateBuilding, StateAssembling, StatePublishing, StateFailed}) {
		t.Fatalf("states = %v", *states)
	}
}

func TestRunPushFailure(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)
	fake.pushErr = errors.New("connection reset by peer")

	_, err := newRun(fake, opts).execute(context.Background())
	if !errors.Is(err, ErrPush) {
		t.Fatalf("execute() error = %v, want %v", err, ErrPush)
	}
	if errors.Is(err, ErrAuth) {
		t.Fatal("plain push failure classified as auth")
	}
}

func TestRunDropsCredentialAfterPublish(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)
	opts.Credential = registry.NewCredential("robot", "s3cret")

	r := newRun(fake, opts)
	if _, err := r.execute(context.Background()); err != nil {
		t.Fatalf("execute() error: %v", err)
	}

	if !r.credential.IsZero() {
		t.Fatal("credential retained after publish")
	}
	if len(fake.resolvers) != 1 || fake.resolvers[0] == nil {
		t.Fatal("push did not receive an authenticated resolver")
	}
}

func TestRunReferenceStableAcrossRuns(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)

	opts.RunID = "first"
	first, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("first execute() error: %v", err)
	}

	opts.RunID = "second"
	opts.Workspace = t.TempDir()
	second, err := newRun(fake, opts).execute(context.Background())
	if err != nil {
		t.Fatalf("second execute() error: %v", err)
	}

	if first.Reference != second.Reference {
		t.Fatalf("references differ across runs: %q vs %q", first.Reference, second.Reference)
	}
	if !reflect.DeepEqual(fake.pushed, []string{first.Reference, first.Reference}) {
		t.Fatalf("pushed = %v, want the identical reference twice", fake.pushed)
	}
}

func TestRunGeneratesRunID(t *testing.T) {
	recipe := testRecipe()
	fake, opts, _ := testEnv(t, recipe)
	opts.RunID = ""
	opts.Workspace = t.TempDir()

	r := newRun(fake, opts)
	if r.id == "" {
		t.Fatal("run ID not generated")
	}

	other := newRun(fake, opts)
	if other.id == r.id {
		t.Fatal("run IDs not unique")
	}
}
