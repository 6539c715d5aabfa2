package manifest

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (

	// Tag applied when the publish section names none.
	defaultTag = "latest"

	// Observation window, in seconds, applied when slimming is enabled
	// without an explicit window.
	defaultWindow = 60

	// Grace period, in seconds, the slimming tool keeps observing after the
	// last activity before committing its result.
	defaultContinueAfter = 10

	// Package installation command used when the build section declares
	// packages without naming an installer. Assumes a Debian-family
	// toolchain image, which the common compiler images are.
	defaultInstaller = "apt-get update && apt-get install -y --no-install-recommends"
)

// Recipe describes one complete release pipeline: how the artifact is
// compiled, the image it is assembled into, whether that image is slimmed,
// and where the result is published.
type Recipe struct {
	Build   BuildSpec   `yaml:"build"`
	Runtime RuntimeSpec `yaml:"runtime"`
	Slim    SlimSpec    `yaml:"slim"`
	Publish PublishSpec `yaml:"publish"`
}

// BuildSpec declares the toolchain environment and the compile command.
//
// The artifact path is a fixed contract: the compile command must leave the
// finished executable exactly there on success, across every run.
type BuildSpec struct {
	Image     string   `yaml:"image"`     // Toolchain image reference.
	Packages  []string `yaml:"packages"`  // System packages installed before setup.
	Installer string   `yaml:"installer"` // Package installation command; Debian apt when empty.
	Setup     []string `yaml:"setup"`     // Shell commands run before the compile.
	Workdir   string   `yaml:"workdir"`   // Working directory for setup and compile.
	Command   string   `yaml:"command"`   // Compile command.
	Artifact  string   `yaml:"artifact"`  // Absolute path the compile leaves the executable at.
}

// Returns the shell command that installs the declared packages, or "" when
// the recipe declares none.
func (b BuildSpec) InstallCommand() string {
	if len(b.Packages) == 0 {
		return ""
	}

	installer := b.Installer
	if installer == "" {
		installer = defaultInstaller
	}

	return installer + " " + strings.Join(b.Packages, " ")
}

// RuntimeSpec declares the minimal base image and the identity the artifact
// runs under.
type RuntimeSpec struct {
	Base      string   `yaml:"base"`      // Minimal base image reference.
	Path      string   `yaml:"path"`      // Absolute path the artifact is installed at.
	User      string   `yaml:"user"`      // Unprivileged user the image runs as.
	Home      string   `yaml:"home"`      // Home directory for the user; defaults to /home/<user>.
	Libraries []string `yaml:"libraries"` // Shared libraries forced into the copy set.
}

// SlimSpec declares the image minimization policy.
//
// Durations are in seconds. Probing is off unless enabled explicitly: the
// slimming tool observes the entrypoint without driving synthetic traffic
// at it. Fallback is likewise opt-in; without it a slimming failure fails
// the run instead of publishing the unslimmed image.
type SlimSpec struct {
	Enabled       bool   `yaml:"enabled"`
	Tool          string `yaml:"tool"`           // Slimming tool binary; discovered on PATH when empty.
	Window        int    `yaml:"window"`         // Observation window in seconds.
	HTTPProbe     bool   `yaml:"http-probe"`     // Enables active HTTP probing during observation.
	ContinueAfter int    `yaml:"continue-after"` // Post-activity grace period in seconds.
	Fallback      bool   `yaml:"fallback"`       // Publish the unslimmed image if slimming fails.
}

// Returns the observation window as a duration.
func (s SlimSpec) WindowDuration() time.Duration {
	return time.Duration(s.Window) * time.Second
}

// Returns the post-activity grace period as a duration.
func (s SlimSpec) ContinueAfterDuration() time.Duration {
	return time.Duration(s.ContinueAfter) * time.Second
}

// PublishSpec declares the registry target for the finished image.
//
// Credentials have no field here on purpose: they are injected per run from
// the environment and never appear in recipes.
type PublishSpec struct {
	Registry   string `yaml:"registry"`   // Registry host (e.g. "ghcr.io").
	Repository string `yaml:"repository"` // Repository path within the registry.
	Tag        string `yaml:"tag"`        // Tag to publish under; defaults to "latest".
}

// Returns the fully qualified reference the image is published under.
func (p PublishSpec) Reference() string {
	return p.Registry + "/" + p.Repository + ":" + p.Tag
}

// Loads and validates a recipe from a YAML file.
func Load(file string) (*Recipe, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecipeLoad, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parses and validates a recipe from a reader.
//
// Decoding is strict: fields outside the recipe schema are load errors.
func Parse(r io.Reader) (*Recipe, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rec Recipe
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecipeLoad, err)
	}

	rec.applyDefaults()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Fills optional fields that have derivable defaults.
func (r *Recipe) applyDefaults() {
	if r.Runtime.Home == "" && r.Runtime.User != "" {
		r.Runtime.Home = path.Join("/home", r.Runtime.User)
	}

	if r.Slim.Enabled {
		if r.Slim.Window == 0 {
			r.Slim.Window = defaultWindow
		}
		if r.Slim.ContinueAfter == 0 {
			r.Slim.ContinueAfter = defaultContinueAfter
		}
	}

	if r.Publish.Tag == "" {
		r.Publish.Tag = defaultTag
	}
}
