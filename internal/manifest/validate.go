package manifest

import (
	"fmt"
	"path"
	"strings"
)

// Validates the recipe as a whole.
//
// Validation runs after defaults are applied, so optional fields are
// checked in their effective form.
func (r *Recipe) Validate() error {
	if err := r.Build.validate(); err != nil {
		return err
	}
	if err := r.Runtime.validate(); err != nil {
		return err
	}
	if err := r.Slim.validate(); err != nil {
		return err
	}
	return r.Publish.validate()
}

func (b BuildSpec) validate() error {
	if b.Image == "" {
		return invalid("build: image is required")
	}
	if _, err := ParseImageRef(b.Image); err != nil {
		return invalid("build: %v", err)
	}
	if b.Command == "" {
		return invalid("build: command is required")
	}
	if b.Artifact == "" {
		return invalid("build: artifact is required")
	}
	if !path.IsAbs(b.Artifact) {
		return invalid("build: artifact %q must be absolute", b.Artifact)
	}
	if b.Workdir != "" && !path.IsAbs(b.Workdir) {
		return invalid("build: workdir %q must be absolute", b.Workdir)
	}
	return nil
}

func (s RuntimeSpec) validate() error {
	if s.Base == "" {
		return invalid("runtime: base is required")
	}
	if _, err := ParseImageRef(s.Base); err != nil {
		return invalid("runtime: %v", err)
	}
	if s.Path == "" {
		return invalid("runtime: path is required")
	}
	if !path.IsAbs(s.Path) {
		return invalid("runtime: path %q must be absolute", s.Path)
	}
	if s.User == "" {
		return invalid("runtime: user is required")
	}
	if s.User == "root" || s.User == "0" {
		return invalid("runtime: user must not be root")
	}
	if !path.IsAbs(s.Home) {
		return invalid("runtime: home %q must be absolute", s.Home)
	}
	for _, lib := range s.Libraries {
		if !path.IsAbs(lib) {
			return invalid("runtime: library %q must be absolute", lib)
		}
	}
	return nil
}

func (s SlimSpec) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Window <= 0 {
		return invalid("slim: window must be positive")
	}
	if s.ContinueAfter < 0 {
		return invalid("slim: continue-after must not be negative")
	}
	return nil
}

func (p PublishSpec) validate() error {
	if p.Registry == "" {
		return invalid("publish: registry is required")
	}
	if strings.ContainsAny(p.Registry, " /") {
		return invalid("publish: registry %q must be a bare host", p.Registry)
	}
	if p.Repository == "" {
		return invalid("publish: repository is required")
	}
	if strings.ContainsAny(p.Repository, " :@") {
		return invalid("publish: repository %q must not carry a tag or digest", p.Repository)
	}
	if strings.ContainsAny(p.Tag, " /:@") {
		return invalid("publish: tag %q contains invalid characters", p.Tag)
	}
	return nil
}

// Builds a structural validation error.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRecipeInvalid, fmt.Sprintf(format, args...))
}
