package pipeline

import (
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// Artifact is the compiled executable staged out of the build container.
type Artifact struct {
	Name   string        // Base name the artifact is installed under.
	Path   string        // Host path of the staged copy.
	Size   int64         // Size in bytes.
	Mode   fs.FileMode   // File mode recorded by the build container.
	Digest digest.Digest // Content digest of the staged copy.
}

// Library is one shared object the artifact needs at load time.
type Library struct {
	Name     string // Name as reported by the loader.
	Path     string // Absolute path inside the build container.
	Provided bool   // Already present in the base image; not copied.
}

// RuntimeImage is a committed release image in the local store.
type RuntimeImage struct {
	Tag        string   // Tag in the local image store.
	Base       string   // Minimal base reference it was assembled from.
	Entrypoint []string // Direct entry command.
	User       string   // Unprivileged execution identity.
	WorkingDir string   // Working directory, the user's home.
	Archive    string   // Exported OCI archive in the run workspace; empty when the export failed.
}
