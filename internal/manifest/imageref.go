package manifest

import (
	"fmt"
	"strings"
)

// Prefix marking an image reference as a local OCI archive path.
const archivePrefix = "oci-archive:"

// Distinguishes how an image reference is materialized in the image store.
type RefKind string

const (

	// Image pulled from a registry by reference.
	RefRegistry RefKind = "registry"

	// Image imported from a local OCI archive.
	RefArchive RefKind = "oci-archive"
)

// ImageRef is a parsed image reference from a recipe.
//
// Value holds the registry reference or the archive path, depending on
// Kind.
type ImageRef struct {
	Kind  RefKind
	Value string
}

// Parses an image reference.
//
// References of the form "oci-archive:<path>" name a local archive file;
// anything else is treated as a registry reference.
func ParseImageRef(s string) (ImageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImageRef{}, fmt.Errorf("%w: empty reference", ErrImageRef)
	}

	if rest, ok := strings.CutPrefix(s, archivePrefix); ok {
		if rest == "" {
			return ImageRef{}, fmt.Errorf("%w: %q names no archive path", ErrImageRef, s)
		}
		return ImageRef{Kind: RefArchive, Value: rest}, nil
	}

	if strings.ContainsAny(s, " \t") {
		return ImageRef{}, fmt.Errorf("%w: %q contains whitespace", ErrImageRef, s)
	}

	return ImageRef{Kind: RefRegistry, Value: s}, nil
}

// Returns the reference in its recipe form.
func (r ImageRef) String() string {
	if r.Kind == RefArchive {
		return archivePrefix + r.Value
	}
	return r.Value
}
