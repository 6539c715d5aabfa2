package runtime

import (
	"errors"
	"fmt"
)

var (

	// General containerd operation failure.
	ErrRuntime = errors.New("runtime error")

	// Image index with no usable manifest entries.
	ErrEmptyIndex = errors.New("empty image index")

	// OCI archive whose index references no image.
	ErrEmptyArchive = errors.New("archive contains no image")

	// OCI archive carrying more than one unrelated image.
	ErrMultipleImages = errors.New("archive contains multiple images")

	// Image expected in the store but not found.
	ErrImageNotFound = errors.New("image not found in store")
)

// Wraps a containerd failure in the package sentinel.
func wrapRuntime(err error) error {
	return fmt.Errorf("%w: %w", ErrRuntime, err)
}

// Wraps a formatted message in the package sentinel.
func wrapRuntimef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRuntime, fmt.Sprintf(format, args...))
}
