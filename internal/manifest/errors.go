package manifest

import "errors"

var (

	// Indicates the recipe file could not be read or decoded.
	ErrRecipeLoad = errors.New("recipe load failed")

	// Indicates the recipe decoded cleanly but violates a structural rule.
	ErrRecipeInvalid = errors.New("invalid recipe")

	// Indicates an image reference that is neither a registry reference nor
	// an OCI archive path.
	ErrImageRef = errors.New("invalid image reference")
)
