package pipeline

import "errors"

var (

	// The toolchain container could not produce the artifact: image setup,
	// package installation, the compile command, or the artifact check failed.
	ErrCompile = errors.New("compile failed")

	// The loader listing names a shared library that has no resolved path.
	ErrUnresolvedDependency = errors.New("unresolved shared library dependency")

	// Composing the release image from the base failed.
	ErrAssembly = errors.New("assembly failed")

	// The minimization tool failed or produced no image, and no fallback
	// was configured.
	ErrSlimming = errors.New("slimming failed")

	// The registry rejected the push credentials.
	ErrAuth = errors.New("registry authentication rejected")

	// The push failed for a reason other than authentication.
	ErrPush = errors.New("image push failed")

	// A run attempted a state change the lifecycle does not allow.
	ErrTransition = errors.New("invalid state transition")
)

// ErrorKind names the failure class of a finished run for status reporting.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindCompile              ErrorKind = "compile"
	KindUnresolvedDependency ErrorKind = "unresolved-dependency"
	KindAssembly             ErrorKind = "assembly"
	KindSlimming             ErrorKind = "slimming"
	KindAuth                 ErrorKind = "auth"
	KindPush                 ErrorKind = "push"
	KindInternal             ErrorKind = "internal"
)

// Classify maps a run error to its failure class.
//
// Auth is checked before push because push errors wrap the underlying
// registry error, and an auth rejection is the more specific diagnosis.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCompile):
		return KindCompile
	case errors.Is(err, ErrUnresolvedDependency):
		return KindUnresolvedDependency
	case errors.Is(err, ErrAssembly):
		return KindAssembly
	case errors.Is(err, ErrSlimming):
		return KindSlimming
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrPush):
		return KindPush
	default:
		return KindInternal
	}
}
