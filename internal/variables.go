package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Binary name, used for CLI help and log prefixes.
	Name = "slipway"

	// Placeholder for identity variables a release build should have set
	undefinedValue = "(undefined)"

	// Version string reported by builds made outside the release pipeline
	localBuildValue = "(local)"

	// Release branch whose name is omitted from version strings
	releaseBranch = "main"
)

var (
	version   = "" // Release version (e.g., "0.3.1")
	stage     = "" // Branch the binary was built from (e.g., "main")
	gitCommit = "" // Short commit hash of the build

	rawQuiet   = "false" // Default for quiet mode
	rawDebug   = "false" // Default for debug logging
	rawVerbose = "false" // Default for verbose logging
)

// Returns the release version with any "v" prefix stripped, lowercased.
//
// Returns "(undefined)" when the build did not set a version.
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return undefinedValue
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the branch the binary was built from, lowercased.
//
// Returns "(undefined)" when the build did not set a stage.
func Stage() string {
	s := strings.TrimSpace(stage)
	if s == "" {
		return undefinedValue
	}
	return strings.ToLower(s)
}

// Returns the commit hash the binary was built from.
//
// Returns "(undefined)" when the build did not set a commit.
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return undefinedValue
	}
	return c
}

// Returns the architecture the binary was compiled for.
func Arch() string {
	return runtime.GOARCH
}

// Returns true when the binary was built outside the release pipeline.
//
// Release builds set version, stage, and commit through linker flags. A
// build missing any of the three counts as local.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(stage) == "" ||
		strings.TrimSpace(gitCommit) == ""
}

// Returns the full version string for display.
//
// Local builds yield "(local)". Release builds yield
// "<version>+<stage> <commit> [<arch>]", with the "+<stage>" part dropped
// for builds from the release branch.
func VersionString() string {
	if IsLocal() {
		return localBuildValue
	}

	suffix := ""
	if s := Stage(); s != releaseBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), suffix, GitCommit(), Arch())
}
