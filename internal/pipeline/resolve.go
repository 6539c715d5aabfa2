package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Lists the shared libraries the artifact loads at run time.
//
// The dynamic loader resolves the full transitive closure, so a single
// listing covers indirect dependencies. A statically linked artifact yields
// an empty set. Any library the loader cannot resolve halts the run before
// assembly starts.
func listDependencies(ctx context.Context, builder Container, artifact string) ([]Library, error) {
	result, err := builder.ExecArgs(ctx, []string{"ldd", artifact})
	if err != nil {
		return nil, fmt.Errorf("%w: loader listing: %w", ErrUnresolvedDependency, err)
	}

	output := result.Stdout + result.Stderr
	if result.ExitCode != 0 {
		if isStaticListing(output) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: loader listing exited %d: %s", ErrUnresolvedDependency, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return parseLoaderListing(result.Stdout)
}

// Reports whether the loader listing describes a static executable. The
// wording differs between libc implementations.
func isStaticListing(output string) bool {
	return strings.Contains(output, "not a dynamic executable") ||
		strings.Contains(output, "statically linked")
}

// Parses dynamic loader listing output into the library set.
//
// Three line shapes carry a dependency:
//
//	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x...)
//	/lib64/ld-linux-x86-64.so.2 (0x...)
//	libmissing.so.1 => not found
//
// The first maps a name to its resolved path, the second is the loader
// itself, and the third is an unresolved dependency. Virtual objects like
// linux-vdso resolve to no path and are skipped. All unresolved names are
// collected so one failure reports the complete gap.
func parseLoaderListing(listing string) ([]Library, error) {
	var libs []Library
	var missing []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isStaticListing(line) {
			continue
		}

		name, rest, mapped := strings.Cut(line, "=>")
		if !mapped {
			// Bare path: the loader's own entry. Anything else (such as a
			// virtual object) has no path and is not a file to copy.
			if field := firstField(line); strings.HasPrefix(field, "/") {
				appendLibrary(&libs, seen, Library{Name: path.Base(field), Path: field})
			}
			continue
		}

		name = strings.TrimSpace(name)
		rest = strings.TrimSpace(rest)

		if strings.HasPrefix(rest, "not found") {
			missing = append(missing, name)
			continue
		}

		if field := firstField(rest); strings.HasPrefix(field, "/") {
			appendLibrary(&libs, seen, Library{Name: name, Path: field})
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedDependency, strings.Join(missing, ", "))
	}

	return libs, nil
}

func firstField(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Appends a library unless its path was already recorded.
func appendLibrary(libs *[]Library, seen map[string]bool, lib Library) {
	if seen[lib.Path] {
		return
	}
	seen[lib.Path] = true
	*libs = append(*libs, lib)
}

// Adds recipe-forced library paths to the resolved set.
//
// Forced paths cover dlopen-style loads the loader listing cannot see. They
// are deduplicated against the resolved set by path.
func mergeForcedLibraries(libs []Library, forced []string) []Library {
	seen := make(map[string]bool, len(libs))
	for _, lib := range libs {
		seen[lib.Path] = true
	}

	for _, p := range forced {
		if seen[p] {
			continue
		}
		seen[p] = true
		libs = append(libs, Library{Name: path.Base(p), Path: p})
	}

	return libs
}

// Marks libraries the base image already provides.
//
// Each path is probed inside the base container. Provided libraries are
// left in the set for reporting but skipped during the copy.
func markProvided(ctx context.Context, base Container, libs []Library) error {
	for i := range libs {
		result, err := base.ExecArgs(ctx, []string{defaultShell, "-c", `test -e "$1"`, "sh", libs[i].Path})
		if err != nil {
			return err
		}
		libs[i].Provided = result.ExitCode == 0
	}
	return nil
}
