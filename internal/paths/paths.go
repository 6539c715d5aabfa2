package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "slipway"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/slipway or /run/user/<uid>/slipway
//	macOS:   ~/Library/Caches/slipway/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}

// Default path to the Unix domain socket for CLI-to-daemon communication.
//
//	Linux:   $XDG_RUNTIME_DIR/slipway/slipway.sock
//	macOS:   ~/Library/Caches/slipway/run/slipway.sock
func Socket() string {
	return filepath.Join(Runtime(), "slipway.sock")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/slipway/slipway.pid
//	macOS:   ~/Library/Caches/slipway/run/slipway.pid
func PIDFile() string {
	return filepath.Join(Runtime(), "slipway.pid")
}

// Path to the directory holding per-run workspaces.
//
//	Linux:   ~/.local/state/slipway/runs
//	macOS:   ~/Library/Application Support/slipway/runs
func Runs() string {
	return filepath.Join(xdg.StateHome, appName, "runs")
}

// Path to the workspace directory for a single pipeline run.
//
// The workspace holds the staged artifact and the exported image archives
// for the run. It is not removed automatically; stale workspaces can be
// cleaned by ID.
func RunDir(runID string) string {
	return filepath.Join(Runs(), runID)
}
