// Parses flags and dispatches the slipway subcommands.
//
// The binary accepts the following global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity before
// the selected command runs.
//
// start and run drive the pipeline themselves; trigger, status, and shutdown
// are clients of a running daemon and exchange one newline-delimited JSON
// message over its Unix socket.
package cli
