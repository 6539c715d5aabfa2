// Provides platform-appropriate paths for the pipeline daemon.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows. The application name "slipway" is used as the
// subdirectory under each base path. Runtime files (socket, PID) live under
// the XDG runtime directory; per-run workspaces live under the XDG state
// home so exported archives survive reboots.
package paths
