package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/paths"
	"github.com/slipwayhq/slipway/internal/pipeline"
	"github.com/slipwayhq/slipway/internal/protocol"
	"github.com/slipwayhq/slipway/internal/registry"
	"github.com/slipwayhq/slipway/internal/runtime"
)

const (

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultContainerdNamespace = "slipway"

	// Default branch that push triggers release from.
	DefaultBranch = "main"

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "slipway"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660

	// Number of finished runs kept for status reporting.
	runHistory = 50
)

// Holds server configuration.
type Config struct {
	SocketPath          string // Override for the Unix socket path. Empty uses the default.
	ContainerdAddress   string // Containerd socket address. Empty uses [DefaultContainerdAddress].
	ContainerdNamespace string // Containerd namespace for images and containers. Empty uses [DefaultContainerdNamespace].
	RecipePath          string // Release recipe executed by triggered runs. Required.
	Branch              string // Branch push triggers release from. Empty uses [DefaultBranch].
}

// Listens on a Unix domain socket, dispatches commands, and launches
// release runs.
type Server struct {
	socketPath string              // Path to the Unix socket file.
	runtime    *runtime.Runtime    // Containerd-backed container runtime.
	recipePath string              // Recipe file, reloaded for every run.
	branch     string              // Release branch for push triggers.
	credential registry.Credential // Registry credential read from the environment at startup.
	listener   net.Listener        // Listener for incoming connections.
	startedAt  time.Time           // Timestamp when the server started.
	done       chan struct{}       // Channel to signal server shutdown.
	stopOnce   sync.Once           // Guards shutdown against the signal and socket paths racing.

	runCtx     context.Context    // Parent context for run goroutines.
	cancelRuns context.CancelFunc // Cancels in-flight runs on shutdown.

	// Starts a pipeline run; swapped by tests.
	runPipeline func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)

	mu       sync.Mutex            // Guards the run table.
	runs     []*runRecord          // Launched runs, oldest first.
	runIndex map[string]*runRecord // Run lookup by ID.
}

// Tracks one launched run for status reporting.
type runRecord struct {
	id       string
	trigger  protocol.TriggerKind
	state    pipeline.State
	err      error
	started  time.Time
	finished time.Time
}

// Creates a new server instance.
//
// The recipe is loaded once to fail fast on configuration errors, and the
// registry credential is read (and scrubbed) from the environment. The
// socket is not opened until [Start] is called.
func New(cfg Config) (*Server, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	containerdAddress := cfg.ContainerdAddress
	if containerdAddress == "" {
		containerdAddress = DefaultContainerdAddress
	}

	containerdNamespace := cfg.ContainerdNamespace
	if containerdNamespace == "" {
		containerdNamespace = DefaultContainerdNamespace
	}

	branch := cfg.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	if cfg.RecipePath == "" {
		return nil, fmt.Errorf("%w: no recipe configured", ErrServer)
	}
	if _, err := manifest.Load(cfg.RecipePath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	credential, ok := registry.CredentialFromEnv()
	if !ok {
		slog.Warn("no registry credential in environment, publishes will be anonymous")
	}

	rt, err := runtime.New(containerdAddress, containerdNamespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())

	s := &Server{
		socketPath: socketPath,
		runtime:    rt,
		recipePath: cfg.RecipePath,
		branch:     branch,
		credential: credential,
		done:       make(chan struct{}),
		runCtx:     runCtx,
		cancelRuns: cancelRuns,
		runIndex:   make(map[string]*runRecord),
	}
	s.runPipeline = func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
		return pipeline.Run(ctx, s.runtime, opts)
	}
	return s, nil
}

// Opens the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("server listening on socket", "path", s.socketPath, "branch", s.branch, "recipe", s.recipePath)

	go s.accept()
	return nil
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. The daemon does not run as
// root; any user in the slipway group can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}

	if g, err := user.LookupGroup(socketGroup); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			if err := os.Chown(socketPath, -1, gid); err != nil {
				slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
			}
		}
	} else {
		slog.Warn("socket group not found, socket accessible to owner only", "group", socketGroup)
	}

	return nil
}

// Shuts down the server and cleans up resources. In-flight runs are
// cancelled; their cleanup marks them failed.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancelRuns()
		close(s.done)

		if s.listener != nil {
			s.listener.Close()
		}

		if s.runtime != nil {
			s.runtime.Close()
		}

		os.Remove(s.socketPath)
		os.Remove(paths.PIDFile())
	})

	return nil
}

// Blocks until the server stops.
func (s *Server) Wait() {
	<-s.done
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		go s.handle(conn)
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes(byte(10))
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("command received", "command", env.Command)

	s.dispatch(conn, env.Command, payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdTrigger:
		s.handleTrigger(conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Writes a JSON envelope response to the connection.
func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	data = append(data, byte(10))
	conn.Write(data)
}

// Writes the daemon PID to the PID file so the CLI can detect whether the
// daemon is already running and send it signals.
func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFile(), []byte(fmt.Sprintf("%d", os.Getpid())), paths.DefaultFileMode)
}
