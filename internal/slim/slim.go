package slim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (

	// No known tool binary found on PATH.
	ErrToolNotFound = errors.New("slimming tool not found")

	// Tool invocation failed or produced no image.
	ErrSlim = errors.New("slim tool failed")

	// Tool killed because the observation deadline passed.
	ErrWindowExceeded = errors.New("slimming window exceeded")
)

// Tool binary names probed on PATH, in order. The tool shipped under both
// names across releases.
var toolNames = []string{"slim", "docker-slim"}

// Extra time granted beyond the observation for the tool to analyze the
// trace and commit the output image.
const commitGrace = 30 * time.Second

// ExecCommandFunc creates the command used to invoke the tool. Tests
// substitute it to observe invocations without a tool installed.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Policy bounds one minimization.
type Policy struct {
	Window        time.Duration // How long the tool may observe the entrypoint.
	HTTPProbe     bool          // Drive synthetic HTTP traffic during observation.
	ContinueAfter time.Duration // Quiet period after the last activity before committing.
}

// Slimmer invokes the minimization tool.
type Slimmer struct {
	tool        string
	execCommand ExecCommandFunc
}

// Option configures a Slimmer.
type Option func(*Slimmer)

// Pins the tool binary instead of probing PATH.
func WithTool(path string) Option {
	return func(s *Slimmer) {
		s.tool = path
	}
}

// Replaces the command constructor.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(s *Slimmer) {
		s.execCommand = fn
	}
}

// Creates a slimmer, locating the tool binary on PATH unless one was
// pinned.
func New(opts ...Option) (*Slimmer, error) {
	s := &Slimmer{execCommand: exec.CommandContext}
	for _, opt := range opts {
		opt(s)
	}

	if s.tool == "" {
		tool, err := findTool()
		if err != nil {
			return nil, err
		}
		s.tool = tool
	}

	return s, nil
}

// Returns the resolved tool binary path.
func (s *Slimmer) Tool() string {
	return s.tool
}

// Probes PATH for a known tool binary.
func findTool() (string, error) {
	for _, name := range toolNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrToolNotFound, strings.Join(toolNames, ", "))
}

// Runs the tool against target, expecting the slimmed image under out.
//
// The invocation deadline is the observation window plus the continue-after
// quiet period plus a fixed commit grace; past it the tool is killed and
// the minimization counts as failed. A failure never falls through to the
// unslimmed image here; that decision belongs to the caller's policy.
func (s *Slimmer) Minimize(ctx context.Context, target, out string, policy Policy) error {
	deadline := policy.Window + policy.ContinueAfter + commitGrace
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	args := buildArgs(target, out, policy)
	cmd := s.execCommand(ctx, s.tool, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Info("slimming image",
		"target", target,
		"out", out,
		"tool", s.tool,
		"window", policy.Window,
	)

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: no result after %s", ErrWindowExceeded, deadline)
		}
		return fmt.Errorf("%w: %w (%s)", ErrSlim, err, lastLine(output.Bytes()))
	}

	return nil
}

// Builds the tool argument vector for minimizing target into out.
func buildArgs(target, out string, policy Policy) []string {
	return []string{
		"build",
		"--target", target,
		"--tag", out,
		fmt.Sprintf("--http-probe=%t", policy.HTTPProbe),
		"--continue-after", strconv.Itoa(int(policy.ContinueAfter / time.Second)),
	}
}

// Returns the last non-empty output line, for compact error messages.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
