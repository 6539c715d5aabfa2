package protocol

import "fmt"

// TriggerKind distinguishes how a run was requested.
type TriggerKind string

const (

	// Run requested by a push to the repository.
	TriggerPush TriggerKind = "push"

	// Run requested explicitly by an operator.
	TriggerManual TriggerKind = "manual"
)

// Validates the trigger kind.
func (k TriggerKind) Validate() error {
	switch k {
	case TriggerPush, TriggerManual:
		return nil
	}
	return fmt.Errorf("%w: unknown trigger kind %q", ErrProtocol, string(k))
}

// TriggerRequest asks the daemon to start a pipeline run.
//
// Push triggers carry the pushed branch; the daemon only accepts them for
// its configured release branch. The request carries nothing else: the
// recipe is fixed daemon-side.
type TriggerRequest struct {
	Kind   TriggerKind `json:"kind"`
	Branch string      `json:"branch,omitempty"`
}

// TriggerResult reports whether a run was started.
type TriggerResult struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"run_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// StatusResult reports daemon health and recent runs.
type StatusResult struct {
	Running bool         `json:"running"`
	Version string       `json:"version"`
	Pid     int          `json:"pid"`
	Uptime  string       `json:"uptime"`
	Runs    []RunSummary `json:"runs,omitempty"`
}

// RunSummary is one pipeline run as reported by status.
type RunSummary struct {
	ID        string `json:"id"`
	Trigger   string `json:"trigger"`
	State     string `json:"state"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Started   string `json:"started"`
	Finished  string `json:"finished,omitempty"`
}

// ErrorResult carries an error response message.
type ErrorResult struct {
	Message string `json:"message"`
}
