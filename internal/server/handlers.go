package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/slipwayhq/slipway/internal"
	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/pipeline"
	"github.com/slipwayhq/slipway/internal/protocol"
)

// Handles a trigger command.
//
// Push triggers for branches other than the release branch are refused
// without starting a run. Accepted triggers respond immediately with the
// run ID; the run itself proceeds in the background and its progress is
// visible through status.
func (s *Server) handleTrigger(conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.TriggerRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if err := req.Kind.Validate(); err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if req.Kind == protocol.TriggerPush && req.Branch != s.branch {
		slog.Info("push ignored", "branch", req.Branch, "release", s.branch)
		s.respond(conn, protocol.CmdOK, &protocol.TriggerResult{
			Accepted: false,
			Reason:   fmt.Sprintf("push to %q ignored, releases build from %q", req.Branch, s.branch),
		})
		return
	}

	runID, err := s.launchRun(req.Kind)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.TriggerResult{Accepted: true, RunID: runID})
}

// Starts a release run in the background and returns its ID.
//
// The recipe is reloaded for every run so edits apply without restarting
// the daemon. A recipe that no longer loads refuses the trigger instead of
// launching a doomed run.
func (s *Server) launchRun(kind protocol.TriggerKind) (string, error) {
	recipe, err := manifest.Load(s.recipePath)
	if err != nil {
		return "", err
	}

	record := &runRecord{
		id:      uuid.NewString(),
		trigger: kind,
		state:   pipeline.StatePending,
		started: time.Now(),
	}
	s.addRun(record)

	slog.Info("run launched", "run", record.id, "trigger", kind)

	go func() {
		_, err := s.runPipeline(s.runCtx, pipeline.Options{
			Recipe:     recipe,
			RunID:      record.id,
			Credential: s.credential,
			Observer:   func(state pipeline.State) { s.setRunState(record.id, state) },
		})
		s.finishRun(record.id, err)
	}()

	return record.id, nil
}

// Records a newly launched run, trimming the oldest entries beyond the
// history limit.
func (s *Server) addRun(record *runRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, record)
	s.runIndex[record.id] = record

	for len(s.runs) > runHistory {
		delete(s.runIndex, s.runs[0].id)
		s.runs = s.runs[1:]
	}
}

// Records a state change reported by a run.
func (s *Server) setRunState(id string, state pipeline.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.runIndex[id]; ok {
		record.state = state
	}
}

// Records a run's completion.
func (s *Server) finishRun(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.runIndex[id]; ok {
		record.err = err
		record.finished = time.Now()
	}
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Runs:    s.runSummaries(),
	})
}

// Returns summaries of launched runs, newest first.
func (s *Server) runSummaries() []protocol.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]protocol.RunSummary, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		record := s.runs[i]

		summary := protocol.RunSummary{
			ID:      record.id,
			Trigger: string(record.trigger),
			State:   string(record.state),
			Started: record.started.Format(time.RFC3339),
		}
		if record.err != nil {
			summary.ErrorKind = string(pipeline.Classify(record.err))
			summary.Error = record.err.Error()
		}
		if !record.finished.IsZero() {
			summary.Finished = record.finished.Format(time.RFC3339)
		}

		summaries = append(summaries, summary)
	}
	return summaries
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
