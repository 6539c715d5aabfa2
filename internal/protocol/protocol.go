package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Indicates a message that could not be encoded or decoded.
var ErrProtocol = errors.New("protocol error")

// Command names a request or response type on the wire.
type Command string

const (

	// Requests a pipeline run for the configured recipe.
	CmdTrigger Command = "trigger"

	// Requests daemon status and recent run summaries.
	CmdStatus Command = "status"

	// Requests a daemon shutdown.
	CmdShutdown Command = "shutdown"

	// Marks a successful response.
	CmdOK Command = "ok"

	// Marks an error response.
	CmdError Command = "error"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encodes a command and payload into a JSON envelope.
//
// A nil payload produces an envelope without a payload field.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		env.Payload = data
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return data, nil
}

// Decodes a JSON envelope, returning the envelope and its raw payload.
//
// The payload is left undecoded so the caller can route on the command
// first.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: envelope names no command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// Decodes a raw payload into the requested type.
func DecodePayload[T any](data json.RawMessage) (*T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrProtocol)
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &payload, nil
}
