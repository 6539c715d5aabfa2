package cli

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/slipwayhq/slipway/internal/paths"
	"github.com/slipwayhq/slipway/internal/protocol"
)

// Time allowed for one request-response exchange with the daemon. The
// daemon answers every command immediately; runs proceed in the background.
const requestTimeout = 10 * time.Second

// Returns the socket path to dial, honoring the --socket override.
func socketPath() string {
	if RootCmd.Socket != "" {
		return RootCmd.Socket
	}
	return paths.Socket()
}

// Sends one command to the daemon and decodes the response payload.
//
// Commands whose responses carry no payload decode into the zero value.
func request[T any](ctx context.Context, cmd protocol.Command, payload any) (*T, error) {
	raw, err := exchange(ctx, cmd, payload)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return new(T), nil
	}
	return protocol.DecodePayload[T](raw)
}

// Performs one request-response exchange over the daemon socket.
//
// Error responses from the daemon are turned into errors carrying the
// daemon's message.
func exchange(ctx context.Context, cmd protocol.Command, payload any) ([]byte, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", socketPath())
	if err != nil {
		return nil, fmt.Errorf("%w: daemon not reachable: %w", ErrDaemon, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestTimeout))

	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return nil, err
	}
	data = append(data, byte(10))

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes(byte(10))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemon, err)
	}

	env, raw, err := protocol.Decode(line)
	if err != nil {
		return nil, err
	}

	if env.Command == protocol.CmdError {
		result, err := protocol.DecodePayload[protocol.ErrorResult](raw)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrDaemon, result.Message)
	}

	return raw, nil
}
