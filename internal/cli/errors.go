package cli

import "errors"

// Indicates the daemon could not be reached or refused a command.
var ErrDaemon = errors.New("daemon error")
