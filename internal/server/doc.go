// Package server implements the slipway daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the slipway CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection.
//
// Trigger commands launch release runs against the configured recipe.
// Push triggers are filtered to the release branch; accepted triggers
// respond immediately and the run proceeds in the background through the
// pipeline package. Status reports daemon health and recent runs, and
// shutdown stops the daemon, cancelling in-flight runs.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    RecipePath: "slipway.yml",
//	    Branch:     "main",
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
