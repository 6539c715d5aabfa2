// Package protocol defines the wire format between the CLI and the daemon.
//
// Messages are JSON envelopes carrying a command name and an optional
// payload, delimited by newlines on the socket. Each connection carries a
// single request-response exchange. Payloads are decoded lazily so the
// dispatcher can route on the command before committing to a payload
// shape.
//
// Example usage:
//
//	data, err := protocol.Encode(protocol.CmdTrigger, &protocol.TriggerRequest{
//	    Kind:   protocol.TriggerPush,
//	    Branch: "main",
//	})
//	if err != nil {
//	    return err
//	}
//
//	env, payload, err := protocol.Decode(data)
//	if err != nil {
//	    return err
//	}
//
//	req, err := protocol.DecodePayload[protocol.TriggerRequest](payload)
package protocol
