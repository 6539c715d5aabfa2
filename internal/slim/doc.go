// Package slim wraps the external image minimization tool.
//
// The tool is treated as an opaque command: it receives a target image
// reference, an output tag, a probe switch, and a continue-after duration,
// and either produces the slimmed image or fails. The wrapper bounds the
// whole invocation with a deadline derived from the observation window and
// kills the tool when the deadline passes. It never inspects or recreates
// the tool's behavior; verifying that the output image actually exists is
// the caller's job, and a missing output must be treated as failure.
//
// Minimization trades size for coverage: only code paths exercised while
// the tool observes the entrypoint are guaranteed to survive. Keep the
// pre-slim image around for diagnosis when the observation was too short.
//
// Example usage:
//
//	s, err := slim.New()
//	if err != nil {
//	    return err
//	}
//
//	err = s.Minimize(ctx, "slipway/run/1:assembled", "slipway/run/1:slim", slim.Policy{
//	    Window:        90 * time.Second,
//	    ContinueAfter: 10 * time.Second,
//	})
package slim
