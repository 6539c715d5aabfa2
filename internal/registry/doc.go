// Package registry handles registry targets and per-run credentials.
//
// A [Credential] is a short-lived username/token pair injected from the
// environment at the start of a run. The token is unexported and every
// printable surface of the type redacts it: %v, %s, and structured logging
// all yield "[redacted]". Credentials build authenticated registry
// resolvers for push and pull; the zero Credential builds an anonymous
// resolver for public images.
//
// Example usage:
//
//	cred, ok := registry.CredentialFromEnv()
//	if !ok {
//	    return errors.New("no registry credential in environment")
//	}
//
//	resolver := cred.Resolver()
package registry
