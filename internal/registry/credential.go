package registry

import (
	"log/slog"
	"os"

	"github.com/containerd/containerd/v2/core/remotes"
	"github.com/containerd/containerd/v2/core/remotes/docker"
)

const (

	// Environment variable holding the registry username.
	EnvUsername = "SLIPWAY_REGISTRY_USERNAME"

	// Environment variable holding the registry token or password.
	EnvToken = "SLIPWAY_REGISTRY_TOKEN"

	// Placeholder every printable surface of a credential yields.
	redacted = "[redacted]"
)

// Credential is a short-lived registry username/token pair.
//
// The token never leaves the package: it is unexported, formatting the
// credential yields a placeholder, and the only consumer is the resolver
// the credential builds itself.
type Credential struct {
	username string
	token    string
}

// Creates a credential from a username and token.
func NewCredential(username, token string) Credential {
	return Credential{username: username, token: token}
}

// Reads the credential from the environment and clears the variables so
// the secret does not linger in the process environment.
//
// Returns false when no token is present.
func CredentialFromEnv() (Credential, bool) {
	username := os.Getenv(EnvUsername)
	token := os.Getenv(EnvToken)
	os.Unsetenv(EnvUsername)
	os.Unsetenv(EnvToken)

	if token == "" {
		return Credential{}, false
	}
	return Credential{username: username, token: token}, true
}

// Returns true when the credential carries no token.
func (c Credential) IsZero() bool {
	return c.token == ""
}

// Returns the username. The token has no accessor.
func (c Credential) Username() string {
	return c.username
}

// Implements fmt.Stringer. Always redacts.
func (c Credential) String() string {
	return redacted
}

// Implements fmt.GoStringer so %#v cannot leak the token either.
func (c Credential) GoString() string {
	return redacted
}

// Implements slog.LogValuer. Structured logs carry the username and a
// placeholder, never the token.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.username),
		slog.String("token", redacted),
	)
}

// Returns a registry resolver authenticated with the credential.
//
// The zero credential yields an anonymous resolver, suitable for pulling
// public images.
func (c Credential) Resolver() remotes.Resolver {
	if c.IsZero() {
		return docker.NewResolver(docker.ResolverOptions{
			Hosts: docker.ConfigureDefaultRegistries(),
		})
	}

	authorizer := docker.NewDockerAuthorizer(
		docker.WithAuthCreds(func(host string) (string, string, error) {
			return c.username, c.token, nil
		}),
	)

	return docker.NewResolver(docker.ResolverOptions{
		Hosts: docker.ConfigureDefaultRegistries(docker.WithAuthorizer(authorizer)),
	})
}
