package registry

import (
	"errors"
	"net/http"

	"github.com/containerd/containerd/v2/core/remotes/docker"
	remoteerrors "github.com/containerd/containerd/v2/core/remotes/errors"
)

// Reports whether err is a credential rejection rather than a transport or
// registry failure.
//
// The registry client surfaces rejections two ways: a failed token
// exchange yields docker.ErrInvalidAuthorization, and a direct denial
// yields an unexpected-status error carrying 401 or 403.
func IsAuthError(err error) bool {
	if errors.Is(err, docker.ErrInvalidAuthorization) {
		return true
	}

	var status remoteerrors.ErrUnexpectedStatus
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusUnauthorized ||
			status.StatusCode == http.StatusForbidden
	}

	return false
}
