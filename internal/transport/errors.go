// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"strings"

	"github.com/rise-fleet/rise/internal/model"
)

func isConnectionTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded") || strings.Contains(s, "i/o timeout")
}

func isConnectionRefused(err error) bool {
	s := err.Error()
	return strings.Contains(s, "connection refused") || strings.Contains(s, "no route to host")
}

func isAuthenticationFailure(err error) bool {
	s := err.Error()
	return strings.Contains(s, "authentication failed") ||
		strings.Contains(s, "permission denied") ||
		strings.Contains(s, "unable to authenticate")
}

// classifyConnectionError maps a raw dial/handshake error onto the typed
// error kinds surfaced to the UI, following
// ClassifyConnectionError/Is*Error family in internal/deploy/ssh.go.
func classifyConnectionError(addr string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isConnectionTimeout(err), isConnectionRefused(err):
		return model.WrapError(model.KindUnreachable, err, "cannot reach %s", addr)
	case isAuthenticationFailure(err):
		return model.WrapError(model.KindNoCredentials, err, "authentication failed for %s", addr)
	default:
		return model.WrapError(model.KindOperationFailed, err, "connection to %s failed", addr)
	}
}
