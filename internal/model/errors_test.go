// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_FatalKindsCloseTheConnection(t *testing.T) {
	for _, kind := range []ErrorKind{KindFingerprintChange, KindAlgorithmChange, KindApiIncompatible} {
		e := NewError(kind, "boom")
		assert.True(t, e.Fatal(), "%s should be fatal", kind)
		assert.False(t, e.Warning(), "%s should not also be a warning", kind)
	}
}

func TestError_WarningKindsAreAdvisory(t *testing.T) {
	for _, kind := range []ErrorKind{KindApiDrift, KindRootNoKey, KindCacheIntegrity} {
		e := NewError(kind, "heads up")
		assert.True(t, e.Warning(), "%s should be a warning", kind)
		assert.False(t, e.Fatal(), "%s should not also be fatal", kind)
	}
}

func TestError_OrdinaryKindIsNeitherFatalNorWarning(t *testing.T) {
	e := NewError(KindLocked, "retry later")
	assert.False(t, e.Fatal())
	assert.False(t, e.Warning())
}

func TestWrapError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := WrapError(KindNotConnected, cause, "connect to host")
	assert.Same(t, cause, errors.Unwrap(e))
	assert.True(t, errors.Is(e, cause))
}

func TestRemoteError_UnknownCodeMapsToOperationFailed(t *testing.T) {
	e := RemoteError("ERR_SOMETHING_NEW", "unexpected")
	assert.Equal(t, KindOperationFailed, e.Kind)
	assert.Equal(t, "ERR_SOMETHING_NEW", e.Code)
}

func TestRemoteError_KnownCodeMapsToItsKind(t *testing.T) {
	e := RemoteError("ERR_LOCKED", "busy")
	assert.Equal(t, KindLocked, e.Kind)
}
