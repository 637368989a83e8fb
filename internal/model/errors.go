// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "fmt"

// ErrorKind is the closed set of error kinds surfaced to the UI (§6). Every
// fallible core operation returns an error that wraps an *Error and callers
// that care inspect .Kind via errors.As rather than matching strings.
type ErrorKind string

const (
	KindLocked            ErrorKind = "Locked"
	KindDependency        ErrorKind = "Dependency"
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindInvalidRule       ErrorKind = "InvalidRule"
	KindPendingExpired    ErrorKind = "PendingExpired"
	KindAlreadyConfigured ErrorKind = "AlreadyConfigured"
	KindOtpExpired        ErrorKind = "OtpExpired"
	KindInvalidPubkey     ErrorKind = "InvalidPubkey"
	KindNoRiseAdmin       ErrorKind = "NoRiseAdmin"
	KindPermission        ErrorKind = "Permission"
	KindOperationFailed   ErrorKind = "OperationFailed"
	KindApiIncompatible   ErrorKind = "ApiIncompatible"
	KindApiDrift          ErrorKind = "ApiDrift"
	KindCacheIntegrity    ErrorKind = "CacheIntegrity"
	KindDeadline          ErrorKind = "Deadline"
	KindNotConnected      ErrorKind = "NotConnected"
	KindNewHost           ErrorKind = "NewHost"
	KindFingerprintChange ErrorKind = "FingerprintChanged"
	KindAlgorithmChange   ErrorKind = "AlgorithmChanged"
	KindUnreachable       ErrorKind = "Unreachable"
	KindRootNoKey         ErrorKind = "RootNoKey"
	KindProtocol          ErrorKind = "Protocol"
	KindNoCredentials     ErrorKind = "NoCredentials"
	KindQueueTimeout      ErrorKind = "QueueTimeout"
)

// fatalKinds close the connection and require explicit user action before
// retry (§7).
var fatalKinds = map[ErrorKind]bool{
	KindFingerprintChange: true,
	KindAlgorithmChange:   true,
	KindApiIncompatible:   true,
}

// warningKinds are delivered alongside, not instead of, a result (§7).
var warningKinds = map[ErrorKind]bool{
	KindApiDrift:       true,
	KindRootNoKey:      true,
	KindCacheIntegrity: true,
}

// Error is the concrete typed failure value used throughout the core.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    string // remote ERR_* code, when the error originated from a remote envelope
	Err     error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether this error kind must close the connection.
func (e *Error) Fatal() bool { return fatalKinds[e.Kind] }

// Warning reports whether this error kind is advisory rather than blocking.
func (e *Error) Warning() bool { return warningKinds[e.Kind] }

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error of the given kind wrapping cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// remoteErrorKinds maps a remote ERR_* code onto a Kind. Codes not present
// here map to KindOperationFailed.
var remoteErrorKinds = map[string]ErrorKind{
	"ERR_LOCKED":            KindLocked,
	"ERR_DEPENDENCY":        KindDependency,
	"ERR_INVALID_INPUT":     KindInvalidInput,
	"ERR_INVALID_RULE":      KindInvalidRule,
	"ERR_PENDING_EXPIRED":   KindPendingExpired,
	"ERR_ALREADY_CONFIGURED": KindAlreadyConfigured,
	"ERR_OTP_EXPIRED":       KindOtpExpired,
	"ERR_INVALID_PUBKEY":    KindInvalidPubkey,
	"ERR_NO_RISE_ADMIN":     KindNoRiseAdmin,
	"ERR_PERMISSION":        KindPermission,
	"WARN_ROOT_NO_KEY":      KindRootNoKey,
}

// RemoteError builds an *Error from a remote envelope's code/message.
func RemoteError(code, message string) *Error {
	kind, ok := remoteErrorKinds[code]
	if !ok {
		kind = KindOperationFailed
	}
	return &Error{Kind: kind, Message: message, Code: code}
}
