// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package security holds the in-memory material RISE must never let leak
// into a log line, a JSON response, or a database dump: the device's
// Ed25519 private key (internal/keystore), a one-shot onboarding password
// relayed to a Session (internal/transport), and out-of-band enrollment
// codes (internal/onboarding).
package security

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
)

// redactedPlaceholder is what every formatting/marshaling path below
// substitutes for the real bytes.
const redactedPlaceholder = "[SECRET]"

// Secret wraps sensitive bytes so the ordinary ways a value leaks into
// the clear — fmt verbs, encoding/json, a SQL driver's debug trace — are
// all redacted by construction rather than by caller discipline.
type Secret []byte

// FromString builds a Secret from a string.
func FromString(in string) Secret { return Secret([]byte(in)) }

// FromBytes builds a Secret from a copy of in, so the caller's slice and
// the Secret's storage can be zeroed independently.
func FromBytes(in []byte) Secret {
	out := make([]byte, len(in))
	copy(out, in)
	return Secret(out)
}

// Bytes returns a copy of the underlying bytes. The caller owns zeroing it.
func (s Secret) Bytes() []byte {
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// Use hands fn the underlying bytes without copying, for call sites on a
// hot path (e.g. handing a PEM-encoded key to ssh.ParsePrivateKey). A
// caller that retains the slice past fn's return is responsible for
// zeroing it itself.
func (s Secret) Use(fn func([]byte) error) error {
	return fn([]byte(s))
}

// Zero overwrites the underlying bytes in place. Safe on a nil Secret.
func (s *Secret) Zero() {
	if s == nil || *s == nil {
		return
	}
	for i := range *s {
		(*s)[i] = 0
	}
}

// String satisfies fmt.Stringer so %s and bare Print calls redact.
func (s Secret) String() string { return redactedPlaceholder }

// Redacted is an explicit alias for String, for call sites that want to
// make the redaction intentional rather than incidental.
func (s Secret) Redacted() string { return redactedPlaceholder }

// Format implements fmt.Formatter so %v, %q, and %#v also redact; without
// this, %#v on a []byte-backed type would print the raw bytes.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redactedPlaceholder)
}

// MarshalJSON redacts the secret wherever it's embedded in a struct that
// gets logged or returned as JSON (e.g. an events.Sink payload).
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redactedPlaceholder) }

// MarshalText redacts the secret for encoding.TextMarshaler consumers.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redactedPlaceholder), nil }

// Value implements driver.Valuer, storing the raw bytes as-is. Redaction
// is a presentation concern; the store still needs the real bytes for a
// persisted Secret column.
func (s Secret) Value() (driver.Value, error) { return []byte(s), nil }

// Scan implements sql.Scanner, the inverse of Value.
func (s *Secret) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = FromBytes(v)
	case string:
		*s = FromString(v)
	default:
		return fmt.Errorf("security: cannot scan %T into Secret", src)
	}
	return nil
}
