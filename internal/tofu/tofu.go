// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tofu implements the Trust-On-First-Use verifier (C3): a pure
// classification over a known-hosts snapshot, generalizing an
// error-returning ssh.HostKeyCallback into an explicit, inspectable result
// (grounded on internal/deploy/ssh.go's hostKeyCallback,
// and on a HostKeyStatus enum from a secure-ftp reference sample).
package tofu

import (
	"github.com/rise-fleet/rise/internal/knownhosts"
)

// Classification is the verifier's outcome for a presented host key.
type Classification int

const (
	// Trusted means the presented fingerprint and algorithm exactly match
	// the pinned record; the connection may proceed.
	Trusted Classification = iota
	// New means no record exists for this (host, port); the caller must
	// obtain user confirmation before calling AcceptNew.
	New
	// FingerprintChanged means a record exists but the presented
	// fingerprint differs: a possible MITM event, fatal for this connection.
	FingerprintChanged
	// AlgorithmChanged means a record exists but the presented algorithm
	// differs: a possible downgrade event, fatal for this connection.
	AlgorithmChanged
)

func (c Classification) String() string {
	switch c {
	case Trusted:
		return "trusted"
	case New:
		return "new"
	case FingerprintChanged:
		return "fingerprint-changed"
	case AlgorithmChanged:
		return "algorithm-changed"
	default:
		return "unknown"
	}
}

// Verifier classifies a presented host key against a known-hosts store.
type Verifier struct {
	store *knownhosts.Store
}

// NewVerifier builds a Verifier backed by store.
func NewVerifier(store *knownhosts.Store) *Verifier {
	return &Verifier{store: store}
}

// Classify inspects the presented fingerprint/algorithm against the pinned
// record for (host, port), if any.
func (v *Verifier) Classify(host string, port int, fingerprint, algorithm string) Classification {
	rec, ok := v.store.Lookup(host, port)
	if !ok {
		return New
	}
	if rec.Algorithm != algorithm {
		return AlgorithmChanged
	}
	if rec.Fingerprint != fingerprint {
		return FingerprintChanged
	}
	return Trusted
}

// AcceptNew pins a previously-New host after the caller has obtained user
// confirmation.
func (v *Verifier) AcceptNew(host string, port int, fingerprint, algorithm string) error {
	return v.store.AddHost(host, port, fingerprint, algorithm)
}

// RemoveHost clears a pin, the only path through which a changed key may
// later be re-accepted.
func (v *Verifier) RemoveHost(host string, port int) error {
	return v.store.RemoveHost(host, port)
}
