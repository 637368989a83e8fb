// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package events carries typed, observable-state notifications from the
// core out to whatever UI shell is driving it (§9 "observable-state
// objects" redesign note: the core never blocks on a UI decision except
// where a user decision is explicitly required, e.g. TOFU's New classification).
package events

import "time"

// UnreachableChoice is the operator's response to an UnreachableHost event.
type UnreachableChoice string

const (
	ChoiceCorrectAddress UnreachableChoice = "correct-address"
	ChoiceDropHost       UnreachableChoice = "drop-host"
	ChoiceSnooze         UnreachableChoice = "snooze-30m"
	ChoiceCancel         UnreachableChoice = "cancel"
)

// UnreachableHost is raised when a host cannot be reached, offering the
// four choices from §4.4.
type UnreachableHost struct {
	HostID  string
	Address string
	Cause   error
	Resolve func(UnreachableChoice, newAddress string)
}

// CacheIntegrityFailure is raised when a fetched artifact fails SHA-256
// verification, or when a fetched localization bundle carries no version
// (§4.5). The previous good artifact, if any, keeps serving.
type CacheIntegrityFailure struct {
	Artifact string
	Expected string
	Got      string
}

// APIDrift is raised alongside a successful result when the server's
// api_version minor differs from the client's by more than 2 (§4.3).
type APIDrift struct {
	HostID        string
	ClientVersion string
	ServerVersion string
}

// SyncProgress reports first-run blocking cache initialization progress
// (§4.5): {currentFile, downloaded, total, error?, complete?}.
type SyncProgress struct {
	CurrentFile string
	Downloaded  int64
	Total       int64
	Err         error
	Complete    bool
}

// OpCancelledDuringUpdate is raised when a queued user operation waits
// past the 30-second queue deadline during a server-side program update
// (§4.6).
type OpCancelledDuringUpdate struct {
	HostID  string
	Program string
}

// FirewallPendingCountdown reports the remaining time on a two-phase
// firewall apply's 90-second commit window (§4.7).
type FirewallPendingCountdown struct {
	HostID    string
	AppliedAt time.Time
	ExpiresAt time.Time
}

// OnboardingProgress reports state-machine transitions during onboarding
// (§4.8).
type OnboardingProgress struct {
	SessionID string
	HostID    string
	Status    string
	Message   string
}

// Sink is the narrow interface core components publish events through;
// the UI shell implements it however it likes (channel, TUI model update,
// log line).
type Sink interface {
	Publish(event any)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(event any)

// Publish implements Sink.
func (f SinkFunc) Publish(event any) { f(event) }

// Discard is a Sink that drops every event, useful in tests and headless
// contexts that only care about return values.
var Discard Sink = SinkFunc(func(any) {})
