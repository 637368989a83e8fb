// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the core data structures shared across the RISE
// control plane: host entries, known-host pins, cached artifacts, and the
// onboarding/firewall session records.
package model

import (
	"fmt"
	"time"
)

// SecurityMode is one of the three access-policy modes a host can be
// configured under (§4.9).
type SecurityMode string

const (
	Permissive SecurityMode = "permissive"
	Hybrid     SecurityMode = "hybrid"
	KeyOnly    SecurityMode = "key-only"
)

// Host is a user-facing host entry. The core reads and writes it by ID and
// routes operations by ID; display fields are opaque to the core.
type Host struct {
	ID           string
	DisplayName  string
	Host         string
	Port         int
	Username     string
	SecurityMode SecurityMode
}

func (h Host) String() string {
	return fmt.Sprintf("%s (%s@%s:%d)", h.DisplayName, h.Username, h.Host, h.Port)
}

// KnownHostRecord pins a single (host, port) to the key last accepted for
// it. Never mutated in place; any change is a new record following an
// explicit removal.
type KnownHostRecord struct {
	Host      string
	Port      int
	Fingerprint string
	Algorithm   string
	FirstSeen   time.Time
}

// ManifestEntry describes one artifact published by the content source.
type ManifestEntry struct {
	Name    string
	Version string
	SHA256  string
	URL     string
}

// Manifest is the signed inventory of artifacts at a point in time.
type Manifest struct {
	Version     string
	LastUpdated time.Time
	Entries     []ManifestEntry
}

// CacheEntry is a locally materialized artifact. Invariant:
// sha256(Bytes) == SHA256.
type CacheEntry struct {
	Name      string
	Version   string
	SHA256    string
	Bytes     []byte
	FetchedAt time.Time
}

// LocalizationBundle is a single language's key/value table.
type LocalizationBundle struct {
	Lang      string
	Version   string
	KeyValues map[string]string
}

// PendingFirewallMarker records that a two-phase firewall apply is
// outstanding on a host and ticking toward its commit-window expiry.
type PendingFirewallMarker struct {
	HostID    string
	AppliedAt time.Time
}

// Expired reports whether the commit window has elapsed as of now.
func (m PendingFirewallMarker) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(m.AppliedAt) >= window
}

// FirewallRule is one element of a firewall rule-set payload.
type FirewallRule struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	CIDR     string `json:"cidr,omitempty"`
}

// AuditLogEntry is a single event in the audit log.
type AuditLogEntry struct {
	ID        int64
	Timestamp time.Time
	Username  string
	Action    string
	Details   string
}

// OnboardingBranch identifies which of the three onboarding branches a
// probe resolved to.
type OnboardingBranch string

const (
	BranchInstall   OnboardingBranch = "install"
	BranchAddDevice OnboardingBranch = "add-device"
	BranchAttach    OnboardingBranch = "attach"
)

// OnboardingStatus mirrors the remote-visible lifecycle of an onboarding
// attempt.
type OnboardingStatus string

const (
	StatusActive     OnboardingStatus = "active"
	StatusCommitting OnboardingStatus = "committing"
	StatusCompleted  OnboardingStatus = "completed"
	StatusFailed     OnboardingStatus = "failed"
	StatusOrphaned   OnboardingStatus = "orphaned"
)

// OnboardingSession tracks an in-progress onboarding attempt against one
// host, including the temporary material generated along the way.
type OnboardingSession struct {
	ID         string
	HostID     string
	Branch     OnboardingBranch
	Mode       SecurityMode
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     OnboardingStatus
}

// IsExpired reports whether the session has outlived its deadline.
func (s OnboardingSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// BackupData is a full export of RISE's own persisted state, used for
// backup/restore. It never includes the device private key.
type BackupData struct {
	Hosts      []Host
	KnownHosts []KnownHostRecord
	AuditLog   []AuditLogEntry
	ExportedAt time.Time
}

// UpdateNotification is a persisted, de-duplicable notice that an artifact
// changed version.
type UpdateNotification struct {
	ID        string
	Artifact  string
	Version   string
	CreatedAt time.Time
	Read      bool
}
