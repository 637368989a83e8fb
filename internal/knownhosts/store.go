// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package knownhosts implements the Known-Hosts Store (C2): a persisted map
// keyed by (host, port) carrying {fingerprint, algorithm, firstSeen}. All
// writes are temp-write-then-rename for crash safety; a single writer lock
// serializes mutation while the verifier reads a stable snapshot per call.
package knownhosts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rise-fleet/rise/internal/model"
)

func key(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }

// Store is a JSON-file-backed known-hosts pin table.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]model.KnownHostRecord
}

// Open loads (or initializes) a Store backed by the file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]model.KnownHostRecord)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("knownhosts: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var recs []model.KnownHostRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("knownhosts: parse %s: %w", path, err)
	}
	for _, r := range recs {
		s.records[key(r.Host, r.Port)] = r
	}
	return s, nil
}

// Lookup returns the pinned record for (host, port), if any. The returned
// value is a snapshot copy, safe to inspect without holding the store lock.
func (s *Store) Lookup(host string, port int) (model.KnownHostRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key(host, port)]
	return r, ok
}

// AddHost pins (host, port) to fingerprint/algorithm. Returns an error if a
// record already exists — callers must RemoveHost first (§4.2: "no known
// record is silently replaced").
func (s *Store) AddHost(host string, port int, fingerprint, algorithm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(host, port)
	if _, exists := s.records[k]; exists {
		return fmt.Errorf("knownhosts: record already exists for %s:%d, remove it first", host, port)
	}
	s.records[k] = model.KnownHostRecord{
		Host:        host,
		Port:        port,
		Fingerprint: fingerprint,
		Algorithm:   algorithm,
		FirstSeen:   time.Now(),
	}
	return s.persistLocked()
}

// RemoveHost explicitly clears a pin, the only path by which a record may
// later be replaced with a fresh acceptance.
func (s *Store) RemoveHost(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key(host, port))
	return s.persistLocked()
}

// All returns a snapshot of every pinned record.
func (s *Store) All() []model.KnownHostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.KnownHostRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *Store) persistLocked() error {
	recs := make([]model.KnownHostRecord, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("knownhosts: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("knownhosts: create directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("knownhosts: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("knownhosts: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("knownhosts: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("knownhosts: close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("knownhosts: rename into place: %w", err)
	}
	return nil
}
