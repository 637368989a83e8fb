// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package state provides a secure, in-memory mailbox for transient
// onboarding passwords: material that is used once to authenticate an
// onboarding session and must never touch disk (§4.4, §4.8). Constructed
// explicitly by the composition root and shared between the Session
// Manager (as its password lookup) and the Onboarding Coordinator (SPEC_FULL
// §9 design note: explicit DI over ambient global state).
package state

import "sync"

// PasswordCache is a concurrency-safe mailbox keyed by host id, since
// onboarding runs in parallel across hosts (§5).
type PasswordCache struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewPasswordCache builds an empty cache.
func NewPasswordCache() *PasswordCache {
	return &PasswordCache{values: make(map[string][]byte)}
}

// Set stores a copy of the password for hostID, overwriting any existing
// value without zeroing it first (callers that care should Clear first).
func (p *PasswordCache) Set(hostID string, pass []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pass == nil {
		delete(p.values, hostID)
		return
	}
	cp := make([]byte, len(pass))
	copy(cp, pass)
	p.values[hostID] = cp
}

// Get returns a copy of the password for hostID, or nil if absent. Callers
// own zeroing the returned slice once done.
func (p *PasswordCache) Get(hostID string) []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[hostID]
	if !ok {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// Clear securely wipes and removes the password for hostID.
func (p *PasswordCache) Clear(hostID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[hostID]; ok {
		for i := range v {
			v[i] = 0
		}
		delete(p.values, hostID)
	}
}
