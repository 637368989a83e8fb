// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package scheduler implements the Auto-update Scheduler & Notifier (C10):
// a long-lived 6-hour ticker that re-runs the Cache Engine's sync and, on
// any manifest version bump, records a de-duplicable notification and
// (when enabled) pushes the updated program to every configured host.
// Follows a StartSessionReaper-style background-ticker pattern
// in internal/bootstrap/cleanup.go, generalized from "reap expired
// sessions" to "resync the content source".
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rise-fleet/rise/internal/cache"
	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/store"
	"github.com/rise-fleet/rise/internal/transport"
	"github.com/rise-fleet/rise/internal/updater"
)

// DefaultInterval is the exact cadence from §4.10.
const DefaultInterval = 6 * time.Hour

// Scheduler owns the background resync/push loop. Zero value is not
// usable; build one with New.
type Scheduler struct {
	cache      *cache.Engine
	pusher     *updater.Pusher
	manager    *transport.Manager
	store      *store.Store
	sink       events.Sink
	autoUpdate func() bool
	interval   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. autoUpdate is consulted fresh on every run and
// gates only the host-push step (§4.10: notifications fire regardless).
// interval overrides DefaultInterval when positive, letting the
// composition root honor a configured sync_interval.
func New(ce *cache.Engine, pusher *updater.Pusher, mgr *transport.Manager, st *store.Store, autoUpdate func() bool, interval time.Duration, sink events.Sink) *Scheduler {
	if sink == nil {
		sink = events.Discard
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		cache:      ce,
		pusher:     pusher,
		manager:    mgr,
		store:      st,
		sink:       sink,
		autoUpdate: autoUpdate,
		interval:   interval,
	}
}

// Start runs an immediate sync followed by the ticking loop, until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	changed, err := s.cache.SyncChanges(ctx)
	if err != nil {
		logging.Debugf("scheduler: sync failed: %v", err)
		return
	}
	if len(changed) == 0 {
		return
	}

	for _, entry := range changed {
		s.notify(ctx, entry)
	}

	if s.autoUpdate != nil && s.autoUpdate() {
		s.pushToHosts(ctx, changed)
	}
}

func (s *Scheduler) notify(ctx context.Context, entry model.ManifestEntry) {
	n := model.UpdateNotification{
		ID:        notificationID(entry.Name, entry.Version),
		Artifact:  entry.Name,
		Version:   entry.Version,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveNotification(ctx, n); err != nil {
		logging.Debugf("scheduler: save notification for %s failed: %v", entry.Name, err)
	}
}

func (s *Scheduler) pushToHosts(ctx context.Context, changed []model.ManifestEntry) {
	hosts, err := s.store.ListHosts(ctx)
	if err != nil {
		logging.Debugf("scheduler: list hosts failed: %v", err)
		return
	}
	programs, err := s.cache.CachedPrograms()
	if err != nil {
		logging.Debugf("scheduler: read cached programs failed: %v", err)
		return
	}

	for _, h := range hosts {
		sess, err := s.manager.Connect(ctx, h, transport.AuthHint{KeyRegistered: true})
		if err != nil {
			logging.Debugf("scheduler: connect to %s failed: %v", h.ID, err)
			continue
		}
		for _, entry := range changed {
			data, ok := programs[entry.Name]
			if !ok {
				continue // a locale bundle or the ports db, not a pushable program binary
			}
			if err := s.pusher.Push(ctx, sess, h.ID, entry.Name, data); err != nil {
				logging.Debugf("scheduler: push %s to %s failed: %v", entry.Name, h.ID, err)
				continue
			}
			_ = s.store.AppendAudit(ctx, model.AuditLogEntry{
				Timestamp: time.Now(),
				Action:    "PROGRAM_PUSH",
				Details:   fmt.Sprintf("%s: %s -> %s", h.ID, entry.Name, entry.Version),
			})
		}
	}
}

func notificationID(name, version string) string {
	sum := sha256.Sum256([]byte(name + "@" + version))
	return hex.EncodeToString(sum[:])[:16]
}
