// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package onboarding implements the Onboarding Coordinator (C9): the
// three-branch state machine (install / add-device / attach) that brings a
// host under management, plus out-of-band rolling-code device enrollment.
// Grounded directly on a BootstrapSession pattern in
// core/bootstrap/session.go (status enum, expiry, temporary-key generation)
// and the NewSession/CancelBootstrapSession wiring in
// internal/core/bootstrap_session.go, generalized from "install this
// program's own authorized_keys management" to "install & configure the
// six RISE administrative programs".
package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rise-fleet/rise/internal/cache"
	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/keystore"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/sshkey"
	"github.com/rise-fleet/rise/internal/state"
	"github.com/rise-fleet/rise/internal/store"
	"github.com/rise-fleet/rise/internal/transport"
	"github.com/rise-fleet/rise/internal/updater"
)

// Program is the canonical remote program name driving onboarding.
const Program = "onboard"

// SessionTimeout bounds how long an onboarding attempt may run before it
// is considered orphaned (§4.8's "connect with password" step through
// finalize; the generate-otp window itself is shorter, see OTPWindow).
const SessionTimeout = 30 * time.Minute

// OTPWindow is the server-side timed window for the one-time numeric code
// generated during a full install (§4.8 step 5: "≈ 600 s").
const OTPWindow = 600 * time.Second

// RollingCodeTTL and RollingCodeInterval drive out-of-band device
// enrollment's rolling code (§4.8): a 30-second code regenerated every 29
// seconds until the dialog closes.
const (
	RollingCodeTTL      = 30 * time.Second
	RollingCodeInterval = 29 * time.Second
)

// Coordinator drives onboarding attempts against the Session Manager,
// installing the device key and the six cached programs, and persisting
// the resulting host entry only on success (§4.8's failure-recovery rule).
type Coordinator struct {
	manager   *transport.Manager
	exec      *transport.Executor
	keystore  *keystore.Store
	pusher    *updater.Pusher
	cache     *cache.Engine
	store     *store.Store
	passwords *state.PasswordCache
	sink      events.Sink

	mu       sync.Mutex
	sessions map[string]*model.OnboardingSession
}

// NewCoordinator builds a Coordinator. sink may be events.Discard. passwords
// is the same mailbox instance handed to the Session Manager, so a password
// set here is visible to the manager's auth callback without touching disk.
func NewCoordinator(m *transport.Manager, exec *transport.Executor, ks *keystore.Store, pusher *updater.Pusher, ce *cache.Engine, st *store.Store, passwords *state.PasswordCache, sink events.Sink) *Coordinator {
	if sink == nil {
		sink = events.Discard
	}
	return &Coordinator{
		manager:   m,
		exec:      exec,
		keystore:  ks,
		pusher:    pusher,
		cache:     ce,
		store:     st,
		passwords: passwords,
		sink:      sink,
		sessions:  make(map[string]*model.OnboardingSession),
	}
}

// newSessionID mints a unique identifier for a bootstrap attempt, grounded
// on BootstrapSession IDs in core/bootstrap/session.go (also
// uuid-keyed) rather than a hand-rolled random hex string.
func newSessionID() string {
	return uuid.NewString()
}

type checkResponse struct {
	Installed     bool `json:"installed"`
	KeyRegistered bool `json:"keyRegistered"`
}

// probe connects with the onboarding password and runs onboard --check,
// classifying the result into one of the three branches from §4.8's
// decision tree.
func (c *Coordinator) probe(ctx context.Context, h model.Host) (*transport.Session, model.OnboardingBranch, error) {
	sess, err := c.connectForOnboarding(ctx, h)
	if err != nil {
		return nil, "", err
	}

	res, err := c.exec.Run(ctx, sess, Program, []string{"--check"}, nil, transport.CategoryQuick)
	if err != nil {
		return sess, "", err
	}
	var check checkResponse
	if err := json.Unmarshal(res.Fields, &check); err != nil {
		return sess, "", model.WrapError(model.KindProtocol, err, "decode onboard --check response")
	}

	return sess, classifyBranch(check), nil
}

// classifyBranch implements the decision tree from §4.8.
func classifyBranch(check checkResponse) model.OnboardingBranch {
	switch {
	case !check.Installed:
		return model.BranchInstall
	case !check.KeyRegistered:
		return model.BranchAddDevice
	default:
		return model.BranchAttach
	}
}

// connectForOnboarding performs the TOFU handshake, automatically
// accepting and pinning a never-before-seen host key (§4.8 step 1: "run
// TOFU; on new accept and pin" — unlike ordinary operation, onboarding is
// itself the act of establishing trust).
func (c *Coordinator) connectForOnboarding(ctx context.Context, h model.Host) (*transport.Session, error) {
	hint := transport.AuthHint{KeyRegistered: false}
	sess, err := c.manager.Connect(ctx, h, hint)
	if err == nil {
		return sess, nil
	}
	if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindNewHost {
		return c.manager.AcceptAndConnect(ctx, h, hint)
	}
	return nil, err
}

// Run drives an onboarding attempt against h to completion: it probes the
// branch, executes the matching procedure, and persists the host entry
// only on success. password is consumed (zeroed) regardless of outcome.
// overrideRootNoKey authorizes a hybrid/key-only mode upgrade even when the
// remote reports the invoking identity has no pinned key (WARN_ROOT_NO_KEY).
func (c *Coordinator) Run(ctx context.Context, h model.Host, password []byte, overrideRootNoKey bool) (model.Host, error) {
	sessionID := newSessionID()
	now := time.Now()
	obSess := &model.OnboardingSession{
		ID:        sessionID,
		HostID:    h.ID,
		Mode:      h.SecurityMode,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTimeout),
		Status:    model.StatusActive,
	}
	c.track(obSess)
	defer c.untrack(sessionID)

	c.passwords.Set(h.ID, password)
	defer c.passwords.Clear(h.ID)
	defer func() {
		for i := range password {
			password[i] = 0
		}
	}()

	c.sink.Publish(events.OnboardingProgress{SessionID: sessionID, HostID: h.ID, Status: string(model.StatusActive), Message: "probing host"})

	sess, branch, err := c.probe(ctx, h)
	if err != nil {
		c.fail(ctx, obSess, h, err)
		return model.Host{}, err
	}
	obSess.Branch = branch

	switch branch {
	case model.BranchInstall:
		err = c.runInstall(ctx, sess, h, obSess, overrideRootNoKey)
	case model.BranchAddDevice:
		err = c.runAddDevice(ctx, sess, h)
	case model.BranchAttach:
		// no remote change; the host key is already pinned by connectForOnboarding.
	}
	if err != nil {
		c.fail(ctx, obSess, h, err)
		return model.Host{}, err
	}

	if err := c.store.SaveHost(ctx, h); err != nil {
		return model.Host{}, model.WrapError(model.KindOperationFailed, err, "persist host entry for %s", h.ID)
	}
	obSess.Status = model.StatusCompleted
	c.sink.Publish(events.OnboardingProgress{SessionID: sessionID, HostID: h.ID, Status: string(model.StatusCompleted)})
	_ = c.store.AppendAudit(ctx, model.AuditLogEntry{Timestamp: time.Now(), Action: "ONBOARD_HOST", Details: fmt.Sprintf("%s (%s)", h.ID, branch)})
	return h, nil
}

// fail marks the session failed, runs remote cleanup (§4.8's "failure
// between step 3 and step 7" rule), and never persists the host entry.
func (c *Coordinator) fail(ctx context.Context, obSess *model.OnboardingSession, h model.Host, cause error) {
	obSess.Status = model.StatusFailed
	c.sink.Publish(events.OnboardingProgress{SessionID: obSess.ID, HostID: h.ID, Status: string(model.StatusFailed), Message: cause.Error()})
	if obSess.Branch == model.BranchInstall {
		if sess, err := c.manager.Connect(ctx, h, transport.AuthHint{KeyRegistered: false}); err == nil {
			_, _ = c.exec.Run(ctx, sess, Program, []string{"--cleanup"}, nil, transport.CategoryQuick)
		}
	}
	_ = c.store.AppendAudit(ctx, model.AuditLogEntry{Timestamp: time.Now(), Action: "ONBOARD_FAILED", Details: fmt.Sprintf("%s: %v", h.ID, cause)})
}

// runInstall implements Branch A, steps 2-7 of §4.8 (step 1, the
// connect+TOFU, already happened in probe).
func (c *Coordinator) runInstall(ctx context.Context, sess *transport.Session, h model.Host, obSess *model.OnboardingSession, overrideRootNoKey bool) error {
	if err := c.keystore.Ensure(fmt.Sprintf("rise@%s", h.ID)); err != nil {
		return model.WrapError(model.KindOperationFailed, err, "generate device keypair")
	}
	pubkey, err := c.keystore.GetPublicKey()
	if err != nil {
		return model.WrapError(model.KindOperationFailed, err, "read device public key")
	}

	programs, err := c.cache.CachedPrograms()
	if err != nil {
		return err
	}
	for name, data := range programs {
		if err := c.pusher.Push(ctx, sess, h.ID, name, data); err != nil {
			return model.WrapError(model.KindOperationFailed, err, "upload program %s", name)
		}
	}

	if _, err := c.exec.Run(ctx, sess, "setup-env", []string{"--install"}, nil, transport.CategoryMedium); err != nil {
		return err
	}

	obSess.Status = model.StatusCommitting
	c.sink.Publish(events.OnboardingProgress{SessionID: obSess.ID, HostID: h.ID, Status: string(model.StatusCommitting), Message: "generating enrollment window"})
	if _, err := c.exec.Run(ctx, sess, Program, []string{"--generate-otp", strconv.Itoa(int(OTPWindow.Seconds()))}, nil, transport.CategoryQuick); err != nil {
		return err
	}

	if _, err := c.exec.Run(ctx, sess, Program, []string{"--finalize", pubkey}, nil, transport.CategoryMedium); err != nil {
		return err
	}

	return c.applyAccessMode(ctx, sess, h.SecurityMode, overrideRootNoKey)
}

// addDeviceResponse is onboard --add-device's success payload: the remote
// reports whether the key was already present (§4.8's idempotence rule)
// rather than silently no-op'ing.
type addDeviceResponse struct {
	AlreadyRegistered bool `json:"alreadyRegistered"`
}

// runAddDevice implements Branch B: append the device key to the host's
// existing authorized set. Idempotent per §4.8: a canonical (algorithm +
// key data, comment and options stripped) comparison against the host's
// registered devices short-circuits the
// round-trip when this device is already known, and the remote's own
// "alreadyRegistered" flag is the authoritative fallback otherwise.
func (c *Coordinator) runAddDevice(ctx context.Context, sess *transport.Session, h model.Host) error {
	if err := c.keystore.Ensure(fmt.Sprintf("rise@%s", h.ID)); err != nil {
		return model.WrapError(model.KindOperationFailed, err, "generate device keypair")
	}
	pubkey, err := c.keystore.GetPublicKey()
	if err != nil {
		return model.WrapError(model.KindOperationFailed, err, "read device public key")
	}

	if already, err := c.isAlreadyRegistered(ctx, sess, pubkey); err == nil && already {
		c.sink.Publish(events.OnboardingProgress{HostID: h.ID, Status: "add-device", Message: "already registered"})
		return nil
	}

	res, err := c.exec.Run(ctx, sess, Program, []string{"--add-device", pubkey}, nil, transport.CategoryMedium)
	if err != nil {
		return err
	}
	var ack addDeviceResponse
	if jsonErr := json.Unmarshal(res.Fields, &ack); jsonErr == nil && ack.AlreadyRegistered {
		c.sink.Publish(events.OnboardingProgress{HostID: h.ID, Status: "add-device", Message: "already registered"})
	}
	return nil
}

// isAlreadyRegistered lists the host's registered device keys and compares
// each, canonicalized, against pubkey.
func (c *Coordinator) isAlreadyRegistered(ctx context.Context, sess *transport.Session, pubkey string) (bool, error) {
	wantCanon, err := sshkey.Canonical(pubkey)
	if err != nil {
		return false, err
	}
	res, err := c.exec.Run(ctx, sess, Program, []string{"--list-devices"}, nil, transport.CategoryQuick)
	if err != nil {
		return false, err
	}
	var listed struct {
		Devices []string `json:"devices"`
	}
	if err := json.Unmarshal(res.Fields, &listed); err != nil {
		return false, model.WrapError(model.KindProtocol, err, "decode onboard --list-devices response")
	}
	return matchesCanonical(wantCanon, listed.Devices), nil
}

// matchesCanonical reports whether wantCanon (an already-canonicalized
// key) equals the canonical form of any entry in candidates. Malformed
// candidates are skipped rather than failing the whole comparison.
func matchesCanonical(wantCanon string, candidates []string) bool {
	for _, d := range candidates {
		if canon, err := sshkey.Canonical(d); err == nil && canon == wantCanon {
			return true
		}
	}
	return false
}

// applyAccessMode writes the requested access-policy mode (§4.9). A
// hybrid/key-only request that the remote refuses with WARN_ROOT_NO_KEY is
// retried once, forced, only when the caller has explicitly overridden it.
func (c *Coordinator) applyAccessMode(ctx context.Context, sess *transport.Session, mode model.SecurityMode, override bool) error {
	_, err := c.exec.Run(ctx, sess, "setup-env", []string{"--apply-mode", string(mode)}, nil, transport.CategoryMedium)
	if err == nil {
		return nil
	}
	merr, ok := err.(*model.Error)
	if !ok || merr.Kind != model.KindRootNoKey {
		return err
	}
	if (mode != model.Hybrid && mode != model.KeyOnly) || !override {
		return err
	}
	_, err = c.exec.Run(ctx, sess, "setup-env", []string{"--apply-mode", string(mode), "--force"}, nil, transport.CategoryMedium)
	return err
}

// AddDeviceOutOfBand runs Branch B using a rolling enrollment code as the
// onboarding password instead of the host's onboarding password, per
// §4.8's out-of-band device enrollment.
func (c *Coordinator) AddDeviceOutOfBand(ctx context.Context, h model.Host, code string) error {
	c.passwords.Set(h.ID, []byte(code))
	defer c.passwords.Clear(h.ID)

	sess, err := c.connectForOnboarding(ctx, h)
	if err != nil {
		return err
	}
	return c.runAddDevice(ctx, sess, h)
}

// GenerateRollingCode mints a single rolling code, publishes it via the
// Coordinator's sink as an OnboardingProgress event, and also returns it
// directly so a caller driving its own display loop (e.g. the enroll-device
// CLI command) doesn't need to subscribe to the sink.
func (c *Coordinator) GenerateRollingCode(ctx context.Context, sess *transport.Session, hostID string) (string, error) {
	res, err := c.exec.Run(ctx, sess, Program, []string{"--generate-otp", strconv.Itoa(int(RollingCodeTTL.Seconds()))}, nil, transport.CategoryQuick)
	if err != nil {
		return "", err
	}
	var otp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(res.Fields, &otp); err != nil {
		return "", model.WrapError(model.KindProtocol, err, "decode onboard --generate-otp response")
	}
	c.sink.Publish(events.OnboardingProgress{HostID: hostID, Status: "rolling-code", Message: otp.Code})
	return otp.Code, nil
}

func (c *Coordinator) track(s *model.OnboardingSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = s
}

func (c *Coordinator) untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// Sessions returns a snapshot of all in-progress onboarding sessions, for
// orphan detection at startup (a session whose process died mid-flight
// leaves no in-memory record to recover, so orphan handling lives in the
// remote's own cleanup timer per §4.8).
func (c *Coordinator) Sessions() []model.OnboardingSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.OnboardingSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, *s)
	}
	return out
}
