// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package transport implements the Session Manager (C5) and Command
// Executor (C4): one authenticated channel per host id, a per-host lock
// that lets one operation at a time run against a host (waiters are not
// guaranteed to acquire it in arrival order), and category-bound deadlines
// on every remote invocation. Grounded on a Deployer type in
// internal/deploy/ssh.go, generalized from "deploy authorized_keys" to
// "run an administrative program and parse its JSON envelope".
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/rise-fleet/rise/internal/keystore"
	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/security"
	"github.com/rise-fleet/rise/internal/tofu"
)

// DefaultConnectionTimeout bounds the initial TCP+handshake.
const DefaultConnectionTimeout = 10 * time.Second

// Session owns the single authenticated channel for one host. All commands
// issued against it are serialized by chanLock.
type Session struct {
	hostID string
	addr   string
	client *ssh.Client

	chanLock sync.Mutex // enforces "at most one in-flight command per channel"
	sftpOnce sync.Once
	sftpCli  *sftp.Client
	sftpErr  error
}

// Close tears down the underlying SSH client and its SFTP subchannel.
func (s *Session) Close() error {
	if s.sftpCli != nil {
		_ = s.sftpCli.Close()
	}
	return s.client.Close()
}

// SFTP lazily opens the file-transfer subchannel used by the updater and
// onboarding uploads.
func (s *Session) SFTP() (*sftp.Client, error) {
	s.sftpOnce.Do(func() {
		s.sftpCli, s.sftpErr = sftp.NewClient(s.client)
	})
	return s.sftpCli, s.sftpErr
}

// Manager owns at most one Session per host id (§4.4, §5).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex // per-host serialization; not FIFO

	keystore *keystore.Store
	verifier *tofu.Verifier
	passwords func(hostID string) []byte
}

// NewManager builds a Manager. passwordLookup supplies an onboarding
// password for a host id when key authentication is not yet available,
// e.g. state.PasswordCache.Get.
func NewManager(ks *keystore.Store, verifier *tofu.Verifier, passwordLookup func(hostID string) []byte) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		locks:     make(map[string]*sync.Mutex),
		keystore:  ks,
		verifier:  verifier,
		passwords: passwordLookup,
	}
}

func (m *Manager) hostLock(hostID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[hostID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[hostID] = l
	}
	return l
}

// AuthHint carries KeyRegistered: whether the device key is expected to
// already be registered with this host (i.e. onboarding completed before).
// Callers own this bit of state (persisted with the host entry); it is
// threaded through here only to pick an auth method.
type AuthHint struct {
	KeyRegistered bool
}

// Connect establishes (or reuses) the channel for host h. On a previously
// unseen host key, it returns a *model.Error of kind NewHost without
// connecting further; the caller must obtain confirmation and call
// AcceptAndConnect. On a changed key it returns FingerprintChanged or
// AlgorithmChanged and never connects.
func (m *Manager) Connect(ctx context.Context, h model.Host, hint AuthHint) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[h.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	addr := net.JoinHostPort(h.Host, fmt.Sprintf("%d", h.Port))

	presented, err := ProbeHostKey(addr, DefaultHostKeyTimeout)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(presented)
	switch m.verifier.Classify(h.Host, h.Port, fp, presented.Type()) {
	case tofu.New:
		return nil, &model.Error{Kind: model.KindNewHost, Message: fmt.Sprintf("host key for %s not yet trusted", h.Host)}
	case tofu.FingerprintChanged:
		return nil, &model.Error{Kind: model.KindFingerprintChange, Message: fmt.Sprintf("host key fingerprint for %s changed", h.Host)}
	case tofu.AlgorithmChanged:
		return nil, &model.Error{Kind: model.KindAlgorithmChange, Message: fmt.Sprintf("host key algorithm for %s changed", h.Host)}
	}

	return m.dial(ctx, h, addr, hint)
}

// AcceptAndConnect pins a new host's key (after user confirmation) and then
// connects.
func (m *Manager) AcceptAndConnect(ctx context.Context, h model.Host, hint AuthHint) (*Session, error) {
	addr := net.JoinHostPort(h.Host, fmt.Sprintf("%d", h.Port))
	presented, err := ProbeHostKey(addr, DefaultHostKeyTimeout)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(presented)
	if err := m.verifier.AcceptNew(h.Host, h.Port, fp, presented.Type()); err != nil {
		return nil, model.WrapError(model.KindOperationFailed, err, "pin host key")
	}
	return m.dial(ctx, h, addr, hint)
}

// dial picks an auth method per §4.4 and connects, with the same
// key-then-agent fallback order as a NewDeployer-style constructor in
// internal/deploy/ssh.go: a registered device key is tried first, and
// only if that dial itself fails do we fall back to a running SSH agent
// (useful during onboarding when the key was just rotated remotely).
func (m *Manager) dial(ctx context.Context, h model.Host, addr string, hint AuthHint) (*Session, error) {
	hostKeyCallback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fp := Fingerprint(key)
		if m.verifier.Classify(h.Host, h.Port, fp, key.Type()) != tofu.Trusted {
			return fmt.Errorf("transport: host key no longer matches pinned record")
		}
		return nil
	}

	if hint.KeyRegistered {
		signer, err := m.keystore.Signer()
		if err != nil {
			return nil, model.WrapError(model.KindOperationFailed, err, "load device key")
		}
		client, dialErr := m.attemptDial(ctx, addr, h.Username, []ssh.AuthMethod{ssh.PublicKeys(signer)}, hostKeyCallback)
		if dialErr == nil {
			return m.register(h, addr, client), nil
		}
		if agentClient := getSSHAgent(); agentClient != nil {
			client, err := m.attemptDial(ctx, addr, h.Username, []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, hostKeyCallback)
			if err == nil {
				return m.register(h, addr, client), nil
			}
		}
		return nil, classifyConnectionError(addr, dialErr)
	}

	if m.passwords != nil {
		if pw := m.passwords(h.ID); pw != nil {
			secret := security.FromBytes(pw)
			for i := range pw {
				pw[i] = 0
			}
			defer secret.Zero()
			client, err := m.attemptDial(ctx, addr, h.Username, []ssh.AuthMethod{ssh.Password(string(secret))}, hostKeyCallback)
			if err != nil {
				return nil, classifyConnectionError(addr, err)
			}
			return m.register(h, addr, client), nil
		}
	}

	if agentClient := getSSHAgent(); agentClient != nil {
		client, err := m.attemptDial(ctx, addr, h.Username, []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, hostKeyCallback)
		if err == nil {
			return m.register(h, addr, client), nil
		}
		return nil, classifyConnectionError(addr, err)
	}

	return nil, &model.Error{Kind: model.KindNoCredentials, Message: "no key, agent, or onboarding password available for " + h.ID}
}

func (m *Manager) attemptDial(ctx context.Context, addr, user string, auth []ssh.AuthMethod, hostKeyCallback ssh.HostKeyCallback) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         DefaultConnectionTimeout,
	}
	dialCtx, cancel := context.WithTimeout(ctx, DefaultConnectionTimeout)
	defer cancel()
	return dialContext(dialCtx, addr, cfg)
}

func (m *Manager) register(h model.Host, addr string, client *ssh.Client) *Session {
	s := &Session{hostID: h.ID, addr: addr, client: client}
	m.mu.Lock()
	m.sessions[h.ID] = s
	m.mu.Unlock()
	logging.Debugf("transport: connected to host %s (%s)", h.ID, addr)
	return s
}

// Disconnect closes and forgets the session for a host, if any.
func (m *Manager) Disconnect(hostID string) error {
	m.mu.Lock()
	s, ok := m.sessions[hostID]
	if ok {
		delete(m.sessions, hostID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// WithHostLock runs fn while holding the per-host lock, so operations on a
// host run one at a time (§5). The lock is a plain mutex: concurrent
// waiters are not served in the order they called.
func (m *Manager) WithHostLock(hostID string, fn func() error) error {
	l := m.hostLock(hostID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// hostLockPollInterval bounds how promptly a queued caller notices the
// lock freeing up; it is not itself part of any spec-visible deadline.
const hostLockPollInterval = 50 * time.Millisecond

// WithHostLockTimeout runs fn while holding host's lock, giving up
// with a *model.Error of kind QueueTimeout if the lock is still held by
// another operation (e.g. an in-progress update push) when deadline
// elapses (§4.6's 30-second queue deadline).
func (m *Manager) WithHostLockTimeout(ctx context.Context, hostID string, deadline time.Duration, fn func() error) error {
	l := m.hostLock(hostID)
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(hostLockPollInterval)
	defer ticker.Stop()

	for {
		if l.TryLock() {
			defer l.Unlock()
			return fn()
		}
		select {
		case <-ticker.C:
			continue
		case <-timer.C:
			return model.NewError(model.KindQueueTimeout, "queue deadline exceeded waiting for host %s", hostID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}
