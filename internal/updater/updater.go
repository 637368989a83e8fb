// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package updater implements the Server-side Updater (C7): pushing a new
// program binary to a host's canonical install path over the session's
// file-transfer subchannel. Mirrors the stage-backup-rename shape of a DeployAuthorizedKeys
// backup-and-rename strategy in internal/deploy/ssh.go, generalized from a
// single authorized_keys file to arbitrary named program binaries, and on
// §4.6's 30-second queue deadline for user operations arriving mid-push.
package updater

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/transport"
)

// QueueDeadline is the exact deadline from §4.6: a user-initiated operation
// waiting for the host lock during a push is cancelled after this long.
const QueueDeadline = 30 * time.Second

// InstallRoot is the canonical directory the six administrative programs
// live under on every managed host (§4.6, §6).
const InstallRoot = "/usr/local/lib/rise/programs"

// Pusher pushes program binaries to hosts, serialized per host behind the
// Session Manager's per-host lock so an in-flight push and any user-initiated
// command never race on the same channel.
type Pusher struct {
	manager       *transport.Manager
	sink          events.Sink
	queueDeadline time.Duration
}

// NewPusher builds a Pusher bound to a Session Manager.
func NewPusher(m *transport.Manager, sink events.Sink) *Pusher {
	if sink == nil {
		sink = events.Discard
	}
	return &Pusher{manager: m, sink: sink, queueDeadline: QueueDeadline}
}

// Push uploads bytes for program name to sess's host, staging it alongside
// the install path and atomically renaming it into place with the execute
// bit set. It holds the host's lock for the duration, so any
// concurrently queued user command waits behind it (up to that command's
// own queue deadline, applied by RunQueued below).
func (p *Pusher) Push(ctx context.Context, sess *transport.Session, hostID, name string, data []byte) error {
	return p.manager.WithHostLock(hostID, func() error {
		return p.stageAndInstall(sess, name, data)
	})
}

func (p *Pusher) stageAndInstall(sess *transport.Session, name string, data []byte) error {
	cli, err := sess.SFTP()
	if err != nil {
		return model.WrapError(model.KindNotConnected, err, "open file-transfer subchannel")
	}

	if err := cli.MkdirAll(InstallRoot); err != nil {
		return model.WrapError(model.KindOperationFailed, err, "ensure install root %s", InstallRoot)
	}

	finalPath := path.Join(InstallRoot, name)
	tmpPath := fmt.Sprintf("%s.rise-staging.%d", finalPath, time.Now().UnixNano())
	backupPath := finalPath + ".rise-bak"

	f, err := cli.Create(tmpPath)
	if err != nil {
		return model.WrapError(model.KindOperationFailed, err, "create staging file for %s", name)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = cli.Remove(tmpPath)
		return model.WrapError(model.KindOperationFailed, err, "upload %s", name)
	}
	f.Close()

	if err := cli.Chmod(tmpPath, 0o755); err != nil {
		_ = cli.Remove(tmpPath)
		return model.WrapError(model.KindOperationFailed, err, "chmod staged %s", name)
	}

	_ = cli.Remove(backupPath)
	_ = cli.Rename(finalPath, backupPath)

	if err := cli.Rename(tmpPath, finalPath); err != nil {
		_ = cli.Rename(backupPath, finalPath)
		_ = cli.Remove(tmpPath)
		return model.WrapError(model.KindOperationFailed, err, "install %s into place", name)
	}
	_ = cli.Remove(backupPath)
	return nil
}

// RunQueued runs fn against hostID's lock with the §4.6 queue
// deadline, publishing OpCancelledDuringUpdate if the lock is still held
// (by an in-flight push) when the deadline elapses. Callers issuing
// user-initiated commands while a push may be running should go through
// this instead of transport.Manager.WithHostLock directly.
func (p *Pusher) RunQueued(ctx context.Context, hostID, program string, fn func() error) error {
	err := p.manager.WithHostLockTimeout(ctx, hostID, p.queueDeadline, fn)
	if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindQueueTimeout {
		p.sink.Publish(events.OpCancelledDuringUpdate{HostID: hostID, Program: program})
	}
	return err
}
