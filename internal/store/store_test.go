package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetHost(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h := model.Host{ID: "h1", DisplayName: "web-01", Host: "10.0.0.5", Port: 22, Username: "admin", SecurityMode: model.Hybrid}
	require.NoError(t, s.SaveHost(ctx, h))

	got, err := s.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestSaveHost_UpsertsOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h := model.Host{ID: "h1", DisplayName: "web-01", Host: "10.0.0.5", Port: 22, Username: "admin"}
	require.NoError(t, s.SaveHost(ctx, h))

	h.DisplayName = "web-01-renamed"
	require.NoError(t, s.SaveHost(ctx, h))

	got, err := s.GetHost(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "web-01-renamed", got.DisplayName)

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestAppendAndListAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, model.AuditLogEntry{Timestamp: time.Now(), Username: "admin", Action: "trust-host", Details: "h1"}))
	require.NoError(t, s.AppendAudit(ctx, model.AuditLogEntry{Timestamp: time.Now(), Username: "admin", Action: "firewall-apply", Details: "h1"}))

	entries, err := s.ListAudit(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "firewall-apply", entries[0].Action)
}

func TestNotifications_UnreadOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNotification(ctx, model.UpdateNotification{ID: "n1", Artifact: "firewall", Version: "1.2", CreatedAt: time.Now(), Read: false}))
	require.NoError(t, s.SaveNotification(ctx, model.UpdateNotification{ID: "n2", Artifact: "scan", Version: "1.1", CreatedAt: time.Now(), Read: true}))

	unread, err := s.ListUnreadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n1", unread[0].ID)
}

func TestBackupRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveHost(ctx, model.Host{ID: "h1", DisplayName: "web-01", Host: "10.0.0.5", Port: 22, Username: "admin"}))
	require.NoError(t, s.AppendAudit(ctx, model.AuditLogEntry{Timestamp: time.Now(), Username: "admin", Action: "trust-host", Details: "h1"}))

	known := []model.KnownHostRecord{{Host: "10.0.0.5", Port: 22, Fingerprint: "SHA256:abc", Algorithm: "ssh-ed25519", FirstSeen: time.Now()}}
	data, err := s.ExportDataForBackup(ctx, known)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteBackup(data, &buf))

	restored, err := ReadBackup(&buf)
	require.NoError(t, err)
	assert.Len(t, restored.Hosts, 1)
	assert.Len(t, restored.KnownHosts, 1)
	assert.Len(t, restored.AuditLog, 1)
}
