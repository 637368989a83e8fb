package knownhosts_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/knownhosts"
)

func TestStore_AddLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts.json")
	s, err := knownhosts.Open(path)
	require.NoError(t, err)

	_, ok := s.Lookup("host.example", 22)
	assert.False(t, ok)

	require.NoError(t, s.AddHost("host.example", 22, "SHA256:abc", "ssh-ed25519"))

	rec, ok := s.Lookup("host.example", 22)
	require.True(t, ok)
	assert.Equal(t, "SHA256:abc", rec.Fingerprint)

	// Re-adding without removal must fail: no silent replacement.
	err = s.AddHost("host.example", 22, "SHA256:xyz", "ssh-ed25519")
	assert.Error(t, err)

	require.NoError(t, s.RemoveHost("host.example", 22))
	_, ok = s.Lookup("host.example", 22)
	assert.False(t, ok)

	require.NoError(t, s.AddHost("host.example", 22, "SHA256:xyz", "ssh-ed25519"))
	rec, ok = s.Lookup("host.example", 22)
	require.True(t, ok)
	assert.Equal(t, "SHA256:xyz", rec.Fingerprint)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts.json")
	s, err := knownhosts.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddHost("a", 22, "SHA256:aaa", "ssh-ed25519"))

	s2, err := knownhosts.Open(path)
	require.NoError(t, err)
	rec, ok := s2.Lookup("a", 22)
	require.True(t, ok)
	assert.Equal(t, "SHA256:aaa", rec.Fingerprint)
}
