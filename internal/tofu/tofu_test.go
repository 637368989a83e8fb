package tofu_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/knownhosts"
	"github.com/rise-fleet/rise/internal/tofu"
)

func newVerifier(t *testing.T) (*tofu.Verifier, *knownhosts.Store) {
	t.Helper()
	s, err := knownhosts.Open(filepath.Join(t.TempDir(), "known_hosts.json"))
	require.NoError(t, err)
	return tofu.NewVerifier(s), s
}

func TestClassify_New(t *testing.T) {
	v, _ := newVerifier(t)
	assert.Equal(t, tofu.New, v.Classify("host", 22, "SHA256:A", "ssh-ed25519"))
}

func TestClassify_TrustedAfterAccept(t *testing.T) {
	v, _ := newVerifier(t)
	require.NoError(t, v.AcceptNew("host", 22, "SHA256:A", "ssh-ed25519"))
	assert.Equal(t, tofu.Trusted, v.Classify("host", 22, "SHA256:A", "ssh-ed25519"))
}

func TestClassify_FingerprintChanged(t *testing.T) {
	v, _ := newVerifier(t)
	require.NoError(t, v.AcceptNew("host", 22, "SHA256:A", "ssh-ed25519"))
	assert.Equal(t, tofu.FingerprintChanged, v.Classify("host", 22, "SHA256:B", "ssh-ed25519"))
}

func TestClassify_AlgorithmChanged(t *testing.T) {
	v, _ := newVerifier(t)
	require.NoError(t, v.AcceptNew("host", 22, "SHA256:A", "ssh-ed25519"))
	assert.Equal(t, tofu.AlgorithmChanged, v.Classify("host", 22, "SHA256:A", "ssh-rsa"))
}

func TestRemoveHost_AllowsReacceptance(t *testing.T) {
	v, _ := newVerifier(t)
	require.NoError(t, v.AcceptNew("host", 22, "SHA256:A", "ssh-ed25519"))
	require.NoError(t, v.RemoveHost("host", 22))
	assert.Equal(t, tofu.New, v.Classify("host", 22, "SHA256:B", "ssh-ed25519"))
	require.NoError(t, v.AcceptNew("host", 22, "SHA256:B", "ssh-ed25519"))
	assert.Equal(t, tofu.Trusted, v.Classify("host", 22, "SHA256:B", "ssh-ed25519"))
}
