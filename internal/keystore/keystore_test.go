package keystore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure_GeneratesThenPersists(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Ensure("rise-device"))

	pub, err := s.GetPublicKey()
	require.NoError(t, err)
	assert.Contains(t, pub, "ssh-ed25519")
	assert.Contains(t, pub, "rise-device")

	signer, err := s.Signer()
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestEnsure_IdempotentAcrossStores(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir)
	require.NoError(t, s1.Ensure("rise-device"))
	pub1, err := s1.GetPublicKey()
	require.NoError(t, err)

	s2 := New(dir)
	require.NoError(t, s2.Ensure("rise-device"))
	pub2, err := s2.GetPublicKey()
	require.NoError(t, err)

	assert.Equal(t, pub1, pub2)
}

func TestGetPublicKey_BeforeEnsureFails(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.GetPublicKey()
	assert.Error(t, err)
}

func TestClear_WipesInMemoryOnly(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Ensure("rise-device"))
	s.Clear()

	_, err := s.GetPublicKey()
	assert.Error(t, err)

	s2 := New(dir)
	require.NoError(t, s2.Ensure("rise-device"))
	_, err = s2.GetPublicKey()
	assert.NoError(t, err)
}

func TestEnsure_RejectsGroupReadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits aren't the confidentiality boundary on windows")
	}
	parent := t.TempDir()
	dir := filepath.Join(parent, "keys")
	require.NoError(t, os.Mkdir(dir, 0o755))

	s := New(dir)
	err := s.Ensure("rise-device")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsecureStorage)
}
