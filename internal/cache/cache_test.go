package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rise-fleet/rise/internal/model"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestNeedsFirstRun_TrueWhenEmpty(t *testing.T) {
	e := New(t.TempDir(), "http://example.invalid", nil)
	assert.True(t, e.NeedsFirstRun())
}

func TestNeedsFirstRun_FalseOnceSeeded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i18n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i18n", "en.json"), []byte(`{"Lang":"en","Version":"1"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, portsDBName), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "programs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "programs", "onboard"), []byte("binary"), 0o755))

	e := New(root, "http://example.invalid", nil)
	assert.False(t, e.NeedsFirstRun())
}

func TestNeedsFirstRun_TrueWhenProgramsDirEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i18n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i18n", "en.json"), []byte(`{"Lang":"en","Version":"1"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, portsDBName), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "programs"), 0o755))

	e := New(root, "http://example.invalid", nil)
	assert.True(t, e.NeedsFirstRun())
}

func TestAtomicWrite_VisibleOnlyAfterRename(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "program")
	require.NoError(t, atomicWrite(dest, []byte("binary-bytes"), 0o755))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSync_FetchesAndVerifiesProgram(t *testing.T) {
	programBytes := []byte("#!/bin/sh\necho hi\n")
	sum := sha256Hex(programBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		m := model.Manifest{Entries: []model.ManifestEntry{{Name: "firewall", Version: "1.0", SHA256: sum, URL: "/programs/firewall"}}}
		_ = json.NewEncoder(w).Encode(m)
	})
	mux.HandleFunc("/programs/firewall", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(programBytes)
	})
	mux.HandleFunc("/i18n/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.ManifestEntry{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i18n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i18n", "en.json"), []byte(`{"Lang":"en","Version":"1"}`), 0o644))

	e := New(root, srv.URL, nil)
	err := e.Sync(context.Background())
	require.NoError(t, err)

	installed, err := os.ReadFile(filepath.Join(root, "programs", "firewall"))
	require.NoError(t, err)
	assert.Equal(t, programBytes, installed)
}

func TestSync_RejectsTamperedDigest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		m := model.Manifest{Entries: []model.ManifestEntry{{Name: "firewall", Version: "1.0", SHA256: "deadbeef", URL: "/programs/firewall"}}}
		_ = json.NewEncoder(w).Encode(m)
	})
	mux.HandleFunc("/programs/firewall", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not what was promised"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	root := t.TempDir()
	e := New(root, srv.URL, nil)
	err := e.Sync(context.Background())
	require.Error(t, err)

	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.KindCacheIntegrity, merr.Kind)

	_, statErr := os.Stat(filepath.Join(root, "programs", "firewall"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalize_FallsBackToEnglish(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i18n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "i18n", "en.json"), []byte(`{"Lang":"en","Version":"1","KeyValues":{"hello":"Hello"}}`), 0o644))

	e := New(root, "http://example.invalid", nil)
	b, err := e.Localize("fr")
	require.NoError(t, err)
	assert.Equal(t, "en", b.Lang)
}
