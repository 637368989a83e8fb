// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cache implements the Cache & Manifest Engine (C6): it mirrors
// the remote programs, localization bundles, and the ports database from
// the content source, verifying SHA-256 against the manifest and using
// temp+rename for atomic visibility, generalizing an embedded
// locale loader in internal/i18n/i18n.go from "compiled in" to "fetched
// and cached", and reusing the same atomic-write shape as
// internal/knownhosts.Store.persistLocked.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/model"
)

const (
	manifestPath   = "manifest.json"
	localeIndexURL = "i18n/index.json"
	portsDBName    = "ports.db"
	fallbackLang   = "en"
)

// Engine fetches and caches artifacts under root, reading the master
// manifest from an HTTP content source.
type Engine struct {
	root       string
	sourceURL  string
	httpClient *http.Client
	sink       events.Sink
}

// New builds an Engine rooted at root, fetching from sourceURL (no
// trailing slash).
func New(root, sourceURL string, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.Discard
	}
	return &Engine{
		root:       root,
		sourceURL:  sourceURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sink:       sink,
	}
}

// NeedsFirstRun reports whether any of (programs, en bundle, ports db) is
// missing, which gates the blocking first-run progress stream (§4.5).
func (e *Engine) NeedsFirstRun() bool {
	entries, err := os.ReadDir(filepath.Join(e.root, "programs"))
	if err != nil || !hasRegularFile(entries) {
		return true
	}
	if _, err := os.Stat(filepath.Join(e.root, "i18n", fallbackLang+".json")); err != nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(e.root, portsDBName)); err != nil {
		return true
	}
	return false
}

func hasRegularFile(entries []os.DirEntry) bool {
	for _, d := range entries {
		if !d.IsDir() {
			return true
		}
	}
	return false
}

// Sync runs the four-step algorithm from §4.5. It is safe to call in the
// background; callers that need the blocking first-run presentation
// should call it once before serving any other request.
func (e *Engine) Sync(ctx context.Context) error {
	_, err := e.SyncChanges(ctx)
	return err
}

// SyncChanges behaves like Sync but additionally returns the manifest
// entries that actually changed version this round (i.e. were re-fetched
// rather than found locally matching), for the Auto-update Scheduler
// (§4.10) to act on without re-deriving the diff itself.
func (e *Engine) SyncChanges(ctx context.Context) ([]model.ManifestEntry, error) {
	manifest, err := e.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}

	var changed []model.ManifestEntry
	for _, entry := range manifest.Entries {
		if entry.Name == portsDBName {
			continue // handled below, at the cache root rather than under programs/
		}
		did, err := e.syncEntry(ctx, "programs", entry)
		if err != nil {
			return changed, err
		}
		if did {
			changed = append(changed, entry)
		}
	}

	if err := e.syncLocalizations(ctx, manifest); err != nil {
		return changed, err
	}

	didPorts, err := e.syncPortsDB(ctx, manifest)
	if err != nil {
		return changed, err
	}
	if didPorts.Name != "" {
		changed = append(changed, didPorts)
	}
	return changed, nil
}

func (e *Engine) fetchManifest(ctx context.Context) (*model.Manifest, error) {
	body, err := e.get(ctx, manifestPath)
	if err != nil {
		return nil, model.WrapError(model.KindOperationFailed, err, "fetch manifest")
	}
	defer body.Close()

	var m model.Manifest
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		return nil, model.WrapError(model.KindProtocol, err, "decode manifest")
	}
	return &m, nil
}

// syncEntry fetches entry if the locally cached copy is missing or
// mismatched, verifying its digest before making it visible. It reports
// whether a fetch actually happened.
func (e *Engine) syncEntry(ctx context.Context, subdir string, entry model.ManifestEntry) (bool, error) {
	dest := filepath.Join(e.root, subdir, entry.Name)
	if localMatches(dest, entry.SHA256) {
		return false, nil
	}

	data, err := e.fetchVerified(ctx, entry.URL, entry.SHA256)
	if err != nil {
		if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindCacheIntegrity {
			e.sink.Publish(events.CacheIntegrityFailure{Artifact: entry.Name, Expected: entry.SHA256, Got: ""})
		}
		return false, err
	}
	if err := atomicWrite(dest, data, 0o755); err != nil {
		return false, model.WrapError(model.KindOperationFailed, err, "install %s", entry.Name)
	}
	return true, nil
}

func (e *Engine) syncLocalizations(ctx context.Context, manifest *model.Manifest) error {
	body, err := e.get(ctx, localeIndexURL)
	if err != nil {
		return model.WrapError(model.KindOperationFailed, err, "fetch localization index")
	}
	defer body.Close()

	var index []model.ManifestEntry
	if err := json.NewDecoder(body).Decode(&index); err != nil {
		return model.WrapError(model.KindProtocol, err, "decode localization index")
	}

	haveFallback := false
	for _, entry := range index {
		dest := filepath.Join(e.root, "i18n", entry.Name+".json")
		if localVersionMatches(dest, entry.Version) {
			if entry.Name == fallbackLang {
				haveFallback = true
			}
			continue
		}
		data, err := e.fetchVerified(ctx, entry.URL, entry.SHA256)
		if err != nil {
			if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindCacheIntegrity {
				e.sink.Publish(events.CacheIntegrityFailure{Artifact: entry.Name, Expected: entry.SHA256})
			}
			continue
		}
		var bundle model.LocalizationBundle
		if jsonErr := json.Unmarshal(data, &bundle); jsonErr != nil || bundle.Version == "" {
			e.sink.Publish(events.CacheIntegrityFailure{Artifact: entry.Name})
			continue
		}
		if err := atomicWrite(dest, data, 0o644); err != nil {
			return model.WrapError(model.KindOperationFailed, err, "install localization bundle %s", entry.Name)
		}
		if entry.Name == fallbackLang {
			haveFallback = true
		}
	}
	if !haveFallback {
		if _, err := os.Stat(filepath.Join(e.root, "i18n", fallbackLang+".json")); err != nil {
			return model.NewError(model.KindOperationFailed, "fallback locale %s unavailable", fallbackLang)
		}
	}
	return nil
}

// syncPortsDB returns the ports-database manifest entry if it was
// (re)fetched this round, or the zero value if it was already current or
// absent from the manifest.
func (e *Engine) syncPortsDB(ctx context.Context, manifest *model.Manifest) (model.ManifestEntry, error) {
	for _, entry := range manifest.Entries {
		if entry.Name != portsDBName {
			continue
		}
		did, err := e.syncEntry(ctx, "", entry)
		if err != nil || !did {
			return model.ManifestEntry{}, err
		}
		return entry, nil
	}
	return model.ManifestEntry{}, nil
}

// CachedPrograms returns the name and bytes of every program currently
// materialized under the cache's programs directory, for the Onboarding
// Coordinator and Updater to push to a host (§4.8 step 3).
func (e *Engine) CachedPrograms() (map[string][]byte, error) {
	dir := filepath.Join(e.root, "programs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewError(model.KindOperationFailed, "no programs cached yet; run Sync first")
		}
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for _, d := range entries {
		if d.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, d.Name()))
		if err != nil {
			return nil, err
		}
		out[d.Name()] = data
	}
	return out, nil
}

// Localize returns the cached bundle for lang, falling back to en per
// §4.5's language fallback rule.
func (e *Engine) Localize(lang string) (model.LocalizationBundle, error) {
	if b, err := e.readBundle(lang); err == nil {
		return b, nil
	}
	b, err := e.readBundle(fallbackLang)
	if err != nil {
		return model.LocalizationBundle{}, model.NewError(model.KindOperationFailed, "no localization available, not even fallback %s", fallbackLang)
	}
	return b, nil
}

func (e *Engine) readBundle(lang string) (model.LocalizationBundle, error) {
	path := filepath.Join(e.root, "i18n", lang+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return model.LocalizationBundle{}, err
	}
	var b model.LocalizationBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return model.LocalizationBundle{}, err
	}
	return b, nil
}

func (e *Engine) fetchVerified(ctx context.Context, url, wantSHA256 string) ([]byte, error) {
	body, err := e.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if wantSHA256 != "" && got != wantSHA256 {
		return nil, model.NewError(model.KindCacheIntegrity, "sha256 mismatch for %s: want %s got %s", url, wantSHA256, got)
	}
	return data, nil
}

func (e *Engine) get(ctx context.Context, relPath string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.sourceURL+"/"+relPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("cache: unexpected status %s for %s", resp.Status, relPath)
	}
	return resp.Body, nil
}

func localMatches(path, wantSHA256 string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == wantSHA256
}

func localVersionMatches(path, wantVersion string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var b model.LocalizationBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return false
	}
	return b.Version == wantVersion
}

// atomicWrite writes data to a temp file in the same directory as path,
// fsyncs it, then renames over path, matching
// internal/knownhosts.Store.persistLocked's visibility guarantee.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	logging.Debugf("cache: installed %s", path)
	return nil
}
