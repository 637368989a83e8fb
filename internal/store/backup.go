// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/rise-fleet/rise/internal/model"
)

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// ExportDataForBackup assembles a full export of RISE's own persisted
// state. knownHosts is supplied by the caller (internal/knownhosts owns
// that store independently) so this package never imports it directly.
func (s *Store) ExportDataForBackup(ctx context.Context, knownHosts []model.KnownHostRecord) (*model.BackupData, error) {
	hosts, err := s.ListHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: export hosts: %w", err)
	}
	audit, err := s.ListAudit(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("store: export audit log: %w", err)
	}
	return &model.BackupData{
		Hosts:      hosts,
		KnownHosts: knownHosts,
		AuditLog:   audit,
		ExportedAt: time.Now(),
	}, nil
}

// WriteBackup serializes data as zstd-compressed JSON, grounded on a
// WriteBackup helper in internal/core/facades.go.
func WriteBackup(data *model.BackupData, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("store: create zstd writer: %w", err)
	}
	defer zw.Close()
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("store: encode backup: %w", err)
	}
	return nil
}

// ReadBackup decodes a zstd-compressed JSON backup previously written by
// WriteBackup, mirroring a Restore helper in internal/core/facades.go.
func ReadBackup(r io.Reader) (*model.BackupData, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("store: create zstd reader: %w", err)
	}
	defer zr.Close()
	var data model.BackupData
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("store: decode backup: %w", err)
	}
	return &data, nil
}

// ImportDataFromBackup replaces host entries and appends audit entries from
// a backup. Known-host pins in data are not applied here: the caller hands
// data.KnownHosts to internal/knownhosts, which owns applying them.
func (s *Store) ImportDataFromBackup(ctx context.Context, data *model.BackupData) error {
	for _, h := range data.Hosts {
		if err := s.SaveHost(ctx, h); err != nil {
			return fmt.Errorf("store: import host %s: %w", h.ID, err)
		}
	}
	for _, e := range data.AuditLog {
		if err := s.AppendAudit(ctx, e); err != nil {
			return fmt.Errorf("store: import audit entry: %w", err)
		}
	}
	return nil
}
