// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package store is the bun-backed persistence layer for host entries, the
// audit log, and update notifications, following the shape of
// internal/db package (NewStoreFromDSN's dialect-selection switch and the
// AuditLogModel/AccountModel bun tagging style).
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rise-fleet/rise/internal/model"
)

// HostModel maps the hosts table for Bun queries.
type HostModel struct {
	bun.BaseModel `bun:"table:hosts"`
	ID            string `bun:"id,pk"`
	DisplayName   string `bun:"display_name"`
	Host          string `bun:"host"`
	Port          int    `bun:"port"`
	Username      string `bun:"username"`
	SecurityMode  string `bun:"security_mode"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// NotificationModel maps the update_notifications table.
type NotificationModel struct {
	bun.BaseModel `bun:"table:update_notifications"`
	ID            string `bun:"id,pk"`
	Artifact      string `bun:"artifact"`
	Version       string `bun:"version"`
	CreatedAt     string `bun:"created_at"`
	Read          bool   `bun:"read"`
}

// Store is the persistence boundary for everything RISE keeps in a
// relational database. Known-host pins are deliberately out of scope here:
// they are owned by internal/knownhosts' JSON-backed store, which enforces
// its own "no silent replacement" invariant independently of this layer.
type Store struct {
	db *bun.DB
}

// Open opens dsn under dbType ("sqlite", "postgres", or "mysql"), mirroring
// a NewStoreFromDSN-style dialect switch, and ensures the schema
// exists using bun's CreateTable API
// directly rather than embedded .sql migration files, since no migration
// SQL was present in the retrieval pack to carry forward faithfully.
func Open(ctx context.Context, dbType, dsn string) (*Store, error) {
	sqlDB, err := sql.Open(driverName(dbType), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	var bdb *bun.DB
	switch dbType {
	case "sqlite", "":
		bdb = bun.NewDB(sqlDB, sqlitedialect.New())
	case "postgres":
		bdb = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bdb = bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return nil, fmt.Errorf("store: unsupported database type %q", dbType)
	}

	s := &Store{db: bdb}
	if err := s.createSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func driverName(dbType string) string {
	switch dbType {
	case "postgres":
		return "pgx"
	case "mysql":
		return "mysql"
	default:
		return "sqlite"
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	models := []interface{}{
		(*HostModel)(nil),
		(*AuditLogModel)(nil),
		(*NotificationModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveHost inserts or updates a host entry by ID.
func (s *Store) SaveHost(ctx context.Context, h model.Host) error {
	row := hostToModel(h)
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("host = EXCLUDED.host").
		Set("port = EXCLUDED.port").
		Set("username = EXCLUDED.username").
		Set("security_mode = EXCLUDED.security_mode").
		Exec(ctx)
	return err
}

// GetHost returns the host entry for id, or sql.ErrNoRows if absent.
func (s *Store) GetHost(ctx context.Context, id string) (model.Host, error) {
	var row HostModel
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return model.Host{}, err
	}
	return modelToHost(row), nil
}

// ListHosts returns every configured host.
func (s *Store) ListHosts(ctx context.Context) ([]model.Host, error) {
	var rows []HostModel
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Host, 0, len(rows))
	for _, r := range rows {
		out = append(out, modelToHost(r))
	}
	return out, nil
}

// DeleteHost removes a host entry. It does not touch the known-host pin.
func (s *Store) DeleteHost(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*HostModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// AppendAudit records one state-changing event.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditLogEntry) error {
	row := AuditLogModel{
		Timestamp: e.Timestamp.Format(timeLayout),
		Username:  e.Username,
		Action:    e.Action,
		Details:   e.Details,
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return err
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	var rows []AuditLogModel
	q := s.db.NewSelect().Model(&rows).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(rows))
	for _, r := range rows {
		ts, _ := parseTime(r.Timestamp)
		out = append(out, model.AuditLogEntry{ID: r.ID, Timestamp: ts, Username: r.Username, Action: r.Action, Details: r.Details})
	}
	return out, nil
}

// SaveNotification inserts or updates a de-duplicable update notification.
func (s *Store) SaveNotification(ctx context.Context, n model.UpdateNotification) error {
	row := NotificationModel{
		ID:        n.ID,
		Artifact:  n.Artifact,
		Version:   n.Version,
		CreatedAt: n.CreatedAt.Format(timeLayout),
		Read:      n.Read,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("read = EXCLUDED.read").
		Exec(ctx)
	return err
}

// ListUnreadNotifications returns every notification not yet acknowledged.
func (s *Store) ListUnreadNotifications(ctx context.Context) ([]model.UpdateNotification, error) {
	var rows []NotificationModel
	if err := s.db.NewSelect().Model(&rows).Where("read = ?", false).Order("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.UpdateNotification, 0, len(rows))
	for _, r := range rows {
		ts, _ := parseTime(r.CreatedAt)
		out = append(out, model.UpdateNotification{ID: r.ID, Artifact: r.Artifact, Version: r.Version, CreatedAt: ts, Read: r.Read})
	}
	return out, nil
}

func hostToModel(h model.Host) HostModel {
	return HostModel{
		ID:           h.ID,
		DisplayName:  h.DisplayName,
		Host:         h.Host,
		Port:         h.Port,
		Username:     h.Username,
		SecurityMode: string(h.SecurityMode),
	}
}

func modelToHost(r HostModel) model.Host {
	return model.Host{
		ID:           r.ID,
		DisplayName:  r.DisplayName,
		Host:         r.Host,
		Port:         r.Port,
		Username:     r.Username,
		SecurityMode: model.SecurityMode(r.SecurityMode),
	}
}
