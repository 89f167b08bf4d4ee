// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package store is the durable side of planning: resolved schedule days
// keyed by (channel, broadcast date), the transmission-entry table the
// execution window rehydrates from, the per-channel traffic cursor, and
// the two-tier retention purger.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/override"
)

const schemaVersion = 1

// Config carries the SQLite pool settings.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig suits a single-process core: WAL readers plus one writer.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Store wraps the planning database. All timestamps written by the store
// come from the injected clock.
type Store struct {
	db      *sql.DB
	clk     clock.Clock
	records override.Store
}

// Open opens (or creates) the database at dbPath and migrates the schema.
// records receives the audit row written before any operator override;
// a nil records store makes OperatorOverride fail.
func Open(dbPath string, cfg Config, clk clock.Clock, records override.Store) (*Store, error) {
	// The pragmas ride the DSN so they apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}

	s := &Store{db: db, clk: clock.OrSystem(clk), records: records}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS resolved_schedule_days (
		channel_id TEXT NOT NULL,
		broadcast_day TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		blocks_json TEXT NOT NULL,
		segmented_blocks_json TEXT,
		is_manual_override BOOLEAN NOT NULL DEFAULT 0,
		updated_utc_ms INTEGER NOT NULL,
		PRIMARY KEY (channel_id, broadcast_day)
	);

	CREATE TABLE IF NOT EXISTS transmission_entries (
		channel_id TEXT NOT NULL,
		broadcast_day TEXT NOT NULL,
		block_id TEXT NOT NULL,
		start_utc_ms INTEGER NOT NULL,
		end_utc_ms INTEGER NOT NULL,
		generation INTEGER NOT NULL,
		entry_json TEXT NOT NULL,
		PRIMARY KEY (channel_id, broadcast_day, block_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transmission_end ON transmission_entries(channel_id, end_utc_ms);

	CREATE TABLE IF NOT EXISTS traffic_cursors (
		channel_id TEXT PRIMARY KEY,
		offset_ms INTEGER NOT NULL,
		updated_utc_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }
