// SQLite persistence for alignment snapshots
//
// Snapshots are loaded at startup and flushed on demand, so a host
// restart does not lose saved alignments.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package align

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"alignd/pkg/errors"
	"alignd/pkg/log"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS alignments (
	name     TEXT NOT NULL,
	axis     TEXT NOT NULL,
	position REAL NOT NULL,
	PRIMARY KEY (name, axis)
);`

// DB is the SQLite-backed snapshot persistence.
type DB struct {
	sqlDB  *sql.DB
	logger *log.Logger
}

// OpenDB opens (creating if needed) the snapshot database at path.
func OpenDB(path string, logger *log.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.StoreError("open", fmt.Errorf("database path is required"))
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StoreError("open", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.StoreError("open", err)
	}
	if _, err := sqlDB.Exec(snapshotSchema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.StoreError("migrate", err)
	}
	return &DB{sqlDB: sqlDB, logger: logger}, nil
}

// Close closes the database handle.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Load reads the full snapshot table.
func (db *DB) Load() (map[string]map[string]float64, error) {
	rows, err := db.sqlDB.Query(`SELECT name, axis, position FROM alignments`)
	if err != nil {
		return nil, errors.StoreError("load", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var name, axis string
		var pos float64
		if err := rows.Scan(&name, &axis, &pos); err != nil {
			return nil, errors.StoreError("load", err)
		}
		snap, ok := out[name]
		if !ok {
			snap = make(map[string]float64)
			out[name] = snap
		}
		snap[axis] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("load", err)
	}
	return out, nil
}

// SaveAll replaces the persisted table with the given snapshots in one
// transaction.
func (db *DB) SaveAll(snapshots map[string]map[string]float64) error {
	tx, err := db.sqlDB.Begin()
	if err != nil {
		return errors.StoreError("flush", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM alignments`); err != nil {
		return errors.StoreError("flush", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO alignments (name, axis, position) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.StoreError("flush", err)
	}
	defer stmt.Close()

	count := 0
	for name, snap := range snapshots {
		for axis, pos := range snap {
			if _, err := stmt.Exec(name, axis, pos); err != nil {
				return errors.StoreError("flush", err)
			}
			count++
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("flush", err)
	}
	db.logger.Debug("flushed %d snapshot rows", count)
	return nil
}

// LoadInto populates the store from the database.
func (db *DB) LoadInto(s *Store) error {
	snapshots, err := db.Load()
	if err != nil {
		return err
	}
	s.Replace(snapshots)
	db.logger.Info("loaded %d alignments from database", len(snapshots))
	return nil
}

// Flush persists the store's current table.
func (db *DB) Flush(s *Store) error {
	return db.SaveAll(s.All())
}
