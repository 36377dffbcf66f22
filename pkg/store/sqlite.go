// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_user ON readings (user_id, category, created_at);

CREATE TABLE IF NOT EXISTS last_watered (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS current_user (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLite stores records in a local database file. Timestamps are unix
// nanoseconds.
type SQLite struct {
	db    *sql.DB
	clock clock.Clock
}

// OpenSQLite opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string, clk clock.Clock) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if clk == nil {
		clk = clock.System{}
	}
	return &SQLite{db: db, clock: clk}, nil
}

func (s *SQLite) CurrentUser(ctx context.Context) (string, error) {
	var user string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM current_user ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoCurrentUser
	}
	if err != nil {
		return "", fmt.Errorf("current user query failed: %w", err)
	}
	return user, nil
}

func (s *SQLite) SetCurrentUser(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO current_user (user_id, created_at) VALUES (?, ?)`,
		userID, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set current user: %w", err)
	}
	return nil
}

func (s *SQLite) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (user_id, category, value, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(category), value, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (s *SQLite) MarkWatered(ctx context.Context, userID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_watered (user_id, created_at) VALUES (?, ?)`,
		userID, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record watering: %w", err)
	}
	return nil
}

// Recent returns up to limit readings of one user and category, newest first
func (s *SQLite) Recent(ctx context.Context, userID string, category linkproto.Category, limit int) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value, created_at FROM readings
		 WHERE user_id = ? AND category = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("readings query failed: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			value string
			nanos int64
		)
		if err := rows.Scan(&value, &nanos); err != nil {
			return nil, fmt.Errorf("readings scan failed: %w", err)
		}
		out = append(out, Reading{
			User:     userID,
			Category: category,
			Value:    value,
			Time:     time.Unix(0, nanos).UTC(),
		})
	}
	return out, rows.Err()
}

// LastWatered returns the newest watering time for a user, or the zero time
func (s *SQLite) LastWatered(ctx context.Context, userID string) (time.Time, error) {
	var nanos sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM last_watered WHERE user_id = ?`, userID).Scan(&nanos)
	if err != nil {
		return time.Time{}, fmt.Errorf("last watered query failed: %w", err)
	}
	if !nanos.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos.Int64).UTC(), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
