// auth/sqlite.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore serves user lookups from a local SQLite database; it's the
// default store for standalone servers.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		callsign   TEXT PRIMARY KEY,
		password   TEXT NOT NULL,
		rating     INTEGER NOT NULL DEFAULT 1
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LookupUser(ctx context.Context, cid string) (User, error) {
	var u User
	row := s.db.QueryRowContext(ctx,
		`SELECT callsign, password, rating FROM users WHERE callsign = ?`, cid)
	if err := row.Scan(&u.CID, &u.PasswordHash, &u.Rating); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUnknownUser
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// UpsertUser inserts or replaces a user row; account tooling only, the
// server itself never writes.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (callsign, password, rating) VALUES (?, ?, ?)
		 ON CONFLICT(callsign) DO UPDATE SET password = excluded.password, rating = excluded.rating`,
		u.CID, u.PasswordHash, u.Rating)
	return err
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}
