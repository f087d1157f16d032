// auth/postgres.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore serves user lookups from a shared PostgreSQL database, for
// deployments where accounts are managed centrally.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) LookupUser(ctx context.Context, cid string) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx,
		`SELECT callsign, password, rating FROM users WHERE callsign = $1`, cid)
	if err := row.Scan(&u.CID, &u.PasswordHash, &u.Rating); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUnknownUser
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
