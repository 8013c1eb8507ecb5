// Package db provides PostgreSQL persistence for the listen-along service.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrateUp(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// QueueItems returns a QueueItemRepository.
func (db *DB) QueueItems() *QueueItemRepository {
	return &QueueItemRepository{pool: db.pool}
}

// AddedSongs returns an AddedSongRepository.
func (db *DB) AddedSongs() *AddedSongRepository {
	return &AddedSongRepository{pool: db.pool}
}

// RecentlyPlayed returns a RecentlyPlayedRepository.
func (db *DB) RecentlyPlayed() *RecentlyPlayedRepository {
	return &RecentlyPlayedRepository{pool: db.pool}
}

// Settings returns a SettingRepository.
func (db *DB) Settings() *SettingRepository {
	return &SettingRepository{pool: db.pool}
}
