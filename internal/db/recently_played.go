package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecentlyPlayedRepository handles played-track history database operations.
type RecentlyPlayedRepository struct {
	pool *pgxpool.Pool
}

// List returns the history oldest-first.
func (r *RecentlyPlayedRepository) List(ctx context.Context) ([]RecentlyPlayedTrack, error) {
	query := `
		SELECT id, played_at
		FROM recently_played
		ORDER BY position
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying recently played: %w", err)
	}
	defer rows.Close()

	var tracks []RecentlyPlayedTrack
	for rows.Next() {
		var t RecentlyPlayedTrack
		if err := rows.Scan(&t.ID, &t.Time); err != nil {
			return nil, fmt.Errorf("scanning recently played track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// ReplaceAll atomically replaces the entire history with the given list,
// preserving its order.
func (r *RecentlyPlayedRepository) ReplaceAll(ctx context.Context, tracks []RecentlyPlayedTrack) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM recently_played`); err != nil {
		return fmt.Errorf("clearing recently played: %w", err)
	}

	for i, t := range tracks {
		_, err := tx.Exec(ctx,
			`INSERT INTO recently_played (id, played_at, position) VALUES ($1, $2, $3)`,
			t.ID, t.Time, i,
		)
		if err != nil {
			return fmt.Errorf("inserting recently played track: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing recently played: %w", err)
	}
	return nil
}
