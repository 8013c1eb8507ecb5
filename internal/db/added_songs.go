package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AddedSongRepository handles attribution record database operations.
type AddedSongRepository struct {
	pool *pgxpool.Pool
}

// List returns all attribution records.
func (r *AddedSongRepository) List(ctx context.Context) ([]AddedSong, error) {
	query := `
		SELECT id, user_id, name, username
		FROM added_songs
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying added songs: %w", err)
	}
	defer rows.Close()

	var songs []AddedSong
	for rows.Next() {
		var s AddedSong
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Username); err != nil {
			return nil, fmt.Errorf("scanning added song: %w", err)
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// Insert creates an attribution record, replacing any existing record for
// the same track id.
func (r *AddedSongRepository) Insert(ctx context.Context, song AddedSong) error {
	query := `
		INSERT INTO added_songs (id, user_id, name, username, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			username = EXCLUDED.username
	`
	if _, err := r.pool.Exec(ctx, query, song.ID, song.UserID, song.Name, song.Username); err != nil {
		return fmt.Errorf("inserting added song: %w", err)
	}
	return nil
}

// Delete removes an attribution record by track id. Idempotent.
func (r *AddedSongRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM added_songs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting added song: %w", err)
	}
	return nil
}
