package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// QueueItemRepository handles queue item database operations.
type QueueItemRepository struct {
	pool *pgxpool.Pool
}

// List returns all pending queue items in insertion order.
func (r *QueueItemRepository) List(ctx context.Context) ([]QueueItem, error) {
	query := `
		SELECT id, user_id, user_name
		FROM queue_items
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying queue items: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		var userID, userName *string
		if err := rows.Scan(&item.ID, &userID, &userName); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		if userID != nil {
			item.User = &QueueUser{ID: *userID}
			if userName != nil {
				item.User.Name = *userName
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Insert creates a queue item. A track id appears at most once; inserting an
// existing id updates its attribution instead of duplicating the row.
func (r *QueueItemRepository) Insert(ctx context.Context, item QueueItem) error {
	query := `
		INSERT INTO queue_items (id, user_id, user_name, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			user_name = EXCLUDED.user_name
	`
	var userID, userName *string
	if item.User != nil {
		userID = &item.User.ID
		userName = &item.User.Name
	}
	if _, err := r.pool.Exec(ctx, query, item.ID, userID, userName); err != nil {
		return fmt.Errorf("inserting queue item: %w", err)
	}
	return nil
}

// Delete removes a queue item by track id. Deleting an absent id is a no-op.
func (r *QueueItemRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM queue_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting queue item: %w", err)
	}
	return nil
}
