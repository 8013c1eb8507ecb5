package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingRepository handles named setting database operations.
type SettingRepository struct {
	pool *pgxpool.Pool
}

// Bool returns the boolean value of a setting, or nil when the setting is
// unset. Callers apply their own defaults.
func (r *SettingRepository) Bool(ctx context.Context, name string) (*bool, error) {
	var value *bool
	err := r.pool.QueryRow(ctx,
		`SELECT boolean FROM settings WHERE name = $1`, name,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying setting %s: %w", name, err)
	}
	return value, nil
}

// SetBool upserts a boolean setting.
func (r *SettingRepository) SetBool(ctx context.Context, name string, value bool) error {
	query := `
		INSERT INTO settings (name, boolean)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET boolean = EXCLUDED.boolean, json = NULL
	`
	if _, err := r.pool.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	return nil
}

// JSON unmarshals the JSON value of a setting into dest. Returns false when
// the setting is unset or holds no JSON value.
func (r *SettingRepository) JSON(ctx context.Context, name string, dest any) (bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT json FROM settings WHERE name = $1`, name,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying setting %s: %w", name, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("parsing setting %s: %w", name, err)
	}
	return true, nil
}

// SetJSON upserts a JSON setting.
func (r *SettingRepository) SetJSON(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", name, err)
	}
	query := `
		INSERT INTO settings (name, json)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET json = EXCLUDED.json, boolean = NULL
	`
	if _, err := r.pool.Exec(ctx, query, name, raw); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	return nil
}
