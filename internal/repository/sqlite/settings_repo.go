package sqlite

import (
	"context"
	"fmt"
	"strings"

	"motoshop/internal/repository"
)

// SettingsRepo implements repository.SettingsRepository on the key/value
// settings table
type SettingsRepo struct {
	db *DB
}

// NewSettingsRepo creates a new SettingsRepo
func NewSettingsRepo(db *DB) repository.SettingsRepository {
	return &SettingsRepo{db: db}
}

// GetMany reads several keys in one query. Keys that were never set are
// missing from the result.
func (r *SettingsRepo) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `SELECT key, COALESCE(value, '') FROM settings WHERE key IN (?` + strings.Repeat(`, ?`, len(keys)-1) + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// SetMany stores all values or none of them
func (r *SettingsRepo) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare settings update: %w", err)
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("failed to set setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}
