package db

import (
	"context"
	"fmt"
)

// ConfigRepository handles the dynamic key/value configuration edited
// from the admin panel.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository creates a new config repository.
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// All returns every stored configuration pair.
func (r *ConfigRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("query system config: %w", err)
	}
	defer rows.Close()

	items := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config item: %w", err)
		}
		items[key] = value
	}
	return items, rows.Err()
}

// Set upserts a configuration pair.
func (r *ConfigRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO system_config (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}
