package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) Get(ctx context.Context, namespace, key string, out interface{}) (int, bool, error) {
	query := `SELECT value, version FROM system_settings WHERE namespace = $1 AND key = $2`

	var raw []byte
	var version int
	err := r.db.QueryRowContext(ctx, query, namespace, key).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get setting %s/%s: %w", namespace, key, err)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, false, fmt.Errorf("decode setting %s/%s: %w", namespace, key, err)
		}
	}
	return version, true, nil
}

func (r *PostgresStore) Put(ctx context.Context, namespace, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s/%s: %w", namespace, key, err)
	}

	query := `
		INSERT INTO system_settings (namespace, key, value, version, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = EXCLUDED.value, version = system_settings.version + 1, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, namespace, key, raw); err != nil {
		return fmt.Errorf("put setting %s/%s: %w", namespace, key, err)
	}
	return nil
}
