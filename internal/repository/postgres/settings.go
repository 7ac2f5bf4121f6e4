package postgres

import (
	"context"
	"encoding/json"

	"github.com/splax/domainmap/internal/domain"
)

// GetSetting returns the stored raw value for key.
func (r *Repository) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	if err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value); err != nil {
		return nil, translate(err)
	}
	return value, nil
}

// UpsertSetting stores value under key.
func (r *Repository) UpsertSetting(ctx context.Context, key string, value json.RawMessage) error {
	const query = `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query, key, []byte(value))
	return translate(err)
}

// ListSettings returns every stored setting.
func (r *Repository) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
