package postgres

import (
	"context"
	"fmt"

	"github.com/splax/domainmap/internal/domain"
)

// AppendLog inserts a log line and fills its identifier.
func (r *Repository) AppendLog(ctx context.Context, entry *domain.LogEntry) error {
	if entry == nil {
		return fmt.Errorf("log entry required")
	}
	const query = `INSERT INTO domain_logs (channel, message, created_at) VALUES ($1, $2, $3) RETURNING id`
	if err := r.pool.QueryRow(ctx, query, entry.Channel, entry.Message, entry.CreatedAt).Scan(&entry.ID); err != nil {
		return translate(err)
	}
	return nil
}

// ListLogsByChannel fetches logs for a channel, newest first.
func (r *Repository) ListLogsByChannel(ctx context.Context, channel string, limit, offset int) ([]domain.LogEntry, error) {
	const query = `SELECT id, channel, message, created_at
		FROM domain_logs WHERE channel = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, channel, clampLimit(limit, 100, 1000), normalizeOffset(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.LogEntry
	for rows.Next() {
		var l domain.LogEntry
		if err := rows.Scan(&l.ID, &l.Channel, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
