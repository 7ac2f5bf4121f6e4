package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/splax/domainmap/internal/domain"
)

// InsertEvent persists a fired event.
func (r *Repository) InsertEvent(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return fmt.Errorf("event required")
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	const query = `INSERT INTO events (id, slug, severity, object_type, object_id, initiator, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, event.ID, event.Slug, int(event.Severity), nullIfEmpty(event.ObjectType), nullIfEmpty(event.ObjectID), string(event.Initiator), payload, event.CreatedAt)
	return translate(err)
}

// ListEvents returns events newest first, optionally filtered by slug.
func (r *Repository) ListEvents(ctx context.Context, slug string, limit, offset int) ([]domain.Event, error) {
	const query = `SELECT id, slug, severity, COALESCE(object_type, ''), COALESCE(object_id, ''), initiator, payload, created_at
		FROM events WHERE ($1::text IS NULL OR slug = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, nullIfEmpty(slug), clampLimit(limit, 50, 500), normalizeOffset(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			severity  int
			initiator string
		)
		if err := rows.Scan(&e.ID, &e.Slug, &severity, &e.ObjectType, &e.ObjectID, &initiator, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Severity = domain.Severity(severity)
		e.Initiator = domain.Initiator(initiator)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListEventIDsBefore returns up to limit event ids created before the cutoff, oldest first.
func (r *Repository) ListEventIDsBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	const query = `SELECT id FROM events WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, before, clampLimit(limit, 100, 1000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteEvent removes an event by identifier.
func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return translate(err)
}
