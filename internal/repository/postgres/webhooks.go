package postgres

import (
	"context"
	"fmt"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/repository"
)

const webhookColumns = `id, name, url, event, secret, active, event_count, created_at`

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var hook domain.Webhook
	if err := row.Scan(&hook.ID, &hook.Name, &hook.URL, &hook.Event, &hook.Secret, &hook.Active, &hook.EventCount, &hook.CreatedAt); err != nil {
		return nil, err
	}
	return &hook, nil
}

// CreateWebhook stores a webhook subscription.
func (r *Repository) CreateWebhook(ctx context.Context, hook *domain.Webhook) error {
	if hook == nil {
		return fmt.Errorf("webhook required")
	}
	const query = `INSERT INTO webhooks (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, hook.ID, hook.Name, hook.URL, hook.Event, hook.Secret, hook.Active, hook.EventCount, hook.CreatedAt)
	return translate(err)
}

// GetWebhook fetches a webhook by identifier.
func (r *Repository) GetWebhook(ctx context.Context, id string) (*domain.Webhook, error) {
	hook, err := scanWebhook(r.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return hook, nil
}

// ListWebhooks returns every webhook.
func (r *Repository) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	return r.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC`)
}

// ListActiveWebhooksByEvent returns active webhooks subscribed to slug.
func (r *Repository) ListActiveWebhooksByEvent(ctx context.Context, slug string) ([]domain.Webhook, error) {
	return r.queryWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE active AND event = $1 ORDER BY created_at ASC`, slug)
}

func (r *Repository) queryWebhooks(ctx context.Context, query string, args ...any) ([]domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []domain.Webhook
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *hook)
	}
	return hooks, rows.Err()
}

// IncrementWebhookCount bumps the delivered event counter.
func (r *Repository) IncrementWebhookCount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE webhooks SET event_count = event_count + 1 WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook.
func (r *Repository) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
