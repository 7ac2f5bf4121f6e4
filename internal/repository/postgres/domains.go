package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/repository"
)

const domainColumns = `id, site_id, domain, stage, secure, primary_domain, active, cycle, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*domain.Domain, error) {
	var (
		d     domain.Domain
		stage string
	)
	if err := row.Scan(&d.ID, &d.SiteID, &d.Domain, &stage, &d.Secure, &d.PrimaryDomain, &d.Active, &d.Cycle, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Stage = domain.Stage(stage)
	return &d, nil
}

// CreateDomain inserts a mapped domain.
func (r *Repository) CreateDomain(ctx context.Context, d *domain.Domain) error {
	if d == nil {
		return fmt.Errorf("domain required")
	}
	const query = `INSERT INTO domains (` + domainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, d.ID, d.SiteID, strings.ToLower(d.Domain), string(d.Stage), d.Secure, d.PrimaryDomain, d.Active, d.Cycle, d.CreatedAt, d.UpdatedAt)
	return translate(err)
}

// GetDomainByID fetches a domain by identifier.
func (r *Repository) GetDomainByID(ctx context.Context, id string) (*domain.Domain, error) {
	const query = `SELECT ` + domainColumns + ` FROM domains WHERE id = $1`
	d, err := scanDomain(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

// ListDomains returns domains ordered by creation time, newest first.
func (r *Repository) ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	const query = `SELECT ` + domainColumns + ` FROM domains
		WHERE ($1::text IS NULL OR site_id = $1)
		  AND ($2::text IS NULL OR stage = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, nullIfEmpty(filter.SiteID), nullIfEmpty(string(filter.Stage)), clampLimit(filter.Limit, 50, 500), normalizeOffset(filter.Offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

// ListPrimaryDomainIDs returns primary domains of a site other than excludeID.
func (r *Repository) ListPrimaryDomainIDs(ctx context.Context, siteID, excludeID string) ([]string, error) {
	const query = `SELECT id FROM domains WHERE site_id = $1 AND primary_domain AND id <> $2`
	rows, err := r.pool.Query(ctx, query, siteID, excludeID)
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

// UpdateDomainStage swaps the stage when the stored stage and cycle still match update.
func (r *Repository) UpdateDomainStage(ctx context.Context, update domain.StageUpdate) error {
	var secure sql.NullBool
	if update.Secure != nil {
		secure = sql.NullBool{Bool: *update.Secure, Valid: true}
	}
	const query = `UPDATE domains
		SET stage = $3, secure = COALESCE($4, secure),
		    cycle = cycle + CASE WHEN $6 THEN 1 ELSE 0 END, updated_at = NOW()
		WHERE id = $1 AND stage = $2 AND cycle = $5`
	tag, err := r.pool.Exec(ctx, query, update.DomainID, string(update.From), string(update.To), secure, update.Cycle, update.NextCycle)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM domains WHERE id = $1)`, update.DomainID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// ClearPrimaryDomain unsets the primary flag of a domain.
func (r *Repository) ClearPrimaryDomain(ctx context.Context, id string) error {
	const query = `UPDATE domains SET primary_domain = FALSE, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteDomain removes a domain.
func (r *Repository) DeleteDomain(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM domains WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
