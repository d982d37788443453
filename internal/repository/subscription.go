// Package repository persists domain entities behind plain Go
// interfaces defined by their consuming use cases.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/db"
)

// SubscriptionRepository persists Subscriptions keyed by feed URL. The
// same implementation backs both Postgres and SQLite; only the
// placeholder style differs, selected by dialect at construction.
type SubscriptionRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSubscriptionRepository wraps an already-opened *sql.DB.
func NewSubscriptionRepository(conn *sql.DB, dialect db.Dialect) *SubscriptionRepository {
	return &SubscriptionRepository{db: conn, dialect: dialect}
}

func (r *SubscriptionRepository) placeholder(n int) string {
	if r.dialect == db.DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// Get returns the Subscription for url, or (nil, nil) if none exists.
func (r *SubscriptionRepository) Get(ctx context.Context, url string) (*entity.Subscription, error) {
	query := fmt.Sprintf(`
SELECT url, hub_url, mode, verify_token, verified, lease_seconds, created_at, updated_at
FROM subscriptions WHERE url = %s`, r.placeholder(1))

	row := r.db.QueryRowContext(ctx, query, url)

	var sub entity.Subscription
	var mode string
	if err := row.Scan(&sub.URL, &sub.HubURL, &mode, &sub.VerifyToken, &sub.Verified,
		&sub.LeaseSeconds, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.Mode = entity.SubscriptionMode(mode)
	return &sub, nil
}

// Upsert inserts or replaces the Subscription keyed by sub.URL.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *entity.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	var query string
	if r.dialect == db.DialectSQLite {
		query = `
INSERT INTO subscriptions (url, hub_url, mode, verify_token, verified, lease_seconds, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
    hub_url = excluded.hub_url,
    mode = excluded.mode,
    verify_token = excluded.verify_token,
    verified = excluded.verified,
    lease_seconds = excluded.lease_seconds,
    updated_at = excluded.updated_at`
	} else {
		query = `
INSERT INTO subscriptions (url, hub_url, mode, verify_token, verified, lease_seconds, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT(url) DO UPDATE SET
    hub_url = EXCLUDED.hub_url,
    mode = EXCLUDED.mode,
    verify_token = EXCLUDED.verify_token,
    verified = EXCLUDED.verified,
    lease_seconds = EXCLUDED.lease_seconds,
    updated_at = EXCLUDED.updated_at`
	}

	_, err := r.db.ExecContext(ctx, query,
		sub.URL, sub.HubURL, string(sub.Mode), sub.VerifyToken, sub.Verified,
		sub.LeaseSeconds, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// Delete removes the Subscription for url, if any.
func (r *SubscriptionRepository) Delete(ctx context.Context, url string) error {
	query := fmt.Sprintf(`DELETE FROM subscriptions WHERE url = %s`, r.placeholder(1))
	_, err := r.db.ExecContext(ctx, query, url)
	return err
}

// List returns every persisted Subscription, most recently updated
// first, for the admin read endpoint.
func (r *SubscriptionRepository) List(ctx context.Context) ([]entity.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT url, hub_url, mode, verify_token, verified, lease_seconds, created_at, updated_at
FROM subscriptions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []entity.Subscription
	for rows.Next() {
		var sub entity.Subscription
		var mode string
		if err := rows.Scan(&sub.URL, &sub.HubURL, &mode, &sub.VerifyToken, &sub.Verified,
			&sub.LeaseSeconds, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		sub.Mode = entity.SubscriptionMode(mode)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
