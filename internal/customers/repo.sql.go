package customers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/shared"
)

// DBTX is the pgx surface shared by pool and transaction callers.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpdateSummary refreshes the cached subscription status and plan name on a
// customer. Callable with an open transaction so the summary moves atomically
// with the subscription change that caused it.
func UpdateSummary(ctx context.Context, db DBTX, tenantID, customerID int64, status, planName string) error {
	tag, err := db.Exec(ctx, `
		UPDATE customers SET subscription_status = $1, plan_name = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4 AND deleted_at IS NULL
	`, status, planName, customerID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, tenantID int64, req CreateCustomerRequest) (*Customer, error) {
	now := time.Now()
	c := Customer{TenantID: tenantID, Name: req.Name, Email: req.Email, Currency: req.Currency, CreatedAt: now, UpdatedAt: now}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, email, currency, subscription_status, plan_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', '', $5, $5) RETURNING id
	`, tenantID, req.Name, req.Email, req.Currency, now).Scan(&c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get fetches a customer within the tenant's scope.
func (r *Repository) Get(ctx context.Context, tenantID, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, currency, subscription_status, plan_name, created_at, updated_at, deleted_at
		FROM customers WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`, id, tenantID).Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Currency, &c.SubscriptionStatus, &c.PlanName, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the tenant's customers ordered by name.
func (r *Repository) List(ctx context.Context, tenantID int64, limit, offset int) ([]Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, email, currency, subscription_status, plan_name, created_at, updated_at, deleted_at
		FROM customers WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY name ASC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Currency, &c.SubscriptionStatus, &c.PlanName, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SoftDelete marks a customer deleted. Financial documents referencing the
// customer are kept; hard deletes are not supported.
func (r *Repository) SoftDelete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
