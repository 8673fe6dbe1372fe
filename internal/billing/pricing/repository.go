package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/shared"
)

// Repository provides PostgreSQL backed access to plans and pricing rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPlan fetches a plan within the tenant's scope.
func (r *Repository) GetPlan(ctx context.Context, tenantID, planID int64) (*Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM product_plans WHERE id = $1 AND tenant_id = $2
	`, planID, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrices returns every pricing row stored for a plan.
func (r *Repository) ListPrices(ctx context.Context, planID int64) ([]Price, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, plan_id, pricing_type, billing_interval, amount, per_seat_amount
		FROM plan_prices WHERE plan_id = $1 ORDER BY id
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var prices []Price
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.PlanID, &p.Type, &p.Interval, &p.Amount, &p.PerSeatAmount); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
