package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/platform/db"
	"github.com/lumenhq/lumen/internal/shared"
)

// Repository is the persistence surface a subscription transition needs,
// including the activity append and customer summary refresh that must land
// in the same transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, tenantID, id int64) (*Subscription, error)
	GetForUpdate(ctx context.Context, tenantID, id int64) (*Subscription, error)
	List(ctx context.Context, tenantID int64, req ListSubscriptionsRequest) ([]Subscription, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, periodStart, periodEnd *time.Time) error
	UpdateSeats(ctx context.Context, id int64, seats, mrr int64) error
	UpdatePlan(ctx context.Context, id, planID int64, cycle pricing.Cycle, mrr int64) error
	AppendActivity(ctx context.Context, e activity.Entry) error
	UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by PostgreSQL.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const subscriptionColumns = `id, tenant_id, customer_id, plan_id, number, status, billing_cycle, current_period_start, current_period_end, mrr, seats, coupon_id, created_at, updated_at`

func (r *repository) Get(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, tenantID, id int64, suffix string) (*Subscription, error) {
	row := r.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 AND tenant_id = $2`+suffix, id, tenantID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *repository) List(ctx context.Context, tenantID int64, req ListSubscriptionsRequest) ([]Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = $1`
	args := []any{tenantID}
	if req.CustomerID != nil {
		args = append(args, *req.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if req.Status != nil {
		args = append(args, *req.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// UpdateStatus performs a compare-and-set on the status column. A losing
// concurrent writer affects zero rows and gets ErrConcurrentModification.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status, periodStart, periodEnd *time.Time) error {
	query := `UPDATE subscriptions SET status = $1, updated_at = NOW()`
	args := []any{to}
	if periodStart != nil && periodEnd != nil {
		args = append(args, *periodStart, *periodEnd)
		query += fmt.Sprintf(", current_period_start = $%d, current_period_end = $%d", len(args)-1, len(args))
	}
	args = append(args, id, from)
	query += fmt.Sprintf(" WHERE id = $%d AND status = $%d", len(args)-1, len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (r *repository) UpdateSeats(ctx context.Context, id int64, seats, mrr int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET seats = $1, mrr = $2, updated_at = NOW() WHERE id = $3`, seats, mrr, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdatePlan(ctx context.Context, id, planID int64, cycle pricing.Cycle, mrr int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET plan_id = $1, billing_cycle = $2, mrr = $3, updated_at = NOW() WHERE id = $4`, planID, cycle, mrr, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) AppendActivity(ctx context.Context, e activity.Entry) error {
	return activity.Insert(ctx, r.db, e)
}

func (r *repository) UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error {
	return customers.UpdateSummary(ctx, r.db, tenantID, customerID, status, planName)
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.TenantID, &s.CustomerID, &s.PlanID, &s.Number, &s.Status, &s.BillingCycle,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.MRR, &s.Seats, &s.CouponID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
