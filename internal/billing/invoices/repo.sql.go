package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/subscriptions"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/platform/db"
	"github.com/lumenhq/lumen/internal/shared"
)

// DBTX is the pgx surface shared by pool and transaction callers.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert writes an invoice and its lines. Exported at package level so the
// quote acceptance flow can create the linked invoice inside its own
// transaction.
func Insert(ctx context.Context, dbx DBTX, inv Invoice) (int64, error) {
	var id int64
	err := dbx.QueryRow(ctx, `
		INSERT INTO invoices (tenant_id, customer_id, subscription_id, quote_id, number, status, subtotal, tax, total, currency, issued_at, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()) RETURNING id
	`, inv.TenantID, inv.CustomerID, inv.SubscriptionID, inv.QuoteID, inv.Number, inv.Status,
		inv.Subtotal, inv.Tax, inv.Total, inv.Currency, inv.IssuedAt, inv.DueAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	for i, line := range inv.Lines {
		_, err := dbx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_order, description, quantity, unit_price, total, plan_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, i+1, line.Description, line.Quantity, line.UnitPrice, line.Total, line.PlanID)
		if err != nil {
			return 0, fmt.Errorf("insert invoice line: %w", err)
		}
	}
	return id, nil
}

// Repository is the persistence surface an invoice transition needs. Paying
// an invoice touches subscriptions and the customer summary, so those writes
// are part of the same interface and land in the same transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, tenantID, id int64) (*Invoice, error)
	GetForUpdate(ctx context.Context, tenantID, id int64) (*Invoice, error)
	List(ctx context.Context, tenantID int64, req ListInvoicesRequest) ([]Invoice, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	MarkPaid(ctx context.Context, id int64, from Status, paidAt time.Time) error
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	SetDocumentPath(ctx context.Context, id int64, path string) error
	ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)

	GetSubscriptionForUpdate(ctx context.Context, tenantID, id int64) (*subscriptions.Subscription, error)
	ActivateSubscription(ctx context.Context, id int64, from subscriptions.Status, periodStart, periodEnd time.Time) error
	CreateSubscription(ctx context.Context, sub subscriptions.Subscription) (int64, error)
	AppendActivity(ctx context.Context, e activity.Entry) error
	UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error
}

type repository struct {
	db   DBTX
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

const invoiceColumns = `id, tenant_id, customer_id, subscription_id, quote_id, number, status, subtotal, tax, total, currency, issued_at, due_at, paid_at, document_path, created_at, updated_at`

func (r *repository) Get(ctx context.Context, tenantID, id int64) (*Invoice, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, tenantID, id int64) (*Invoice, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, tenantID, id int64, suffix string) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND tenant_id = $2`+suffix, id, tenantID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := r.lines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *repository) lines(ctx context.Context, invoiceID int64) ([]money.Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT description, quantity, unit_price, total, plan_id
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_order
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []money.Line
	for rows.Next() {
		var l money.Line
		if err := rows.Scan(&l.Description, &l.Quantity, &l.UnitPrice, &l.Total, &l.PlanID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, tenantID int64, req ListInvoicesRequest) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = $1`
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
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	return Insert(ctx, r.db, inv)
}

// MarkPaid performs a compare-and-set from the observed status; a losing
// concurrent writer affects zero rows and gets ErrConcurrentModification.
func (r *repository) MarkPaid(ctx context.Context, id int64, from Status, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET status = $1, paid_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, StatusPaid, paidAt, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (r *repository) SetDocumentPath(ctx context.Context, id int64, path string) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET document_path = $1, updated_at = NOW() WHERE id = $2`, path, id)
	return err
}

// ListOverdueCandidates returns pending invoices past their due date.
func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status = $1 AND due_at < $2 ORDER BY due_at ASC LIMIT $3
	`, StatusPending, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *repository) GetSubscriptionForUpdate(ctx context.Context, tenantID, id int64) (*subscriptions.Subscription, error) {
	var s subscriptions.Subscription
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, customer_id, plan_id, number, status, billing_cycle, current_period_start, current_period_end, mrr, seats, coupon_id, created_at, updated_at
		FROM subscriptions WHERE id = $1 AND tenant_id = $2 FOR UPDATE
	`, id, tenantID).Scan(&s.ID, &s.TenantID, &s.CustomerID, &s.PlanID, &s.Number, &s.Status, &s.BillingCycle,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.MRR, &s.Seats, &s.CouponID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) ActivateSubscription(ctx context.Context, id int64, from subscriptions.Status, periodStart, periodEnd time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions SET status = $1, current_period_start = $2, current_period_end = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, subscriptions.StatusActive, periodStart, periodEnd, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub subscriptions.Subscription) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO subscriptions (tenant_id, customer_id, plan_id, number, status, billing_cycle, current_period_start, current_period_end, mrr, seats, coupon_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()) RETURNING id
	`, sub.TenantID, sub.CustomerID, sub.PlanID, sub.Number, sub.Status, sub.BillingCycle,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.MRR, sub.Seats, sub.CouponID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return id, nil
}

func (r *repository) AppendActivity(ctx context.Context, e activity.Entry) error {
	return activity.Insert(ctx, r.db, e)
}

func (r *repository) UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error {
	return customers.UpdateSummary(ctx, r.db, tenantID, customerID, status, planName)
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.SubscriptionID, &inv.QuoteID, &inv.Number, &inv.Status,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.Currency, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt, &inv.DocumentPath,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
