package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/platform/db"
	"github.com/lumenhq/lumen/internal/shared"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the persistence surface for quote transitions. Accepting a
// quote creates its invoice in the same transaction, so invoice creation is
// part of the interface.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, tenantID, id int64) (*Quote, error)
	GetForUpdate(ctx context.Context, tenantID, id int64) (*Quote, error)
	List(ctx context.Context, tenantID int64, req ListQuotesRequest) ([]Quote, error)
	Create(ctx context.Context, q Quote) (int64, error)
	MarkSent(ctx context.Context, id int64, from Status, at time.Time) error
	MarkAccepted(ctx context.Context, id int64, from Status, at time.Time) error
	MarkRejected(ctx context.Context, id int64, from Status, at time.Time) error
	MarkExpired(ctx context.Context, id int64, from Status) error
	SetConverted(ctx context.Context, id int64, from Status, invoiceID int64) error
	SetDocumentPath(ctx context.Context, id int64, path string) error
	ListExpireCandidates(ctx context.Context, asOf time.Time, limit int) ([]Quote, error)
	NextVersion(ctx context.Context, tenantID, parentQuoteID int64) (int, error)

	CreateInvoice(ctx context.Context, inv invoices.Invoice) (int64, error)
	AppendActivity(ctx context.Context, e activity.Entry) error
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

const quoteColumns = `id, tenant_id, customer_id, deal_id, plan_id, number, status, subtotal, tax, total, currency, valid_until, version, parent_quote_id, sent_at, accepted_at, rejected_at, converted_invoice_id, document_path, created_at, updated_at`

func (r *repository) Get(ctx context.Context, tenantID, id int64) (*Quote, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, tenantID, id int64) (*Quote, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, tenantID, id int64, suffix string) (*Quote, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 AND tenant_id = $2`+suffix, id, tenantID)
	q, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := r.lines(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Lines = lines
	return q, nil
}

func (r *repository) lines(ctx context.Context, quoteID int64) ([]money.Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT description, quantity, unit_price, total, plan_id
		FROM quote_lines WHERE quote_id = $1 ORDER BY line_order
	`, quoteID)
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

func (r *repository) List(ctx context.Context, tenantID int64, req ListQuotesRequest) ([]Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE tenant_id = $1`
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
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotes (tenant_id, customer_id, deal_id, plan_id, number, status, subtotal, tax, total, currency, valid_until, version, parent_quote_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()) RETURNING id
	`, q.TenantID, q.CustomerID, q.DealID, q.PlanID, q.Number, q.Status,
		q.Subtotal, q.Tax, q.Total, q.Currency, q.ValidUntil, q.Version, q.ParentQuoteID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert quote: %w", err)
	}
	for i, line := range q.Lines {
		_, err := r.db.Exec(ctx, `
			INSERT INTO quote_lines (quote_id, line_order, description, quantity, unit_price, total, plan_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, i+1, line.Description, line.Quantity, line.UnitPrice, line.Total, line.PlanID)
		if err != nil {
			return 0, fmt.Errorf("insert quote line: %w", err)
		}
	}
	return id, nil
}

func (r *repository) MarkSent(ctx context.Context, id int64, from Status, at time.Time) error {
	return r.cas(ctx, `UPDATE quotes SET status = $1, sent_at = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
		StatusSent, at, id, from)
}

func (r *repository) MarkAccepted(ctx context.Context, id int64, from Status, at time.Time) error {
	return r.cas(ctx, `UPDATE quotes SET status = $1, accepted_at = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
		StatusAccepted, at, id, from)
}

func (r *repository) MarkRejected(ctx context.Context, id int64, from Status, at time.Time) error {
	return r.cas(ctx, `UPDATE quotes SET status = $1, rejected_at = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
		StatusRejected, at, id, from)
}

func (r *repository) MarkExpired(ctx context.Context, id int64, from Status) error {
	return r.cas(ctx, `UPDATE quotes SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		StatusExpired, id, from)
}

func (r *repository) SetConverted(ctx context.Context, id int64, from Status, invoiceID int64) error {
	return r.cas(ctx, `UPDATE quotes SET status = $1, converted_invoice_id = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
		StatusConverted, invoiceID, id, from)
}

// cas runs a guarded status update; zero affected rows means another writer
// moved the quote first.
func (r *repository) cas(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}

func (r *repository) SetDocumentPath(ctx context.Context, id int64, path string) error {
	_, err := r.db.Exec(ctx, `UPDATE quotes SET document_path = $1, updated_at = NOW() WHERE id = $2`, path, id)
	return err
}

// ListExpireCandidates returns sent quotes whose validity window has lapsed.
func (r *repository) ListExpireCandidates(ctx context.Context, asOf time.Time, limit int) ([]Quote, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+quoteColumns+` FROM quotes
		WHERE status = $1 AND valid_until < $2 ORDER BY valid_until ASC LIMIT $3
	`, StatusSent, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

// NextVersion returns one past the highest version in a revision chain.
func (r *repository) NextVersion(ctx context.Context, tenantID, parentQuoteID int64) (int, error) {
	var v int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM quotes
		WHERE tenant_id = $1 AND (id = $2 OR parent_quote_id = $2)
	`, tenantID, parentQuoteID).Scan(&v)
	return v, err
}

func (r *repository) CreateInvoice(ctx context.Context, inv invoices.Invoice) (int64, error) {
	return invoices.Insert(ctx, r.db, inv)
}

func (r *repository) AppendActivity(ctx context.Context, e activity.Entry) error {
	return activity.Insert(ctx, r.db, e)
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.TenantID, &q.CustomerID, &q.DealID, &q.PlanID, &q.Number, &q.Status,
		&q.Subtotal, &q.Tax, &q.Total, &q.Currency, &q.ValidUntil, &q.Version, &q.ParentQuoteID,
		&q.SentAt, &q.AcceptedAt, &q.RejectedAt, &q.ConvertedInvoiceID, &q.DocumentPath,
		&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
