// Package sequence issues human-readable document numbers scoped per tenant
// and document kind.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lumenhq/lumen/internal/shared"
)

// Kind identifies a document numbering stream.
type Kind string

const (
	KindQuote        Kind = "QUO"
	KindInvoice      Kind = "INV"
	KindSubscription Kind = "SUB"
)

// maxRetries bounds internal retries on allocation races before surfacing
// ErrConcurrentModification to the caller.
const maxRetries = 3

// DBTX is the subset of pgx the allocator needs; both a pool and a tx satisfy it.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Allocator claims per-tenant counters through an atomic upsert. Numbers are
// burned if the surrounding operation later fails; gaps are acceptable,
// duplicates are not.
type Allocator struct {
	db DBTX
}

// NewAllocator constructs an Allocator.
func NewAllocator(db DBTX) *Allocator {
	return &Allocator{db: db}
}

// Next returns the next document number for the tenant and kind, e.g.
// INV-2602-0041. The increment-and-claim is a single statement so two
// concurrent callers can never observe the same counter value.
func (a *Allocator) Next(ctx context.Context, tenantID int64, kind Kind, at time.Time) (string, error) {
	period := at.Format("200601")
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var seq int64
		err := a.db.QueryRow(ctx, `
			INSERT INTO document_sequences (tenant_id, doc_kind, period, seq)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (tenant_id, doc_kind, period)
			DO UPDATE SET seq = document_sequences.seq + 1
			RETURNING seq
		`, tenantID, string(kind), period).Scan(&seq)
		if err == nil {
			return fmt.Sprintf("%s-%s-%04d", kind, at.Format("0601"), seq), nil
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("sequence: allocate %s for tenant %d: %w", kind, tenantID, err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("sequence: allocate %s for tenant %d: %w: %w", kind, tenantID, shared.ErrConcurrentModification, lastErr)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505": // serialization failure, deadlock, unique violation
		return true
	}
	return false
}
