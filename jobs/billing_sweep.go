package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/quotes"
	"github.com/lumenhq/lumen/internal/observability"
)

// BillingSweepJob runs the periodic lifecycle housekeeping: sent quotes past
// their validity window become expired, pending invoices past their due date
// become overdue.
type BillingSweepJob struct {
	quotes   *quotes.Service
	invoices *invoices.Service
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewBillingSweepJob constructs a BillingSweepJob.
func NewBillingSweepJob(q *quotes.Service, inv *invoices.Service, metrics *observability.Metrics, logger *slog.Logger) *BillingSweepJob {
	return &BillingSweepJob{quotes: q, invoices: inv, metrics: metrics, logger: logger}
}

// Handle processes TaskTypeBillingSweep tasks. The two sweeps touch disjoint
// tables and run concurrently.
func (j *BillingSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	now := time.Now()

	var expired, overdue int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := j.quotes.ExpireDue(gctx, now)
		if err != nil {
			j.logger.Error("quote expiry sweep", "error", err)
			return err
		}
		expired = n
		return nil
	})
	g.Go(func() error {
		n, err := j.invoices.SweepOverdue(gctx, now)
		if err != nil {
			j.logger.Error("invoice overdue sweep", "error", err)
			return err
		}
		overdue = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	j.metrics.ObserveSweep("quote_expiry", expired)
	j.metrics.ObserveSweep("invoice_overdue", overdue)
	if expired > 0 || overdue > 0 {
		j.logger.Info("billing sweep done", "quotes_expired", expired, "invoices_overdue", overdue)
	}
	return nil
}
