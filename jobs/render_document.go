package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/quotes"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/shared"
	"github.com/lumenhq/lumen/report"
)

// RenderDocumentJob produces the printable PDF for a quote or invoice and
// stores the artifact path back on the document. Rendering happens after the
// triggering transition committed; a failed render leaves the document valid
// and the task is retried.
type RenderDocumentJob struct {
	quotes     *quotes.Service
	invoices   *invoices.Service
	customers  *customers.Repository
	pdf        *report.Client
	storageDir string
	logger     *slog.Logger
}

// NewRenderDocumentJob constructs a RenderDocumentJob.
func NewRenderDocumentJob(q *quotes.Service, inv *invoices.Service, cust *customers.Repository, pdf *report.Client, storageDir string, logger *slog.Logger) *RenderDocumentJob {
	return &RenderDocumentJob{quotes: q, invoices: inv, customers: cust, pdf: pdf, storageDir: storageDir, logger: logger}
}

// Handle processes TaskTypeRenderDocument tasks.
func (j *RenderDocumentJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RenderDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	ident := &shared.Identity{TenantID: payload.TenantID, ActorName: "system"}

	var html, number string
	switch payload.EntityType {
	case activity.EntityQuote:
		q, err := j.quotes.Get(ctx, ident, payload.EntityID)
		if err != nil {
			return err
		}
		customer, err := j.customers.Get(ctx, payload.TenantID, q.CustomerID)
		if err != nil {
			return err
		}
		number = q.Number
		html, err = report.BuildQuoteHTML(q, customer.Name)
		if err != nil {
			return err
		}
	case activity.EntityInvoice:
		inv, err := j.invoices.Get(ctx, ident, payload.EntityID)
		if err != nil {
			return err
		}
		customer, err := j.customers.Get(ctx, payload.TenantID, inv.CustomerID)
		if err != nil {
			return err
		}
		number = inv.Number
		html, err = report.BuildInvoiceHTML(inv, customer.Name)
		if err != nil {
			return err
		}
	default:
		j.logger.Warn("unknown render entity type", "entity_type", payload.EntityType)
		return asynq.SkipRetry
	}

	pdf, err := j.pdf.RenderHTML(ctx, html)
	if err != nil {
		return fmt.Errorf("render %s: %w", number, err)
	}

	dir := filepath.Join(j.storageDir, fmt.Sprintf("tenant-%d", payload.TenantID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, number+".pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return err
	}

	switch payload.EntityType {
	case activity.EntityQuote:
		err = j.quotes.AttachDocument(ctx, payload.TenantID, payload.EntityID, path)
	case activity.EntityInvoice:
		err = j.invoices.AttachDocument(ctx, payload.TenantID, payload.EntityID, path)
	}
	if err != nil {
		return err
	}
	j.logger.Info("rendered billing document", "number", number, "path", path)
	return nil
}
