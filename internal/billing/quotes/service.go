package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
	"github.com/lumenhq/lumen/internal/sequence"
	"github.com/lumenhq/lumen/internal/shared"
)

// invoiceTerm is how long a converted invoice stays payable before it is due.
const invoiceTerm = 14 * 24 * time.Hour

// NumberAllocator issues document numbers.
type NumberAllocator interface {
	Next(ctx context.Context, tenantID int64, kind sequence.Kind, at time.Time) (string, error)
}

// RenderEnqueuer schedules background document rendering. Enqueue failures
// never roll back a committed transition.
type RenderEnqueuer interface {
	EnqueueRender(ctx context.Context, tenantID int64, entityType string, entityID int64) error
}

// Service owns quote transitions. Acceptance converts the quote into a
// pending invoice atomically.
type Service struct {
	repo      Repository
	allocator NumberAllocator
	renders   RenderEnqueuer
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, allocator NumberAllocator, renders RenderEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, allocator: allocator, renders: renders, logger: logger}
}

// Get returns a quote within the tenant's scope.
func (s *Service) Get(ctx context.Context, ident *shared.Identity, id int64) (*Quote, error) {
	return s.repo.Get(ctx, ident.TenantID, id)
}

// List returns the tenant's quotes.
func (s *Service) List(ctx context.Context, ident *shared.Identity, req ListQuotesRequest) ([]Quote, error) {
	return s.repo.List(ctx, ident.TenantID, req)
}

// Create canonicalizes the submitted lines, allocates a quote number and
// stores the draft. A parent quote id starts a revision chain and bumps the
// version past the chain's highest.
func (s *Service) Create(ctx context.Context, ident *shared.Identity, req CreateQuoteRequest) (*Quote, error) {
	inputs := make([]money.LineItemInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		inputs = append(inputs, money.LineItemInput{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.Total,
			PlanID:      l.PlanID,
		})
	}
	doc, err := money.Canonicalize(inputs, req.Tax)
	if err != nil {
		return nil, err
	}
	if !req.ValidUntil.After(time.Now()) {
		return nil, shared.NewValidationError("valid_until", "must be in the future")
	}

	now := time.Now()
	number, err := s.allocator.Next(ctx, ident.TenantID, sequence.KindQuote, now)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		version := 1
		if req.ParentQuoteID != nil {
			version, err = repo.NextVersion(ctx, ident.TenantID, *req.ParentQuoteID)
			if err != nil {
				return err
			}
		}
		id, err = repo.Create(ctx, Quote{
			TenantID:      ident.TenantID,
			CustomerID:    req.CustomerID,
			DealID:        req.DealID,
			PlanID:        req.PlanID,
			Number:        number,
			Status:        StatusDraft,
			Lines:         doc.Lines,
			Subtotal:      doc.Subtotal,
			Tax:           doc.Tax,
			Total:         doc.Total,
			Currency:      req.Currency,
			ValidUntil:    req.ValidUntil,
			Version:       version,
			ParentQuoteID: req.ParentQuoteID,
		})
		if err != nil {
			return err
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityQuote,
			EntityID:    id,
			Type:        activity.TypeCreated,
			Description: fmt.Sprintf("Quote %s created", number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"total": doc.Total, "currency": req.Currency, "version": version},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// Send marks a draft quote as sent and schedules the document render.
func (s *Service) Send(ctx context.Context, ident *shared.Identity, id int64) (*Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := Machine.Next(statemachine.State(q.Status), EventSend); err != nil {
			return err
		}
		now := time.Now()
		if err := repo.MarkSent(ctx, q.ID, q.Status, now); err != nil {
			return err
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityQuote,
			EntityID:    q.ID,
			Type:        activity.TypeSent,
			Description: fmt.Sprintf("Quote %s sent to customer", q.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
		})
	})
	if err != nil {
		return nil, err
	}
	s.enqueueRender(ctx, ident.TenantID, activity.EntityQuote, id)
	return s.repo.Get(ctx, ident.TenantID, id)
}

// Accept records acceptance and converts the quote into a pending invoice in
// the same transaction. The invoice copies the quote's canonical lines and
// amounts; its due date is the issue date plus the payment term.
func (s *Service) Accept(ctx context.Context, ident *shared.Identity, id int64) (*Quote, error) {
	now := time.Now()
	number, err := s.allocator.Next(ctx, ident.TenantID, sequence.KindInvoice, now)
	if err != nil {
		return nil, err
	}

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := Machine.Next(statemachine.State(q.Status), EventAccept); err != nil {
			return err
		}
		if err := repo.MarkAccepted(ctx, q.ID, q.Status, now); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityQuote,
			EntityID:    q.ID,
			Type:        activity.TypeAccepted,
			Description: fmt.Sprintf("Quote %s accepted", q.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
		}); err != nil {
			return err
		}

		invoiceID, err = repo.CreateInvoice(ctx, invoices.Invoice{
			TenantID:   ident.TenantID,
			CustomerID: q.CustomerID,
			QuoteID:    &q.ID,
			Number:     number,
			Status:     invoices.StatusPending,
			Subtotal:   q.Subtotal,
			Tax:        q.Tax,
			Total:      q.Total,
			Currency:   q.Currency,
			IssuedAt:   now,
			DueAt:      now.Add(invoiceTerm),
			Lines:      q.Lines,
		})
		if err != nil {
			return err
		}
		if err := repo.SetConverted(ctx, q.ID, StatusAccepted, invoiceID); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityQuote,
			EntityID:    q.ID,
			Type:        activity.TypeConverted,
			Description: fmt.Sprintf("Quote %s converted to invoice %s", q.Number, number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"invoice_id": invoiceID},
		}); err != nil {
			return err
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityInvoice,
			EntityID:    invoiceID,
			Type:        activity.TypeCreated,
			Description: fmt.Sprintf("Invoice %s created from quote %s", number, q.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"quote_id": q.ID, "total": q.Total, "currency": q.Currency},
		})
	})
	if err != nil {
		return nil, err
	}
	s.enqueueRender(ctx, ident.TenantID, activity.EntityInvoice, invoiceID)
	return s.repo.Get(ctx, ident.TenantID, id)
}

// Reject records the customer declining the quote.
func (s *Service) Reject(ctx context.Context, ident *shared.Identity, id int64) (*Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := Machine.Next(statemachine.State(q.Status), EventReject); err != nil {
			return err
		}
		now := time.Now()
		if err := repo.MarkRejected(ctx, q.ID, q.Status, now); err != nil {
			return err
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityQuote,
			EntityID:    q.ID,
			Type:        activity.TypeRejected,
			Description: fmt.Sprintf("Quote %s rejected", q.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// ExpireDue marks sent quotes past their validity window as expired. Run by
// the background worker. Expiry is soft: an expired quote can still be
// accepted or rejected.
func (s *Service) ExpireDue(ctx context.Context, asOf time.Time) (int, error) {
	candidates, err := s.repo.ListExpireCandidates(ctx, asOf, 500)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, candidate := range candidates {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			q, err := repo.GetForUpdate(ctx, candidate.TenantID, candidate.ID)
			if err != nil {
				return err
			}
			if q.Status != StatusSent || !q.ValidUntil.Before(asOf) {
				return nil
			}
			if err := repo.MarkExpired(ctx, q.ID, q.Status); err != nil {
				return err
			}
			return repo.AppendActivity(ctx, activity.Entry{
				TenantID:    q.TenantID,
				EntityType:  activity.EntityQuote,
				EntityID:    q.ID,
				Type:        activity.TypeExpired,
				Description: fmt.Sprintf("Quote %s expired on %s", q.Number, q.ValidUntil.Format("2006-01-02")),
				ActorName:   "system",
			})
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// AttachDocument stores the rendered artifact path for a quote.
func (s *Service) AttachDocument(ctx context.Context, tenantID, id int64, path string) error {
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.SetDocumentPath(ctx, id, path)
}

func (s *Service) enqueueRender(ctx context.Context, tenantID int64, entityType string, entityID int64) {
	if s.renders == nil {
		return
	}
	if err := s.renders.EnqueueRender(ctx, tenantID, entityType, entityID); err != nil {
		s.logger.Warn("enqueue document render", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
