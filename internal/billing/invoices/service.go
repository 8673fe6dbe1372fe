package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
	"github.com/lumenhq/lumen/internal/billing/subscriptions"
	"github.com/lumenhq/lumen/internal/sequence"
	"github.com/lumenhq/lumen/internal/shared"
)

// MRRResolver recomputes MRR from a plan's stored pricing rows; the invoice
// line's own total serves as fallback for quote-sourced bespoke pricing.
type MRRResolver interface {
	Resolve(ctx context.Context, planID, seats int64, lineTotal *int64) (pricing.Resolution, error)
}

// PlanSource fetches plans within a tenant's scope.
type PlanSource interface {
	GetPlan(ctx context.Context, tenantID, planID int64) (*pricing.Plan, error)
}

// NumberAllocator issues document numbers.
type NumberAllocator interface {
	Next(ctx context.Context, tenantID int64, kind sequence.Kind, at time.Time) (string, error)
}

// Service owns invoice transitions. Paying an invoice is the trigger point
// for subscription creation and activation; everything a payment implies is
// committed in one transaction.
type Service struct {
	repo      Repository
	resolver  MRRResolver
	plans     PlanSource
	allocator NumberAllocator
}

// NewService builds Service instance.
func NewService(repo Repository, resolver MRRResolver, plans PlanSource, allocator NumberAllocator) *Service {
	return &Service{repo: repo, resolver: resolver, plans: plans, allocator: allocator}
}

// Get returns an invoice within the tenant's scope.
func (s *Service) Get(ctx context.Context, ident *shared.Identity, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, ident.TenantID, id)
}

// List returns the tenant's invoices.
func (s *Service) List(ctx context.Context, ident *shared.Identity, req ListInvoicesRequest) ([]Invoice, error) {
	return s.repo.List(ctx, ident.TenantID, req)
}

// Pay marks the invoice paid and performs the subscription side effects. An
// invoice linked to a subscription re-activates it with a fresh billing
// period; an unlinked invoice spawns a new, immediately active subscription
// for every line item that references a product plan.
func (s *Service) Pay(ctx context.Context, ident *shared.Identity, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusPaid:
			return fmt.Errorf("invoice %s: %w", inv.Number, shared.ErrAlreadyPaid)
		case StatusCanceled:
			return fmt.Errorf("invoice %s: %w", inv.Number, shared.ErrCanceledInvoice)
		}
		if _, err := Machine.Next(statemachine.State(inv.Status), EventPay); err != nil {
			return err
		}

		now := time.Now()
		if err := repo.MarkPaid(ctx, inv.ID, inv.Status, now); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityInvoice,
			EntityID:    inv.ID,
			Type:        activity.TypeInvoicePaid,
			Description: fmt.Sprintf("Invoice %s paid", inv.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"total": inv.Total, "currency": inv.Currency},
		}); err != nil {
			return err
		}

		if inv.SubscriptionID != nil {
			return s.activateLinked(ctx, repo, ident, inv, now)
		}
		return s.spawnSubscriptions(ctx, repo, ident, inv, now)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

func (s *Service) activateLinked(ctx context.Context, repo Repository, ident *shared.Identity, inv *Invoice, now time.Time) error {
	sub, err := repo.GetSubscriptionForUpdate(ctx, ident.TenantID, *inv.SubscriptionID)
	if err != nil {
		return fmt.Errorf("linked subscription: %w", err)
	}
	if _, err := subscriptions.Machine.Next(statemachine.State(sub.Status), subscriptions.EventActivate); err != nil {
		return err
	}
	periodEnd := subscriptions.NextPeriodEnd(sub.BillingCycle, now)
	if err := repo.ActivateSubscription(ctx, sub.ID, sub.Status, now, periodEnd); err != nil {
		return err
	}
	return repo.AppendActivity(ctx, activity.Entry{
		TenantID:    ident.TenantID,
		EntityType:  activity.EntitySubscription,
		EntityID:    sub.ID,
		Type:        activity.TypeActivated,
		Description: fmt.Sprintf("Subscription %s activated until %s", sub.Number, periodEnd.Format("2006-01-02")),
		ActorID:     ident.ActorID,
		ActorName:   ident.ActorName,
		Metadata:    map[string]any{"period_start": now, "period_end": periodEnd, "invoice_id": inv.ID},
	})
}

// spawnSubscriptions seeds a new subscription from every plan-bearing line.
// The customer's cached summary reflects the last subscription created when
// an invoice carries several plan lines.
func (s *Service) spawnSubscriptions(ctx context.Context, repo Repository, ident *shared.Identity, inv *Invoice, now time.Time) error {
	var lastPlanName string
	created := false
	for _, line := range inv.Lines {
		if line.PlanID == nil {
			continue
		}
		lineTotal := line.Total
		res, err := s.resolver.Resolve(ctx, *line.PlanID, line.Quantity, &lineTotal)
		if err != nil {
			return err
		}
		plan, err := s.plans.GetPlan(ctx, ident.TenantID, *line.PlanID)
		if err != nil {
			return fmt.Errorf("verify plan: %w", err)
		}
		number, err := s.allocator.Next(ctx, ident.TenantID, sequence.KindSubscription, now)
		if err != nil {
			return err
		}
		periodStart := now
		periodEnd := subscriptions.NextPeriodEnd(res.Cycle, now)
		subID, err := repo.CreateSubscription(ctx, subscriptions.Subscription{
			TenantID:           ident.TenantID,
			CustomerID:         inv.CustomerID,
			PlanID:             plan.ID,
			Number:             number,
			Status:             subscriptions.StatusActive,
			BillingCycle:       res.Cycle,
			CurrentPeriodStart: &periodStart,
			CurrentPeriodEnd:   &periodEnd,
			MRR:                res.MRR,
			Seats:              line.Quantity,
		})
		if err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntitySubscription,
			EntityID:    subID,
			Type:        activity.TypeCreated,
			Description: fmt.Sprintf("Subscription %s created for plan %s", number, plan.Name),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"invoice_id": inv.ID, "plan_id": plan.ID, "seats": line.Quantity, "mrr": res.MRR},
		}); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntitySubscription,
			EntityID:    subID,
			Type:        activity.TypeActivated,
			Description: fmt.Sprintf("Subscription %s activated until %s", number, periodEnd.Format("2006-01-02")),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"period_start": periodStart, "period_end": periodEnd},
		}); err != nil {
			return err
		}
		lastPlanName = plan.Name
		created = true
	}
	if !created {
		return nil
	}
	return repo.UpdateCustomerSummary(ctx, ident.TenantID, inv.CustomerID, string(subscriptions.StatusActive), lastPlanName)
}

// Cancel voids an invoice. Paid invoices cannot be canceled.
func (s *Service) Cancel(ctx context.Context, ident *shared.Identity, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		next, err := Machine.Next(statemachine.State(inv.Status), EventCancel)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, inv.ID, inv.Status, Status(next)); err != nil {
			return err
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntityInvoice,
			EntityID:    inv.ID,
			Type:        activity.TypeCanceled,
			Description: fmt.Sprintf("Invoice %s canceled", inv.Number),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// SweepOverdue marks pending invoices past their due date as overdue. Run by
// the background worker; the transition is non-terminal, an overdue invoice
// can still be paid or canceled.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	candidates, err := s.repo.ListOverdueCandidates(ctx, asOf, 500)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, candidate := range candidates {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			inv, err := repo.GetForUpdate(ctx, candidate.TenantID, candidate.ID)
			if err != nil {
				return err
			}
			if inv.Status != StatusPending || !inv.DueAt.Before(asOf) {
				return nil
			}
			if err := repo.UpdateStatus(ctx, inv.ID, inv.Status, StatusOverdue); err != nil {
				return err
			}
			return repo.AppendActivity(ctx, activity.Entry{
				TenantID:    inv.TenantID,
				EntityType:  activity.EntityInvoice,
				EntityID:    inv.ID,
				Type:        activity.TypeOverdue,
				Description: fmt.Sprintf("Invoice %s overdue since %s", inv.Number, inv.DueAt.Format("2006-01-02")),
				ActorName:   "system",
			})
		})
		if err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// AttachDocument stores the rendered artifact path for an invoice. Called by
// the render worker after the transition that requested it already committed.
func (s *Service) AttachDocument(ctx context.Context, tenantID, id int64, path string) error {
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.SetDocumentPath(ctx, id, path)
}
