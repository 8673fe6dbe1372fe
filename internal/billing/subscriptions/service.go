package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
	"github.com/lumenhq/lumen/internal/shared"
)

// MRRResolver recomputes MRR from a plan's stored pricing rows.
type MRRResolver interface {
	Resolve(ctx context.Context, planID, seats int64, lineTotal *int64) (pricing.Resolution, error)
}

// PlanSource fetches plans within a tenant's scope.
type PlanSource interface {
	GetPlan(ctx context.Context, tenantID, planID int64) (*pricing.Plan, error)
}

// Service owns the subscription state machine and its side effects. Every
// transition runs in one transaction together with its activity entry.
type Service struct {
	repo     Repository
	resolver MRRResolver
	plans    PlanSource
}

// NewService builds Service instance.
func NewService(repo Repository, resolver MRRResolver, plans PlanSource) *Service {
	return &Service{repo: repo, resolver: resolver, plans: plans}
}

// Get returns a subscription within the tenant's scope.
func (s *Service) Get(ctx context.Context, ident *shared.Identity, id int64) (*Subscription, error) {
	return s.repo.Get(ctx, ident.TenantID, id)
}

// List returns the tenant's subscriptions.
func (s *Service) List(ctx context.Context, ident *shared.Identity, req ListSubscriptionsRequest) ([]Subscription, error) {
	return s.repo.List(ctx, ident.TenantID, req)
}

// Activate sets the subscription active with the given billing period bounds.
// Called by the invoice flow when a payment lands on a linked subscription.
func (s *Service) Activate(ctx context.Context, ident *shared.Identity, id int64, periodStart, periodEnd time.Time) (*Subscription, error) {
	if !periodEnd.After(periodStart) {
		return nil, shared.NewValidationError("period", "period end must be after period start")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		sub, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		next, err := Machine.Next(statemachine.State(sub.Status), EventActivate)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, sub.ID, sub.Status, Status(next), &periodStart, &periodEnd); err != nil {
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
			Metadata: map[string]any{
				"period_start": periodStart,
				"period_end":   periodEnd,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// ChangeStatus moves the subscription to the requested status. Resuming from
// paused records "resumed" rather than "activated"; the distinction matters
// when reading the trail. Canceling also downgrades the customer's cached
// subscription summary.
func (s *Service) ChangeStatus(ctx context.Context, ident *shared.Identity, id int64, newStatus Status) (*Subscription, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		sub, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		event, activityType := statusEvent(sub.Status, newStatus)
		next, err := Machine.Next(statemachine.State(sub.Status), event)
		if err != nil {
			return err
		}
		// Activating starts a fresh billing period; a resume from paused
		// keeps the bounds the subscription already has.
		var periodStart, periodEnd *time.Time
		if event == EventActivate {
			start := time.Now()
			end := NextPeriodEnd(sub.BillingCycle, start)
			periodStart, periodEnd = &start, &end
		}
		if err := repo.UpdateStatus(ctx, sub.ID, sub.Status, Status(next), periodStart, periodEnd); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntitySubscription,
			EntityID:    sub.ID,
			Type:        activityType,
			Description: fmt.Sprintf("Subscription %s %s", sub.Number, activityType),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"from": sub.Status, "to": next},
		}); err != nil {
			return err
		}
		if Status(next) == StatusCanceled {
			return repo.UpdateCustomerSummary(ctx, ident.TenantID, sub.CustomerID, string(StatusCanceled), "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// ChangeSeats updates the seat count and recomputes MRR with the new count.
// No proration happens; the new MRR simply applies going forward.
func (s *Service) ChangeSeats(ctx context.Context, ident *shared.Identity, id, newSeats int64) (*Subscription, error) {
	if newSeats <= 0 {
		return nil, shared.NewValidationError("seats", "must be positive")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		sub, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		delta := newSeats - sub.Seats
		if delta == 0 {
			return nil
		}
		res, err := s.resolver.Resolve(ctx, sub.PlanID, newSeats, nil)
		if err != nil {
			return err
		}
		if err := repo.UpdateSeats(ctx, sub.ID, newSeats, res.MRR); err != nil {
			return err
		}
		activityType := activity.TypeSeatAdded
		description := fmt.Sprintf("Added %d seat(s) to subscription %s", delta, sub.Number)
		if delta < 0 {
			activityType = activity.TypeSeatRemoved
			description = fmt.Sprintf("Removed %d seat(s) from subscription %s", -delta, sub.Number)
		}
		return repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntitySubscription,
			EntityID:    sub.ID,
			Type:        activityType,
			Description: description,
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"from": sub.Seats, "to": newSeats, "delta": delta, "mrr": res.MRR},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// ChangePlan moves the subscription to a plan of the same tenant and
// recomputes MRR against the new plan's pricing rows.
func (s *Service) ChangePlan(ctx context.Context, ident *shared.Identity, id, newPlanID int64) (*Subscription, error) {
	plan, err := s.plans.GetPlan(ctx, ident.TenantID, newPlanID)
	if err != nil {
		return nil, fmt.Errorf("verify plan: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		sub, err := repo.GetForUpdate(ctx, ident.TenantID, id)
		if err != nil {
			return err
		}
		res, err := s.resolver.Resolve(ctx, plan.ID, sub.Seats, nil)
		if err != nil {
			return err
		}
		if err := repo.UpdatePlan(ctx, sub.ID, plan.ID, res.Cycle, res.MRR); err != nil {
			return err
		}
		if err := repo.AppendActivity(ctx, activity.Entry{
			TenantID:    ident.TenantID,
			EntityType:  activity.EntitySubscription,
			EntityID:    sub.ID,
			Type:        activity.TypePlanChanged,
			Description: fmt.Sprintf("Subscription %s moved to plan %s", sub.Number, plan.Name),
			ActorID:     ident.ActorID,
			ActorName:   ident.ActorName,
			Metadata:    map[string]any{"from_plan": sub.PlanID, "to_plan": plan.ID, "mrr": res.MRR},
		}); err != nil {
			return err
		}
		return repo.UpdateCustomerSummary(ctx, ident.TenantID, sub.CustomerID, string(sub.Status), plan.Name)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ident.TenantID, id)
}

// statusEvent maps a requested target status to the machine event and the
// activity type to record.
func statusEvent(current, target Status) (statemachine.Event, activity.Type) {
	switch target {
	case StatusCanceled:
		return EventCancel, activity.TypeCanceled
	case StatusPaused:
		return EventPause, activity.TypePaused
	case StatusPastDue:
		return EventMarkPastDue, activity.TypeOverdue
	case StatusActive:
		if current == StatusPaused {
			return EventResume, activity.TypeResumed
		}
		return EventActivate, activity.TypeActivated
	}
	return statemachine.Event(string(target)), activity.TypeActivated
}
