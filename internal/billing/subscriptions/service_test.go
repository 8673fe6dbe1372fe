package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/shared"
)

type memoryRepo struct {
	subs      map[int64]*Subscription
	entries   []activity.Entry
	summaries map[int64][2]string // customerID -> {status, plan name}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{subs: make(map[int64]*Subscription), summaries: make(map[int64][2]string)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	sub, ok := r.subs[id]
	if !ok || sub.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *memoryRepo) GetForUpdate(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	return r.Get(ctx, tenantID, id)
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, req ListSubscriptionsRequest) ([]Subscription, error) {
	var out []Subscription
	for _, sub := range r.subs {
		if sub.TenantID == tenantID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, periodStart, periodEnd *time.Time) error {
	sub := r.subs[id]
	if sub.Status != from {
		return shared.ErrConcurrentModification
	}
	sub.Status = to
	if periodStart != nil && periodEnd != nil {
		sub.CurrentPeriodStart = periodStart
		sub.CurrentPeriodEnd = periodEnd
	}
	return nil
}

func (r *memoryRepo) UpdateSeats(ctx context.Context, id int64, seats, mrr int64) error {
	r.subs[id].Seats = seats
	r.subs[id].MRR = mrr
	return nil
}

func (r *memoryRepo) UpdatePlan(ctx context.Context, id, planID int64, cycle pricing.Cycle, mrr int64) error {
	r.subs[id].PlanID = planID
	r.subs[id].BillingCycle = cycle
	r.subs[id].MRR = mrr
	return nil
}

func (r *memoryRepo) AppendActivity(ctx context.Context, e activity.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryRepo) UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error {
	r.summaries[customerID] = [2]string{status, planName}
	return nil
}

type stubResolver struct {
	perSeat int64
	cycle   pricing.Cycle
}

func (s stubResolver) Resolve(ctx context.Context, planID, seats int64, lineTotal *int64) (pricing.Resolution, error) {
	cycle := s.cycle
	if cycle == "" {
		cycle = pricing.CycleMonthly
	}
	return pricing.Resolution{MRR: s.perSeat * seats, Cycle: cycle}, nil
}

type stubPlans struct {
	plans map[int64]*pricing.Plan
}

func (s stubPlans) GetPlan(ctx context.Context, tenantID, planID int64) (*pricing.Plan, error) {
	plan, ok := s.plans[planID]
	if !ok || plan.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return plan, nil
}

var testIdent = &shared.Identity{TenantID: 1, ActorID: 9, ActorName: "ops@acme.test"}

func seedSub(repo *memoryRepo, status Status) *Subscription {
	sub := &Subscription{
		ID: 100, TenantID: 1, CustomerID: 55, PlanID: 10, Number: "SUB-2601-0001",
		Status: status, BillingCycle: pricing.CycleMonthly, MRR: 10000, Seats: 10,
	}
	repo.subs[sub.ID] = sub
	return sub
}

func TestNextPeriodEnd(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), NextPeriodEnd(pricing.CycleMonthly, anchor))
	require.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), NextPeriodEnd(pricing.CycleYearly, anchor))
}

func TestActivateSetsPeriodAndRecordsActivity(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusTrial)
	svc := NewService(repo, stubResolver{perSeat: 1000}, stubPlans{})

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := NextPeriodEnd(pricing.CycleMonthly, start)
	sub, err := svc.Activate(context.Background(), testIdent, 100, start, end)
	require.NoError(t, err)
	require.Equal(t, StatusActive, sub.Status)
	require.Equal(t, start, *sub.CurrentPeriodStart)
	require.Equal(t, end, *sub.CurrentPeriodEnd)
	require.True(t, sub.CurrentPeriodEnd.After(*sub.CurrentPeriodStart))

	require.Len(t, repo.entries, 1)
	require.Equal(t, activity.TypeActivated, repo.entries[0].Type)
	require.Equal(t, activity.EntitySubscription, repo.entries[0].EntityType)
}

func TestActivateRejectsInvertedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusTrial)
	svc := NewService(repo, stubResolver{}, stubPlans{})

	at := time.Now()
	_, err := svc.Activate(context.Background(), testIdent, 100, at, at)
	var validationErr *shared.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestResumeFromPausedRecordsResumed(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusPaused)
	svc := NewService(repo, stubResolver{}, stubPlans{})

	sub, err := svc.ChangeStatus(context.Background(), testIdent, 100, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, sub.Status)
	require.Len(t, repo.entries, 1)
	require.Equal(t, activity.TypeResumed, repo.entries[0].Type)
}

func TestChangeStatusToActiveStartsFreshPeriod(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusTrial)
	svc := NewService(repo, stubResolver{}, stubPlans{})

	sub, err := svc.ChangeStatus(context.Background(), testIdent, 100, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.True(t, sub.CurrentPeriodEnd.After(*sub.CurrentPeriodStart))
	require.WithinDuration(t, time.Now().AddDate(0, 1, 0), *sub.CurrentPeriodEnd, time.Minute)
}

func TestResumeFromPausedKeepsPeriodBounds(t *testing.T) {
	repo := newMemoryRepo()
	sub := seedSub(repo, StatusPaused)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := NextPeriodEnd(pricing.CycleMonthly, start)
	sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end
	svc := NewService(repo, stubResolver{}, stubPlans{})

	resumed, err := svc.ChangeStatus(context.Background(), testIdent, 100, StatusActive)
	require.NoError(t, err)
	require.Equal(t, start, *resumed.CurrentPeriodStart)
	require.Equal(t, end, *resumed.CurrentPeriodEnd)
}

func TestCancelUpdatesCustomerSummary(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	svc := NewService(repo, stubResolver{}, stubPlans{})

	sub, err := svc.ChangeStatus(context.Background(), testIdent, 100, StatusCanceled)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, sub.Status)
	require.Equal(t, [2]string{"canceled", ""}, repo.summaries[55])
	require.Len(t, repo.entries, 1)
	require.Equal(t, activity.TypeCanceled, repo.entries[0].Type)
}

func TestCancelFromCanceledFails(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusCanceled)
	svc := NewService(repo, stubResolver{}, stubPlans{})

	_, err := svc.ChangeStatus(context.Background(), testIdent, 100, StatusCanceled)
	var transitionErr *shared.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, "canceled", transitionErr.State)
	require.Empty(t, repo.entries)
}

func TestChangeSeatsRecomputesMRR(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	svc := NewService(repo, stubResolver{perSeat: 1000}, stubPlans{})

	sub, err := svc.ChangeSeats(context.Background(), testIdent, 100, 15)
	require.NoError(t, err)
	require.Equal(t, int64(15), sub.Seats)
	require.Equal(t, int64(15000), sub.MRR)
	require.Len(t, repo.entries, 1)
	require.Equal(t, activity.TypeSeatAdded, repo.entries[0].Type)
	require.Contains(t, repo.entries[0].Description, "5 seat(s)")
}

func TestChangeSeatsDownRecordsSeatRemoved(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	svc := NewService(repo, stubResolver{perSeat: 1000}, stubPlans{})

	sub, err := svc.ChangeSeats(context.Background(), testIdent, 100, 4)
	require.NoError(t, err)
	require.Equal(t, int64(4000), sub.MRR)
	require.Equal(t, activity.TypeSeatRemoved, repo.entries[0].Type)
	require.Contains(t, repo.entries[0].Description, "6 seat(s)")
}

func TestChangeSeatsNoopOnSameCount(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	svc := NewService(repo, stubResolver{perSeat: 1000}, stubPlans{})

	_, err := svc.ChangeSeats(context.Background(), testIdent, 100, 10)
	require.NoError(t, err)
	require.Empty(t, repo.entries)
}

func TestChangePlanValidatesTenantScope(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	plans := stubPlans{plans: map[int64]*pricing.Plan{
		20: {ID: 20, TenantID: 2, Name: "Scale"},
	}}
	svc := NewService(repo, stubResolver{perSeat: 2000}, plans)

	_, err := svc.ChangePlan(context.Background(), testIdent, 100, 20)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestChangePlanRecomputesAndUpdatesSummary(t *testing.T) {
	repo := newMemoryRepo()
	seedSub(repo, StatusActive)
	plans := stubPlans{plans: map[int64]*pricing.Plan{
		20: {ID: 20, TenantID: 1, Name: "Scale"},
	}}
	svc := NewService(repo, stubResolver{perSeat: 2000}, plans)

	sub, err := svc.ChangePlan(context.Background(), testIdent, 100, 20)
	require.NoError(t, err)
	require.Equal(t, int64(20), sub.PlanID)
	require.Equal(t, int64(20000), sub.MRR)
	require.Len(t, repo.entries, 1)
	require.Equal(t, activity.TypePlanChanged, repo.entries[0].Type)
	require.Equal(t, [2]string{"active", "Scale"}, repo.summaries[55])
}
