package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
	"github.com/lumenhq/lumen/internal/billing/subscriptions"
	"github.com/lumenhq/lumen/internal/sequence"
	"github.com/lumenhq/lumen/internal/shared"
)

type memoryRepo struct {
	invoices  map[int64]*Invoice
	subs      map[int64]*subscriptions.Subscription
	entries   []activity.Entry
	summaries map[int64]string
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:  map[int64]*Invoice{},
		subs:      map[int64]*subscriptions.Subscription{},
		summaries: map[int64]string{},
		nextID:    100,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, tenantID, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, tenantID, id int64) (*Invoice, error) {
	return m.Get(ctx, tenantID, id)
}

func (m *memoryRepo) List(ctx context.Context, tenantID int64, req ListInvoicesRequest) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(ctx context.Context, inv Invoice) (int64, error) {
	m.nextID++
	inv.ID = m.nextID
	m.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (m *memoryRepo) MarkPaid(ctx context.Context, id int64, from Status, paidAt time.Time) error {
	inv := m.invoices[id]
	if inv.Status != from {
		return shared.ErrConcurrentModification
	}
	inv.Status = StatusPaid
	inv.PaidAt = &paidAt
	return nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	inv := m.invoices[id]
	if inv.Status != from {
		return shared.ErrConcurrentModification
	}
	inv.Status = to
	return nil
}

func (m *memoryRepo) SetDocumentPath(ctx context.Context, id int64, path string) error {
	m.invoices[id].DocumentPath = &path
	return nil
}

func (m *memoryRepo) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.Status == StatusPending && inv.DueAt.Before(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetSubscriptionForUpdate(ctx context.Context, tenantID, id int64) (*subscriptions.Subscription, error) {
	sub, ok := m.subs[id]
	if !ok || sub.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *memoryRepo) ActivateSubscription(ctx context.Context, id int64, from subscriptions.Status, periodStart, periodEnd time.Time) error {
	sub := m.subs[id]
	if sub.Status != from {
		return shared.ErrConcurrentModification
	}
	sub.Status = subscriptions.StatusActive
	sub.CurrentPeriodStart = &periodStart
	sub.CurrentPeriodEnd = &periodEnd
	return nil
}

func (m *memoryRepo) CreateSubscription(ctx context.Context, sub subscriptions.Subscription) (int64, error) {
	m.nextID++
	sub.ID = m.nextID
	m.subs[sub.ID] = &sub
	return sub.ID, nil
}

func (m *memoryRepo) AppendActivity(ctx context.Context, e activity.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRepo) UpdateCustomerSummary(ctx context.Context, tenantID, customerID int64, status, planName string) error {
	m.summaries[customerID] = status + "/" + planName
	return nil
}

func (m *memoryRepo) entriesFor(entityType string, entityID int64) []activity.Entry {
	var out []activity.Entry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

type stubResolver struct {
	perSeat int64
	cycle   pricing.Cycle
	err     error
}

func (s stubResolver) Resolve(ctx context.Context, planID, seats int64, lineTotal *int64) (pricing.Resolution, error) {
	if s.err != nil {
		return pricing.Resolution{}, s.err
	}
	cycle := s.cycle
	if cycle == "" {
		cycle = pricing.CycleMonthly
	}
	if s.perSeat == 0 && lineTotal != nil {
		return pricing.Resolution{MRR: *lineTotal, Cycle: cycle}, nil
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

type stubAllocator struct {
	n int
}

func (s *stubAllocator) Next(ctx context.Context, tenantID int64, kind sequence.Kind, at time.Time) (string, error) {
	s.n++
	return fmt.Sprintf("%s-2602-%04d", kind, s.n), nil
}

var testIdent = &shared.Identity{TenantID: 1, ActorID: 7, ActorName: "Dana Reyes"}

func seedInvoice(repo *memoryRepo, status Status, subID *int64, lines []money.Line) *Invoice {
	repo.nextID++
	inv := &Invoice{
		ID:             repo.nextID,
		TenantID:       1,
		CustomerID:     42,
		SubscriptionID: subID,
		Number:         fmt.Sprintf("INV-2602-%04d", repo.nextID),
		Status:         status,
		Subtotal:       10000,
		Tax:            0,
		Total:          10000,
		Currency:       "EUR",
		IssuedAt:       time.Now().Add(-48 * time.Hour),
		DueAt:          time.Now().Add(14 * 24 * time.Hour),
		Lines:          lines,
	}
	repo.invoices[inv.ID] = inv
	return inv
}

func newTestService(repo *memoryRepo) *Service {
	plans := stubPlans{plans: map[int64]*pricing.Plan{
		5: {ID: 5, TenantID: 1, Name: "Scale", Active: true},
		6: {ID: 6, TenantID: 1, Name: "Enterprise", Active: true},
	}}
	return NewService(repo, stubResolver{perSeat: 1200}, plans, &stubAllocator{})
}

func TestPayPendingInvoice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, nil)

	paid, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	entries := repo.entriesFor(activity.EntityInvoice, inv.ID)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeInvoicePaid, entries[0].Type)
	require.Equal(t, "Dana Reyes", entries[0].ActorName)
}

func TestPayTwiceReturnsAlreadyPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, nil)

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)

	_, err = svc.Pay(context.Background(), testIdent, inv.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyPaid)
	require.Len(t, repo.entriesFor(activity.EntityInvoice, inv.ID), 1)
}

// raceRepo simulates a concurrent writer that marks the invoice paid between
// the row read and the compare-and-set.
type raceRepo struct {
	*memoryRepo
}

func (r *raceRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *raceRepo) GetForUpdate(ctx context.Context, tenantID, id int64) (*Invoice, error) {
	inv, err := r.memoryRepo.GetForUpdate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	r.invoices[id].Status = StatusPaid
	r.invoices[id].PaidAt = &now
	return inv, nil
}

func TestPayLosingRacerGetsConcurrentModification(t *testing.T) {
	repo := newMemoryRepo()
	inv := seedInvoice(repo, StatusPending, nil, nil)
	svc := NewService(&raceRepo{memoryRepo: repo}, stubResolver{perSeat: 1200}, stubPlans{}, &stubAllocator{})

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	require.Empty(t, repo.entries)
	require.Equal(t, StatusPaid, repo.invoices[inv.ID].Status)
}

func TestPayCanceledInvoiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusCanceled, nil, nil)

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.ErrorIs(t, err, shared.ErrCanceledInvoice)
	require.Empty(t, repo.entries)
}

func TestPayOverdueInvoiceStillWorks(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusOverdue, nil, nil)

	paid, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
}

func TestPayActivatesLinkedSubscription(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	repo.subs[9] = &subscriptions.Subscription{
		ID: 9, TenantID: 1, CustomerID: 42, PlanID: 5,
		Number: "SUB-2602-0009", Status: subscriptions.StatusPastDue,
		BillingCycle: pricing.CycleMonthly, Seats: 3, MRR: 3600,
	}
	subID := int64(9)
	inv := seedInvoice(repo, StatusPending, &subID, nil)

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)

	sub := repo.subs[9]
	require.Equal(t, subscriptions.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.WithinDuration(t, time.Now().AddDate(0, 1, 0), *sub.CurrentPeriodEnd, time.Minute)

	subEntries := repo.entriesFor(activity.EntitySubscription, 9)
	require.Len(t, subEntries, 1)
	require.Equal(t, activity.TypeActivated, subEntries[0].Type)
}

func TestPayLinkedCanceledSubscriptionFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	repo.subs[9] = &subscriptions.Subscription{
		ID: 9, TenantID: 1, CustomerID: 42, PlanID: 5,
		Number: "SUB-2602-0009", Status: subscriptions.StatusCanceled,
		BillingCycle: pricing.CycleMonthly,
	}
	subID := int64(9)
	inv := seedInvoice(repo, StatusPending, &subID, nil)

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}

func TestPaySpawnsSubscriptionFromPlanLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	planID := int64(5)
	inv := seedInvoice(repo, StatusPending, nil, []money.Line{
		{Description: "Scale plan, 10 seats", Quantity: 10, UnitPrice: 1200, Total: 12000, PlanID: &planID},
	})

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)

	require.Len(t, repo.subs, 1)
	for _, sub := range repo.subs {
		require.Equal(t, subscriptions.StatusActive, sub.Status)
		require.Equal(t, int64(10), sub.Seats)
		require.Equal(t, int64(12000), sub.MRR)
		require.Equal(t, planID, sub.PlanID)
		require.NotNil(t, sub.CurrentPeriodEnd)

		entries := repo.entriesFor(activity.EntitySubscription, sub.ID)
		require.Len(t, entries, 2)
		require.Equal(t, activity.TypeCreated, entries[0].Type)
		require.Equal(t, activity.TypeActivated, entries[1].Type)
	}
	require.Equal(t, "active/Scale", repo.summaries[42])
}

func TestPayMultiplePlanLinesLastSummaryWins(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	scale, enterprise := int64(5), int64(6)
	inv := seedInvoice(repo, StatusPending, nil, []money.Line{
		{Description: "Scale", Quantity: 5, UnitPrice: 1200, Total: 6000, PlanID: &scale},
		{Description: "Enterprise", Quantity: 20, UnitPrice: 1200, Total: 24000, PlanID: &enterprise},
	})

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)
	require.Len(t, repo.subs, 2)
	require.Equal(t, "active/Enterprise", repo.summaries[42])
}

func TestPayIgnoresNonPlanLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, []money.Line{
		{Description: "Onboarding fee", Quantity: 1, UnitPrice: 50000, Total: 50000},
	})

	_, err := svc.Pay(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)
	require.Empty(t, repo.subs)
	require.Empty(t, repo.summaries)
}

func TestCancelPendingInvoice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, nil)

	canceled, err := svc.Cancel(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)

	entries := repo.entriesFor(activity.EntityInvoice, inv.ID)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeCanceled, entries[0].Type)
}

func TestCancelPaidInvoiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPaid, nil, nil)

	_, err := svc.Cancel(context.Background(), testIdent, inv.ID)
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	require.Equal(t, string(EventCancel), ite.Event)
	require.Empty(t, repo.entries)
}

func TestCancelTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, nil)

	_, err := svc.Cancel(context.Background(), testIdent, inv.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), testIdent, inv.ID)
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	require.Len(t, repo.entries, 1)
}

func TestSweepOverdue(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	due := seedInvoice(repo, StatusPending, nil, nil)
	due.DueAt = time.Now().Add(-24 * time.Hour)
	fresh := seedInvoice(repo, StatusPending, nil, nil)

	swept, err := svc.SweepOverdue(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	require.Equal(t, StatusOverdue, repo.invoices[due.ID].Status)
	require.Equal(t, StatusPending, repo.invoices[fresh.ID].Status)

	entries := repo.entriesFor(activity.EntityInvoice, due.ID)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeOverdue, entries[0].Type)
	require.Equal(t, "system", entries[0].ActorName)
}

func TestAttachDocument(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := seedInvoice(repo, StatusPending, nil, nil)

	require.NoError(t, svc.AttachDocument(context.Background(), 1, inv.ID, "documents/inv.pdf"))
	require.NotNil(t, repo.invoices[inv.ID].DocumentPath)
	require.Equal(t, "documents/inv.pdf", *repo.invoices[inv.ID].DocumentPath)

	err := svc.AttachDocument(context.Background(), 2, inv.ID, "documents/inv.pdf")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMachineRejectsUnknownEvent(t *testing.T) {
	_, err := Machine.Next(statemachine.State(StatusPaid), EventPay)
	var ite *shared.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}
