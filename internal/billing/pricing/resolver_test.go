package pricing

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/shared"
)

type stubPriceSource struct {
	prices map[int64][]Price
	calls  int
}

func (s *stubPriceSource) ListPrices(ctx context.Context, planID int64) ([]Price, error) {
	s.calls++
	return s.prices[planID], nil
}

func ptr(v int64) *int64 { return &v }

func TestResolvePrefersMonthlyBase(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {
			{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleYearly, Amount: 118800},
			{ID: 2, PlanID: 1, Type: TypeBase, Interval: CycleMonthly, Amount: 9900},
		},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9900), res.MRR)
	require.Equal(t, CycleMonthly, res.Cycle)
}

func TestResolveDividesYearlyBase(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleYearly, Amount: 118800}},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9900), res.MRR)
	require.Equal(t, CycleYearly, res.Cycle)
}

func TestResolveRoundsYearlyToNearest(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleYearly, Amount: 100000}},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 1, nil)
	require.NoError(t, err)
	// 100000/12 = 8333.33..., rounded to nearest minor unit.
	require.Equal(t, int64(8333), res.MRR)
}

func TestResolveSeatBasedPricing(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleMonthly, Amount: 0, PerSeatAmount: ptr(1000)}},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 10, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10000), res.MRR)

	res, err = resolver.Resolve(context.Background(), 1, 15, nil)
	require.NoError(t, err)
	require.Equal(t, int64(15000), res.MRR)
}

func TestResolveAddsPerSeatToBase(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleMonthly, Amount: 5000, PerSeatAmount: ptr(1000)}},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 3, nil)
	require.NoError(t, err)
	require.Equal(t, int64(8000), res.MRR)
}

func TestResolveFallsBackToLineTotal(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeRegional, Interval: CycleMonthly, Amount: 4200}},
	}}
	resolver := NewResolver(source, nil, nil)

	res, err := resolver.Resolve(context.Background(), 1, 1, ptr(7700))
	require.NoError(t, err)
	require.Equal(t, int64(7700), res.MRR)
	require.Equal(t, CycleMonthly, res.Cycle)
}

func TestResolveFailsWithoutAnyRows(t *testing.T) {
	source := &stubPriceSource{prices: map[int64][]Price{}}
	resolver := NewResolver(source, nil, nil)

	_, err := resolver.Resolve(context.Background(), 9, 1, ptr(7700))
	require.ErrorIs(t, err, shared.ErrPlanPricingNotFound)
}

func TestResolveCachesPriceRows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &stubPriceSource{prices: map[int64][]Price{
		1: {{ID: 1, PlanID: 1, Type: TypeBase, Interval: CycleMonthly, Amount: 9900}},
	}}
	resolver := NewResolver(source, client, nil)

	for i := 0; i < 3; i++ {
		res, err := resolver.Resolve(context.Background(), 1, 1, nil)
		require.NoError(t, err)
		require.Equal(t, int64(9900), res.MRR)
	}
	require.Equal(t, 1, source.calls)
}
