package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenhq/lumen/internal/shared"
)

// priceCacheTTL bounds how stale cached pricing rows may be.
const priceCacheTTL = 5 * time.Minute

// PriceSource supplies a plan's stored pricing rows.
type PriceSource interface {
	ListPrices(ctx context.Context, planID int64) ([]Price, error)
}

// Resolver turns a plan's pricing rows and a seat count into an MRR figure
// and billing cycle. Pricing rows change rarely, so reads go through a short
// Redis cache when one is configured.
type Resolver struct {
	source PriceSource
	cache  *redis.Client
	logger *slog.Logger
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(source PriceSource, cache *redis.Client, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, cache: cache, logger: logger}
}

// Resolve computes {MRR, cycle} for a plan. A monthly base price wins; a
// yearly base price is divided by twelve and rounded to the nearest minor
// unit. A per-seat amount is multiplied by the seat count and used as, or
// added to, the base figure. lineTotal is the invoice line's own total,
// applied when the rows yield no monthly figure; it covers invoices converted
// from quotes that captured bespoke pricing.
func (r *Resolver) Resolve(ctx context.Context, planID, seats int64, lineTotal *int64) (Resolution, error) {
	prices, err := r.prices(ctx, planID)
	if err != nil {
		return Resolution{}, err
	}
	if len(prices) == 0 {
		return Resolution{}, fmt.Errorf("pricing: plan %d: %w", planID, shared.ErrPlanPricingNotFound)
	}
	if seats <= 0 {
		seats = 1
	}

	base, perSeat := pick(prices)
	res := Resolution{Cycle: CycleMonthly}
	haveBase := base != nil
	if haveBase {
		res.Cycle = base.Interval
		res.MRR = base.Amount
		if base.Interval == CycleYearly {
			res.MRR = int64(math.Round(float64(base.Amount) / 12))
		}
	}
	if perSeat != nil {
		res.MRR += *perSeat * seats
	}
	if !haveBase && perSeat == nil {
		if lineTotal == nil {
			return Resolution{}, fmt.Errorf("pricing: plan %d has no usable base price: %w", planID, shared.ErrPlanPricingNotFound)
		}
		res.MRR = *lineTotal
	}
	return res, nil
}

// pick selects the base row (monthly preferred over yearly) and the per-seat
// amount, taken from the base row when it carries one, otherwise from any
// seat-priced row.
func pick(prices []Price) (base *Price, perSeat *int64) {
	for i := range prices {
		p := &prices[i]
		if p.Type != TypeBase || p.Amount == 0 {
			continue
		}
		if p.Interval == CycleMonthly {
			base = p
			break
		}
		if base == nil {
			base = p
		}
	}
	if base != nil && base.PerSeatAmount != nil {
		return base, base.PerSeatAmount
	}
	for i := range prices {
		if prices[i].PerSeatAmount != nil {
			return base, prices[i].PerSeatAmount
		}
	}
	return base, nil
}

func (r *Resolver) prices(ctx context.Context, planID int64) ([]Price, error) {
	key := fmt.Sprintf("pricing:plan:%d", planID)
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key).Bytes()
		if err == nil {
			var prices []Price
			if err := json.Unmarshal(raw, &prices); err == nil {
				return prices, nil
			}
		}
	}
	prices, err := r.source.ListPrices(ctx, planID)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if raw, err := json.Marshal(prices); err == nil {
			if err := r.cache.Set(ctx, key, raw, priceCacheTTL).Err(); err != nil && r.logger != nil {
				r.logger.Warn("pricing cache set", slog.Any("error", err))
			}
		}
	}
	return prices, nil
}
