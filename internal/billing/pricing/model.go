package pricing

import "time"

// Cycle is a subscription billing cycle length.
type Cycle string

const (
	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"
)

// PricingType tags a pricing row.
type PricingType string

const (
	TypeBase     PricingType = "base"
	TypeRegional PricingType = "regional"
)

// Plan is a sellable product plan owned by a tenant.
type Plan struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Price is one stored pricing row for a plan. Amount and PerSeatAmount are
// integer minor currency units.
type Price struct {
	ID            int64       `json:"id"`
	PlanID        int64       `json:"plan_id"`
	Type          PricingType `json:"type"`
	Interval      Cycle       `json:"interval"`
	Amount        int64       `json:"amount"`
	PerSeatAmount *int64      `json:"per_seat_amount,omitempty"`
}

// Resolution is the outcome of resolving a plan's pricing rows: a monthly
// recurring revenue figure and the billing cycle to charge on.
type Resolution struct {
	MRR   int64
	Cycle Cycle
}
