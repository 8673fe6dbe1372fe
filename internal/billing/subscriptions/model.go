package subscriptions

import (
	"time"

	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
)

// Status enumerates subscription states.
type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
)

// Events accepted by the subscription state machine.
const (
	EventActivate    statemachine.Event = "activate"
	EventPause       statemachine.Event = "pause"
	EventResume      statemachine.Event = "resume"
	EventCancel      statemachine.Event = "cancel"
	EventMarkPastDue statemachine.Event = "mark_past_due"
)

// Machine is the subscription transition table. Activation is legal from any
// non-canceled state: a renewal payment re-activates an active subscription
// with a fresh billing period.
var Machine = statemachine.MustNew("subscription",
	[]statemachine.State{"trial", "active", "past_due", "paused", "canceled"},
	[]statemachine.Transition{
		{From: "trial", Event: EventActivate, To: "active"},
		{From: "active", Event: EventActivate, To: "active"},
		{From: "past_due", Event: EventActivate, To: "active"},
		{From: "paused", Event: EventActivate, To: "active"},
		{From: "active", Event: EventPause, To: "paused"},
		{From: "paused", Event: EventResume, To: "active"},
		{From: "trial", Event: EventCancel, To: "canceled"},
		{From: "active", Event: EventCancel, To: "canceled"},
		{From: "past_due", Event: EventCancel, To: "canceled"},
		{From: "paused", Event: EventCancel, To: "canceled"},
		{From: "active", Event: EventMarkPastDue, To: "past_due"},
	},
)

// Subscription is an active, metered commitment of a customer to a plan.
// MRR is integer minor currency units.
type Subscription struct {
	ID                 int64         `json:"id"`
	TenantID           int64         `json:"tenant_id"`
	CustomerID         int64         `json:"customer_id"`
	PlanID             int64         `json:"plan_id"`
	Number             string        `json:"number"`
	Status             Status        `json:"status"`
	BillingCycle       pricing.Cycle `json:"billing_cycle"`
	CurrentPeriodStart *time.Time    `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time    `json:"current_period_end,omitempty"`
	MRR                int64         `json:"mrr"`
	Seats              int64         `json:"seats"`
	CouponID           *int64        `json:"coupon_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NextPeriodEnd returns the period end for a billing period anchored at the
// given start: one calendar month for monthly, one calendar year for yearly.
func NextPeriodEnd(cycle pricing.Cycle, anchor time.Time) time.Time {
	if cycle == pricing.CycleYearly {
		return anchor.AddDate(1, 0, 0)
	}
	return anchor.AddDate(0, 1, 0)
}
