package invoices

import (
	"time"

	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
)

// Status enumerates invoice states.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
	StatusOverdue  Status = "overdue"
)

// Events accepted by the invoice state machine.
const (
	EventPay         statemachine.Event = "pay"
	EventCancel      statemachine.Event = "cancel"
	EventMarkOverdue statemachine.Event = "mark_overdue"
)

// Machine is the invoice transition table. paid and canceled are terminal;
// overdue is not, an overdue invoice can still be paid or canceled.
var Machine = statemachine.MustNew("invoice",
	[]statemachine.State{"draft", "pending", "paid", "canceled", "overdue"},
	[]statemachine.Transition{
		{From: "draft", Event: EventPay, To: "paid"},
		{From: "pending", Event: EventPay, To: "paid"},
		{From: "overdue", Event: EventPay, To: "paid"},
		{From: "draft", Event: EventCancel, To: "canceled"},
		{From: "pending", Event: EventCancel, To: "canceled"},
		{From: "overdue", Event: EventCancel, To: "canceled"},
		{From: "pending", Event: EventMarkOverdue, To: "overdue"},
	},
)

// Invoice is a payable demand against a customer. Monetary fields are integer
// minor currency units copied verbatim from the canonical source document.
type Invoice struct {
	ID             int64        `json:"id"`
	TenantID       int64        `json:"tenant_id"`
	CustomerID     int64        `json:"customer_id"`
	SubscriptionID *int64       `json:"subscription_id,omitempty"`
	QuoteID        *int64       `json:"quote_id,omitempty"`
	Number         string       `json:"number"`
	Status         Status       `json:"status"`
	Lines          []money.Line `json:"lines,omitempty"`
	Subtotal       int64        `json:"subtotal"`
	Tax            int64        `json:"tax"`
	Total          int64        `json:"total"`
	Currency       string       `json:"currency"`
	IssuedAt       time.Time    `json:"issued_at"`
	DueAt          time.Time    `json:"due_at"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	DocumentPath   *string      `json:"document_path,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ListInvoicesRequest filters the tenant's invoices.
type ListInvoicesRequest struct {
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}
