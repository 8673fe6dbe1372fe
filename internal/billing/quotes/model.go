package quotes

import (
	"time"

	"github.com/lumenhq/lumen/internal/billing/money"
	"github.com/lumenhq/lumen/internal/billing/statemachine"
)

// Status enumerates quote states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// Events accepted by the quote state machine.
const (
	EventSend    statemachine.Event = "send"
	EventAccept  statemachine.Event = "accept"
	EventReject  statemachine.Event = "reject"
	EventExpire  statemachine.Event = "expire"
	EventConvert statemachine.Event = "convert"
)

// Machine is the quote transition table. An expired quote may still be
// accepted or rejected; the customer answering late is answering the same
// offer. rejected, expired-then-answered and converted are terminal.
var Machine = statemachine.MustNew("quote",
	[]statemachine.State{"draft", "sent", "accepted", "rejected", "expired", "converted"},
	[]statemachine.Transition{
		{From: "draft", Event: EventSend, To: "sent"},
		{From: "sent", Event: EventAccept, To: "accepted"},
		{From: "expired", Event: EventAccept, To: "accepted"},
		{From: "sent", Event: EventReject, To: "rejected"},
		{From: "expired", Event: EventReject, To: "rejected"},
		{From: "sent", Event: EventExpire, To: "expired"},
		{From: "accepted", Event: EventConvert, To: "converted"},
	},
)

// Quote is a priced offer to a customer. All monetary fields are integer
// minor currency units and always server-recomputed from the lines.
type Quote struct {
	ID                 int64        `json:"id"`
	TenantID           int64        `json:"tenant_id"`
	CustomerID         int64        `json:"customer_id"`
	DealID             *int64       `json:"deal_id,omitempty"`
	PlanID             *int64       `json:"plan_id,omitempty"`
	Number             string       `json:"number"`
	Status             Status       `json:"status"`
	Lines              []money.Line `json:"lines,omitempty"`
	Subtotal           int64        `json:"subtotal"`
	Tax                int64        `json:"tax"`
	Total              int64        `json:"total"`
	Currency           string       `json:"currency"`
	ValidUntil         time.Time    `json:"valid_until"`
	Version            int          `json:"version"`
	ParentQuoteID      *int64       `json:"parent_quote_id,omitempty"`
	SentAt             *time.Time   `json:"sent_at,omitempty"`
	AcceptedAt         *time.Time   `json:"accepted_at,omitempty"`
	RejectedAt         *time.Time   `json:"rejected_at,omitempty"`
	ConvertedInvoiceID *int64       `json:"converted_invoice_id,omitempty"`
	DocumentPath       *string      `json:"document_path,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
