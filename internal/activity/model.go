package activity

import "time"

// Type is the activity vocabulary recorded against billing entities.
type Type string

const (
	TypeCreated     Type = "created"
	TypeSent        Type = "sent"
	TypeAccepted    Type = "accepted"
	TypeRejected    Type = "rejected"
	TypeExpired     Type = "expired"
	TypeConverted   Type = "converted"
	TypeInvoicePaid Type = "invoice_paid"
	TypeOverdue     Type = "overdue"
	TypeActivated   Type = "activated"
	TypeCanceled    Type = "canceled"
	TypePaused      Type = "paused"
	TypeResumed     Type = "resumed"
	TypeSeatAdded   Type = "seat_added"
	TypeSeatRemoved Type = "seat_removed"
	TypePlanChanged Type = "plan_changed"
)

// Entity types referenced by entries.
const (
	EntityQuote        = "quote"
	EntityInvoice      = "invoice"
	EntitySubscription = "subscription"
)

// Entry is one immutable fact about a state transition or mutation. Entries
// are written inside the same transaction as the change they describe and are
// never updated or deleted afterwards.
type Entry struct {
	ID          int64
	TenantID    int64
	EntityType  string
	EntityID    int64
	Type        Type
	Description string
	ActorID     int64
	ActorName   string
	Metadata    map[string]any
	CreatedAt   time.Time
}
