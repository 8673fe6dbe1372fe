package quotes

import "time"

// CreateQuoteRequest is the payload for creating a quote. Claimed line totals
// are validated against the recomputed values and never persisted as-is.
type CreateQuoteRequest struct {
	CustomerID    int64                  `json:"customer_id" validate:"required,gt=0"`
	DealID        *int64                 `json:"deal_id,omitempty"`
	PlanID        *int64                 `json:"plan_id,omitempty"`
	Currency      string                 `json:"currency" validate:"required,len=3"`
	ValidUntil    time.Time              `json:"valid_until" validate:"required"`
	Tax           int64                  `json:"tax" validate:"gte=0"`
	ParentQuoteID *int64                 `json:"parent_quote_id,omitempty"`
	Lines         []CreateQuoteLineReq   `json:"lines" validate:"required,min=1,dive"`
}

// CreateQuoteLineReq is one candidate line item. Total, when supplied, is the
// client's claimed line total and must match the recomputed value.
type CreateQuoteLineReq struct {
	Description string `json:"description" validate:"required,max=500"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
	Total       *int64 `json:"total,omitempty" validate:"omitempty,gte=0"`
	PlanID      *int64 `json:"plan_id,omitempty"`
}

// ListQuotesRequest filters the tenant's quotes.
type ListQuotesRequest struct {
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}
