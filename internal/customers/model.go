package customers

import "time"

// Customer is the tenant's counterparty: the organization being quoted,
// invoiced and subscribed.
type Customer struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Currency  string     `json:"currency"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Cached summary of the customer's most recent subscription. Updated by
	// the invoice and subscription flows; when an invoice yields several
	// subscriptions the last one created wins.
	SubscriptionStatus string `json:"subscription_status"`
	PlanName           string `json:"plan_name"`
}

// CreateCustomerRequest is the payload for registering a customer.
type CreateCustomerRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Currency string `json:"currency" validate:"required,len=3"`
}
