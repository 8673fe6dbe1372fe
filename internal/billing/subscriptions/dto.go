package subscriptions

// ChangeStatusRequest asks for a direct status transition.
type ChangeStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=active past_due paused canceled"`
}

// ChangeSeatsRequest asks for a new seat count.
type ChangeSeatsRequest struct {
	Seats int64 `json:"seats" validate:"required,gt=0"`
}

// ChangePlanRequest asks to move the subscription to another plan.
type ChangePlanRequest struct {
	PlanID int64 `json:"plan_id" validate:"required,gt=0"`
}

// ListSubscriptionsRequest filters the tenant's subscriptions.
type ListSubscriptionsRequest struct {
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}
