package grpc

import (
	"time"

	"rentloop-backend/internal/domain"
)

type CreateOrderRequest struct {
	ListingID     string                 `json:"listing_id"`
	OwnerID       string                 `json:"owner_id"`
	Pricing       domain.PricingSnapshot `json:"pricing"`
	StartAt       *time.Time             `json:"start_at,omitempty"`
	EndAt         *time.Time             `json:"end_at,omitempty"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	IsRecurring   bool                   `json:"is_recurring"`
}

type ExecuteActionRequest struct {
	OrderID string               `json:"order_id"`
	Action  domain.Action        `json:"action"`
	Payload domain.ActionPayload `json:"payload"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type OrderResponse struct {
	Order *domain.RentalOrder `json:"order"`
}

type ListActivityLogRequest struct {
	OrderID string `json:"order_id"`
}

type ListActivityLogResponse struct {
	Entries []domain.ActivityLogEntry `json:"entries"`
}

type GetAvailableActionsRequest struct {
	OrderID string `json:"order_id"`
}

type GetAvailableActionsResponse struct {
	Actions []domain.Action `json:"actions"`
}

type ListMilestonesRequest struct {
	OrderID string `json:"order_id"`
}

type ListMilestonesResponse struct {
	Milestones []domain.PaymentMilestone `json:"milestones"`
}

type PayMilestoneRequest struct {
	MilestoneID   string `json:"milestone_id"`
	TransactionID string `json:"transaction_id"`
}

type PayMilestoneResponse struct {
	Milestone *domain.PaymentMilestone `json:"milestone"`
}
