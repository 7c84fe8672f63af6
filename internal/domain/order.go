package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusHandoverPending OrderStatus = "HANDOVER_PENDING"
	OrderStatusLive            OrderStatus = "LIVE"
	OrderStatusReturnPending   OrderStatus = "RETURN_PENDING"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusWithdrawn       OrderStatus = "WITHDRAWN"
	OrderStatusDisputed        OrderStatus = "DISPUTED"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusHandoverPending,
	OrderStatusLive,
	OrderStatusReturnPending,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRejected,
	OrderStatusWithdrawn,
	OrderStatusDisputed,
}

type DurationType string

const (
	DurationDaily   DurationType = "daily"
	DurationWeekly  DurationType = "weekly"
	DurationMonthly DurationType = "monthly"
)

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodBank PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodBank
}

// PricingSnapshot is captured from the listing when the order is created.
// Later listing price changes never touch it.
type PricingSnapshot struct {
	DurationType    DurationType    `json:"duration_type"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
}

type HandoverRecord struct {
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	DepositPaid   decimal.Decimal `json:"deposit_paid"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type ReturnRecord struct {
	RequestedBy     *string    `json:"requested_by,omitempty"`
	RequestedAt     *time.Time `json:"requested_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	IsAutoCompleted bool       `json:"is_auto_completed"`
}

// NegativeOutcome records who rejected, cancelled, withdrew or disputed the order and why.
type NegativeOutcome struct {
	Action     Action `json:"action"`
	ReasonCode string `json:"reason_code"`
	Note       string `json:"note,omitempty"`
	ActorID    string `json:"actor_id"`
}

type RentalOrder struct {
	ID              string           `json:"id"`
	ListingID       string           `json:"listing_id"`
	RenterID        string           `json:"renter_id"`
	OwnerID         string           `json:"owner_id"`
	Status          OrderStatus      `json:"status"`
	Version         int              `json:"version"`
	Pricing         PricingSnapshot  `json:"pricing"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	IsRecurring     bool             `json:"is_recurring"`
	StartAt         *time.Time       `json:"start_at,omitempty"`
	EndAt           *time.Time       `json:"end_at,omitempty"`
	Handover        *HandoverRecord  `json:"handover,omitempty"`
	Return          ReturnRecord     `json:"return"`
	NegativeOutcome *NegativeOutcome `json:"negative_outcome,omitempty"`
	HasRenterReview bool             `json:"has_renter_review"`
	HasOwnerReview  bool             `json:"has_owner_review"`
	IsArchived      bool             `json:"is_archived"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching a stored snapshot.
func (o *RentalOrder) Clone() *RentalOrder {
	if o == nil {
		return nil
	}
	c := *o
	c.StartAt = cloneTime(o.StartAt)
	c.EndAt = cloneTime(o.EndAt)
	if o.Handover != nil {
		h := *o.Handover
		c.Handover = &h
	}
	if o.Return.RequestedBy != nil {
		by := *o.Return.RequestedBy
		c.Return.RequestedBy = &by
	}
	c.Return.RequestedAt = cloneTime(o.Return.RequestedAt)
	c.Return.CompletedAt = cloneTime(o.Return.CompletedAt)
	if o.NegativeOutcome != nil {
		n := *o.NegativeOutcome
		c.NegativeOutcome = &n
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CreateOrderInput carries everything createOrder needs. Pricing comes from the listing snapshot.
type CreateOrderInput struct {
	ListingID     string          `json:"listing_id"`
	RenterID      string          `json:"renter_id"`
	OwnerID       string          `json:"owner_id"`
	Pricing       PricingSnapshot `json:"pricing"`
	StartAt       *time.Time      `json:"start_at,omitempty"`
	EndAt         *time.Time      `json:"end_at,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	IsRecurring   bool            `json:"is_recurring"`
}
