package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityLogEntry is written once per executed transition, in the same unit as the status write.
// ActorID is nil for system-triggered actions.
type ActivityLogEntry struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	Action      Action          `json:"action"`
	ActorID     *string         `json:"actor_id,omitempty"`
	FromStatus  OrderStatus     `json:"from_status"`
	ToStatus    OrderStatus     `json:"to_status"`
	Details     ActivityDetails `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"-"`
}

// ActivityDetails holds the action-specific part of a log entry. Only the group matching
// the action is populated.
type ActivityDetails struct {
	Reason        *ReasonDetails   `json:"reason,omitempty"`
	Handover      *HandoverDetails `json:"handover,omitempty"`
	Schedule      *SchedulePayload `json:"schedule,omitempty"`
	Consent       bool             `json:"consent,omitempty"`
	AutoCompleted bool             `json:"auto_completed,omitempty"`
}

type ReasonDetails struct {
	Code string `json:"code"`
	Note string `json:"note,omitempty"`
}

type HandoverDetails struct {
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	DepositPaid   decimal.Decimal `json:"deposit_paid"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
}
