package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestoneStatusPending MilestoneStatus = "pending"
	MilestoneStatusPaid    MilestoneStatus = "paid"
	MilestoneStatusOverdue MilestoneStatus = "overdue"
)

// PaymentMilestone is one billing cycle of a recurring order.
type PaymentMilestone struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	Sequence      int             `json:"sequence"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	DueDate       time.Time       `json:"due_date"`
	Status        MilestoneStatus `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Payable reports whether a payment may still be recorded against the milestone.
func (m *PaymentMilestone) Payable() bool {
	return m.Status == MilestoneStatusPending || m.Status == MilestoneStatusOverdue
}
