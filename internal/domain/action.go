package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionWithdraw        Action = "withdraw"
	ActionEdit            Action = "edit"
	ActionAccept          Action = "accept"
	ActionReject          Action = "reject"
	ActionCancel          Action = "cancel"
	ActionSubmitHandover  Action = "submit_handover"
	ActionApproveHandover Action = "approve_handover"
	ActionRejectHandover  Action = "reject_handover"
	ActionRequestReturn   Action = "request_return"
	ActionApproveReturn   Action = "approve_return"
	ActionRejectReturn    Action = "reject_return"
	ActionAutoComplete    Action = "auto_complete"
	ActionDispute         Action = "dispute"
)

// AllActions lists every action the engine knows about.
var AllActions = []Action{
	ActionWithdraw,
	ActionEdit,
	ActionAccept,
	ActionReject,
	ActionCancel,
	ActionSubmitHandover,
	ActionApproveHandover,
	ActionRejectHandover,
	ActionRequestReturn,
	ActionApproveReturn,
	ActionRejectReturn,
	ActionAutoComplete,
	ActionDispute,
}

// Role is the actor's relation to an order. It is derived per call, never stored.
type Role int

const (
	RoleNone Role = iota
	RoleRenter
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleRenter:
		return "renter"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// ActionPayload is the client-supplied data for an action. Which fields matter depends on the action.
type ActionPayload struct {
	ReasonCode string           `json:"reason_code,omitempty"`
	Note       string           `json:"note,omitempty"`
	Consent    bool             `json:"consent,omitempty"`
	Handover   *HandoverPayload `json:"handover,omitempty"`
	Schedule   *SchedulePayload `json:"schedule,omitempty"`
}

type HandoverPayload struct {
	AmountPaid    *decimal.Decimal `json:"amount_paid,omitempty"`
	DepositPaid   *decimal.Decimal `json:"deposit_paid,omitempty"`
	TotalPaid     *decimal.Decimal `json:"total_paid,omitempty"`
	PaymentMethod PaymentMethod    `json:"payment_method,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

type SchedulePayload struct {
	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}
