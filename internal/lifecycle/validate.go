package lifecycle

import (
	"strings"

	"rentloop-backend/internal/domain"
)

// ValidatePayload checks payload against every requirement of tr.
// It returns a *domain.ValidationError naming the first offending field.
func ValidatePayload(tr Transition, payload domain.ActionPayload) error {
	for _, req := range tr.Requires {
		var err error
		switch req {
		case RequireReason:
			err = validateReason(tr.Action, payload)
		case RequireConsent:
			err = validateConsent(payload)
		case RequireHandover:
			err = validateHandover(payload.Handover)
		case RequireSchedule:
			err = validateSchedule(payload.Schedule)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateReason(action domain.Action, payload domain.ActionPayload) error {
	code := strings.TrimSpace(payload.ReasonCode)
	if code == "" {
		return domain.NewValidationError("reason_code", "a reason is required")
	}
	if !knownReason(action, code) {
		return domain.NewValidationError("reason_code", "unknown reason for "+string(action))
	}
	if code == ReasonOther && strings.TrimSpace(payload.Note) == "" {
		return domain.NewValidationError("note", "a note is required when the reason is other")
	}
	return nil
}

func validateConsent(payload domain.ActionPayload) error {
	if !payload.Consent {
		return domain.NewValidationError("consent", "explicit consent is required")
	}
	return nil
}

func validateHandover(h *domain.HandoverPayload) error {
	if h == nil {
		return domain.NewValidationError("handover", "handover details are required")
	}
	if h.AmountPaid == nil || !h.AmountPaid.IsPositive() {
		return domain.NewValidationError("handover.amount_paid", "must be greater than zero")
	}
	if h.DepositPaid != nil && h.DepositPaid.IsNegative() {
		return domain.NewValidationError("handover.deposit_paid", "must not be negative")
	}
	if h.TotalPaid == nil || !h.TotalPaid.IsPositive() {
		return domain.NewValidationError("handover.total_paid", "must be greater than zero")
	}
	if h.PaymentMethod == "" {
		return domain.NewValidationError("handover.payment_method", "a payment method is required")
	}
	if !h.PaymentMethod.Valid() {
		return domain.NewValidationError("handover.payment_method", "unsupported payment method")
	}
	if h.PaymentMethod != domain.PaymentMethodCash && strings.TrimSpace(h.TransactionID) == "" {
		return domain.NewValidationError("handover.transaction_id", "required unless paying cash")
	}
	return nil
}

func validateSchedule(s *domain.SchedulePayload) error {
	if s == nil || (s.StartAt == nil && s.EndAt == nil) {
		return domain.NewValidationError("schedule", "a new start or end time is required")
	}
	if s.StartAt != nil && s.EndAt != nil && s.EndAt.Before(*s.StartAt) {
		return domain.NewValidationError("schedule.end_at", "must not be before start_at")
	}
	return nil
}
