package lifecycle

import "rentloop-backend/internal/domain"

// ReasonOther is the generic reason code; it requires a free-text note.
const ReasonOther = "other"

// ReasonOption is one selectable reason for a negative action.
type ReasonOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var reasonCatalogue = map[domain.Action][]ReasonOption{
	domain.ActionWithdraw: {
		{"found_better_deal", "Found a better deal"},
		{"plans_changed", "Plans changed"},
		{"wrong_dates", "Entered wrong dates"},
		{"no_longer_needed", "Item no longer needed"},
		{"logistics_issue", "Shipping/Pickup issue"},
		{ReasonOther, "Other"},
	},
	domain.ActionReject: {
		{"item_unavailable", "Item currently unavailable"},
		{"location_too_far", "Location too far"},
		{"safety_concern", "Safety/Trust concerns"},
		{"price_mismatch", "Price mismatch"},
		{"duration_mismatch", "Too short/long duration"},
		{ReasonOther, "Other"},
	},
	domain.ActionRejectHandover: {
		{"incorrect_amount", "Incorrect amount paid"},
		{"invalid_transaction_id", "Transaction ID invalid"},
		{"deposit_missing", "Security deposit missing"},
		{"identity_unverified", "Identity verification failed"},
		{ReasonOther, "Other"},
	},
	domain.ActionCancel: {
		{"personal_emergency", "Personal emergency"},
		{"schedule_conflict", "Schedule conflict"},
		{"found_alternative", "Found alternative"},
		{"item_unavailable", "Item broken/missing"},
		{ReasonOther, "Other"},
	},
	domain.ActionRejectReturn: {
		{"item_damaged", "Item damaged"},
		{"parts_missing", "Parts missing"},
		{"wrong_item_returned", "Incorrect item returned"},
		{"late_fee_required", "Late return fee required"},
		{ReasonOther, "Other"},
	},
	domain.ActionDispute: {
		{"item_damaged", "Item damaged"},
		{"payment_not_received", "Payment not received"},
		{"communication_issue", "Communication issues"},
		{"terms_violation", "Terms of service violation"},
		{"late_return", "Late return"},
		{ReasonOther, "Other"},
	},
}

// ReasonOptions returns the reason catalogue for action, or nil when the action takes no reason.
func ReasonOptions(action domain.Action) []ReasonOption {
	opts := reasonCatalogue[action]
	if opts == nil {
		return nil
	}
	out := make([]ReasonOption, len(opts))
	copy(out, opts)
	return out
}

func knownReason(action domain.Action, code string) bool {
	for _, opt := range reasonCatalogue[action] {
		if opt.Code == code {
			return true
		}
	}
	return false
}
