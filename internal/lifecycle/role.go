package lifecycle

import "rentloop-backend/internal/domain"

// RoleOf resolves actorID's relation to the order. Computed fresh per call.
func RoleOf(order *domain.RentalOrder, actorID string) domain.Role {
	if order == nil || actorID == "" {
		return domain.RoleNone
	}
	switch actorID {
	case order.RenterID:
		return domain.RoleRenter
	case order.OwnerID:
		return domain.RoleOwner
	}
	return domain.RoleNone
}

// IsReturnRequester reports whether actorID is the party that requested the return.
// That party must never also approve it.
func IsReturnRequester(order *domain.RentalOrder, actorID string) bool {
	return order.Return.RequestedBy != nil && *order.Return.RequestedBy == actorID
}

// AvailableActions lists the actions actorID may attempt on order in its current status.
// Advisory only: the executor re-validates every call.
func AvailableActions(order *domain.RentalOrder, actorID string) []domain.Action {
	role := RoleOf(order, actorID)
	if role == domain.RoleNone {
		return []domain.Action{}
	}

	actions := make([]domain.Action, 0, 4)
	for _, a := range domain.AllActions {
		tr, ok := TransitionFor(order.Status, a)
		if !ok || !tr.Permits(role) {
			continue
		}
		if a == domain.ActionApproveReturn && IsReturnRequester(order, actorID) {
			continue
		}
		actions = append(actions, a)
	}
	return actions
}
