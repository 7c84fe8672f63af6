package lifecycle

import "rentloop-backend/internal/domain"

// Requirement is a data precondition an action's payload must satisfy.
type Requirement int

const (
	RequireReason Requirement = iota + 1
	RequireConsent
	RequireHandover
	RequireSchedule
)

// Transition is a single allowed edge in the order lifecycle.
// An empty AllowedBy means the transition is reserved for the system.
type Transition struct {
	From      domain.OrderStatus
	Action    domain.Action
	To        domain.OrderStatus
	AllowedBy []domain.Role
	Requires  []Requirement
}

// SystemOnly reports whether no party may trigger the transition.
func (t Transition) SystemOnly() bool {
	return len(t.AllowedBy) == 0
}

// Permits reports whether role may trigger the transition.
func (t Transition) Permits(role domain.Role) bool {
	for _, r := range t.AllowedBy {
		if r == role {
			return true
		}
	}
	return false
}

// Needs reports whether the transition carries requirement req.
func (t Transition) Needs(req Requirement) bool {
	for _, r := range t.Requires {
		if r == req {
			return true
		}
	}
	return false
}

var (
	renterOnly = []domain.Role{domain.RoleRenter}
	ownerOnly  = []domain.Role{domain.RoleOwner}
	bothRoles  = []domain.Role{domain.RoleRenter, domain.RoleOwner}
)

var transitionsTable = []Transition{
	// Request negotiation
	{From: domain.OrderStatusPending, Action: domain.ActionWithdraw, To: domain.OrderStatusWithdrawn, AllowedBy: renterOnly, Requires: []Requirement{RequireReason}},
	{From: domain.OrderStatusPending, Action: domain.ActionEdit, To: domain.OrderStatusPending, AllowedBy: renterOnly, Requires: []Requirement{RequireSchedule}},
	{From: domain.OrderStatusPending, Action: domain.ActionAccept, To: domain.OrderStatusAccepted, AllowedBy: ownerOnly},
	{From: domain.OrderStatusPending, Action: domain.ActionReject, To: domain.OrderStatusRejected, AllowedBy: ownerOnly, Requires: []Requirement{RequireReason}},

	// Handover
	{From: domain.OrderStatusAccepted, Action: domain.ActionCancel, To: domain.OrderStatusCancelled, AllowedBy: bothRoles, Requires: []Requirement{RequireReason}},
	{From: domain.OrderStatusAccepted, Action: domain.ActionSubmitHandover, To: domain.OrderStatusHandoverPending, AllowedBy: renterOnly, Requires: []Requirement{RequireHandover}},
	{From: domain.OrderStatusHandoverPending, Action: domain.ActionApproveHandover, To: domain.OrderStatusLive, AllowedBy: ownerOnly, Requires: []Requirement{RequireConsent}},
	{From: domain.OrderStatusHandoverPending, Action: domain.ActionRejectHandover, To: domain.OrderStatusAccepted, AllowedBy: ownerOnly, Requires: []Requirement{RequireReason}},

	// Return
	{From: domain.OrderStatusLive, Action: domain.ActionRequestReturn, To: domain.OrderStatusReturnPending, AllowedBy: renterOnly, Requires: []Requirement{RequireConsent}},
	{From: domain.OrderStatusLive, Action: domain.ActionApproveReturn, To: domain.OrderStatusCompleted, AllowedBy: ownerOnly, Requires: []Requirement{RequireConsent}},
	{From: domain.OrderStatusReturnPending, Action: domain.ActionApproveReturn, To: domain.OrderStatusCompleted, AllowedBy: ownerOnly, Requires: []Requirement{RequireConsent}},
	{From: domain.OrderStatusReturnPending, Action: domain.ActionRejectReturn, To: domain.OrderStatusLive, AllowedBy: ownerOnly, Requires: []Requirement{RequireReason}},
	{From: domain.OrderStatusReturnPending, Action: domain.ActionAutoComplete, To: domain.OrderStatusCompleted},
}

// escapeHatches apply from any status except their own target.
var escapeHatches = []Transition{
	{Action: domain.ActionDispute, To: domain.OrderStatusDisputed, AllowedBy: bothRoles, Requires: []Requirement{RequireReason}},
}

type transitionKey struct {
	from   domain.OrderStatus
	action domain.Action
}

var transitionIndex = buildIndex()

func buildIndex() map[transitionKey]Transition {
	idx := make(map[transitionKey]Transition, len(transitionsTable)+len(escapeHatches)*len(domain.AllOrderStatuses))
	for _, tr := range transitionsTable {
		if isTerminal(tr.From) {
			panic("lifecycle: transition " + string(tr.Action) + " leaves terminal status " + string(tr.From))
		}
		idx[transitionKey{tr.From, tr.Action}] = tr
	}
	for _, hatch := range escapeHatches {
		for _, st := range domain.AllOrderStatuses {
			if st == hatch.To {
				continue
			}
			tr := hatch
			tr.From = st
			idx[transitionKey{st, tr.Action}] = tr
		}
	}
	return idx
}

// TransitionFor returns the transition defined for (from, action).
func TransitionFor(from domain.OrderStatus, action domain.Action) (Transition, bool) {
	tr, ok := transitionIndex[transitionKey{from, action}]
	return tr, ok
}

// isTerminal reports whether status has no outgoing table transitions. Only the dispute
// hatch leaves a terminal status, and DISPUTED itself is frozen.
func isTerminal(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusCompleted, domain.OrderStatusCancelled, domain.OrderStatusRejected,
		domain.OrderStatusWithdrawn, domain.OrderStatusDisputed:
		return true
	}
	return false
}
