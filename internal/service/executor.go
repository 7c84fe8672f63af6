package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

// Commit describes a transition that has been durably written.
type Commit struct {
	Order   *domain.RentalOrder
	Entry   *domain.ActivityLogEntry
	ActorID string
}

// PostCommitHook runs after a transition commits. Its error is logged, never returned to the caller.
type PostCommitHook func(ctx context.Context, c Commit) error

// Guard is an extra precondition checked against the fresh snapshot on the system pathway.
type Guard func(order *domain.RentalOrder) error

// Executor is the only writer of order status.
type Executor struct {
	orders      repository.OrderRepository
	settlements repository.SettlementRepository
	hooks       map[domain.Action][]PostCommitHook
	maxAttempts int
	now         Clock
}

func NewExecutor(orders repository.OrderRepository, settlements repository.SettlementRepository, maxAttempts int, clock Clock) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		orders:      orders,
		settlements: settlements,
		hooks:       make(map[domain.Action][]PostCommitHook),
		maxAttempts: maxAttempts,
		now:         orSystemClock(clock),
	}
}

// RegisterHook adds a post-commit hook for action. Register before serving traffic.
func (e *Executor) RegisterHook(action domain.Action, hook PostCommitHook) {
	e.hooks[action] = append(e.hooks[action], hook)
}

// Execute applies action on behalf of actorID.
func (e *Executor) Execute(ctx context.Context, orderID string, action domain.Action, actorID string, payload domain.ActionPayload) (*domain.RentalOrder, error) {
	return e.run(ctx, orderID, action, &actorID, payload, nil)
}

// ExecuteSystem applies a system-only action such as auto_complete. No role check is made,
// but parties' transitions are refused.
func (e *Executor) ExecuteSystem(ctx context.Context, orderID string, action domain.Action, guard Guard) (*domain.RentalOrder, error) {
	return e.run(ctx, orderID, action, nil, domain.ActionPayload{}, guard)
}

func (e *Executor) run(ctx context.Context, orderID string, action domain.Action, actorID *string, payload domain.ActionPayload, guard Guard) (*domain.RentalOrder, error) {
	for attempt := 1; ; attempt++ {
		commit, err := e.attempt(ctx, orderID, action, actorID, payload, guard)
		if err == nil {
			e.dispatch(ctx, action, commit)
			return commit.Order, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) || attempt >= e.maxAttempts {
			return nil, err
		}
		logger.WithOrder(orderID).Debug("Retrying transition after concurrent modification",
			"action", action, "attempt", attempt)
	}
}

func (e *Executor) attempt(ctx context.Context, orderID string, action domain.Action, actorID *string, payload domain.ActionPayload, guard Guard) (Commit, error) {
	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return Commit{}, err
	}

	tr, err := e.authorize(order, action, actorID)
	if err != nil {
		return Commit{}, err
	}
	if guard != nil {
		if err := guard(order); err != nil {
			return Commit{}, err
		}
	}
	if err := lifecycle.ValidatePayload(tr, payload); err != nil {
		return Commit{}, err
	}

	if action == domain.ActionSubmitHandover {
		if txID := strings.TrimSpace(payload.Handover.TransactionID); txID != "" {
			exists, err := e.settlements.TransactionIDExists(ctx, txID)
			if err != nil {
				return Commit{}, fmt.Errorf("check transaction id: %w", err)
			}
			if exists {
				return Commit{}, domain.ErrDuplicateTransaction
			}
		}
	}

	now := e.now()
	next := order.Clone()
	write := repository.TransitionWrite{
		ExpectedStatus:  order.Status,
		ExpectedVersion: order.Version,
		Order:           next,
	}
	details, err := applyTransition(next, &write, tr, actorID, payload, now)
	if err != nil {
		return Commit{}, err
	}
	next.Status = tr.To
	next.UpdatedAt = now

	write.Entry = &domain.ActivityLogEntry{
		OrderID:    order.ID,
		Action:     action,
		ActorID:    actorID,
		FromStatus: order.Status,
		ToStatus:   tr.To,
		Details:    details,
		CreatedAt:  now,
	}
	if err := e.orders.CompareAndSwapStatus(ctx, write); err != nil {
		return Commit{}, err
	}

	c := Commit{Order: next, Entry: write.Entry}
	if actorID != nil {
		c.ActorID = *actorID
	}
	logger.WithOrder(order.ID).Info("Order transitioned",
		"action", action, "from", order.Status, "to", tr.To, "actor", c.ActorID)
	return c, nil
}

// authorize resolves the actor's role and the transition, in that order.
func (e *Executor) authorize(order *domain.RentalOrder, action domain.Action, actorID *string) (lifecycle.Transition, error) {
	if actorID == nil {
		tr, ok := lifecycle.TransitionFor(order.Status, action)
		if !ok {
			return tr, &domain.TransitionError{Status: order.Status, Action: action}
		}
		if !tr.SystemOnly() {
			return tr, fmt.Errorf("%s requires a party to the order: %w", action, domain.ErrForbidden)
		}
		return tr, nil
	}

	role := lifecycle.RoleOf(order, *actorID)
	if role == domain.RoleNone {
		return lifecycle.Transition{}, domain.ErrRoleMismatch
	}
	tr, ok := lifecycle.TransitionFor(order.Status, action)
	if !ok {
		return tr, &domain.TransitionError{Status: order.Status, Action: action}
	}
	if !tr.Permits(role) {
		return tr, fmt.Errorf("%s may not %s: %w", role, action, domain.ErrForbidden)
	}
	if action == domain.ActionApproveReturn && lifecycle.IsReturnRequester(order, *actorID) {
		return tr, fmt.Errorf("the party that requested the return cannot approve it: %w", domain.ErrForbidden)
	}
	return tr, nil
}

// applyTransition merges the payload into next and returns the log entry details.
func applyTransition(next *domain.RentalOrder, w *repository.TransitionWrite, tr lifecycle.Transition, actorID *string, payload domain.ActionPayload, now time.Time) (domain.ActivityDetails, error) {
	var details domain.ActivityDetails

	if tr.Needs(lifecycle.RequireReason) {
		reason := &domain.ReasonDetails{Code: strings.TrimSpace(payload.ReasonCode), Note: strings.TrimSpace(payload.Note)}
		details.Reason = reason
		next.NegativeOutcome = &domain.NegativeOutcome{
			Action:     tr.Action,
			ReasonCode: reason.Code,
			Note:       reason.Note,
			ActorID:    deref(actorID),
		}
	}
	if tr.Needs(lifecycle.RequireConsent) {
		details.Consent = true
	}

	switch tr.Action {
	case domain.ActionEdit:
		s := payload.Schedule
		if s.StartAt != nil && next.IsRecurring && (next.StartAt == nil || !s.StartAt.Equal(*next.StartAt)) {
			// milestone due dates are fixed to the start date at creation
			return details, domain.NewValidationError("schedule.start_at", "cannot move the start of a recurring order")
		}
		if s.StartAt != nil {
			t := s.StartAt.UTC()
			next.StartAt = &t
		}
		if s.EndAt != nil {
			t := s.EndAt.UTC()
			next.EndAt = &t
		}
		if next.StartAt != nil && next.EndAt != nil && next.EndAt.Before(*next.StartAt) {
			return details, domain.NewValidationError("schedule.end_at", "must not be before start_at")
		}
		details.Schedule = &domain.SchedulePayload{StartAt: next.StartAt, EndAt: next.EndAt}

	case domain.ActionSubmitHandover:
		h := payload.Handover
		record := &domain.HandoverRecord{
			AmountPaid:    *h.AmountPaid,
			TotalPaid:     *h.TotalPaid,
			PaymentMethod: h.PaymentMethod,
			TransactionID: strings.TrimSpace(h.TransactionID),
			Notes:         strings.TrimSpace(h.Notes),
			SubmittedAt:   now,
		}
		if h.DepositPaid != nil {
			record.DepositPaid = *h.DepositPaid
		}
		next.Handover = record
		w.ClaimTransactionID = record.TransactionID
		details.Handover = &domain.HandoverDetails{
			AmountPaid:    record.AmountPaid,
			DepositPaid:   record.DepositPaid,
			TotalPaid:     record.TotalPaid,
			PaymentMethod: record.PaymentMethod,
			TransactionID: record.TransactionID,
		}

	case domain.ActionRejectHandover:
		if next.Handover != nil {
			w.ReleaseTransactionID = next.Handover.TransactionID
		}
		next.Handover = nil

	case domain.ActionRequestReturn:
		by := deref(actorID)
		at := now
		next.Return.RequestedBy = &by
		next.Return.RequestedAt = &at
		next.Return.CompletedAt = nil

	case domain.ActionRejectReturn:
		next.Return.RequestedBy = nil
		next.Return.RequestedAt = nil

	case domain.ActionApproveReturn:
		at := now
		next.Return.CompletedAt = &at

	case domain.ActionAutoComplete:
		at := now
		next.Return.CompletedAt = &at
		next.Return.IsAutoCompleted = true
		details.AutoCompleted = true
	}
	return details, nil
}

func (e *Executor) dispatch(ctx context.Context, action domain.Action, c Commit) {
	for _, hook := range e.hooks[action] {
		if err := runHook(ctx, hook, c); err != nil {
			logger.WithOrder(c.Order.ID).Error("Post-commit hook failed", "action", action, "error", err)
		}
	}
}

func runHook(ctx context.Context, hook PostCommitHook, c Commit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, c)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
