package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/repository"
	"rentloop-backend/internal/service"
)

// seed stores an order directly in status, bypassing the lifecycle.
func (f *fixture) seed(t *testing.T, id string, status domain.OrderStatus) *domain.RentalOrder {
	t.Helper()
	now := f.clock.Now()
	o := &domain.RentalOrder{
		ID:            id,
		ListingID:     "listing-1",
		RenterID:      renterID,
		OwnerID:       ownerID,
		Status:        status,
		Pricing:       orderInput().Pricing,
		PaymentMethod: domain.PaymentMethodBank,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.OrderRepository.Create(context.Background(), o, nil))
	return o
}

func (f *fixture) log(t *testing.T, orderID string) []domain.ActivityLogEntry {
	t.Helper()
	entries, err := f.store.ActivityLogRepository.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) status(t *testing.T, orderID string) domain.OrderStatus {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

func TestExecutor_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.createOrder(t)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Empty(t, f.log(t, o.ID))

	o = f.act(t, o.ID, domain.ActionAccept, ownerID, domain.ActionPayload{})
	o = f.act(t, o.ID, domain.ActionSubmitHandover, renterID, handoverPayload("TX-100"))
	require.NotNil(t, o.Handover)
	assert.Equal(t, "TX-100", o.Handover.TransactionID)

	o = f.act(t, o.ID, domain.ActionApproveHandover, ownerID, consent())
	o = f.act(t, o.ID, domain.ActionRequestReturn, renterID, consent())
	require.NotNil(t, o.Return.RequestedBy)
	assert.Equal(t, renterID, *o.Return.RequestedBy)

	f.clock.Advance(time.Hour)
	o = f.act(t, o.ID, domain.ActionApproveReturn, ownerID, consent())
	assert.Equal(t, domain.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.Return.CompletedAt)
	assert.False(t, o.Return.IsAutoCompleted)
	assert.Equal(t, f.clock.Now(), o.UpdatedAt)
	assert.Equal(t, 5, o.Version)

	entries, err := f.orders.ListActivityLog(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	want := []struct {
		action   domain.Action
		actor    string
		from, to domain.OrderStatus
	}{
		{domain.ActionAccept, ownerID, domain.OrderStatusPending, domain.OrderStatusAccepted},
		{domain.ActionSubmitHandover, renterID, domain.OrderStatusAccepted, domain.OrderStatusHandoverPending},
		{domain.ActionApproveHandover, ownerID, domain.OrderStatusHandoverPending, domain.OrderStatusLive},
		{domain.ActionRequestReturn, renterID, domain.OrderStatusLive, domain.OrderStatusReturnPending},
		{domain.ActionApproveReturn, ownerID, domain.OrderStatusReturnPending, domain.OrderStatusCompleted},
	}
	for i, w := range want {
		e := entries[i]
		assert.Equal(t, w.action, e.Action)
		require.NotNil(t, e.ActorID)
		assert.Equal(t, w.actor, *e.ActorID)
		assert.Equal(t, w.from, e.FromStatus)
		assert.Equal(t, w.to, e.ToStatus)
	}
	require.NotNil(t, entries[1].Details.Handover)
	assert.Equal(t, "TX-100", entries[1].Details.Handover.TransactionID)
	assert.True(t, entries[2].Details.Consent)
}

func TestExecutor_InvalidTransitionsLeaveOrderUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, st := range domain.AllOrderStatuses {
		for _, action := range domain.AllActions {
			if _, ok := lifecycle.TransitionFor(st, action); ok {
				continue
			}
			id := fmt.Sprintf("%s-%s", st, action)
			f.seed(t, id, st)

			for _, actor := range []string{renterID, ownerID} {
				_, err := f.executor.Execute(ctx, id, action, actor, domain.ActionPayload{})
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s from %s by %s", action, st, actor)

				var te *domain.TransitionError
				if assert.True(t, errors.As(err, &te)) {
					assert.Equal(t, st, te.Status)
					assert.Equal(t, action, te.Action)
				}
			}
			assert.Equal(t, st, f.status(t, id))
			assert.Empty(t, f.log(t, id))
		}
	}
}

func TestExecutor_ForbiddenRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		from   domain.OrderStatus
		action domain.Action
		actor  string
	}{
		{domain.OrderStatusPending, domain.ActionWithdraw, ownerID},
		{domain.OrderStatusPending, domain.ActionEdit, ownerID},
		{domain.OrderStatusPending, domain.ActionAccept, renterID},
		{domain.OrderStatusPending, domain.ActionReject, renterID},
		{domain.OrderStatusAccepted, domain.ActionSubmitHandover, ownerID},
		{domain.OrderStatusHandoverPending, domain.ActionApproveHandover, renterID},
		{domain.OrderStatusHandoverPending, domain.ActionRejectHandover, renterID},
		{domain.OrderStatusLive, domain.ActionRequestReturn, ownerID},
		{domain.OrderStatusLive, domain.ActionApproveReturn, renterID},
		{domain.OrderStatusReturnPending, domain.ActionApproveReturn, renterID},
		{domain.OrderStatusReturnPending, domain.ActionRejectReturn, renterID},
		{domain.OrderStatusReturnPending, domain.ActionAutoComplete, renterID},
		{domain.OrderStatusReturnPending, domain.ActionAutoComplete, ownerID},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("%s by %s", tc.action, tc.actor), func(t *testing.T) {
			id := fmt.Sprintf("forbidden-%d", i)
			f.seed(t, id, tc.from)

			_, err := f.executor.Execute(ctx, id, tc.action, tc.actor, domain.ActionPayload{})
			assert.ErrorIs(t, err, domain.ErrForbidden)
			assert.Equal(t, tc.from, f.status(t, id))
			assert.Empty(t, f.log(t, id))
		})
	}
}

func TestExecutor_StrangerIsRoleMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	_, err := f.orders.ExecuteAction(context.Background(), o.ID, domain.ActionAccept, stranger, domain.ActionPayload{})
	assert.ErrorIs(t, err, domain.ErrRoleMismatch)
	assert.Equal(t, domain.OrderStatusPending, f.status(t, o.ID))

	// role is resolved before the table lookup
	_, err = f.orders.ExecuteAction(context.Background(), o.ID, domain.ActionApproveReturn, stranger, consent())
	assert.ErrorIs(t, err, domain.ErrRoleMismatch)
}

func TestExecutor_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.ExecuteAction(context.Background(), "missing", domain.ActionAccept, ownerID, domain.ActionPayload{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutor_ReturnRequesterCannotApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.seed(t, "owner-requested", domain.OrderStatusReturnPending)
	requestedAt := f.clock.Now()
	by := ownerID
	o.Return.RequestedBy = &by
	o.Return.RequestedAt = &requestedAt
	require.NoError(t, f.store.OrderRepository.CompareAndSwapStatus(ctx, repository.TransitionWrite{
		ExpectedStatus: o.Status,
		Order:          o,
		Entry:          &domain.ActivityLogEntry{OrderID: o.ID, Action: domain.ActionRequestReturn, FromStatus: domain.OrderStatusLive, ToStatus: o.Status},
	}))

	_, err := f.orders.ExecuteAction(ctx, o.ID, domain.ActionApproveReturn, ownerID, consent())
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.OrderStatusReturnPending, f.status(t, o.ID))

	actions, err := f.orders.GetAvailableActions(ctx, o.ID, ownerID)
	require.NoError(t, err)
	assert.NotContains(t, actions, domain.ActionApproveReturn)
	assert.Contains(t, actions, domain.ActionRejectReturn)
}

func TestExecutor_PayloadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		from    domain.OrderStatus
		action  domain.Action
		actor   string
		payload domain.ActionPayload
		field   string
	}{
		{"reject without reason", domain.OrderStatusPending, domain.ActionReject, ownerID, domain.ActionPayload{}, "reason_code"},
		{"reject with foreign reason", domain.OrderStatusPending, domain.ActionReject, ownerID, reason("plans_changed"), "reason_code"},
		{"other without note", domain.OrderStatusAccepted, domain.ActionCancel, renterID, reason(lifecycle.ReasonOther), "note"},
		{"approve handover without consent", domain.OrderStatusHandoverPending, domain.ActionApproveHandover, ownerID, domain.ActionPayload{}, "consent"},
		{"handover missing", domain.OrderStatusAccepted, domain.ActionSubmitHandover, renterID, domain.ActionPayload{}, "handover"},
		{"bank handover without tx id", domain.OrderStatusAccepted, domain.ActionSubmitHandover, renterID, handoverPayload(""), "handover.transaction_id"},
		{"edit without dates", domain.OrderStatusPending, domain.ActionEdit, renterID, domain.ActionPayload{Schedule: &domain.SchedulePayload{}}, "schedule"},
		{"dispute without reason", domain.OrderStatusLive, domain.ActionDispute, renterID, domain.ActionPayload{}, "reason_code"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := fmt.Sprintf("validation-%d", i)
			f.seed(t, id, tc.from)

			_, err := f.executor.Execute(ctx, id, tc.action, tc.actor, tc.payload)
			require.ErrorIs(t, err, domain.ErrValidation)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)

			assert.Equal(t, tc.from, f.status(t, id))
			assert.Empty(t, f.log(t, id))
		})
	}
}

func TestExecutor_NegativeOutcomeRecorded(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	o = f.act(t, o.ID, domain.ActionReject, ownerID, domain.ActionPayload{ReasonCode: lifecycle.ReasonOther, Note: "  going abroad "})
	assert.Equal(t, domain.OrderStatusRejected, o.Status)
	require.NotNil(t, o.NegativeOutcome)
	assert.Equal(t, domain.ActionReject, o.NegativeOutcome.Action)
	assert.Equal(t, lifecycle.ReasonOther, o.NegativeOutcome.ReasonCode)
	assert.Equal(t, "going abroad", o.NegativeOutcome.Note)
	assert.Equal(t, ownerID, o.NegativeOutcome.ActorID)

	entries := f.log(t, o.ID)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Details.Reason)
	assert.Equal(t, "going abroad", entries[0].Details.Reason.Note)
}

func TestExecutor_Edit(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t)

	newEnd := o.EndAt.Add(48 * time.Hour)
	o = f.act(t, o.ID, domain.ActionEdit, renterID, domain.ActionPayload{Schedule: &domain.SchedulePayload{EndAt: &newEnd}})
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, newEnd, *o.EndAt)
	assert.Equal(t, 1, o.Version)

	// an end before the stored start is refused even when only the end is sent
	early := o.StartAt.Add(-time.Hour)
	_, err := f.orders.ExecuteAction(context.Background(), o.ID, domain.ActionEdit, renterID,
		domain.ActionPayload{Schedule: &domain.SchedulePayload{EndAt: &early}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, f.log(t, o.ID), 1)
}

func TestExecutor_EditRecurringOrderKeepsMilestoneSchedule(t *testing.T) {
	f := newFixture(t)
	in := orderInput()
	in.IsRecurring = true
	in.Pricing.DurationType = domain.DurationWeekly
	o, err := f.orders.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	moved := o.StartAt.Add(14 * 24 * time.Hour)
	_, err = f.orders.ExecuteAction(context.Background(), o.ID, domain.ActionEdit, renterID,
		domain.ActionPayload{Schedule: &domain.SchedulePayload{StartAt: &moved}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "schedule.start_at", verr.Field)
	assert.Empty(t, f.log(t, o.ID))

	// the end may still move, and resending the same start is accepted
	start := *o.StartAt
	newEnd := o.EndAt.Add(7 * 24 * time.Hour)
	edited := f.act(t, o.ID, domain.ActionEdit, renterID,
		domain.ActionPayload{Schedule: &domain.SchedulePayload{StartAt: &start, EndAt: &newEnd}})
	assert.Equal(t, start, *edited.StartAt)

	ms, err := f.milestones.ListMilestones(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	for i, m := range ms {
		assert.Equal(t, edited.StartAt.AddDate(0, 0, 7*(i+1)), m.DueDate, "milestone %d", m.Sequence)
	}
}

func TestExecutor_DuplicateTransactionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.driveTo(t, domain.OrderStatusAccepted)
	b := f.driveTo(t, domain.OrderStatusAccepted)

	f.act(t, a.ID, domain.ActionSubmitHandover, renterID, handoverPayload("TX-1"))

	_, err := f.orders.ExecuteAction(ctx, b.ID, domain.ActionSubmitHandover, renterID, handoverPayload("TX-1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)
	assert.Equal(t, domain.OrderStatusAccepted, f.status(t, b.ID))
	assert.Len(t, f.log(t, b.ID), 1)

	t.Run("cash needs no transaction id", func(t *testing.T) {
		p := handoverPayload("")
		p.Handover.PaymentMethod = domain.PaymentMethodCash
		o := f.act(t, b.ID, domain.ActionSubmitHandover, renterID, p)
		assert.Equal(t, domain.OrderStatusHandoverPending, o.Status)
	})
}

func TestExecutor_RejectHandoverReleasesTransactionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.driveTo(t, domain.OrderStatusAccepted)
	b := f.driveTo(t, domain.OrderStatusAccepted)

	f.act(t, a.ID, domain.ActionSubmitHandover, renterID, handoverPayload("TX-9"))
	a = f.act(t, a.ID, domain.ActionRejectHandover, ownerID, reason("incorrect_amount"))
	assert.Equal(t, domain.OrderStatusAccepted, a.Status)
	assert.Nil(t, a.Handover)

	exists, err := f.store.SettlementRepository.TransactionIDExists(ctx, "TX-9")
	require.NoError(t, err)
	assert.False(t, exists)

	b = f.act(t, b.ID, domain.ActionSubmitHandover, renterID, handoverPayload("TX-9"))
	assert.Equal(t, domain.OrderStatusHandoverPending, b.Status)
}

func TestExecutor_ConcurrentSubmitHandoverSameTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders := []*domain.RentalOrder{f.driveTo(t, domain.OrderStatusAccepted), f.driveTo(t, domain.OrderStatusAccepted)}

	var wg sync.WaitGroup
	errs := make([]error, len(orders))
	for i, o := range orders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.orders.ExecuteAction(ctx, id, domain.ActionSubmitHandover, renterID, handoverPayload("TX-RACE"))
		}(i, o.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)
	}
	assert.Equal(t, 1, succeeded)
}

func TestExecutor_ConcurrentAcceptAndWithdraw(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		ctx := context.Background()
		o := f.createOrder(t)

		var wg sync.WaitGroup
		var acceptErr, withdrawErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = f.orders.ExecuteAction(ctx, o.ID, domain.ActionAccept, ownerID, domain.ActionPayload{})
		}()
		go func() {
			defer wg.Done()
			_, withdrawErr = f.orders.ExecuteAction(ctx, o.ID, domain.ActionWithdraw, renterID, reason("plans_changed"))
		}()
		wg.Wait()

		require.True(t, (acceptErr == nil) != (withdrawErr == nil), "exactly one must win: accept=%v withdraw=%v", acceptErr, withdrawErr)
		if acceptErr == nil {
			assert.ErrorIs(t, withdrawErr, domain.ErrInvalidTransition)
			assert.Equal(t, domain.OrderStatusAccepted, f.status(t, o.ID))
		} else {
			assert.ErrorIs(t, acceptErr, domain.ErrInvalidTransition)
			assert.Equal(t, domain.OrderStatusWithdrawn, f.status(t, o.ID))
		}
		assert.Len(t, f.log(t, o.ID), 1)
	}
}

func TestExecutor_Dispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := f.driveTo(t, domain.OrderStatusLive)
	o := f.act(t, live.ID, domain.ActionDispute, ownerID, reason("item_damaged"))
	assert.Equal(t, domain.OrderStatusDisputed, o.Status)
	entries := f.log(t, o.ID)
	assert.Equal(t, domain.OrderStatusLive, entries[len(entries)-1].FromStatus)

	_, err := f.orders.ExecuteAction(ctx, o.ID, domain.ActionDispute, renterID, reason("item_damaged"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	actions, err := f.orders.GetAvailableActions(ctx, o.ID, renterID)
	require.NoError(t, err)
	assert.Empty(t, actions)

	completed := f.driveTo(t, domain.OrderStatusCompleted)
	o = f.act(t, completed.ID, domain.ActionDispute, renterID, reason("payment_not_received"))
	assert.Equal(t, domain.OrderStatusDisputed, o.Status)
}

func TestExecutor_RejectReturnClearsRequest(t *testing.T) {
	f := newFixture(t)
	o := f.driveTo(t, domain.OrderStatusReturnPending)

	o = f.act(t, o.ID, domain.ActionRejectReturn, ownerID, reason("parts_missing"))
	assert.Equal(t, domain.OrderStatusLive, o.Status)
	assert.Nil(t, o.Return.RequestedBy)
	assert.Nil(t, o.Return.RequestedAt)
}

func TestExecutor_SystemPathway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.createOrder(t)
	_, err := f.executor.ExecuteSystem(ctx, o.ID, domain.ActionAccept, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.executor.ExecuteSystem(ctx, o.ID, domain.ActionAutoComplete, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	pending := f.driveTo(t, domain.OrderStatusReturnPending)
	done, err := f.executor.ExecuteSystem(ctx, pending.ID, domain.ActionAutoComplete, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, done.Status)
	assert.True(t, done.Return.IsAutoCompleted)

	entries := f.log(t, pending.ID)
	last := entries[len(entries)-1]
	assert.Nil(t, last.ActorID)
	assert.True(t, last.Details.AutoCompleted)

	t.Run("guard refusal leaves the order alone", func(t *testing.T) {
		o := f.driveTo(t, domain.OrderStatusReturnPending)
		refused := errors.New("not yet")
		_, err := f.executor.ExecuteSystem(ctx, o.ID, domain.ActionAutoComplete, func(*domain.RentalOrder) error { return refused })
		assert.ErrorIs(t, err, refused)
		assert.Equal(t, domain.OrderStatusReturnPending, f.status(t, o.ID))
	})
}

func TestExecutor_HooksNeverFailTheAction(t *testing.T) {
	f := newFixture(t)

	var calls []string
	f.executor.RegisterHook(domain.ActionAccept, func(ctx context.Context, c service.Commit) error {
		calls = append(calls, "error:"+c.ActorID)
		return errors.New("broker down")
	})
	f.executor.RegisterHook(domain.ActionAccept, func(ctx context.Context, c service.Commit) error {
		calls = append(calls, "panic")
		panic("boom")
	})
	f.executor.RegisterHook(domain.ActionAccept, func(ctx context.Context, c service.Commit) error {
		calls = append(calls, fmt.Sprintf("entry:%d", c.Entry.ID))
		return nil
	})

	o := f.createOrder(t)
	o = f.act(t, o.ID, domain.ActionAccept, ownerID, domain.ActionPayload{})
	assert.Equal(t, domain.OrderStatusAccepted, o.Status)
	assert.Equal(t, []string{"error:" + ownerID, "panic", "entry:1"}, calls)
}

func TestExecutor_RetriesAfterConcurrentModification(t *testing.T) {
	ctx := context.Background()
	pending := &domain.RentalOrder{ID: "o-1", RenterID: renterID, OwnerID: ownerID, Status: domain.OrderStatusPending, Version: 4}

	t.Run("succeeds on the second attempt", func(t *testing.T) {
		orders := new(MockOrderRepo)
		orders.On("GetByID", ctx, "o-1").Return(pending, nil)
		orders.On("CompareAndSwapStatus", ctx, mock.AnythingOfType("repository.TransitionWrite")).
			Return(domain.ErrConcurrentModification).Once()
		orders.On("CompareAndSwapStatus", ctx, mock.MatchedBy(func(w repository.TransitionWrite) bool {
			return w.ExpectedStatus == domain.OrderStatusPending && w.ExpectedVersion == 4 && w.Order.Status == domain.OrderStatusAccepted
		})).Return(nil).Once()

		exec := service.NewExecutor(orders, new(MockSettlementRepo), 3, nil)
		o, err := exec.Execute(ctx, "o-1", domain.ActionAccept, ownerID, domain.ActionPayload{})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusAccepted, o.Status)
		orders.AssertNumberOfCalls(t, "GetByID", 2)
		orders.AssertNumberOfCalls(t, "CompareAndSwapStatus", 2)
	})

	t.Run("gives up after the attempt limit", func(t *testing.T) {
		orders := new(MockOrderRepo)
		orders.On("GetByID", ctx, "o-1").Return(pending, nil)
		orders.On("CompareAndSwapStatus", ctx, mock.Anything).Return(domain.ErrConcurrentModification)

		exec := service.NewExecutor(orders, new(MockSettlementRepo), 3, nil)
		_, err := exec.Execute(ctx, "o-1", domain.ActionAccept, ownerID, domain.ActionPayload{})
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		orders.AssertNumberOfCalls(t, "CompareAndSwapStatus", 3)
	})

	t.Run("validation errors are not retried", func(t *testing.T) {
		orders := new(MockOrderRepo)
		orders.On("GetByID", ctx, "o-1").Return(pending, nil)

		exec := service.NewExecutor(orders, new(MockSettlementRepo), 3, nil)
		_, err := exec.Execute(ctx, "o-1", domain.ActionReject, ownerID, domain.ActionPayload{})
		assert.ErrorIs(t, err, domain.ErrValidation)
		orders.AssertNumberOfCalls(t, "GetByID", 1)
		orders.AssertNotCalled(t, "CompareAndSwapStatus", mock.Anything, mock.Anything)
	})
}
