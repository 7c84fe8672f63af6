package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/repository"
	"rentloop-backend/internal/repository/memory"
	"rentloop-backend/internal/service"
)

const (
	renterID = "renter-1"
	ownerID  = "owner-1"
	stranger = "stranger-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store      *memory.Store
	clock      *fakeClock
	policy     service.Policy
	executor   *service.Executor
	orders     service.OrderService
	milestones service.MilestoneService
	penalties  service.PenaltyService
	sweeper    service.SweeperService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	policy := service.DefaultPolicy()

	executor := service.NewExecutor(store.OrderRepository, store.SettlementRepository, policy.MaxTransitionAttempts, clock.Now)
	milestones := service.NewMilestoneService(store.OrderRepository, store.MilestoneRepository, store.SettlementRepository, policy, clock.Now)
	penalties := service.NewPenaltyService(store.PenaltyRepository, policy, clock.Now)

	return &fixture{
		store:      store,
		clock:      clock,
		policy:     policy,
		executor:   executor,
		orders:     service.NewOrderService(store.OrderRepository, store.ActivityLogRepository, executor, milestones, penalties, policy, clock.Now),
		milestones: milestones,
		penalties:  penalties,
		sweeper:    service.NewSweeperService(store.OrderRepository, executor, policy, clock.Now),
	}
}

func orderInput() domain.CreateOrderInput {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)
	return domain.CreateOrderInput{
		ListingID: "listing-1",
		RenterID:  renterID,
		OwnerID:   ownerID,
		Pricing: domain.PricingSnapshot{
			DurationType:    domain.DurationDaily,
			UnitPrice:       decimal.RequireFromString("25.00"),
			TotalPrice:      decimal.RequireFromString("75.00"),
			SecurityDeposit: decimal.RequireFromString("50.00"),
		},
		StartAt:       &start,
		EndAt:         &end,
		PaymentMethod: domain.PaymentMethodBank,
	}
}

func (f *fixture) createOrder(t *testing.T) *domain.RentalOrder {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), orderInput())
	require.NoError(t, err)
	return o
}

func (f *fixture) act(t *testing.T, orderID string, action domain.Action, actor string, payload domain.ActionPayload) *domain.RentalOrder {
	t.Helper()
	o, err := f.orders.ExecuteAction(context.Background(), orderID, action, actor, payload)
	require.NoError(t, err, "%s by %s", action, actor)
	return o
}

func consent() domain.ActionPayload {
	return domain.ActionPayload{Consent: true}
}

func reason(code string) domain.ActionPayload {
	return domain.ActionPayload{ReasonCode: code}
}

func handoverPayload(txID string) domain.ActionPayload {
	amount := decimal.RequireFromString("75.00")
	deposit := decimal.RequireFromString("50.00")
	total := decimal.RequireFromString("125.00")
	return domain.ActionPayload{Handover: &domain.HandoverPayload{
		AmountPaid:    &amount,
		DepositPaid:   &deposit,
		TotalPaid:     &total,
		PaymentMethod: domain.PaymentMethodBank,
		TransactionID: txID,
	}}
}

// driveTo walks a fresh order along the happy path until it reaches status.
func (f *fixture) driveTo(t *testing.T, status domain.OrderStatus) *domain.RentalOrder {
	t.Helper()
	o := f.createOrder(t)
	steps := []struct {
		reached domain.OrderStatus
		action  domain.Action
		actor   string
		payload domain.ActionPayload
	}{
		{domain.OrderStatusPending, domain.ActionAccept, ownerID, domain.ActionPayload{}},
		{domain.OrderStatusAccepted, domain.ActionSubmitHandover, renterID, handoverPayload("TX-" + o.ID)},
		{domain.OrderStatusHandoverPending, domain.ActionApproveHandover, ownerID, consent()},
		{domain.OrderStatusLive, domain.ActionRequestReturn, renterID, consent()},
		{domain.OrderStatusReturnPending, domain.ActionApproveReturn, ownerID, consent()},
	}
	for _, s := range steps {
		if o.Status == status {
			return o
		}
		require.Equal(t, s.reached, o.Status)
		o = f.act(t, o.ID, s.action, s.actor, s.payload)
	}
	require.Equal(t, status, o.Status)
	return o
}

// MockOrderRepo lets tests script CompareAndSwapStatus outcomes.
type MockOrderRepo struct {
	mock.Mock
}

func (m *MockOrderRepo) Create(ctx context.Context, order *domain.RentalOrder, milestones []domain.PaymentMilestone) error {
	args := m.Called(ctx, order, milestones)
	return args.Error(0)
}

func (m *MockOrderRepo) GetByID(ctx context.Context, id string) (*domain.RentalOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RentalOrder).Clone(), args.Error(1)
}

func (m *MockOrderRepo) CompareAndSwapStatus(ctx context.Context, w repository.TransitionWrite) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockOrderRepo) ListStaleReturnPending(ctx context.Context, before time.Time, limit int) ([]domain.RentalOrder, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]domain.RentalOrder), args.Error(1)
}

func (m *MockOrderRepo) ListByRenter(ctx context.Context, renterID string, statuses []domain.OrderStatus) ([]domain.RentalOrder, error) {
	args := m.Called(ctx, renterID, statuses)
	return args.Get(0).([]domain.RentalOrder), args.Error(1)
}

func (m *MockOrderRepo) MarkReviewed(ctx context.Context, orderID string, role domain.Role, now time.Time) (*domain.RentalOrder, error) {
	args := m.Called(ctx, orderID, role, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RentalOrder), args.Error(1)
}

type MockSettlementRepo struct {
	mock.Mock
}

func (m *MockSettlementRepo) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

type MockPenaltyRepo struct {
	mock.Mock
}

func (m *MockPenaltyRepo) Get(ctx context.Context, userID string) (*domain.CancellationPenalty, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CancellationPenalty), args.Error(1)
}

func (m *MockPenaltyRepo) Update(ctx context.Context, userID string, now time.Time, fn func(p *domain.CancellationPenalty)) (*domain.CancellationPenalty, error) {
	args := m.Called(ctx, userID, now, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CancellationPenalty), args.Error(1)
}
