package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

const (
	weeklyCycleDays  = 7
	monthlyCycleDays = 30
)

type milestoneService struct {
	orders      repository.OrderRepository
	milestones  repository.MilestoneRepository
	settlements repository.SettlementRepository
	horizon     int
	now         Clock
}

func NewMilestoneService(
	orders repository.OrderRepository,
	milestones repository.MilestoneRepository,
	settlements repository.SettlementRepository,
	policy Policy,
	clock Clock,
) MilestoneService {
	return &milestoneService{
		orders:      orders,
		milestones:  milestones,
		settlements: settlements,
		horizon:     policy.MilestoneHorizon,
		now:         orSystemClock(clock),
	}
}

// Schedule returns horizon pending milestones, one per cycle after the start date.
func (s *milestoneService) Schedule(order *domain.RentalOrder) []domain.PaymentMilestone {
	if !order.IsRecurring || order.StartAt == nil {
		return nil
	}

	cycle := weeklyCycleDays
	if order.Pricing.DurationType == domain.DurationMonthly {
		cycle = monthlyCycleDays
	}

	milestones := make([]domain.PaymentMilestone, 0, s.horizon)
	for i := 0; i < s.horizon; i++ {
		milestones = append(milestones, domain.PaymentMilestone{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Sequence:  i + 1,
			AmountDue: order.Pricing.TotalPrice,
			DueDate:   order.StartAt.AddDate(0, 0, cycle*(i+1)),
			Status:    domain.MilestoneStatusPending,
			CreatedAt: order.CreatedAt,
		})
	}
	return milestones
}

func (s *milestoneService) ListMilestones(ctx context.Context, orderID string) ([]domain.PaymentMilestone, error) {
	return s.milestones.ListByOrder(ctx, orderID)
}

func (s *milestoneService) PayMilestone(ctx context.Context, milestoneID, actorID, transactionID string) (*domain.PaymentMilestone, error) {
	logger.EnterMethod("milestoneService.PayMilestone", "milestoneID", milestoneID, "actorID", actorID)

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, domain.NewValidationError("transaction_id", "a transaction id is required")
	}

	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetByID(ctx, m.OrderID)
	if err != nil {
		return nil, err
	}
	switch lifecycle.RoleOf(order, actorID) {
	case domain.RoleRenter:
	case domain.RoleOwner:
		return nil, fmt.Errorf("only the renter pays milestones: %w", domain.ErrForbidden)
	default:
		return nil, domain.ErrRoleMismatch
	}
	if !m.Payable() {
		return nil, fmt.Errorf("milestone %s is %s: %w", m.ID, m.Status, domain.ErrInvalidTransition)
	}

	exists, err := s.settlements.TransactionIDExists(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("check transaction id: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateTransaction
	}

	paid, err := s.milestones.MarkPaid(ctx, m.ID, transactionID, s.now())
	if err != nil {
		logger.ExitMethodWithError("milestoneService.PayMilestone", err, "milestoneID", milestoneID)
		return nil, err
	}

	logger.ExitMethod("milestoneService.PayMilestone", "milestoneID", milestoneID)
	return paid, nil
}

func (s *milestoneService) MarkOverdue(ctx context.Context) (int64, error) {
	return s.milestones.MarkOverdue(ctx, s.now())
}
