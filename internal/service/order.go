package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

type orderService struct {
	orders      repository.OrderRepository
	activity    repository.ActivityLogRepository
	executor    *Executor
	milestones  MilestoneService
	reviewGrace time.Duration
	now         Clock
}

// NewOrderService wires the order surface around executor. Cancellations are reported to
// penalties through a post-commit hook.
func NewOrderService(
	orders repository.OrderRepository,
	activity repository.ActivityLogRepository,
	executor *Executor,
	milestones MilestoneService,
	penalties PenaltyService,
	policy Policy,
	clock Clock,
) OrderService {
	if penalties != nil {
		executor.RegisterHook(domain.ActionCancel, penaltyHook(penalties))
	}
	return &orderService{
		orders:      orders,
		activity:    activity,
		executor:    executor,
		milestones:  milestones,
		reviewGrace: policy.ReviewGrace,
		now:         orSystemClock(clock),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, in domain.CreateOrderInput) (*domain.RentalOrder, error) {
	logger.EnterMethod("orderService.CreateOrder", "renterID", in.RenterID, "listingID", in.ListingID)

	if err := validateCreateInput(in); err != nil {
		logger.ExitMethodWithError("orderService.CreateOrder", err)
		return nil, err
	}

	now := s.now()
	order := &domain.RentalOrder{
		ID:            uuid.NewString(),
		ListingID:     strings.TrimSpace(in.ListingID),
		RenterID:      strings.TrimSpace(in.RenterID),
		OwnerID:       strings.TrimSpace(in.OwnerID),
		Status:        domain.OrderStatusPending,
		Pricing:       in.Pricing,
		PaymentMethod: in.PaymentMethod,
		IsRecurring:   in.IsRecurring,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.StartAt != nil {
		t := in.StartAt.UTC()
		order.StartAt = &t
	}
	if in.EndAt != nil {
		t := in.EndAt.UTC()
		order.EndAt = &t
	}

	var schedule []domain.PaymentMilestone
	if order.IsRecurring {
		schedule = s.milestones.Schedule(order)
	}

	if err := s.orders.Create(ctx, order, schedule); err != nil {
		logger.ExitMethodWithError("orderService.CreateOrder", err)
		return nil, fmt.Errorf("create order: %w", err)
	}

	logger.WithOrder(order.ID).Info("Order created",
		"renter_id", order.RenterID, "owner_id", order.OwnerID, "recurring", order.IsRecurring, "milestones", len(schedule))
	logger.ExitMethod("orderService.CreateOrder", "orderID", order.ID)
	return order, nil
}

func validateCreateInput(in domain.CreateOrderInput) error {
	switch {
	case strings.TrimSpace(in.ListingID) == "":
		return domain.NewValidationError("listing_id", "is required")
	case strings.TrimSpace(in.RenterID) == "":
		return domain.NewValidationError("renter_id", "is required")
	case strings.TrimSpace(in.OwnerID) == "":
		return domain.NewValidationError("owner_id", "is required")
	case strings.TrimSpace(in.RenterID) == strings.TrimSpace(in.OwnerID):
		return domain.NewValidationError("owner_id", "renter and owner must differ")
	case !in.PaymentMethod.Valid():
		return domain.NewValidationError("payment_method", "must be cash or bank")
	}

	switch in.Pricing.DurationType {
	case domain.DurationDaily, domain.DurationWeekly, domain.DurationMonthly:
	default:
		return domain.NewValidationError("pricing.duration_type", "must be daily, weekly or monthly")
	}
	if in.Pricing.UnitPrice.IsNegative() {
		return domain.NewValidationError("pricing.unit_price", "must not be negative")
	}
	if !in.Pricing.TotalPrice.IsPositive() {
		return domain.NewValidationError("pricing.total_price", "must be greater than zero")
	}
	if in.Pricing.SecurityDeposit.IsNegative() {
		return domain.NewValidationError("pricing.security_deposit", "must not be negative")
	}

	if in.StartAt != nil && in.EndAt != nil && in.EndAt.Before(*in.StartAt) {
		return domain.NewValidationError("end_at", "must not be before start_at")
	}
	if in.IsRecurring && in.StartAt == nil {
		return domain.NewValidationError("start_at", "is required for recurring orders")
	}
	return nil
}

func (s *orderService) ExecuteAction(ctx context.Context, orderID string, action domain.Action, actorID string, payload domain.ActionPayload) (*domain.RentalOrder, error) {
	logger.EnterMethod("orderService.ExecuteAction", "orderID", orderID, "action", action, "actorID", actorID)

	order, err := s.executor.Execute(ctx, orderID, action, actorID, payload)
	if err != nil {
		logger.ExitMethodWithError("orderService.ExecuteAction", err, "orderID", orderID, "action", action)
		return nil, err
	}

	logger.ExitMethod("orderService.ExecuteAction", "orderID", orderID, "status", order.Status)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.RentalOrder, error) {
	return s.orders.GetByID(ctx, orderID)
}

func (s *orderService) ListActivityLog(ctx context.Context, orderID string) ([]domain.ActivityLogEntry, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.activity.ListByOrder(ctx, orderID)
}

func (s *orderService) GetAvailableActions(ctx context.Context, orderID, actorID string) ([]domain.Action, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return lifecycle.AvailableActions(order, actorID), nil
}

func (s *orderService) MarkReviewed(ctx context.Context, orderID, actorID string) (*domain.RentalOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	role := lifecycle.RoleOf(order, actorID)
	if role == domain.RoleNone {
		return nil, domain.ErrRoleMismatch
	}
	return s.orders.MarkReviewed(ctx, orderID, role, s.now())
}

// CheckEligibility refuses a renter who has a rental in progress, or a completed rental left
// unreviewed past the grace period.
func (s *orderService) CheckEligibility(ctx context.Context, renterID string) error {
	orders, err := s.orders.ListByRenter(ctx, renterID, []domain.OrderStatus{
		domain.OrderStatusLive,
		domain.OrderStatusReturnPending,
		domain.OrderStatusCompleted,
	})
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-s.reviewGrace)
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusLive, domain.OrderStatusReturnPending:
			return fmt.Errorf("order %s is still %s: %w", o.ID, o.Status, domain.ErrNotEligible)
		case domain.OrderStatusCompleted:
			if o.HasRenterReview || o.Return.CompletedAt == nil {
				continue
			}
			if o.Return.CompletedAt.Before(cutoff) {
				return fmt.Errorf("order %s awaits a review: %w", o.ID, domain.ErrNotEligible)
			}
		}
	}
	return nil
}
