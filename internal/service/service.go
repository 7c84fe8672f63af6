package service

import (
	"context"
	"time"

	"rentloop-backend/internal/domain"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in domain.CreateOrderInput) (*domain.RentalOrder, error)
	ExecuteAction(ctx context.Context, orderID string, action domain.Action, actorID string, payload domain.ActionPayload) (*domain.RentalOrder, error)
	GetOrder(ctx context.Context, orderID string) (*domain.RentalOrder, error)
	ListActivityLog(ctx context.Context, orderID string) ([]domain.ActivityLogEntry, error)
	GetAvailableActions(ctx context.Context, orderID, actorID string) ([]domain.Action, error)
	MarkReviewed(ctx context.Context, orderID, actorID string) (*domain.RentalOrder, error)
	CheckEligibility(ctx context.Context, renterID string) error
}

type MilestoneService interface {
	// Schedule computes the billing schedule of a recurring order without persisting it.
	Schedule(order *domain.RentalOrder) []domain.PaymentMilestone
	ListMilestones(ctx context.Context, orderID string) ([]domain.PaymentMilestone, error)
	PayMilestone(ctx context.Context, milestoneID, actorID, transactionID string) (*domain.PaymentMilestone, error)
	MarkOverdue(ctx context.Context) (int64, error)
}

type PenaltyService interface {
	RecordCancellation(ctx context.Context, userID string) (*domain.CancellationPenalty, error)
	GetPenalty(ctx context.Context, userID string) (*domain.CancellationPenalty, error)
}

type SweeperService interface {
	SweepStaleReturns(ctx context.Context) (SweepResult, error)
}

// Policy holds the tunable lifecycle constants.
type Policy struct {
	AutoCompleteAfter     time.Duration
	MilestoneHorizon      int
	PenaltyWindow         time.Duration
	PenaltyThreshold      int
	ReviewGrace           time.Duration
	MaxTransitionAttempts int
	SweepBatchSize        int
}

func DefaultPolicy() Policy {
	return Policy{
		AutoCompleteAfter:     72 * time.Hour,
		MilestoneHorizon:      12,
		PenaltyWindow:         30 * 24 * time.Hour,
		PenaltyThreshold:      3,
		ReviewGrace:           24 * time.Hour,
		MaxTransitionAttempts: 3,
		SweepBatchSize:        200,
	}
}

// Clock returns the current time. Services default to UTC wall time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
