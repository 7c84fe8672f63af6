package repository

import (
	"context"
	"time"

	"rentloop-backend/internal/domain"
)

// TransitionWrite is one executed transition: the next order state, the log entry recording it,
// and the expected snapshot it was computed from.
type TransitionWrite struct {
	ExpectedStatus  domain.OrderStatus
	ExpectedVersion int
	Order           *domain.RentalOrder
	Entry           *domain.ActivityLogEntry

	// ClaimTransactionID reserves a transaction id in the global settlement ledger.
	ClaimTransactionID string
	// ReleaseTransactionID drops this order's handover claim on the id.
	ReleaseTransactionID string
}

type OrderRepository interface {
	// Create inserts the order and its milestones in one atomic unit.
	Create(ctx context.Context, order *domain.RentalOrder, milestones []domain.PaymentMilestone) error
	GetByID(ctx context.Context, id string) (*domain.RentalOrder, error)
	// CompareAndSwapStatus persists w.Order and appends w.Entry only if the stored order still
	// has w.ExpectedStatus at w.ExpectedVersion. A lost race returns domain.ErrConcurrentModification;
	// a transaction id already claimed returns domain.ErrDuplicateTransaction. On success the
	// stored version is w.ExpectedVersion+1 and w.Entry.ID is set.
	CompareAndSwapStatus(ctx context.Context, w TransitionWrite) error
	ListStaleReturnPending(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.RentalOrder, error)
	ListByRenter(ctx context.Context, renterID string, statuses []domain.OrderStatus) ([]domain.RentalOrder, error)
	// MarkReviewed sets the review flag for role on a completed order and archives it once both
	// parties have reviewed. Status is never touched.
	MarkReviewed(ctx context.Context, orderID string, role domain.Role, now time.Time) (*domain.RentalOrder, error)
}

type ActivityLogRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.ActivityLogEntry, error)
	ListUnpublished(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

type MilestoneRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentMilestone, error)
	GetByID(ctx context.Context, id string) (*domain.PaymentMilestone, error)
	// MarkPaid claims transactionID and marks a pending or overdue milestone paid.
	MarkPaid(ctx context.Context, milestoneID, transactionID string, paidAt time.Time) (*domain.PaymentMilestone, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type SettlementRepository interface {
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
}

type PenaltyRepository interface {
	// Get returns domain.ErrNotFound when the user never cancelled.
	Get(ctx context.Context, userID string) (*domain.CancellationPenalty, error)
	// Update runs fn against the user's locked penalty row, creating it with
	// Count 0 and LastReset now when missing, and persists the result.
	Update(ctx context.Context, userID string, now time.Time, fn func(p *domain.CancellationPenalty)) (*domain.CancellationPenalty, error)
}
