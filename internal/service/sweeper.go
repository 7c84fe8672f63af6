package service

import (
	"context"
	"errors"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

var errNoLongerStale = errors.New("return request is no longer stale")

// SweepResult summarises one sweep.
type SweepResult struct {
	Examined  int `json:"examined"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type sweeper struct {
	orders    repository.OrderRepository
	executor  *Executor
	timeout   time.Duration
	batchSize int
	now       Clock
}

func NewSweeperService(orders repository.OrderRepository, executor *Executor, policy Policy, clock Clock) SweeperService {
	return &sweeper{
		orders:    orders,
		executor:  executor,
		timeout:   policy.AutoCompleteAfter,
		batchSize: policy.SweepBatchSize,
		now:       orSystemClock(clock),
	}
}

// SweepStaleReturns auto-completes RETURN_PENDING orders whose return request is older than
// the timeout. A failure on one order never stops the others.
func (s *sweeper) SweepStaleReturns(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	cutoff := s.now().Add(-s.timeout)
	stale, err := s.orders.ListStaleReturnPending(ctx, cutoff, s.batchSize)
	if err != nil {
		return res, err
	}

	stillStale := func(o *domain.RentalOrder) error {
		if o.Return.RequestedAt == nil || !o.Return.RequestedAt.Before(cutoff) {
			return errNoLongerStale
		}
		return nil
	}

	for _, o := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Examined++

		_, err := s.executor.ExecuteSystem(ctx, o.ID, domain.ActionAutoComplete, stillStale)
		switch {
		case err == nil:
			res.Completed++
			logger.WithOrder(o.ID).Info("Auto-completed stale return", "requested_at", o.Return.RequestedAt)
		case errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, domain.ErrNotFound),
			errors.Is(err, domain.ErrConcurrentModification),
			errors.Is(err, errNoLongerStale):
			res.Skipped++
			logger.WithOrder(o.ID).Debug("Skipped auto-completion", "reason", err)
		default:
			res.Failed++
			logger.WithOrder(o.ID).Error("Failed to auto-complete order", "error", err)
		}
	}
	return res, nil
}
