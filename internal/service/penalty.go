package service

import (
	"context"
	"errors"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

type penaltyTracker struct {
	penalties repository.PenaltyRepository
	window    time.Duration
	threshold int
	now       Clock
}

func NewPenaltyService(penalties repository.PenaltyRepository, policy Policy, clock Clock) PenaltyService {
	return &penaltyTracker{
		penalties: penalties,
		window:    policy.PenaltyWindow,
		threshold: policy.PenaltyThreshold,
		now:       orSystemClock(clock),
	}
}

func (t *penaltyTracker) RecordCancellation(ctx context.Context, userID string) (*domain.CancellationPenalty, error) {
	logger.EnterMethod("penaltyTracker.RecordCancellation", "userID", userID)

	now := t.now()
	p, err := t.penalties.Update(ctx, userID, now, func(p *domain.CancellationPenalty) {
		applyCancellation(p, now, t.window, t.threshold)
	})
	if err != nil {
		logger.ExitMethodWithError("penaltyTracker.RecordCancellation", err, "userID", userID)
		return nil, err
	}
	if p.Flagged {
		logger.Warn("User flagged for repeated cancellations", "user_id", userID, "count", p.Count)
	}

	logger.ExitMethod("penaltyTracker.RecordCancellation", "userID", userID, "count", p.Count)
	return p, nil
}

// applyCancellation counts one cancellation. A window older than the limit restarts at 1;
// the flag is never cleared here.
func applyCancellation(p *domain.CancellationPenalty, now time.Time, window time.Duration, threshold int) {
	if now.Sub(p.LastReset) > window {
		p.Count = 1
		p.LastReset = now
	} else {
		p.Count++
	}
	if p.Count >= threshold {
		p.Flagged = true
	}
}

func (t *penaltyTracker) GetPenalty(ctx context.Context, userID string) (*domain.CancellationPenalty, error) {
	p, err := t.penalties.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.CancellationPenalty{UserID: userID}, nil
	}
	return p, err
}

// penaltyHook records the cancelling actor after a committed cancel.
func penaltyHook(penalties PenaltyService) PostCommitHook {
	return func(ctx context.Context, c Commit) error {
		if c.ActorID == "" {
			return nil
		}
		_, err := penalties.RecordCancellation(ctx, c.ActorID)
		return err
	}
}
