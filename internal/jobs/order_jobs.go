package jobs

import (
	"context"

	"rentloop-backend/internal/logger"
)

const sweepLeaseKey = "sweep-stale-returns"

// SweepStaleReturns auto-completes orders whose return request has gone unanswered past the timeout
func (jr *JobRunner) SweepStaleReturns() {
	jr.runWithRecovery("SweepStaleReturns", func() {
		jr.withLease(context.Background(), sweepLeaseKey, func(ctx context.Context) {
			result, err := jr.services.Sweeper.SweepStaleReturns(ctx)
			if err != nil {
				logger.Error("Failed to sweep stale returns", "error", err)
				return
			}
			logger.Info("Swept stale returns",
				"examined", result.Examined,
				"completed", result.Completed,
				"skipped", result.Skipped,
				"failed", result.Failed)
		})
	})
}

// MarkOverdueMilestones flags pending milestones past their due date
func (jr *JobRunner) MarkOverdueMilestones() {
	jr.runWithRecovery("MarkOverdueMilestones", func() {
		count, err := jr.services.Milestones.MarkOverdue(context.Background())
		if err != nil {
			logger.Error("Failed to mark overdue milestones", "error", err)
			return
		}
		logger.Info("Marked milestones as overdue", "count", count)
	})
}
