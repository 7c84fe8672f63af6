package jobs

import (
	"context"

	"rentloop-backend/internal/logger"
)

const relayLeaseKey = "relay-activity-log"

// RelayActivityLog publishes unpublished activity entries in id order and marks the
// acknowledged ones published. Entries after a failed send stay queued for the next run.
func (jr *JobRunner) RelayActivityLog() {
	jr.runWithRecovery("RelayActivityLog", func() {
		if jr.publisher == nil {
			logger.Debug("Activity relay disabled, no publisher configured")
			return
		}
		jr.withLease(context.Background(), relayLeaseKey, jr.relay)
	})
}

func (jr *JobRunner) relay(ctx context.Context) {
	batchSize := jr.config.Scheduler.RelayBatchSize
	total := 0

	for {
		entries, err := jr.activity.ListUnpublished(ctx, batchSize)
		if err != nil {
			logger.Error("Failed to list unpublished activity", "error", err)
			return
		}
		if len(entries) == 0 {
			break
		}

		sent, pubErr := jr.publisher.Publish(ctx, entries)
		if sent > 0 {
			ids := make([]int64, 0, sent)
			for _, e := range entries[:sent] {
				ids = append(ids, e.ID)
			}
			if err := jr.activity.MarkPublished(ctx, ids, jr.now()); err != nil {
				// Already on the topic; the next run resends them.
				logger.Error("Failed to mark activity published", "count", len(ids), "error", err)
				return
			}
			total += sent
		}
		if pubErr != nil {
			logger.Error("Failed to publish activity", "published", sent, "pending", len(entries)-sent, "error", pubErr)
			break
		}
		if batchSize <= 0 || len(entries) < batchSize {
			break
		}
	}

	logger.Info("Relayed activity log", "published", total)
}
