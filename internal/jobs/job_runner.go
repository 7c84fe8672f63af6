package jobs

import (
	"context"
	"time"

	"rentloop-backend/internal/config"
	"rentloop-backend/internal/events"
	"rentloop-backend/internal/lock"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
	"rentloop-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services  *Services
	activity  repository.ActivityLogRepository
	publisher events.ActivityPublisher
	locker    lock.Locker
	config    *config.Config
	now       func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Sweeper    service.SweeperService
	Milestones service.MilestoneService
}

// NewJobRunner creates a new job runner. A nil publisher disables the activity relay;
// a nil locker falls back to an in-process lease.
func NewJobRunner(services *Services, activity repository.ActivityLogRepository, publisher events.ActivityPublisher, locker lock.Locker, cfg *config.Config) *JobRunner {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &JobRunner{
		services:  services,
		activity:  activity,
		publisher: publisher,
		locker:    locker,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	log := logger.WithJob(jobName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
		}
	}()

	start := time.Now()
	log.Info("Starting job")
	jobFunc()
	log.Info("Job completed", "duration", time.Since(start))
}

// withLease runs fn only if this replica wins the lease for key. Missing the lease is not an error.
func (jr *JobRunner) withLease(ctx context.Context, key string, fn func(ctx context.Context)) {
	ttl := time.Duration(jr.config.Scheduler.SweepLeaseSeconds) * time.Second
	release, ok, err := jr.locker.Acquire(ctx, key, ttl)
	if err != nil {
		logger.Error("Failed to acquire lease", "key", key, "error", err)
		return
	}
	if !ok {
		logger.Debug("Lease held by another replica, skipping", "key", key)
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	fn(ctx)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.SweepStaleReturns()
	jr.MarkOverdueMilestones()
	jr.RelayActivityLog()
}
