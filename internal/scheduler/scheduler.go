package scheduler

import (
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"rentloop-backend/internal/jobs"
	"rentloop-backend/internal/logger"
)

// Scheduler runs the order maintenance jobs on their cron specs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    *jobs.JobRunner
	entries map[string]cron.EntryID
}

type scheduledJob struct {
	name string
	spec string
	run  func()
}

// NewScheduler registers every job of jobRunner. A job whose spec does not parse is
// logged and left out; the others still run.
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Specs carry a seconds field and are read in UTC. An overrunning job makes the next tick
	// a no-op rather than a second concurrent run.
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron:    c,
		jobs:    jobRunner,
		entries: make(map[string]cron.EntryID),
	}
	s.register(s.jobTable())
	return s
}

func (s *Scheduler) jobTable() []scheduledJob {
	cfg := s.jobs.Config().Scheduler
	return []scheduledJob{
		{name: "sweep-stale-returns", spec: cfg.SweepStaleReturns, run: s.jobs.SweepStaleReturns},
		{name: "mark-overdue-milestones", spec: cfg.MarkOverdueMilestones, run: s.jobs.MarkOverdueMilestones},
		{name: "relay-activity-log", spec: cfg.RelayActivityLog, run: s.jobs.RelayActivityLog},
	}
}

func (s *Scheduler) register(table []scheduledJob) {
	for _, j := range table {
		id, err := s.cron.AddFunc(j.spec, j.run)
		if err != nil {
			logger.Error("Failed to register job", "job", j.name, "spec", j.spec, "error", err)
			continue
		}
		s.entries[j.name] = id
		logger.Debug("Registered job", "job", j.name, "spec", j.spec)
	}
	logger.Info("Cron jobs registered", "count", len(s.entries))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Cron scheduler started", "jobs", s.JobNames())
}

// Stop halts new runs and waits for in-flight ones.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Cron scheduler stopped")
}

func (s *Scheduler) JobCount() int {
	return len(s.entries)
}

// JobNames lists the registered jobs in name order.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun reports when job fires next. It is zero before Start or for an unknown job.
func (s *Scheduler) NextRun(job string) time.Time {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}
