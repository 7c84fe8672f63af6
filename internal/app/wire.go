package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rentloop-backend/internal/config"
	"rentloop-backend/internal/events"
	"rentloop-backend/internal/jobs"
	"rentloop-backend/internal/lock"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
	"rentloop-backend/internal/repository/memory"
	"rentloop-backend/internal/repository/postgres"
	"rentloop-backend/internal/service"
)

// Stores is the repository set for the configured storage driver.
type Stores struct {
	Orders      repository.OrderRepository
	Activity    repository.ActivityLogRepository
	Milestones  repository.MilestoneRepository
	Settlements repository.SettlementRepository
	Penalties   repository.PenaltyRepository

	close func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores connects to PostgreSQL, or builds the in-memory store for the memory driver.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		m := memory.NewStore()
		return &Stores{
			Orders:      m.OrderRepository,
			Activity:    m.ActivityLogRepository,
			Milestones:  m.MilestoneRepository,
			Settlements: m.SettlementRepository,
			Penalties:   m.PenaltyRepository,
		}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := postgres.NewStore(db)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Database connection established")

	return &Stores{
		Orders:      store.OrderRepository,
		Activity:    store.ActivityLogRepository,
		Milestones:  store.MilestoneRepository,
		Settlements: store.SettlementRepository,
		Penalties:   store.PenaltyRepository,
		close:       db.Close,
	}, nil
}

func PolicyFromConfig(l config.LifecycleConfig) service.Policy {
	return service.Policy{
		AutoCompleteAfter:     l.AutoCompleteAfter(),
		MilestoneHorizon:      l.MilestoneHorizon,
		PenaltyWindow:         l.PenaltyWindow(),
		PenaltyThreshold:      l.PenaltyThreshold,
		ReviewGrace:           l.ReviewGrace(),
		MaxTransitionAttempts: l.MaxTransitionAttempts,
		SweepBatchSize:        l.SweepBatchSize,
	}
}

type Services struct {
	Executor   *service.Executor
	Orders     service.OrderService
	Milestones service.MilestoneService
	Penalties  service.PenaltyService
	Sweeper    service.SweeperService
}

func NewServices(stores *Stores, cfg *config.Config) *Services {
	policy := PolicyFromConfig(cfg.Lifecycle)

	executor := service.NewExecutor(stores.Orders, stores.Settlements, policy.MaxTransitionAttempts, nil)
	milestones := service.NewMilestoneService(stores.Orders, stores.Milestones, stores.Settlements, policy, nil)
	penalties := service.NewPenaltyService(stores.Penalties, policy, nil)

	return &Services{
		Executor:   executor,
		Orders:     service.NewOrderService(stores.Orders, stores.Activity, executor, milestones, penalties, policy, nil),
		Milestones: milestones,
		Penalties:  penalties,
		Sweeper:    service.NewSweeperService(stores.Orders, executor, policy, nil),
	}
}

// NewJobRunner wires the lease and the activity relay. Redis and Kafka are optional: without
// redis the lease is in-process, without brokers the relay is disabled.
func NewJobRunner(ctx context.Context, stores *Stores, services *Services, cfg *config.Config) (*jobs.JobRunner, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.ExternalServiceCall("redis", "PING", "addr", cfg.Redis.Addr)
		err := client.Ping(ctx).Err()
		logger.ExternalServiceResult("redis", "PING", err)
		if err != nil {
			client.Close()
			return nil, cleanup, fmt.Errorf("connect redis: %w", err)
		}
		cleanups = append(cleanups, func() { client.Close() })
		locker = lock.NewRedisLocker(client, "rentloop:lease:")
		logger.Info("Using redis lease", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("No redis configured, using in-process lease")
	}

	var publisher events.ActivityPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		cleanups = append(cleanups, func() {
			if err := p.Close(); err != nil {
				logger.Error("Failed to close kafka producer", "error", err)
			}
		})
		publisher = p
		logger.Info("Activity relay enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		logger.Info("No kafka brokers configured, activity relay disabled")
	}

	runner := jobs.NewJobRunner(&jobs.Services{
		Sweeper:    services.Sweeper,
		Milestones: services.Milestones,
	}, stores.Activity, publisher, locker, cfg)
	return runner, cleanup, nil
}
