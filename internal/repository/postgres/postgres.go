package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"rentloop-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.OrderRepository
	repository.ActivityLogRepository
	repository.MilestoneRepository
	repository.SettlementRepository
	repository.PenaltyRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		OrderRepository:       NewOrderRepository(db),
		ActivityLogRepository: NewActivityLogRepository(db),
		MilestoneRepository:   NewMilestoneRepository(db),
		SettlementRepository:  NewSettlementRepository(db),
		PenaltyRepository:     NewPenaltyRepository(db),
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type settlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) repository.SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM settlement_transactions WHERE transaction_id = $1)`, transactionID,
	).Scan(&exists)
	return exists, err
}
