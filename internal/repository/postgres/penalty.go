package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/repository"
)

type penaltyRepository struct {
	db *sql.DB
}

func NewPenaltyRepository(db *sql.DB) repository.PenaltyRepository {
	return &penaltyRepository{db: db}
}

func (r *penaltyRepository) Get(ctx context.Context, userID string) (*domain.CancellationPenalty, error) {
	p := &domain.CancellationPenalty{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, count, last_reset, flagged, updated_at FROM cancellation_penalties WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Count, &p.LastReset, &p.Flagged, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("penalty for %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *penaltyRepository) Update(ctx context.Context, userID string, now time.Time, fn func(p *domain.CancellationPenalty)) (*domain.CancellationPenalty, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cancellation_penalties (user_id, count, last_reset, flagged, updated_at)
		 VALUES ($1, 0, $2, FALSE, $2) ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return nil, err
	}

	p := &domain.CancellationPenalty{}
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, count, last_reset, flagged, updated_at FROM cancellation_penalties WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&p.UserID, &p.Count, &p.LastReset, &p.Flagged, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	fn(p)
	p.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE cancellation_penalties SET count = $1, last_reset = $2, flagged = $3, updated_at = $4 WHERE user_id = $5`,
		p.Count, p.LastReset, p.Flagged, p.UpdatedAt, p.UserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}
