package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

const milestoneColumns = `id, order_id, sequence, amount_due, due_date, status, paid_at, COALESCE(transaction_id, ''), created_at`

type milestoneRepository struct {
	db *sql.DB
}

func NewMilestoneRepository(db *sql.DB) repository.MilestoneRepository {
	return &milestoneRepository{db: db}
}

func (r *milestoneRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentMilestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+milestoneColumns+` FROM payment_milestones WHERE order_id = $1 ORDER BY sequence`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []domain.PaymentMilestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

func (r *milestoneRepository) GetByID(ctx context.Context, id string) (*domain.PaymentMilestone, error) {
	m, err := scanMilestone(r.db.QueryRowContext(ctx,
		`SELECT `+milestoneColumns+` FROM payment_milestones WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("milestone %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

func (r *milestoneRepository) MarkPaid(ctx context.Context, milestoneID, transactionID string, paidAt time.Time) (*domain.PaymentMilestone, error) {
	logger.EnterMethod("milestoneRepository.MarkPaid", "milestoneID", milestoneID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		orderID string
		status  domain.MilestoneStatus
	)
	err = tx.QueryRowContext(ctx,
		`SELECT order_id, status FROM payment_milestones WHERE id = $1 FOR UPDATE`, milestoneID,
	).Scan(&orderID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("milestone %s: %w", milestoneID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if status != domain.MilestoneStatusPending && status != domain.MilestoneStatusOverdue {
		return nil, domain.ErrConcurrentModification
	}

	if err := claimTransaction(ctx, tx, transactionID, orderID, settlementSourceMilestone, paidAt); err != nil {
		logger.ExitMethodWithError("milestoneRepository.MarkPaid", err, "milestoneID", milestoneID)
		return nil, err
	}

	m, err := scanMilestone(tx.QueryRowContext(ctx,
		`UPDATE payment_milestones SET status = $1, paid_at = $2, transaction_id = $3
		 WHERE id = $4 RETURNING `+milestoneColumns,
		domain.MilestoneStatusPaid, paidAt, transactionID, milestoneID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.ExitMethod("milestoneRepository.MarkPaid", "milestoneID", milestoneID)
	return m, nil
}

func (r *milestoneRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	logger.DatabaseCall("UPDATE", "payment_milestones overdue")
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_milestones SET status = $1 WHERE status = $2 AND due_date < $3`,
		domain.MilestoneStatusOverdue, domain.MilestoneStatusPending, now)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return 0, err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	return n, err
}

func scanMilestone(sc rowScanner) (*domain.PaymentMilestone, error) {
	var (
		m      domain.PaymentMilestone
		paidAt sql.NullTime
	)
	if err := sc.Scan(&m.ID, &m.OrderID, &m.Sequence, &m.AmountDue, &m.DueDate, &m.Status, &paidAt, &m.TransactionID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.PaidAt = timePtr(paidAt)
	return &m, nil
}
