package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/repository"
)

const orderColumns = `id, listing_id, renter_id, owner_id, status, status_version,
	duration_type, unit_price, total_price, security_deposit, payment_method, is_recurring,
	start_at, end_at, handover, return_requested_by, return_requested_at, completed_at,
	is_auto_completed, negative_outcome, has_renter_review, has_owner_review, is_archived,
	created_at, updated_at`

const (
	settlementSourceHandover  = "handover"
	settlementSourceMilestone = "milestone"
)

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, o *domain.RentalOrder, milestones []domain.PaymentMilestone) error {
	logger.EnterMethod("orderRepository.Create", "orderID", o.ID, "milestones", len(milestones))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("orderRepository.Create", err, "orderID", o.ID)
		return err
	}
	defer tx.Rollback()

	handover, err := marshalNullable(o.Handover)
	if err != nil {
		return err
	}
	negative, err := marshalNullable(o.NegativeOutcome)
	if err != nil {
		return err
	}

	query := `INSERT INTO rental_orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	logger.DatabaseCall("INSERT", "rental_orders", "orderID", o.ID)
	_, err = tx.ExecContext(ctx, query,
		o.ID, o.ListingID, o.RenterID, o.OwnerID, o.Status, o.Version,
		o.Pricing.DurationType, o.Pricing.UnitPrice, o.Pricing.TotalPrice, o.Pricing.SecurityDeposit, o.PaymentMethod, o.IsRecurring,
		o.StartAt, o.EndAt, handover, o.Return.RequestedBy, o.Return.RequestedAt, o.Return.CompletedAt,
		o.Return.IsAutoCompleted, negative, o.HasRenterReview, o.HasOwnerReview, o.IsArchived,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		logger.ExitMethodWithError("orderRepository.Create", err, "orderID", o.ID)
		return err
	}

	for _, m := range milestones {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_milestones (id, order_id, sequence, amount_due, due_date, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.OrderID, m.Sequence, m.AmountDue, m.DueDate, m.Status, m.CreatedAt,
		)
		if err != nil {
			logger.ExitMethodWithError("orderRepository.Create", err, "orderID", o.ID, "sequence", m.Sequence)
			return fmt.Errorf("insert milestone %d: %w", m.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.ExitMethodWithError("orderRepository.Create", err, "orderID", o.ID)
		return err
	}

	logger.ExitMethod("orderRepository.Create", "orderID", o.ID)
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.RentalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM rental_orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, err
}

func (r *orderRepository) CompareAndSwapStatus(ctx context.Context, w repository.TransitionWrite) error {
	o := w.Order
	logger.EnterMethod("orderRepository.CompareAndSwapStatus", "orderID", o.ID, "from", w.ExpectedStatus, "to", o.Status, "version", w.ExpectedVersion)

	handover, err := marshalNullable(o.Handover)
	if err != nil {
		return err
	}
	negative, err := marshalNullable(o.NegativeOutcome)
	if err != nil {
		return err
	}
	details, err := json.Marshal(w.Entry.Details)
	if err != nil {
		return err
	}
	var handoverTxID *string
	if o.Handover != nil && o.Handover.TransactionID != "" {
		handoverTxID = &o.Handover.TransactionID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE rental_orders
	          SET status = $1, status_version = status_version + 1, start_at = $2, end_at = $3,
	              handover = $4, handover_transaction_id = $5, return_requested_by = $6,
	              return_requested_at = $7, completed_at = $8, is_auto_completed = $9,
	              negative_outcome = $10, updated_at = $11
	          WHERE id = $12 AND status = $13 AND status_version = $14`
	logger.DatabaseCall("UPDATE", "rental_orders", "orderID", o.ID)
	res, err := tx.ExecContext(ctx, query,
		o.Status, o.StartAt, o.EndAt,
		handover, handoverTxID, o.Return.RequestedBy,
		o.Return.RequestedAt, o.Return.CompletedAt, o.Return.IsAutoCompleted,
		negative, o.UpdatedAt,
		o.ID, w.ExpectedStatus, w.ExpectedVersion,
	)
	if err != nil {
		logger.ExitMethodWithError("orderRepository.CompareAndSwapStatus", err, "orderID", o.ID)
		return err
	}
	rows, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "orderID", o.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}

	if w.ReleaseTransactionID != "" {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM settlement_transactions WHERE transaction_id = $1 AND order_id = $2 AND source = $3`,
			w.ReleaseTransactionID, o.ID, settlementSourceHandover)
		if err != nil {
			return err
		}
	}
	if w.ClaimTransactionID != "" {
		if err := claimTransaction(ctx, tx, w.ClaimTransactionID, o.ID, settlementSourceHandover, o.UpdatedAt); err != nil {
			logger.ExitMethodWithError("orderRepository.CompareAndSwapStatus", err, "orderID", o.ID)
			return err
		}
	}

	e := w.Entry
	err = tx.QueryRowContext(ctx,
		`INSERT INTO order_activity_log (order_id, action, actor_id, from_status, to_status, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.OrderID, e.Action, e.ActorID, e.FromStatus, e.ToStatus, string(details), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		logger.ExitMethodWithError("orderRepository.CompareAndSwapStatus", err, "orderID", o.ID)
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	o.Version = w.ExpectedVersion + 1

	logger.ExitMethod("orderRepository.CompareAndSwapStatus", "orderID", o.ID, "entryID", e.ID)
	return nil
}

func (r *orderRepository) ListStaleReturnPending(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.RentalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM rental_orders
	          WHERE status = $1 AND return_requested_at < $2
	          ORDER BY return_requested_at LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, domain.OrderStatusReturnPending, requestedBefore, limit)
	if err != nil {
		return nil, err
	}
	// One corrupt row must not stall every other stale order.
	return scanOrders(rows, true)
}

func (r *orderRepository) ListByRenter(ctx context.Context, renterID string, statuses []domain.OrderStatus) ([]domain.RentalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM rental_orders WHERE renter_id = $1`
	args := []interface{}{renterID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows, false)
}

func (r *orderRepository) MarkReviewed(ctx context.Context, orderID string, role domain.Role, now time.Time) (*domain.RentalOrder, error) {
	var set string
	switch role {
	case domain.RoleRenter:
		set = `has_renter_review = TRUE, is_archived = has_owner_review`
	case domain.RoleOwner:
		set = `has_owner_review = TRUE, is_archived = has_renter_review`
	default:
		return nil, domain.ErrRoleMismatch
	}

	query := `UPDATE rental_orders SET ` + set + `, updated_at = $1
	          WHERE id = $2 AND status = $3 RETURNING ` + orderColumns
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, now, orderID, domain.OrderStatusCompleted))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := r.GetByID(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &domain.TransitionError{Status: current.Status, Action: "review"}
	}
	return o, err
}

// decodeError reports a stored JSON record that no longer decodes.
type decodeError struct {
	orderID string
	field   string
	err     error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s of %s: %v", e.field, e.orderID, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(sc rowScanner) (*domain.RentalOrder, error) {
	var (
		o                        domain.RentalOrder
		startAt, endAt           sql.NullTime
		requestedAt, completedAt sql.NullTime
		requestedBy              sql.NullString
		handover, negative       []byte
	)
	err := sc.Scan(
		&o.ID, &o.ListingID, &o.RenterID, &o.OwnerID, &o.Status, &o.Version,
		&o.Pricing.DurationType, &o.Pricing.UnitPrice, &o.Pricing.TotalPrice, &o.Pricing.SecurityDeposit, &o.PaymentMethod, &o.IsRecurring,
		&startAt, &endAt, &handover, &requestedBy, &requestedAt, &completedAt,
		&o.Return.IsAutoCompleted, &negative, &o.HasRenterReview, &o.HasOwnerReview, &o.IsArchived,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.StartAt = timePtr(startAt)
	o.EndAt = timePtr(endAt)
	o.Return.RequestedAt = timePtr(requestedAt)
	o.Return.CompletedAt = timePtr(completedAt)
	if requestedBy.Valid {
		by := requestedBy.String
		o.Return.RequestedBy = &by
	}
	if len(handover) > 0 {
		o.Handover = &domain.HandoverRecord{}
		if err := json.Unmarshal(handover, o.Handover); err != nil {
			return nil, &decodeError{orderID: o.ID, field: "handover", err: err}
		}
	}
	if len(negative) > 0 {
		o.NegativeOutcome = &domain.NegativeOutcome{}
		if err := json.Unmarshal(negative, o.NegativeOutcome); err != nil {
			return nil, &decodeError{orderID: o.ID, field: "negative outcome", err: err}
		}
	}
	return &o, nil
}

// scanOrders reads every row. With skipUndecodable a row whose JSON records fail to decode
// is logged and left out instead of failing the whole listing.
func scanOrders(rows *sql.Rows, skipUndecodable bool) ([]domain.RentalOrder, error) {
	defer rows.Close()

	var orders []domain.RentalOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		var derr *decodeError
		if skipUndecodable && errors.As(err, &derr) {
			logger.WithOrder(derr.orderID).Error("Skipping order with undecodable record", "field", derr.field, "error", derr.err)
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// claimTransaction records transactionID in the global settlement ledger. The primary key
// turns a reused id into domain.ErrDuplicateTransaction even under concurrent writers.
func claimTransaction(ctx context.Context, tx *sql.Tx, transactionID, orderID, source string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlement_transactions (transaction_id, order_id, source, created_at) VALUES ($1, $2, $3, $4)`,
		transactionID, orderID, source, at)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateTransaction
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// marshalNullable encodes v as JSON text, or returns nil (SQL NULL) for a nil record.
func marshalNullable(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *domain.HandoverRecord:
		if t == nil {
			return nil, nil
		}
	case *domain.NegativeOutcome:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
