package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/repository"
)

const activityColumns = `id, order_id, action, actor_id, from_status, to_status, details, created_at, published_at`

type activityLogRepository struct {
	db *sql.DB
}

func NewActivityLogRepository(db *sql.DB) repository.ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ActivityLogEntry, error) {
	query := `SELECT ` + activityColumns + ` FROM order_activity_log WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.ActivityLogEntry{}
	}
	return entries, nil
}

func (r *activityLogRepository) ListUnpublished(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	query := `SELECT ` + activityColumns + ` FROM order_activity_log WHERE published_at IS NULL ORDER BY id LIMIT $1`
	// LIMIT NULL is unlimited.
	rows, err := r.db.QueryContext(ctx, query, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *activityLogRepository) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE order_activity_log SET published_at = $1 WHERE id = ANY($2) AND published_at IS NULL`,
		at, pq.Array(ids))
	return err
}

func scanEntries(rows *sql.Rows) ([]domain.ActivityLogEntry, error) {
	defer rows.Close()

	var entries []domain.ActivityLogEntry
	for rows.Next() {
		var (
			e           domain.ActivityLogEntry
			actorID     sql.NullString
			details     []byte
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &actorID, &e.FromStatus, &e.ToStatus, &details, &e.CreatedAt, &publishedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			id := actorID.String
			e.ActorID = &id
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of entry %d: %w", e.ID, err)
			}
		}
		e.PublishedAt = timePtr(publishedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
