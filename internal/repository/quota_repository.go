package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/service"
)

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// QuotaRepository handles daily quota data operations
type QuotaRepository struct {
	db *sqlx.DB
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Get retrieves the quota row for (review, date)
func (r *QuotaRepository) Get(ctx context.Context, reviewID int64, date string) (*model.DailyQuota, error) {
	query := `
		SELECT review_id, quota_date, available_slots, reserved_slots, refreshed_at
		FROM daily_quotas
		WHERE review_id = $1 AND quota_date = $2
	`

	var quota model.DailyQuota
	err := r.db.GetContext(ctx, &quota, query, reviewID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quota for review %d on %s: %w", reviewID, date, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get daily quota: %w", err)
	}

	return &quota, nil
}

// Insert creates the quota row for (review, date). A unique violation is
// reported as ErrConflict so the refresher can re-fetch the winning row.
func (r *QuotaRepository) Insert(ctx context.Context, quota *model.DailyQuota) error {
	query := `
		INSERT INTO daily_quotas (review_id, quota_date, available_slots, reserved_slots, refreshed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		quota.ReviewID, quota.QuotaDate, quota.AvailableSlots, quota.ReservedSlots, quota.RefreshedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("quota for review %d on %s exists: %w", quota.ReviewID, quota.QuotaDate, service.ErrConflict)
		}
		return fmt.Errorf("failed to insert daily quota: %w", err)
	}

	return nil
}

// SyncReserved recomputes reserved_slots from the live slot rows
func (r *QuotaRepository) SyncReserved(ctx context.Context, reviewID int64, date string) (int, error) {
	query := `
		UPDATE daily_quotas
		SET reserved_slots = (
			SELECT COUNT(*)
			FROM slots
			WHERE review_id = $1 AND opened_date = $2 AND status IN ('reserved', 'complete')
		), refreshed_at = now()
		WHERE review_id = $1 AND quota_date = $2
		RETURNING reserved_slots
	`

	var reserved int
	err := r.db.GetContext(ctx, &reserved, query, reviewID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("quota for review %d on %s: %w", reviewID, date, service.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to sync reserved count: %w", err)
	}

	return reserved, nil
}
