package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/service"
)

// ReviewRepository handles review campaign data operations
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Get retrieves a review by ID
func (r *ReviewRepository) Get(ctx context.Context, id int64) (*model.Review, error) {
	query := `
		SELECT id, platform, daily_count, per_user_daily_limit, start_date, end_date, created_at, updated_at
		FROM reviews
		WHERE id = $1
	`

	var review model.Review
	err := r.db.GetContext(ctx, &review, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review %d: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return &review, nil
}

// CreateWithSlots inserts the review and its pre-provisioned unopened
// slot pool in a single transaction.
func (r *ReviewRepository) CreateWithSlots(ctx context.Context, review *model.Review, slotCount int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reviews (platform, daily_count, per_user_daily_limit, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	review.CreatedAt = now
	review.UpdatedAt = now

	err = tx.GetContext(ctx, &review.ID, query,
		review.Platform, review.DailyCount, review.PerUserDailyLimit,
		review.StartDate, review.EndDate, review.CreatedAt, review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}

	if err := r.insertSlotPool(ctx, tx, review.ID, slotCount, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// insertSlotPool inserts the numbered slot rows in batches to stay under
// the Postgres parameter limit.
func (r *ReviewRepository) insertSlotPool(ctx context.Context, tx *sqlx.Tx, reviewID int64, slotCount int, createdAt time.Time) error {
	batchSize := 1000

	for offset := 0; offset < slotCount; offset += batchSize {
		end := offset + batchSize
		if end > slotCount {
			end = slotCount
		}

		valuesClause := make([]string, 0, end-offset)
		args := make([]interface{}, 0, (end-offset)*3)
		for n := offset + 1; n <= end; n++ {
			i := len(valuesClause)
			valuesClause = append(valuesClause, fmt.Sprintf("($%d, $%d, 'unopened', $%d)",
				i*3+1, i*3+2, i*3+3))
			args = append(args, reviewID, n, createdAt)
		}

		query := fmt.Sprintf(`
			INSERT INTO slots (review_id, slot_number, status, created_at)
			VALUES %s
		`, strings.Join(valuesClause, ", "))

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert slot batch: %w", err)
		}
	}

	return nil
}

// UpdateDailyCount changes a review's daily capacity
func (r *ReviewRepository) UpdateDailyCount(ctx context.Context, id int64, dailyCount int) error {
	query := `
		UPDATE reviews
		SET daily_count = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, dailyCount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update daily count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review %d: %w", id, service.ErrNotFound)
	}

	return nil
}
