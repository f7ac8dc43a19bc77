package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/service"
)

// SlotRepository handles slot data operations
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository creates a new slot repository
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Get retrieves a slot by ID
func (r *SlotRepository) Get(ctx context.Context, id int64) (*model.Slot, error) {
	query := `
		SELECT id, review_id, slot_number, status, opened_date, reserved_by, reserved_at, created_at
		FROM slots
		WHERE id = $1
	`

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("slot %d: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	return &slot, nil
}

// ListByReview returns all slots of a review ordered by slot number
func (r *SlotRepository) ListByReview(ctx context.Context, reviewID int64) ([]model.Slot, error) {
	query := `
		SELECT id, review_id, slot_number, status, opened_date, reserved_by, reserved_at, created_at
		FROM slots
		WHERE review_id = $1
		ORDER BY slot_number ASC
	`

	var slots []model.Slot
	if err := r.db.SelectContext(ctx, &slots, query, reviewID); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	return slots, nil
}

// CountAllocated counts reserved and complete slots for (review, date)
func (r *SlotRepository) CountAllocated(ctx context.Context, reviewID int64, date string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM slots
		WHERE review_id = $1 AND opened_date = $2 AND status IN ('reserved', 'complete')
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, reviewID, date); err != nil {
		return 0, fmt.Errorf("failed to count allocated slots: %w", err)
	}

	return count, nil
}

// CountAvailable counts available slots for (review, date)
func (r *SlotRepository) CountAvailable(ctx context.Context, reviewID int64, date string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM slots
		WHERE review_id = $1 AND opened_date = $2 AND status = 'available'
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, reviewID, date); err != nil {
		return 0, fmt.Errorf("failed to count available slots: %w", err)
	}

	return count, nil
}

// Activate promotes up to limit unopened slots to available, lowest slot
// numbers first, stamping opened_date where it is still null.
func (r *SlotRepository) Activate(ctx context.Context, reviewID int64, date string, limit int) (int, error) {
	query := `
		UPDATE slots
		SET status = 'available', opened_date = COALESCE(opened_date, $2)
		WHERE id IN (
			SELECT id
			FROM slots
			WHERE review_id = $1 AND status = 'unopened' AND reserved_by IS NULL
			ORDER BY slot_number ASC
			LIMIT $3
		)
	`

	result, err := r.db.ExecContext(ctx, query, reviewID, date, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to activate slots: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(affected), nil
}

// Claim sets the reservation owner only while the slot is still unowned
// and available. The single conditional statement is what keeps two
// concurrent claims from both succeeding.
func (r *SlotRepository) Claim(ctx context.Context, slotID int64, userID string, at time.Time) (bool, error) {
	query := `
		UPDATE slots
		SET status = 'reserved', reserved_by = $1, reserved_at = $2
		WHERE id = $3 AND reserved_by IS NULL AND status = 'available'
	`

	result, err := r.db.ExecContext(ctx, query, userID, at, slotID)
	if err != nil {
		return false, fmt.Errorf("failed to claim slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// Release returns a reserved slot to available, conditional on the owner
func (r *SlotRepository) Release(ctx context.Context, slotID int64, userID string) (bool, error) {
	query := `
		UPDATE slots
		SET status = 'available', reserved_by = NULL, reserved_at = NULL
		WHERE id = $1 AND reserved_by = $2 AND status = 'reserved'
	`

	result, err := r.db.ExecContext(ctx, query, slotID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to release slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// Complete moves an owned slot to complete, conditional on the owner
func (r *SlotRepository) Complete(ctx context.Context, slotID int64, userID string) (bool, error) {
	query := `
		UPDATE slots
		SET status = 'complete'
		WHERE id = $1 AND reserved_by = $2 AND status IN ('reserved', 'complete')
	`

	result, err := r.db.ExecContext(ctx, query, slotID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to complete slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// AdminSet applies an administrative status change with its side effects
func (r *SlotRepository) AdminSet(ctx context.Context, slotID int64, status model.SlotStatus, date string) error {
	var (
		result sql.Result
		err    error
	)

	switch status {
	case model.SlotAvailable:
		query := `
			UPDATE slots
			SET status = 'available', reserved_by = NULL, reserved_at = NULL,
				opened_date = COALESCE(opened_date, $2)
			WHERE id = $1
		`
		result, err = r.db.ExecContext(ctx, query, slotID, date)
	case model.SlotUnopened:
		query := `
			UPDATE slots
			SET status = 'unopened', reserved_by = NULL, reserved_at = NULL, opened_date = NULL
			WHERE id = $1
		`
		result, err = r.db.ExecContext(ctx, query, slotID)
	default:
		query := `
			UPDATE slots
			SET status = $2
			WHERE id = $1
		`
		result, err = r.db.ExecContext(ctx, query, slotID, status)
	}

	if err != nil {
		return fmt.Errorf("failed to update slot status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("slot %d: %w", slotID, service.ErrNotFound)
	}

	return nil
}
