package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/service"
)

// SubmissionRepository handles slot submission data operations
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// submissionRow carries the serialized image list alongside the model fields.
type submissionRow struct {
	model.SlotSubmission
	ImageURLsJSON string `db:"image_urls"`
}

// Upsert inserts or replaces the submission keyed by slot id, so a
// resubmission edits in place instead of duplicating.
func (r *SubmissionRepository) Upsert(ctx context.Context, sub *model.SlotSubmission) error {
	imageJSON, err := json.Marshal(sub.ImageURLs)
	if err != nil {
		return fmt.Errorf("failed to encode image urls: %w", err)
	}

	query := `
		INSERT INTO slot_submissions (slot_id, user_id, name, phone, nickname, image_urls, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slot_id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			phone = excluded.phone,
			nickname = excluded.nickname,
			image_urls = excluded.image_urls,
			submitted_at = excluded.submitted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		sub.SlotID, sub.UserID, sub.Name, sub.Phone, sub.Nickname, string(imageJSON), sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}

	return nil
}

// GetBySlot retrieves the submission for a slot
func (r *SubmissionRepository) GetBySlot(ctx context.Context, slotID int64) (*model.SlotSubmission, error) {
	query := `
		SELECT slot_id, user_id, name, phone, nickname, image_urls, submitted_at
		FROM slot_submissions
		WHERE slot_id = $1
	`

	var row submissionRow
	err := r.db.GetContext(ctx, &row, query, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission for slot %d: %w", slotID, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	sub := row.SlotSubmission
	if err := json.Unmarshal([]byte(row.ImageURLsJSON), &sub.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to decode image urls: %w", err)
	}

	return &sub, nil
}
