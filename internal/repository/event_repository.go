package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/reviewplace/slotboard/internal/model"
)

// EventRepository records reservation events and serves the live counters
// the policy rules are evaluated against.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record inserts one reserve or cancel event
func (r *EventRepository) Record(ctx context.Context, ev *model.ReservationEvent) error {
	query := `
		INSERT INTO reservation_events (user_id, review_id, platform, action, event_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		ev.UserID, ev.ReviewID, ev.Platform, ev.Action, ev.EventDate, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record reservation event: %w", err)
	}

	return nil
}

// ActiveReservations counts slots currently held (reserved, not complete)
// by the user across all reviews.
func (r *EventRepository) ActiveReservations(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM slots
		WHERE reserved_by = $1 AND status = 'reserved'
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}

	return count, nil
}

// NetDailyActions returns reserve-minus-cancel actions for the user on
// one platform for one day.
func (r *EventRepository) NetDailyActions(ctx context.Context, userID, platform, date string) (int, error) {
	query := `
		SELECT COALESCE(SUM(CASE action WHEN 'reserve' THEN 1 WHEN 'cancel' THEN -1 ELSE 0 END), 0)
		FROM reservation_events
		WHERE user_id = $1 AND platform = $2 AND event_date = $3
	`

	var net int
	if err := r.db.GetContext(ctx, &net, query, userID, platform, date); err != nil {
		return 0, fmt.Errorf("failed to count daily actions: %w", err)
	}

	return net, nil
}

// UserReviewDayReservations returns net reservations by the user on one
// review for one day.
func (r *EventRepository) UserReviewDayReservations(ctx context.Context, userID string, reviewID int64, date string) (int, error) {
	query := `
		SELECT COALESCE(SUM(CASE action WHEN 'reserve' THEN 1 WHEN 'cancel' THEN -1 ELSE 0 END), 0)
		FROM reservation_events
		WHERE user_id = $1 AND review_id = $2 AND event_date = $3
	`

	var net int
	if err := r.db.GetContext(ctx, &net, query, userID, reviewID, date); err != nil {
		return 0, fmt.Errorf("failed to count review reservations: %w", err)
	}

	return net, nil
}
