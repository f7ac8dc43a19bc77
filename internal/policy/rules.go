package policy

import (
	"context"
	"fmt"
)

// ActiveHoldLimit caps concurrently reserved (not yet complete) slots a
// user may hold across all reviews.
type ActiveHoldLimit struct {
	Max      int
	Counters Counters
}

func (r *ActiveHoldLimit) Name() string { return "active-hold-limit" }

func (r *ActiveHoldLimit) Check(ctx context.Context, in Input) error {
	held, err := r.Counters.ActiveReservations(ctx, in.UserID)
	if err != nil {
		return fmt.Errorf("failed to count active reservations: %w", err)
	}
	if held >= r.Max {
		return &LimitError{Rule: r.Name(), Limit: r.Max}
	}
	return nil
}

// DailyActionLimit caps net reserve-minus-cancel actions per user per
// platform per day. Registered only for strict platforms.
type DailyActionLimit struct {
	Max      int
	Counters Counters
}

func (r *DailyActionLimit) Name() string { return "daily-action-limit" }

func (r *DailyActionLimit) Check(ctx context.Context, in Input) error {
	net, err := r.Counters.NetDailyActions(ctx, in.UserID, in.Review.Platform, in.Date)
	if err != nil {
		return fmt.Errorf("failed to count daily actions: %w", err)
	}
	if net >= r.Max {
		return &LimitError{Rule: r.Name(), Limit: r.Max}
	}
	return nil
}

// ReviewDailyLimit enforces a review's own per-user daily cap, independent
// of the review's global slot quota. Reviews with a zero cap are
// unlimited.
type ReviewDailyLimit struct {
	Counters Counters
}

func (r *ReviewDailyLimit) Name() string { return "review-daily-limit" }

func (r *ReviewDailyLimit) Check(ctx context.Context, in Input) error {
	limit := in.Review.PerUserDailyLimit
	if limit <= 0 {
		return nil
	}
	n, err := r.Counters.UserReviewDayReservations(ctx, in.UserID, in.Review.ID, in.Date)
	if err != nil {
		return fmt.Errorf("failed to count review reservations: %w", err)
	}
	if n >= limit {
		return &LimitError{Rule: r.Name(), Limit: limit}
	}
	return nil
}
