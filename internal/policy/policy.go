// Package policy holds the pluggable per-platform reservation rules.
// The allocator evaluates the global rules plus whatever extra rules are
// registered for the review's platform, so new platform constraints can
// be added without touching the allocator itself.
package policy

import (
	"context"
	"fmt"

	"github.com/reviewplace/slotboard/internal/model"
)

// Input carries the facts a rule may inspect for one reservation attempt.
type Input struct {
	UserID string
	Review *model.Review
	Date   string
}

// Counters exposes the live counts rules are evaluated against.
type Counters interface {
	// ActiveReservations counts slots currently reserved (not complete)
	// by the user across all reviews.
	ActiveReservations(ctx context.Context, userID string) (int, error)

	// NetDailyActions returns reserve-minus-cancel actions for the user
	// on one platform for one day.
	NetDailyActions(ctx context.Context, userID, platform, date string) (int, error)

	// UserReviewDayReservations returns net reservations by the user on
	// one review for one day.
	UserReviewDayReservations(ctx context.Context, userID string, reviewID int64, date string) (int, error)
}

// Rule is one reservation constraint. A rule returns *LimitError when the
// constraint is hit and nil when the reservation may proceed.
type Rule interface {
	Name() string
	Check(ctx context.Context, in Input) error
}

// LimitError reports which rule rejected a reservation.
type LimitError struct {
	Rule  string
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: limit of %d reached", e.Rule, e.Limit)
}

// Registry holds the global rules plus per-platform extras.
type Registry struct {
	global     []Rule
	byPlatform map[string][]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byPlatform: make(map[string][]Rule)}
}

// Global registers rules evaluated for every reservation.
func (r *Registry) Global(rules ...Rule) {
	r.global = append(r.global, rules...)
}

// Platform registers rules evaluated only for the given platform.
func (r *Registry) Platform(platform string, rules ...Rule) {
	r.byPlatform[platform] = append(r.byPlatform[platform], rules...)
}

// Check runs the global rules and then the platform rules in registration
// order, stopping at the first rejection.
func (r *Registry) Check(ctx context.Context, in Input) error {
	for _, rule := range r.global {
		if err := rule.Check(ctx, in); err != nil {
			return err
		}
	}
	for _, rule := range r.byPlatform[in.Review.Platform] {
		if err := rule.Check(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
