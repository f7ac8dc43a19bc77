package service

import (
	"context"
	"time"

	"github.com/reviewplace/slotboard/internal/model"
)

// ReviewStore persists review campaigns and their slot pools.
type ReviewStore interface {
	Get(ctx context.Context, id int64) (*model.Review, error)

	// CreateWithSlots inserts the review and its numbered unopened slot
	// pool in one transaction, assigning review.ID.
	CreateWithSlots(ctx context.Context, review *model.Review, slotCount int) error

	UpdateDailyCount(ctx context.Context, id int64, dailyCount int) error
}

// SlotStore persists slots. The live slot rows are the source of truth
// for all capacity accounting; quota counters are derived from them.
type SlotStore interface {
	Get(ctx context.Context, id int64) (*model.Slot, error)
	ListByReview(ctx context.Context, reviewID int64) ([]model.Slot, error)

	// CountAllocated counts slots with status reserved or complete for
	// (review, date).
	CountAllocated(ctx context.Context, reviewID int64, date string) (int, error)

	// CountAvailable counts slots with status available for (review, date).
	CountAvailable(ctx context.Context, reviewID int64, date string) (int, error)

	// Activate promotes up to limit unopened, unowned slots to available,
	// lowest slot numbers first, stamping opened_date where null. Returns
	// the number of rows changed.
	Activate(ctx context.Context, reviewID int64, date string, limit int) (int, error)

	// Claim sets the reservation owner with a single conditional update:
	// the row changes only while the owner is still null and the status is
	// available. Returns false when the condition no longer holds.
	Claim(ctx context.Context, slotID int64, userID string, at time.Time) (bool, error)

	// Release returns the slot from reserved to available, conditional on
	// the owner still being userID.
	Release(ctx context.Context, slotID int64, userID string) (bool, error)

	// Complete moves an owned slot to complete, conditional on the owner.
	Complete(ctx context.Context, slotID int64, userID string) (bool, error)

	// AdminSet applies an administrative status change with its
	// status-specific side effects: to available clears the owner and
	// stamps opened_date if null, to unopened clears owner and opened_date.
	AdminSet(ctx context.Context, slotID int64, status model.SlotStatus, date string) error
}

// QuotaStore persists daily quota rows.
type QuotaStore interface {
	Get(ctx context.Context, reviewID int64, date string) (*model.DailyQuota, error)

	// Insert reports ErrConflict when a row for (review, date) exists.
	Insert(ctx context.Context, quota *model.DailyQuota) error

	// SyncReserved recomputes reserved_slots from the live slot count and
	// returns the value written.
	SyncReserved(ctx context.Context, reviewID int64, date string) (int, error)
}

// SubmissionStore persists completion proof, one row per slot.
type SubmissionStore interface {
	// Upsert inserts or replaces the submission keyed by slot id.
	Upsert(ctx context.Context, sub *model.SlotSubmission) error
	GetBySlot(ctx context.Context, slotID int64) (*model.SlotSubmission, error)
}

// EventStore records reserve/cancel actions for the policy counters.
type EventStore interface {
	Record(ctx context.Context, ev *model.ReservationEvent) error
}
