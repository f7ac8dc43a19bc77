package model

import (
	"time"
)

// SlotStatus is the lifecycle state of a slot.
type SlotStatus string

const (
	SlotUnopened  SlotStatus = "unopened"
	SlotAvailable SlotStatus = "available"
	SlotReserved  SlotStatus = "reserved"
	SlotComplete  SlotStatus = "complete"
)

// Valid reports whether s is one of the known slot statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotUnopened, SlotAvailable, SlotReserved, SlotComplete:
		return true
	}
	return false
}

// Review represents a review campaign in the database.
type Review struct {
	ID                int64     `db:"id" json:"id"`
	Platform          string    `db:"platform" json:"platform"`
	DailyCount        int       `db:"daily_count" json:"daily_count"`
	PerUserDailyLimit int       `db:"per_user_daily_limit" json:"per_user_daily_limit"` // 0 = unlimited
	StartDate         string    `db:"start_date" json:"start_date"`
	EndDate           string    `db:"end_date" json:"end_date"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Slot is one unit of a review's daily reservable capacity.
type Slot struct {
	ID         int64      `db:"id" json:"id"`
	ReviewID   int64      `db:"review_id" json:"review_id"`
	SlotNumber int        `db:"slot_number" json:"slot_number"`
	Status     SlotStatus `db:"status" json:"status"`
	OpenedDate *string    `db:"opened_date" json:"opened_date,omitempty"`
	ReservedBy *string    `db:"reserved_by" json:"reserved_by,omitempty"`
	ReservedAt *time.Time `db:"reserved_at" json:"reserved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// DailyQuota is the capacity record for one (review, date) pair.
// ReservedSlots is a lazily reconciled cache; the live slot count is
// always the source of truth.
type DailyQuota struct {
	ReviewID       int64     `db:"review_id" json:"review_id"`
	QuotaDate      string    `db:"quota_date" json:"quota_date"`
	AvailableSlots int       `db:"available_slots" json:"available_slots"`
	ReservedSlots  int       `db:"reserved_slots" json:"reserved_slots"`
	RefreshedAt    time.Time `db:"refreshed_at" json:"refreshed_at"`
}

// SlotSubmission is reviewer-provided completion proof, one per slot.
type SlotSubmission struct {
	SlotID      int64     `db:"slot_id" json:"slot_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Phone       string    `db:"phone" json:"phone"`
	Nickname    string    `db:"nickname" json:"nickname"`
	ImageURLs   []string  `db:"-" json:"image_urls"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}

// Reservation event actions.
const (
	ActionReserve = "reserve"
	ActionCancel  = "cancel"
)

// ReservationEvent records one reserve or cancel action. Events back the
// per-platform daily counters used by the reservation policies.
type ReservationEvent struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ReviewID  int64     `db:"review_id" json:"review_id"`
	Platform  string    `db:"platform" json:"platform"`
	Action    string    `db:"action" json:"action"`
	EventDate string    `db:"event_date" json:"event_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SlotSummary aggregates slot counts for one review on one day.
type SlotSummary struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	Reserved   int `json:"reserved"`
	Complete   int `json:"complete"`
	DailyCount int `json:"daily_count"`
	Remaining  int `json:"remaining"`
}

// SlotBoard is the response payload for a review's daily slot board.
type SlotBoard struct {
	Review  *Review     `json:"review"`
	Date    string      `json:"date"`
	Slots   []Slot      `json:"slots"`
	Summary SlotSummary `json:"summary"`
}

// SlotUpdate is one item of an administrative bulk slot update.
type SlotUpdate struct {
	SlotID int64      `json:"slotId"`
	Status SlotStatus `json:"status"`
}

// BulkUpdateError describes a single failed item of a bulk update.
type BulkUpdateError struct {
	SlotID  int64  `json:"slotId"`
	Message string `json:"message"`
}

// BulkUpdateReport is the combined outcome of a bulk slot update. Items
// are processed independently; failures never abort the batch.
type BulkUpdateReport struct {
	Updated int               `json:"updated"`
	Errors  []BulkUpdateError `json:"errors,omitempty"`
}
