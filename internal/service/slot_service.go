package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reviewplace/slotboard/internal/clock"
	"github.com/reviewplace/slotboard/internal/metrics"
	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/policy"
	"github.com/reviewplace/slotboard/internal/validation"
)

const maxSlotsPerReview = 10000

// SlotService implements daily slot allocation: quota refresh, slot
// activation, reservation, release, submission and the admin bulk update.
type SlotService struct {
	reviews  ReviewStore
	slots    SlotStore
	quotas   QuotaStore
	subs     SubmissionStore
	events   EventStore
	policies *policy.Registry
	now      func() time.Time
}

// New creates a SlotService over the given stores.
func New(reviews ReviewStore, slots SlotStore, quotas QuotaStore, subs SubmissionStore, events EventStore, policies *policy.Registry) *SlotService {
	return &SlotService{
		reviews:  reviews,
		slots:    slots,
		quotas:   quotas,
		subs:     subs,
		events:   events,
		policies: policies,
		now:      time.Now,
	}
}

// ReviewInput is the payload for creating a review campaign.
type ReviewInput struct {
	Platform          string `json:"platform"`
	DailyCount        int    `json:"dailyCount"`
	PerUserDailyLimit int    `json:"perUserDailyLimit"`
	StartDate         string `json:"startDate"`
	EndDate           string `json:"endDate"`
	SlotCount         int    `json:"slotCount"`
}

// CreateReview validates the input, then inserts the review together with
// its numbered unopened slot pool in one transaction.
func (s *SlotService) CreateReview(ctx context.Context, in ReviewInput) (*model.Review, error) {
	if err := validation.Require("platform", in.Platform); err != nil {
		return nil, err
	}
	if in.DailyCount < 0 {
		return nil, &validation.Error{Field: "dailyCount", Message: "must be non-negative"}
	}
	if in.PerUserDailyLimit < 0 {
		return nil, &validation.Error{Field: "perUserDailyLimit", Message: "must be non-negative"}
	}
	if in.SlotCount <= 0 {
		return nil, &validation.Error{Field: "slotCount", Message: "must be positive"}
	}
	if in.SlotCount > maxSlotsPerReview {
		return nil, &validation.Error{Field: "slotCount", Message: fmt.Sprintf("cannot exceed %d", maxSlotsPerReview)}
	}
	start, err := clock.ParseDay(in.StartDate)
	if err != nil {
		return nil, &validation.Error{Field: "startDate", Message: "must be a YYYY-MM-DD date"}
	}
	end, err := clock.ParseDay(in.EndDate)
	if err != nil {
		return nil, &validation.Error{Field: "endDate", Message: "must be a YYYY-MM-DD date"}
	}
	if end < start {
		return nil, &validation.Error{Field: "endDate", Message: "must not be before startDate"}
	}

	review := &model.Review{
		Platform:          validation.SanitizeString(in.Platform),
		DailyCount:        in.DailyCount,
		PerUserDailyLimit: in.PerUserDailyLimit,
		StartDate:         start,
		EndDate:           end,
	}
	if err := s.reviews.CreateWithSlots(ctx, review, in.SlotCount); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return review, nil
}

// GetReview returns one review by id.
func (s *SlotService) GetReview(ctx context.Context, id int64) (*model.Review, error) {
	return s.reviews.Get(ctx, id)
}

// UpdateDailyCount changes a review's daily capacity. Existing quota rows
// keep their recorded ceiling; live checks always read review.daily_count.
func (s *SlotService) UpdateDailyCount(ctx context.Context, id int64, dailyCount int) error {
	if dailyCount < 0 {
		return &validation.Error{Field: "dailyCount", Message: "must be non-negative"}
	}
	return s.reviews.UpdateDailyCount(ctx, id, dailyCount)
}

// EnsureDailyQuota guarantees a quota row exists for (review, date). An
// insert conflict means another request created the row first; that is
// treated as success and the winning row is returned.
func (s *SlotService) EnsureDailyQuota(ctx context.Context, reviewID int64, date string) (*model.DailyQuota, error) {
	quota, err := s.quotas.Get(ctx, reviewID, date)
	if err == nil {
		return quota, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	quota = &model.DailyQuota{
		ReviewID:       reviewID,
		QuotaDate:      date,
		AvailableSlots: review.DailyCount,
		ReservedSlots:  0,
		RefreshedAt:    s.now(),
	}
	if err := s.quotas.Insert(ctx, quota); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.quotas.Get(ctx, reviewID, date)
		}
		return nil, fmt.Errorf("failed to insert daily quota: %w", err)
	}
	return quota, nil
}

// ActivateSlots promotes unopened slots until the day's remaining quota
// is covered by available ones. Lowest slot numbers activate first.
// Returns the count actually activated; running it again with no
// intervening reservations activates nothing.
func (s *SlotService) ActivateSlots(ctx context.Context, reviewID int64, date string) (int, error) {
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return 0, err
	}

	allocated, err := s.slots.CountAllocated(ctx, reviewID, date)
	if err != nil {
		return 0, fmt.Errorf("failed to count allocated slots: %w", err)
	}
	available, err := s.slots.CountAvailable(ctx, reviewID, date)
	if err != nil {
		return 0, fmt.Errorf("failed to count available slots: %w", err)
	}

	toActivate := (review.DailyCount - allocated) - available
	if toActivate <= 0 {
		return 0, nil
	}

	activated, err := s.slots.Activate(ctx, reviewID, date, toActivate)
	if err != nil {
		return 0, fmt.Errorf("failed to activate slots: %w", err)
	}
	metrics.RecordActivatedSlots(activated)
	return activated, nil
}

// RefreshAndActivate runs the quota refresher and the slot activator for
// today, returning the activation count.
func (s *SlotService) RefreshAndActivate(ctx context.Context, reviewID int64) (int, error) {
	today := clock.DayOf(s.now())
	if _, err := s.EnsureDailyQuota(ctx, reviewID, today); err != nil {
		return 0, err
	}
	return s.ActivateSlots(ctx, reviewID, today)
}

// SlotBoard tops up today's activation and returns the review's slots
// with summary counts.
func (s *SlotService) SlotBoard(ctx context.Context, reviewID int64) (*model.SlotBoard, error) {
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	today := clock.DayOf(s.now())

	if _, err := s.EnsureDailyQuota(ctx, reviewID, today); err != nil {
		return nil, err
	}
	if _, err := s.ActivateSlots(ctx, reviewID, today); err != nil {
		return nil, err
	}

	slots, err := s.slots.ListByReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	summary := model.SlotSummary{Total: len(slots), DailyCount: review.DailyCount}
	for _, slot := range slots {
		if slot.OpenedDate == nil || *slot.OpenedDate != today {
			continue
		}
		switch slot.Status {
		case model.SlotAvailable:
			summary.Available++
		case model.SlotReserved:
			summary.Reserved++
		case model.SlotComplete:
			summary.Complete++
		}
	}
	summary.Remaining = review.DailyCount - summary.Reserved - summary.Complete
	if summary.Remaining < 0 {
		summary.Remaining = 0
	}

	return &model.SlotBoard{
		Review:  review,
		Date:    today,
		Slots:   slots,
		Summary: summary,
	}, nil
}

// Reserve atomically grants one slot to one user. Preconditions are
// checked in a fixed order and nothing is mutated before all of them
// pass; the commit itself is a single conditional update on the slot row,
// so two concurrent attempts on the same slot produce exactly one winner.
func (s *SlotService) Reserve(ctx context.Context, reviewID, slotID int64, userID string) (*model.Slot, error) {
	start := time.Now()
	result := "failed"

	defer func() {
		metrics.RecordReserveSlotDuration(result, time.Since(start).Seconds())
	}()

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.ReviewID != reviewID {
		return nil, fmt.Errorf("slot %d does not belong to review %d: %w", slotID, reviewID, ErrNotFound)
	}
	if slot.ReservedBy != nil {
		return nil, ErrAlreadyReserved
	}
	if slot.Status != model.SlotAvailable {
		return nil, ErrNotReservable
	}

	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	today := clock.DayOf(s.now())
	if _, err := s.EnsureDailyQuota(ctx, reviewID, today); err != nil {
		return nil, err
	}

	allocated, err := s.slots.CountAllocated(ctx, reviewID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to count allocated slots: %w", err)
	}
	if allocated >= review.DailyCount {
		return nil, ErrQuotaExceeded
	}

	if err := s.policies.Check(ctx, policy.Input{UserID: userID, Review: review, Date: today}); err != nil {
		var limitErr *policy.LimitError
		if errors.As(err, &limitErr) {
			return nil, fmt.Errorf("%s: %w", limitErr.Rule, ErrUserReservationLimit)
		}
		return nil, err
	}

	reservedAt := s.now()
	claimed, err := s.slots.Claim(ctx, slotID, userID, reservedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	if !claimed {
		// Lost a race after the precondition reads; re-read to report
		// the precise condition.
		current, readErr := s.slots.Get(ctx, slotID)
		if readErr == nil && current.ReservedBy != nil {
			return nil, ErrAlreadyReserved
		}
		return nil, ErrNotReservable
	}
	result = "success"

	// The reservation is committed; event and counter bookkeeping are
	// best-effort and reconciled lazily on the next read.
	s.recordEvent(ctx, userID, review, model.ActionReserve, today)
	s.syncQuota(ctx, reviewID, today)

	slot.Status = model.SlotReserved
	slot.ReservedBy = &userID
	slot.ReservedAt = &reservedAt
	return slot, nil
}

// Release returns a reserved slot to available. Only the reservation
// owner may release, and the update is conditional on the owner still
// holding the slot.
func (s *SlotService) Release(ctx context.Context, reviewID, slotID int64, userID string) (*model.Slot, error) {
	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.ReviewID != reviewID {
		return nil, fmt.Errorf("slot %d does not belong to review %d: %w", slotID, reviewID, ErrNotFound)
	}
	if slot.ReservedBy == nil || *slot.ReservedBy != userID {
		return nil, ErrForbidden
	}
	if slot.Status != model.SlotReserved {
		return nil, ErrNotReservable
	}

	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	released, err := s.slots.Release(ctx, slotID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}
	if !released {
		return nil, ErrNotReservable
	}

	today := clock.DayOf(s.now())
	s.recordEvent(ctx, userID, review, model.ActionCancel, today)
	s.syncQuota(ctx, reviewID, today)

	slot.Status = model.SlotAvailable
	slot.ReservedBy = nil
	slot.ReservedAt = nil
	return slot, nil
}

// SubmissionInput is the payload for recording completion proof.
type SubmissionInput struct {
	ReviewID  int64
	SlotID    int64
	UserID    string
	Name      string
	Phone     string
	Nickname  string
	ImageURLs []string
}

// RecordSubmission attaches proof to a slot the caller has reserved and
// finalizes it. Resubmitting updates the existing proof in place.
func (s *SlotService) RecordSubmission(ctx context.Context, in SubmissionInput) (*model.SlotSubmission, error) {
	if err := validation.Require("name", in.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhone(in.Phone); err != nil {
		return nil, err
	}
	if err := validation.Require("nickname", in.Nickname); err != nil {
		return nil, err
	}
	if err := validation.ValidateImageURLs(in.ImageURLs); err != nil {
		return nil, err
	}

	slot, err := s.slots.Get(ctx, in.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.ReviewID != in.ReviewID {
		return nil, fmt.Errorf("slot %d does not belong to review %d: %w", in.SlotID, in.ReviewID, ErrNotFound)
	}
	if slot.ReservedBy == nil || *slot.ReservedBy != in.UserID {
		return nil, ErrForbidden
	}

	sub := &model.SlotSubmission{
		SlotID:      in.SlotID,
		UserID:      in.UserID,
		Name:        validation.SanitizeString(in.Name),
		Phone:       validation.SanitizeString(in.Phone),
		Nickname:    validation.SanitizeString(in.Nickname),
		ImageURLs:   in.ImageURLs,
		SubmittedAt: s.now(),
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	completed, err := s.slots.Complete(ctx, in.SlotID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete slot: %w", err)
	}
	if !completed {
		return nil, ErrNotReservable
	}

	return sub, nil
}

// BulkUpdateSlots applies an administrative batch of status changes.
// Items are processed independently; per-item failures are collected and
// returned alongside the successes, and the day's quota counter is
// recomputed from the live slot rows afterwards.
func (s *SlotService) BulkUpdateSlots(ctx context.Context, reviewID int64, updates []model.SlotUpdate) (*model.BulkUpdateReport, error) {
	if _, err := s.reviews.Get(ctx, reviewID); err != nil {
		return nil, err
	}

	today := clock.DayOf(s.now())
	report := &model.BulkUpdateReport{}
	for _, update := range updates {
		if err := s.applySlotUpdate(ctx, reviewID, update, today); err != nil {
			report.Errors = append(report.Errors, model.BulkUpdateError{
				SlotID:  update.SlotID,
				Message: err.Error(),
			})
			continue
		}
		report.Updated++
	}

	s.syncQuota(ctx, reviewID, today)
	return report, nil
}

func (s *SlotService) applySlotUpdate(ctx context.Context, reviewID int64, update model.SlotUpdate, today string) error {
	if !update.Status.Valid() {
		return fmt.Errorf("unknown status %q", update.Status)
	}

	slot, err := s.slots.Get(ctx, update.SlotID)
	if err != nil {
		return err
	}
	if slot.ReviewID != reviewID {
		return fmt.Errorf("slot %d does not belong to review %d: %w", update.SlotID, reviewID, ErrNotFound)
	}
	// A slot carries an owner iff it is reserved or complete.
	if (update.Status == model.SlotReserved || update.Status == model.SlotComplete) && slot.ReservedBy == nil {
		return fmt.Errorf("cannot set status %q on a slot with no reservation owner", update.Status)
	}

	return s.slots.AdminSet(ctx, update.SlotID, update.Status, today)
}

func (s *SlotService) recordEvent(ctx context.Context, userID string, review *model.Review, action, date string) {
	ev := &model.ReservationEvent{
		UserID:    userID,
		ReviewID:  review.ID,
		Platform:  review.Platform,
		Action:    action,
		EventDate: date,
		CreatedAt: s.now(),
	}
	if err := s.events.Record(ctx, ev); err != nil {
		log.Printf("review %d: failed to record %s event for user %s: %v", review.ID, action, userID, err)
	}
}

func (s *SlotService) syncQuota(ctx context.Context, reviewID int64, date string) {
	if _, err := s.quotas.SyncReserved(ctx, reviewID, date); err != nil {
		log.Printf("review %d: failed to sync quota counter for %s: %v", reviewID, date, err)
	}
}
