package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/reviewplace/slotboard/internal/clock"
	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/policy"
	"github.com/reviewplace/slotboard/internal/validation"
)

// memStore is an in-memory implementation of every store interface plus
// policy.Counters, with the same conditional-update semantics as the SQL
// layer so the allocator can be exercised concurrently.
type memStore struct {
	mu           sync.Mutex
	reviews      map[int64]*model.Review
	slots        map[int64]*model.Slot
	quotas       map[string]*model.DailyQuota
	subs         map[int64]*model.SlotSubmission
	events       []model.ReservationEvent
	nextReviewID int64
	nextSlotID   int64

	failQuotaInsert bool // force ErrConflict from Insert
}

func newMemStore() *memStore {
	return &memStore{
		reviews: make(map[int64]*model.Review),
		slots:   make(map[int64]*model.Slot),
		quotas:  make(map[string]*model.DailyQuota),
		subs:    make(map[int64]*model.SlotSubmission),
	}
}

func quotaKey(reviewID int64, date string) string {
	return fmt.Sprintf("%d|%s", reviewID, date)
}

func (m *memStore) Get(ctx context.Context, id int64) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %d: %w", id, ErrNotFound)
	}
	copied := *review
	return &copied, nil
}

func (m *memStore) CreateWithSlots(ctx context.Context, review *model.Review, slotCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReviewID++
	review.ID = m.nextReviewID
	review.CreatedAt = time.Now()
	review.UpdatedAt = review.CreatedAt
	copied := *review
	m.reviews[review.ID] = &copied
	for n := 1; n <= slotCount; n++ {
		m.nextSlotID++
		m.slots[m.nextSlotID] = &model.Slot{
			ID:         m.nextSlotID,
			ReviewID:   review.ID,
			SlotNumber: n,
			Status:     model.SlotUnopened,
			CreatedAt:  review.CreatedAt,
		}
	}
	return nil
}

func (m *memStore) UpdateDailyCount(ctx context.Context, id int64, dailyCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[id]
	if !ok {
		return fmt.Errorf("review %d: %w", id, ErrNotFound)
	}
	review.DailyCount = dailyCount
	return nil
}

func (m *memStore) GetSlot(ctx context.Context, id int64) (*model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSlotLocked(id)
}

func (m *memStore) getSlotLocked(id int64) (*model.Slot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", id, ErrNotFound)
	}
	copied := *slot
	return &copied, nil
}

func (m *memStore) ListByReview(ctx context.Context, reviewID int64) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Slot
	for _, slot := range m.slots {
		if slot.ReviewID == reviewID {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotNumber < out[j].SlotNumber })
	return out, nil
}

func (m *memStore) CountAllocated(ctx context.Context, reviewID int64, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countAllocatedLocked(reviewID, date), nil
}

func (m *memStore) countAllocatedLocked(reviewID int64, date string) int {
	count := 0
	for _, slot := range m.slots {
		if slot.ReviewID == reviewID && slot.OpenedDate != nil && *slot.OpenedDate == date &&
			(slot.Status == model.SlotReserved || slot.Status == model.SlotComplete) {
			count++
		}
	}
	return count
}

func (m *memStore) CountAvailable(ctx context.Context, reviewID int64, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, slot := range m.slots {
		if slot.ReviewID == reviewID && slot.OpenedDate != nil && *slot.OpenedDate == date &&
			slot.Status == model.SlotAvailable {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Activate(ctx context.Context, reviewID int64, date string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*model.Slot
	for _, slot := range m.slots {
		if slot.ReviewID == reviewID && slot.Status == model.SlotUnopened && slot.ReservedBy == nil {
			candidates = append(candidates, slot)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].SlotNumber < candidates[j].SlotNumber })
	activated := 0
	for _, slot := range candidates {
		if activated >= limit {
			break
		}
		slot.Status = model.SlotAvailable
		if slot.OpenedDate == nil {
			d := date
			slot.OpenedDate = &d
		}
		activated++
	}
	return activated, nil
}

func (m *memStore) Claim(ctx context.Context, slotID int64, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok || slot.ReservedBy != nil || slot.Status != model.SlotAvailable {
		return false, nil
	}
	slot.Status = model.SlotReserved
	slot.ReservedBy = &userID
	slot.ReservedAt = &at
	return true, nil
}

func (m *memStore) Release(ctx context.Context, slotID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok || slot.ReservedBy == nil || *slot.ReservedBy != userID || slot.Status != model.SlotReserved {
		return false, nil
	}
	slot.Status = model.SlotAvailable
	slot.ReservedBy = nil
	slot.ReservedAt = nil
	return true, nil
}

func (m *memStore) Complete(ctx context.Context, slotID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok || slot.ReservedBy == nil || *slot.ReservedBy != userID {
		return false, nil
	}
	if slot.Status != model.SlotReserved && slot.Status != model.SlotComplete {
		return false, nil
	}
	slot.Status = model.SlotComplete
	return true, nil
}

func (m *memStore) AdminSet(ctx context.Context, slotID int64, status model.SlotStatus, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %d: %w", slotID, ErrNotFound)
	}
	switch status {
	case model.SlotAvailable:
		slot.Status = model.SlotAvailable
		slot.ReservedBy = nil
		slot.ReservedAt = nil
		if slot.OpenedDate == nil {
			d := date
			slot.OpenedDate = &d
		}
	case model.SlotUnopened:
		slot.Status = model.SlotUnopened
		slot.ReservedBy = nil
		slot.ReservedAt = nil
		slot.OpenedDate = nil
	default:
		slot.Status = status
	}
	return nil
}

func (m *memStore) GetQuota(ctx context.Context, reviewID int64, date string) (*model.DailyQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quota, ok := m.quotas[quotaKey(reviewID, date)]
	if !ok {
		return nil, fmt.Errorf("quota for review %d on %s: %w", reviewID, date, ErrNotFound)
	}
	copied := *quota
	return &copied, nil
}

func (m *memStore) Insert(ctx context.Context, quota *model.DailyQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := quotaKey(quota.ReviewID, quota.QuotaDate)
	if m.failQuotaInsert {
		// Simulate losing the insert race: the row lands, but from a
		// concurrent request, so the caller sees a conflict.
		copied := *quota
		m.quotas[key] = &copied
		return fmt.Errorf("quota exists: %w", ErrConflict)
	}
	if _, exists := m.quotas[key]; exists {
		return fmt.Errorf("quota exists: %w", ErrConflict)
	}
	copied := *quota
	m.quotas[key] = &copied
	return nil
}

func (m *memStore) SyncReserved(ctx context.Context, reviewID int64, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quota, ok := m.quotas[quotaKey(reviewID, date)]
	if !ok {
		return 0, fmt.Errorf("quota for review %d on %s: %w", reviewID, date, ErrNotFound)
	}
	quota.ReservedSlots = m.countAllocatedLocked(reviewID, date)
	quota.RefreshedAt = time.Now()
	return quota.ReservedSlots, nil
}

func (m *memStore) Upsert(ctx context.Context, sub *model.SlotSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *sub
	m.subs[sub.SlotID] = &copied
	return nil
}

func (m *memStore) GetBySlot(ctx context.Context, slotID int64) (*model.SlotSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[slotID]
	if !ok {
		return nil, fmt.Errorf("submission for slot %d: %w", slotID, ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}

func (m *memStore) Record(ctx context.Context, ev *model.ReservationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memStore) ActiveReservations(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, slot := range m.slots {
		if slot.ReservedBy != nil && *slot.ReservedBy == userID && slot.Status == model.SlotReserved {
			count++
		}
	}
	return count, nil
}

func (m *memStore) NetDailyActions(ctx context.Context, userID, platform, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	net := 0
	for _, ev := range m.events {
		if ev.UserID == userID && ev.Platform == platform && ev.EventDate == date {
			switch ev.Action {
			case model.ActionReserve:
				net++
			case model.ActionCancel:
				net--
			}
		}
	}
	return net, nil
}

func (m *memStore) UserReviewDayReservations(ctx context.Context, userID string, reviewID int64, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	net := 0
	for _, ev := range m.events {
		if ev.UserID == userID && ev.ReviewID == reviewID && ev.EventDate == date {
			switch ev.Action {
			case model.ActionReserve:
				net++
			case model.ActionCancel:
				net--
			}
		}
	}
	return net, nil
}

// slotStoreAdapter renames memStore.GetSlot/GetQuota onto the interface
// method names, which collide between SlotStore and QuotaStore.
type slotStoreAdapter struct{ *memStore }

func (a slotStoreAdapter) Get(ctx context.Context, id int64) (*model.Slot, error) {
	return a.memStore.GetSlot(ctx, id)
}

type quotaStoreAdapter struct{ *memStore }

func (a quotaStoreAdapter) Get(ctx context.Context, reviewID int64, date string) (*model.DailyQuota, error) {
	return a.memStore.GetQuota(ctx, reviewID, date)
}

func newTestService(store *memStore) *SlotService {
	policies := policy.NewRegistry()
	policies.Global(&policy.ActiveHoldLimit{Max: 5, Counters: store})
	policies.Platform("naver",
		&policy.DailyActionLimit{Max: 5, Counters: store},
		&policy.ReviewDailyLimit{Counters: store},
	)
	return New(store, slotStoreAdapter{store}, quotaStoreAdapter{store}, store, store, policies)
}

func createTestReview(t *testing.T, svc *SlotService, platform string, dailyCount, perUserLimit, slotCount int) *model.Review {
	t.Helper()
	today := clock.Today()
	review, err := svc.CreateReview(context.Background(), ReviewInput{
		Platform:          platform,
		DailyCount:        dailyCount,
		PerUserDailyLimit: perUserLimit,
		StartDate:         today,
		EndDate:           today,
		SlotCount:         slotCount,
	})
	if err != nil {
		t.Fatalf("Failed to create review: %v", err)
	}
	return review
}

func slotByNumber(t *testing.T, store *memStore, reviewID int64, number int) *model.Slot {
	t.Helper()
	slots, _ := store.ListByReview(context.Background(), reviewID)
	for i := range slots {
		if slots[i].SlotNumber == number {
			return &slots[i]
		}
	}
	t.Fatalf("slot %d not found for review %d", number, reviewID)
	return nil
}

func TestCreateReview_ProvisionsSlotPool(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	review := createTestReview(t, svc, "blog", 2, 0, 5)

	slots, err := store.ListByReview(context.Background(), review.ID)
	if err != nil {
		t.Fatalf("Failed to list slots: %v", err)
	}
	if len(slots) != 5 {
		t.Fatalf("Expected 5 slots, got %d", len(slots))
	}
	for i, slot := range slots {
		if slot.SlotNumber != i+1 {
			t.Errorf("Expected slot number %d, got %d", i+1, slot.SlotNumber)
		}
		if slot.Status != model.SlotUnopened {
			t.Errorf("Expected slot %d unopened, got %s", slot.SlotNumber, slot.Status)
		}
	}
}

func TestCreateReview_Validation(t *testing.T) {
	svc := newTestService(newMemStore())
	today := clock.Today()

	cases := []struct {
		name  string
		input ReviewInput
	}{
		{"missing platform", ReviewInput{DailyCount: 1, StartDate: today, EndDate: today, SlotCount: 1}},
		{"negative daily count", ReviewInput{Platform: "blog", DailyCount: -1, StartDate: today, EndDate: today, SlotCount: 1}},
		{"zero slot count", ReviewInput{Platform: "blog", DailyCount: 1, StartDate: today, EndDate: today, SlotCount: 0}},
		{"bad start date", ReviewInput{Platform: "blog", DailyCount: 1, StartDate: "nope", EndDate: today, SlotCount: 1}},
		{"end before start", ReviewInput{Platform: "blog", DailyCount: 1, StartDate: "2026-05-02", EndDate: "2026-05-01", SlotCount: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateReview(context.Background(), tc.input)
			var validationErr *validation.Error
			if !errors.As(err, &validationErr) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestEnsureDailyQuota_CreatesAndIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 3, 0, 5)
	today := clock.Today()

	quota, err := svc.EnsureDailyQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to ensure quota: %v", err)
	}
	if quota.AvailableSlots != 3 {
		t.Errorf("Expected available_slots 3, got %d", quota.AvailableSlots)
	}
	if quota.ReservedSlots != 0 {
		t.Errorf("Expected reserved_slots 0, got %d", quota.ReservedSlots)
	}

	again, err := svc.EnsureDailyQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Second ensure failed: %v", err)
	}
	if again.AvailableSlots != 3 {
		t.Errorf("Expected available_slots 3, got %d", again.AvailableSlots)
	}
	if len(store.quotas) != 1 {
		t.Errorf("Expected exactly one quota row, got %d", len(store.quotas))
	}
}

func TestEnsureDailyQuota_ReviewMissing(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.EnsureDailyQuota(context.Background(), 404, clock.Today())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEnsureDailyQuota_InsertConflictTreatedAsSuccess(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 3, 0, 5)
	today := clock.Today()
	store.failQuotaInsert = true

	quota, err := svc.EnsureDailyQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Expected conflict to be treated as success, got %v", err)
	}
	if quota.AvailableSlots != 3 {
		t.Errorf("Expected winning row returned, got %+v", quota)
	}
}

func TestActivateSlots_OpensLowestNumbersFirst(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	activated, err := svc.ActivateSlots(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	if activated != 2 {
		t.Fatalf("Expected 2 slots activated, got %d", activated)
	}

	for number := 1; number <= 5; number++ {
		slot := slotByNumber(t, store, review.ID, number)
		want := model.SlotUnopened
		if number <= 2 {
			want = model.SlotAvailable
		}
		if slot.Status != want {
			t.Errorf("Slot %d: expected %s, got %s", number, want, slot.Status)
		}
		if number <= 2 && (slot.OpenedDate == nil || *slot.OpenedDate != today) {
			t.Errorf("Slot %d: expected opened_date %s", number, today)
		}
	}
}

func TestActivateSlots_Idempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	second, err := svc.ActivateSlots(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Second activation failed: %v", err)
	}
	if second != 0 {
		t.Errorf("Expected 0 slots on second run, got %d", second)
	}
}

func TestActivateSlots_NoRemainingQuota(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 1, 0, 5)
	today := clock.Today()

	// Slot 1 already reserved today: remaining quota is 1 - 1 = 0.
	slot := slotByNumber(t, store, review.ID, 1)
	user := "user-a"
	store.slots[slot.ID].Status = model.SlotReserved
	store.slots[slot.ID].ReservedBy = &user
	store.slots[slot.ID].OpenedDate = &today

	activated, err := svc.ActivateSlots(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	if activated != 0 {
		t.Errorf("Expected 0 slots activated, got %d", activated)
	}
}

func TestReserve_Success(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)

	reserved, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a")
	if err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}
	if reserved.Status != model.SlotReserved {
		t.Errorf("Expected status reserved, got %s", reserved.Status)
	}
	if reserved.ReservedBy == nil || *reserved.ReservedBy != "user-a" {
		t.Errorf("Expected owner user-a, got %v", reserved.ReservedBy)
	}

	quota, err := store.GetQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to get quota: %v", err)
	}
	if quota.ReservedSlots != 1 {
		t.Errorf("Expected quota reserved_slots 1, got %d", quota.ReservedSlots)
	}
	if len(store.events) != 1 || store.events[0].Action != model.ActionReserve {
		t.Errorf("Expected one reserve event, got %+v", store.events)
	}
}

func TestReserve_AlreadyReserved(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)

	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("First reserve failed: %v", err)
	}

	_, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-b")
	if !errors.Is(err, ErrAlreadyReserved) {
		t.Errorf("Expected ErrAlreadyReserved, got %v", err)
	}

	current := slotByNumber(t, store, review.ID, 1)
	if current.ReservedBy == nil || *current.ReservedBy != "user-a" {
		t.Errorf("Expected owner to remain user-a, got %v", current.ReservedBy)
	}
}

func TestReserve_NotReservable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)

	// Slot 3 was never activated.
	slot := slotByNumber(t, store, review.ID, 3)
	_, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a")
	if !errors.Is(err, ErrNotReservable) {
		t.Errorf("Expected ErrNotReservable, got %v", err)
	}
}

func TestReserve_WrongReview(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	other := createTestReview(t, svc, "blog", 2, 0, 5)

	slot := slotByNumber(t, store, review.ID, 1)
	_, err := svc.Reserve(context.Background(), other.ID, slot.ID, "user-a")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReserve_QuotaExceeded(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 1, 0, 5)
	today := clock.Today()

	// Slot 1 allocated and slot 2 forced available despite the quota
	// being spent; the live count check must reject the claim.
	user := "user-a"
	slot1 := slotByNumber(t, store, review.ID, 1)
	store.slots[slot1.ID].Status = model.SlotReserved
	store.slots[slot1.ID].ReservedBy = &user
	store.slots[slot1.ID].OpenedDate = &today
	slot2 := slotByNumber(t, store, review.ID, 2)
	store.slots[slot2.ID].Status = model.SlotAvailable
	store.slots[slot2.ID].OpenedDate = &today

	_, err := svc.Reserve(context.Background(), review.ID, slot2.ID, "user-b")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestReserve_GlobalHoldLimit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	today := clock.Today()

	// user-a already holds 5 reserved slots on other reviews.
	for i := 0; i < 5; i++ {
		other := createTestReview(t, svc, "blog", 1, 0, 1)
		slot := slotByNumber(t, store, other.ID, 1)
		user := "user-a"
		store.slots[slot.ID].Status = model.SlotReserved
		store.slots[slot.ID].ReservedBy = &user
		store.slots[slot.ID].OpenedDate = &today
	}

	review := createTestReview(t, svc, "blog", 2, 0, 5)
	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)

	_, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a")
	if !errors.Is(err, ErrUserReservationLimit) {
		t.Errorf("Expected ErrUserReservationLimit, got %v", err)
	}
}

func TestReserve_StrictPlatformDailyActionLimit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "naver", 10, 0, 10)
	today := clock.Today()

	// 5 net reserve actions today on the platform, none still held.
	for i := 0; i < 5; i++ {
		store.events = append(store.events, model.ReservationEvent{
			UserID:    "user-a",
			ReviewID:  int64(900 + i),
			Platform:  "naver",
			Action:    model.ActionReserve,
			EventDate: today,
		})
	}

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)

	_, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a")
	if !errors.Is(err, ErrUserReservationLimit) {
		t.Errorf("Expected ErrUserReservationLimit, got %v", err)
	}

	// A cancel frees one action.
	store.events = append(store.events, model.ReservationEvent{
		UserID:    "user-a",
		Platform:  "naver",
		Action:    model.ActionCancel,
		EventDate: today,
	})
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Errorf("Expected reserve to pass after cancel, got %v", err)
	}
}

func TestReserve_ReviewDailyLimit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "naver", 10, 1, 10)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}

	slot1 := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot1.ID, "user-a"); err != nil {
		t.Fatalf("First reserve failed: %v", err)
	}

	slot2 := slotByNumber(t, store, review.ID, 2)
	_, err := svc.Reserve(context.Background(), review.ID, slot2.ID, "user-a")
	if !errors.Is(err, ErrUserReservationLimit) {
		t.Errorf("Expected ErrUserReservationLimit, got %v", err)
	}

	// Another user is unaffected.
	if _, err := svc.Reserve(context.Background(), review.ID, slot2.ID, "user-b"); err != nil {
		t.Errorf("Expected user-b reserve to pass, got %v", err)
	}
}

func TestReserve_ConcurrentSameSlot(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 5, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)

	const attempts = 20
	var wg sync.WaitGroup
	var successes int64
	var successMu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", n)
			_, err := svc.Reserve(context.Background(), review.ID, slot.ID, user)
			if err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
				return
			}
			if !errors.Is(err, ErrAlreadyReserved) && !errors.Is(err, ErrNotReservable) {
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", successes)
	}
	current := slotByNumber(t, store, review.ID, 1)
	if current.ReservedBy == nil {
		t.Error("Expected the slot to end with an owner")
	}
}

func TestReserve_NeverExceedsDailyCount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 3, 0, 10)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}

	slots, _ := store.ListByReview(context.Background(), review.ID)
	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(n int, slotID int64) {
			defer wg.Done()
			svc.Reserve(context.Background(), review.ID, slotID, fmt.Sprintf("user-%d", n))
		}(i, slot.ID)
	}
	wg.Wait()

	allocated, err := store.CountAllocated(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if allocated > 3 {
		t.Errorf("Allocated %d slots, daily count is 3", allocated)
	}
	if allocated != 3 {
		t.Errorf("Expected all 3 activated slots claimed, got %d", allocated)
	}
}

func TestRelease(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}

	// Another user cannot release it.
	if _, err := svc.Release(context.Background(), review.ID, slot.ID, "user-b"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}

	released, err := svc.Release(context.Background(), review.ID, slot.ID, "user-a")
	if err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	if released.Status != model.SlotAvailable || released.ReservedBy != nil {
		t.Errorf("Expected available unowned slot, got %+v", released)
	}

	quota, err := store.GetQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to get quota: %v", err)
	}
	if quota.ReservedSlots != 0 {
		t.Errorf("Expected quota reserved_slots 0 after release, got %d", quota.ReservedSlots)
	}
	if len(store.events) != 2 || store.events[1].Action != model.ActionCancel {
		t.Errorf("Expected a cancel event, got %+v", store.events)
	}
}

func TestRecordSubmission_CompletesSlot(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}

	input := SubmissionInput{
		ReviewID:  review.ID,
		SlotID:    slot.ID,
		UserID:    "user-a",
		Name:      "Kim Reviewer",
		Phone:     "010-1234-5678",
		Nickname:  "kimrev",
		ImageURLs: []string{"https://cdn.example.com/proof1.jpg"},
	}
	sub, err := svc.RecordSubmission(context.Background(), input)
	if err != nil {
		t.Fatalf("Failed to record submission: %v", err)
	}
	if sub.SlotID != slot.ID {
		t.Errorf("Expected slot id %d, got %d", slot.ID, sub.SlotID)
	}

	current := slotByNumber(t, store, review.ID, 1)
	if current.Status != model.SlotComplete {
		t.Errorf("Expected status complete, got %s", current.Status)
	}

	// Resubmission updates in place.
	input.Nickname = "kimrev2"
	if _, err := svc.RecordSubmission(context.Background(), input); err != nil {
		t.Fatalf("Resubmission failed: %v", err)
	}
	if len(store.subs) != 1 {
		t.Errorf("Expected one submission row, got %d", len(store.subs))
	}
	stored, _ := store.GetBySlot(context.Background(), slot.ID)
	if stored.Nickname != "kimrev2" {
		t.Errorf("Expected nickname updated, got %s", stored.Nickname)
	}
}

func TestRecordSubmission_Forbidden(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}

	_, err := svc.RecordSubmission(context.Background(), SubmissionInput{
		ReviewID:  review.ID,
		SlotID:    slot.ID,
		UserID:    "user-b",
		Name:      "Someone Else",
		Phone:     "010-9999-8888",
		Nickname:  "other",
		ImageURLs: []string{"https://cdn.example.com/proof.jpg"},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}

func TestRecordSubmission_Validation(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.RecordSubmission(context.Background(), SubmissionInput{
		ReviewID:  1,
		SlotID:    1,
		UserID:    "user-a",
		Name:      "Kim Reviewer",
		Phone:     "not-a-phone",
		Nickname:  "kimrev",
		ImageURLs: []string{"https://cdn.example.com/proof.jpg"},
	})
	var validationErr *validation.Error
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if validationErr.Field != "phone" {
		t.Errorf("Expected phone field error, got %s", validationErr.Field)
	}
}

func TestBulkUpdateSlots_ResetClearsOwnerAndReconciles(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.ActivateSlots(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	slot := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}

	report, err := svc.BulkUpdateSlots(context.Background(), review.ID, []model.SlotUpdate{
		{SlotID: slot.ID, Status: model.SlotUnopened},
	})
	if err != nil {
		t.Fatalf("Bulk update failed: %v", err)
	}
	if report.Updated != 1 || len(report.Errors) != 0 {
		t.Fatalf("Expected clean report, got %+v", report)
	}

	current := slotByNumber(t, store, review.ID, 1)
	if current.Status != model.SlotUnopened || current.ReservedBy != nil || current.OpenedDate != nil {
		t.Errorf("Expected reset slot, got %+v", current)
	}

	quota, err := store.GetQuota(context.Background(), review.ID, today)
	if err != nil {
		t.Fatalf("Failed to get quota: %v", err)
	}
	if quota.ReservedSlots != 0 {
		t.Errorf("Expected reserved_slots reconciled to 0, got %d", quota.ReservedSlots)
	}
}

func TestBulkUpdateSlots_CollectsPerItemErrors(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)
	other := createTestReview(t, svc, "blog", 2, 0, 5)
	today := clock.Today()

	if _, err := svc.EnsureDailyQuota(context.Background(), review.ID, today); err != nil {
		t.Fatalf("Failed to ensure quota: %v", err)
	}

	good := slotByNumber(t, store, review.ID, 1)
	foreign := slotByNumber(t, store, other.ID, 1)
	unowned := slotByNumber(t, store, review.ID, 2)

	report, err := svc.BulkUpdateSlots(context.Background(), review.ID, []model.SlotUpdate{
		{SlotID: good.ID, Status: model.SlotAvailable},
		{SlotID: foreign.ID, Status: model.SlotAvailable},
		{SlotID: 99999, Status: model.SlotAvailable},
		{SlotID: unowned.ID, Status: model.SlotReserved},
		{SlotID: good.ID, Status: "bogus"},
	})
	if err != nil {
		t.Fatalf("Bulk update failed: %v", err)
	}
	if report.Updated != 1 {
		t.Errorf("Expected 1 updated, got %d", report.Updated)
	}
	if len(report.Errors) != 4 {
		t.Errorf("Expected 4 item errors, got %d: %+v", len(report.Errors), report.Errors)
	}

	current := slotByNumber(t, store, review.ID, 1)
	if current.Status != model.SlotAvailable {
		t.Errorf("Expected good item applied, got %s", current.Status)
	}
	if current.OpenedDate == nil || *current.OpenedDate != today {
		t.Errorf("Expected opened_date stamped, got %v", current.OpenedDate)
	}
}

func TestSlotBoard_SummaryAndActivation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)

	board, err := svc.SlotBoard(context.Background(), review.ID)
	if err != nil {
		t.Fatalf("Failed to get board: %v", err)
	}
	if board.Summary.Total != 5 {
		t.Errorf("Expected 5 total slots, got %d", board.Summary.Total)
	}
	if board.Summary.Available != 2 {
		t.Errorf("Expected 2 available after activation, got %d", board.Summary.Available)
	}
	if board.Summary.Remaining != 2 {
		t.Errorf("Expected remaining 2, got %d", board.Summary.Remaining)
	}

	slot := slotByNumber(t, store, review.ID, 1)
	if _, err := svc.Reserve(context.Background(), review.ID, slot.ID, "user-a"); err != nil {
		t.Fatalf("Failed to reserve: %v", err)
	}

	board, err = svc.SlotBoard(context.Background(), review.ID)
	if err != nil {
		t.Fatalf("Failed to get board: %v", err)
	}
	if board.Summary.Reserved != 1 || board.Summary.Remaining != 1 {
		t.Errorf("Expected 1 reserved / 1 remaining, got %+v", board.Summary)
	}
	if board.Summary.Available != 1 {
		t.Errorf("Expected 1 available, got %d", board.Summary.Available)
	}
}

func TestUpdateDailyCount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	review := createTestReview(t, svc, "blog", 2, 0, 5)

	if err := svc.UpdateDailyCount(context.Background(), review.ID, 4); err != nil {
		t.Fatalf("Failed to update daily count: %v", err)
	}
	updated, _ := svc.GetReview(context.Background(), review.ID)
	if updated.DailyCount != 4 {
		t.Errorf("Expected daily count 4, got %d", updated.DailyCount)
	}

	if err := svc.UpdateDailyCount(context.Background(), review.ID, -1); err == nil {
		t.Error("Expected validation error for negative daily count")
	}
	if err := svc.UpdateDailyCount(context.Background(), 404, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
