package service

import "errors"

// Sentinel errors for the allocation paths. Handlers map these onto HTTP
// statuses; store implementations wrap ErrNotFound and ErrConflict so
// callers can branch with errors.Is.
var (
	// ErrNotFound means the referenced review, slot or quota row is absent,
	// or the slot does not belong to the given review.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller does not own the resource being mutated.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyReserved means the slot already has a reservation owner.
	ErrAlreadyReserved = errors.New("slot already reserved")

	// ErrNotReservable means the slot is not in a reservable state.
	ErrNotReservable = errors.New("slot is not reservable")

	// ErrQuotaExceeded means the review's daily capacity is used up.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrUserReservationLimit means a per-user reservation policy rejected
	// the request.
	ErrUserReservationLimit = errors.New("user reservation limit exceeded")

	// ErrConflict is reported by stores on a unique-constraint violation.
	// The quota refresher treats it as success and re-fetches.
	ErrConflict = errors.New("conflict")
)
