package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reviewplace/slotboard/internal/clock"
	"github.com/reviewplace/slotboard/internal/model"
	"github.com/reviewplace/slotboard/internal/service"
	"github.com/reviewplace/slotboard/internal/validation"
)

const maxBodySize = 1 << 20 // 1MB

// SlotService is the surface of the allocation service the handlers use.
type SlotService interface {
	CreateReview(ctx context.Context, in service.ReviewInput) (*model.Review, error)
	GetReview(ctx context.Context, id int64) (*model.Review, error)
	UpdateDailyCount(ctx context.Context, id int64, dailyCount int) error
	SlotBoard(ctx context.Context, reviewID int64) (*model.SlotBoard, error)
	Reserve(ctx context.Context, reviewID, slotID int64, userID string) (*model.Slot, error)
	Release(ctx context.Context, reviewID, slotID int64, userID string) (*model.Slot, error)
	RecordSubmission(ctx context.Context, in service.SubmissionInput) (*model.SlotSubmission, error)
	RefreshAndActivate(ctx context.Context, reviewID int64) (int, error)
	BulkUpdateSlots(ctx context.Context, reviewID int64, updates []model.SlotUpdate) (*model.BulkUpdateReport, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service SlotService
}

// NewHandler creates a new handler instance.
func NewHandler(svc SlotService) *Handler {
	return &Handler{service: svc}
}

// Routes mounts all API routes on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/reviews", func(r chi.Router) {
		r.Post("/", h.CreateReview)
		r.Get("/{reviewID}", h.GetReview)
		r.Put("/{reviewID}/daily-count", h.UpdateDailyCount)
		r.Post("/{reviewID}/update-slots", h.UpdateSlots)
		r.Put("/{reviewID}/bulk-update-slots", h.BulkUpdateSlots)
	})

	r.Route("/slots", func(r chi.Router) {
		r.Get("/{reviewID}", h.SlotBoard)
		r.Post("/{reviewID}", h.ReserveSlot)
		r.Delete("/{reviewID}", h.ReleaseSlot)
		r.Post("/{reviewID}/submissions", h.CreateSubmission)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type reserveRequest struct {
	SlotID          int64  `json:"slotId"`
	UserID          string `json:"userId"`
	ReservationDate string `json:"reservationDate,omitempty"`
}

type dailyCountRequest struct {
	DailyCount int `json:"dailyCount"`
}

type bulkUpdateRequest struct {
	SlotUpdates []model.SlotUpdate `json:"slotUpdates"`
}

type submissionRequest struct {
	SlotID    int64    `json:"slotId"`
	UserID    string   `json:"userId"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Nickname  string   `json:"nickname"`
	ImageURLs []string `json:"imageUrls"`
}

type activationResponse struct {
	Activated int `json:"activated"`
}

// CreateReview handles POST /reviews
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req service.ReviewInput
	if !h.decodeBody(w, r, &req) {
		return
	}

	review, err := h.service.CreateReview(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, review)
}

// GetReview handles GET /reviews/{reviewID}
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), reviewID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, review)
}

// UpdateDailyCount handles PUT /reviews/{reviewID}/daily-count
func (h *Handler) UpdateDailyCount(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	var req dailyCountRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.service.UpdateDailyCount(r.Context(), reviewID, req.DailyCount); err != nil {
		h.respondServiceError(w, err)
		return
	}

	review, err := h.service.GetReview(r.Context(), reviewID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, review)
}

// UpdateSlots handles POST /reviews/{reviewID}/update-slots: it runs the
// quota refresher and the slot activator for today.
func (h *Handler) UpdateSlots(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	activated, err := h.service.RefreshAndActivate(r.Context(), reviewID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, activationResponse{Activated: activated})
}

// BulkUpdateSlots handles PUT /reviews/{reviewID}/bulk-update-slots
func (h *Handler) BulkUpdateSlots(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	var req bulkUpdateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.SlotUpdates) == 0 {
		h.respondError(w, http.StatusBadRequest, "slotUpdates is required")
		return
	}

	report, err := h.service.BulkUpdateSlots(r.Context(), reviewID, req.SlotUpdates)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, report)
}

// SlotBoard handles GET /slots/{reviewID}
func (h *Handler) SlotBoard(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	board, err := h.service.SlotBoard(r.Context(), reviewID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, board)
}

// ReserveSlot handles POST /slots/{reviewID}
func (h *Handler) ReserveSlot(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	var req reserveRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	userID := validation.SanitizeString(req.UserID)
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "userId is required")
		return
	}
	if req.SlotID == 0 {
		h.respondError(w, http.StatusBadRequest, "slotId is required")
		return
	}
	if req.ReservationDate != "" {
		if _, err := clock.ParseDay(req.ReservationDate); err != nil {
			h.respondError(w, http.StatusBadRequest, "reservationDate must be a YYYY-MM-DD date")
			return
		}
	}

	slot, err := h.service.Reserve(r.Context(), reviewID, req.SlotID, userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, slot)
}

// ReleaseSlot handles DELETE /slots/{reviewID}?slotId=&userId=
func (h *Handler) ReleaseSlot(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	userID := validation.SanitizeString(r.URL.Query().Get("userId"))
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "userId is required")
		return
	}

	slotID, err := strconv.ParseInt(r.URL.Query().Get("slotId"), 10, 64)
	if err != nil || slotID <= 0 {
		h.respondError(w, http.StatusBadRequest, "slotId is required")
		return
	}

	slot, err := h.service.Release(r.Context(), reviewID, slotID, userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, slot)
}

// CreateSubmission handles POST /slots/{reviewID}/submissions
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := h.reviewID(w, r)
	if !ok {
		return
	}

	var req submissionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	userID := validation.SanitizeString(req.UserID)
	if userID == "" {
		h.respondError(w, http.StatusUnauthorized, "userId is required")
		return
	}
	if req.SlotID == 0 {
		h.respondError(w, http.StatusBadRequest, "slotId is required")
		return
	}

	sub, err := h.service.RecordSubmission(r.Context(), service.SubmissionInput{
		ReviewID:  reviewID,
		SlotID:    req.SlotID,
		UserID:    userID,
		Name:      req.Name,
		Phone:     req.Phone,
		Nickname:  req.Nickname,
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, sub)
}

// reviewID parses the {reviewID} path parameter.
func (h *Handler) reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reviewID"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid review id")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body, responding with 400 on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondServiceError maps service errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *validation.Error

	switch {
	case errors.As(err, &validationErr):
		h.respondError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAlreadyReserved),
		errors.Is(err, service.ErrNotReservable),
		errors.Is(err, service.ErrQuotaExceeded),
		errors.Is(err, service.ErrUserReservationLimit):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
