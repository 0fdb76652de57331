// Package handler contains the chi HTTP handlers that translate requests
// into record-store reads and mutation-processor calls. Handlers parse and
// map errors; all invariants live below them.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"
	"bookingsync-service/internal/usecase"
	"bookingsync-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Handler holds the HTTP handlers for the booking API.
type Handler struct {
	store     repository.RecordStore
	processor *usecase.Processor
	log       logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(store repository.RecordStore, processor *usecase.Processor, log logger.Logger) *Handler {
	return &Handler{store: store, processor: processor, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
	// Retryable distinguishes "lost a race" from "bad input".
	Retryable bool `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondError maps engine errors onto HTTP statuses. Seat conflicts and
// exhausted CAS budgets are both 409 but flagged retryable only for the
// latter, so callers can tell bad input from a lost race.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		vErr  *usecase.ValidationError
		scErr *usecase.SeatConflictError
		pcErr *usecase.PartialCascadeError
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	case errors.As(err, &scErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: scErr.Error()})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Retryable: true})
	case errors.As(err, &pcErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: pcErr.Error(), Retryable: true})
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ─── Generic collection reads ────────────────────────────────────────────────

// List handles GET /{collection}.
func (h *Handler) List(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.store.List(r.Context(), collection)
		if err != nil {
			h.respondError(w, err)
			return
		}
		if recs == nil {
			recs = []entity.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// Get handles GET /{collection}/{id}.
func (h *Handler) Get(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
			return
		}
		rec, err := h.store.Get(r.Context(), collection, id)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// ─── Reference data and inventory creates ────────────────────────────────────

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var u entity.User
	if err := decodeJSON(r, &u); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	h.create(w, r, entity.CollectionUsers, &u)
}

// CreateCity handles POST /cities.
func (h *Handler) CreateCity(w http.ResponseWriter, r *http.Request) {
	var c entity.City
	if err := decodeJSON(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	h.create(w, r, entity.CollectionCities, &c)
}

// CreateAircraft handles POST /aircrafts. Seats always start unoccupied;
// occupancy only ever changes through booking transitions.
func (h *Handler) CreateAircraft(w http.ResponseWriter, r *http.Request) {
	var ac entity.Aircraft
	if err := decodeJSON(r, &ac); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if ac.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "aircraft name required"})
		return
	}
	if err := validateSeatLabels(&ac); err != nil {
		h.respondError(w, err)
		return
	}
	ac.ReleaseAll()
	h.create(w, r, entity.CollectionAircrafts, &ac)
}

// CreateFlight handles POST /flights. The assigned record id is the flight
// number bookings will reference.
func (h *Handler) CreateFlight(w http.ResponseWriter, r *http.Request) {
	var f entity.Flight
	if err := decodeJSON(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if f.Status == "" {
		f.Status = entity.FlightScheduled
	}
	if !f.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown flight status"})
		return
	}
	h.create(w, r, entity.CollectionFlights, &f)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, collection string, rec entity.Record) {
	rec.GetMeta().ID = 0
	rec.GetMeta().Version = 0
	stored, err := h.store.Create(r.Context(), collection, rec)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// validateSeatLabels rejects an aircraft whose seat labels repeat across any
// of its cabins.
func validateSeatLabels(ac *entity.Aircraft) error {
	seen := make(map[string]bool)
	for _, class := range []entity.SeatClass{entity.ClassFirst, entity.ClassBusiness, entity.ClassEconomy} {
		for _, seat := range ac.SeatsIn(class) {
			if seat.Label == "" {
				return &usecase.ValidationError{Reason: "seat label required"}
			}
			if seen[seat.Label] {
				return &usecase.ValidationError{Reason: "duplicate seat label " + seat.Label}
			}
			seen[seat.Label] = true
		}
	}
	return nil
}

// ─── Bookings ────────────────────────────────────────────────────────────────

type createBookingRequest struct {
	FlightNumber int64 `json:"flightNumber"`
}

// CreateBooking handles POST /bookings.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	b, err := h.processor.CreateBooking(r.Context(), req.FlightNumber)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type updateBookingRequest struct {
	UpdateKind entity.TransitionKind `json:"updateKind"`
	entity.BookingUpdate
}

// UpdateBooking handles PATCH /bookings/{id}: one named transition per call.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	var req updateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	b, err := h.processor.Apply(r.Context(), id, req.UpdateKind, req.BookingUpdate)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type flightStatusRequest struct {
	Status entity.FlightStatus `json:"status"`
}

// UpdateFlightStatus handles PATCH /flights/{id}/status and returns every
// record the cascade touched.
func (h *Handler) UpdateFlightStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	var req flightStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	result, err := h.processor.UpdateFlightStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
