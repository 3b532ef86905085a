package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/slot-booking/internal/booking"
)

func generateSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		scheduleID, err := uuid.Parse(req.ScheduleID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "schedule_id must be a valid UUID")
			return
		}

		from, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be YYYY-MM-DD")
			return
		}

		mode, ok := booking.ParseGenerateMode(req.Mode)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be additive or override")
			return
		}

		created, err := svc.GenerateSlots(r.Context(), actor, scheduleID, from, to, mode)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, GenerateSlotsResponse{Created: created})
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		var date *time.Time
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = &d
		}

		slots, err := svc.ListSlots(r.Context(), doctorID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		items := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			items = append(items, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, SlotListResponse{Items: items})
	}
}

func updateSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req UpdateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.UpdateSlotStatus(r.Context(), actor, slotID, req.Action, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func bulkUpdateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		var req BulkUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		// A malformed slot_id fails its own item, never the batch.
		items := make([]booking.BulkItem, 0, len(req.Items))
		badItems := make([]booking.BulkItemError, 0)
		for _, it := range req.Items {
			slotID, err := uuid.Parse(it.SlotID)
			if err != nil {
				badItems = append(badItems, booking.BulkItemError{
					Action:  it.Action,
					Code:    booking.ErrorCode(booking.ErrInvalidRequest),
					Message: fmt.Sprintf("slot_id %q is not a valid UUID", it.SlotID),
				})
				continue
			}
			items = append(items, booking.BulkItem{SlotID: slotID, Action: it.Action, Reason: it.Reason})
		}

		res := svc.BulkUpdateSlotStatus(r.Context(), actor, items)

		results := make([]SlotResponse, 0, len(res.Results))
		for _, s := range res.Results {
			results = append(results, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, BulkUpdateResponse{
			SuccessCount: res.SuccessCount,
			ErrorCount:   res.ErrorCount + len(badItems),
			Results:      results,
			Errors:       append(badItems, res.Errors...),
		})
	}
}

func bookSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		slotID, err := uuid.Parse(chi.URLParam(r, "slotId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		// Body is optional; an empty body books without notes.
		var req BookRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, _, err := svc.Book(r.Context(), actor, slotID, req.Notes)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

// handleBookingError maps engine failure kinds onto status codes. Lock
// contention gets its own 503 code so clients can tell transient pressure
// apart from a real 400 validation problem or a 409 state conflict.
func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, booking.ErrScheduleNotFound),
		errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, booking.ErrorCode(err), err.Error())
	case errors.Is(err, booking.ErrConflict):
		writeError(w, http.StatusConflict, booking.ErrorCode(err), err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, booking.ErrorCode(err), err.Error())
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, booking.ErrorCode(err), err.Error())
	case errors.Is(err, booking.ErrLockBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, booking.ErrorCode(err), err.Error())
	case errors.Is(err, booking.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, booking.ErrorCode(err), err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
