package booking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflict means the requested transition is illegal given the
	// slot's current status, e.g. booking a blocked slot.
	ErrConflict = errors.New("slot state conflict")

	// ErrForbidden means the actor has no authority over the slot.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRequest covers malformed input: unknown action, missing
	// block reason, out-of-range date span.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrLockBusy is a transient contention signal: another operation
	// holds the slot lock right now. Callers decide whether to retry.
	ErrLockBusy = errors.New("slot is being modified, retry shortly")

	// ErrUnavailable means the storage or lock backend failed.
	ErrUnavailable = errors.New("backend unavailable")
)

// backendError tags a storage or lock backend failure as ErrUnavailable,
// keeping the cause in the chain. Infrastructure trouble must stay
// distinguishable from a programming error at the HTTP boundary.
func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// ErrorCode returns the wire code for a failure kind, used by the HTTP
// layer and in bulk per-item error reports.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrLockBusy):
		return "slot_lock_busy"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal_error"
	}
}
