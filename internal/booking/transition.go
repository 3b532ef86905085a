package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Slot actions accepted by UpdateSlotStatus and the bulk engine.
const (
	ActionBlock   = "block"
	ActionUnblock = "unblock"
)

// The transitions below are pure: they take the current slot value and
// return either the next value or a typed failure, mutating nothing.
// Persisting the result is the repository's job.

// applyBook moves an available slot to booked and attaches the appointment
// reference.
func applyBook(s Slot, appointmentID uuid.UUID, now time.Time) (Slot, error) {
	if s.Status != SlotAvailable {
		return Slot{}, fmt.Errorf("%w: cannot book slot in status %q", ErrConflict, s.Status)
	}
	s.Status = SlotBooked
	s.AppointmentID = &appointmentID
	s.UpdatedAt = now
	return s, nil
}

// applyBlock moves an available slot to blocked. Blocking an already
// blocked slot succeeds and refreshes the reason; blocking a booked slot
// is a conflict. A non-empty reason is required.
func applyBlock(s Slot, actorID uuid.UUID, reason string, now time.Time) (Slot, error) {
	if reason == "" {
		return Slot{}, fmt.Errorf("%w: block requires a reason", ErrInvalidRequest)
	}
	if s.Status == SlotBooked {
		return Slot{}, fmt.Errorf("%w: cannot block a booked slot", ErrConflict)
	}
	if s.Status != SlotAvailable && s.Status != SlotBlocked {
		return Slot{}, fmt.Errorf("%w: cannot block slot in status %q", ErrConflict, s.Status)
	}
	s.Status = SlotBlocked
	s.BlockedBy = &actorID
	s.BlockReason = &reason
	s.UpdatedAt = now
	return s, nil
}

// applyUnblock moves a blocked slot back to available.
func applyUnblock(s Slot, now time.Time) (Slot, error) {
	if s.Status != SlotBlocked {
		return Slot{}, fmt.Errorf("%w: cannot unblock slot in status %q", ErrConflict, s.Status)
	}
	s.Status = SlotAvailable
	s.BlockedBy = nil
	s.BlockReason = nil
	s.UpdatedAt = now
	return s, nil
}

// applyCancel releases a booked slot when its appointment is cancelled by
// the out-of-core cancellation flow. reopen decides whether the slot goes
// back on sale or stays cancelled.
func applyCancel(s Slot, reopen bool, now time.Time) (Slot, error) {
	if s.Status != SlotBooked {
		return Slot{}, fmt.Errorf("%w: cannot cancel slot in status %q", ErrConflict, s.Status)
	}
	if reopen {
		s.Status = SlotAvailable
	} else {
		s.Status = SlotCancelled
	}
	s.AppointmentID = nil
	s.UpdatedAt = now
	return s, nil
}
