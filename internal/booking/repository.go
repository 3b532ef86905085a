package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all slot-store interactions needed by the engine.
// The engine depends only on atomic single-row read/modify/write plus the
// one transactional write that couples an appointment insert to its slot's
// transition; nothing here assumes a particular storage engine.
type Repository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// ListSlotsByDoctor returns every non-cancelled slot owned by the
	// doctor, ordered by date and start time.
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error)

	// DatesWithSlots reports which of the given dates already carry at
	// least one slot for the schedule. Used by additive generation.
	DatesWithSlots(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error)

	// InsertSlots stores freshly generated slots and returns how many
	// were written.
	InsertSlots(ctx context.Context, slots []Slot) (int, error)

	// DeleteAvailableSlots removes still-available slots for the schedule
	// on the given dates. Booked and blocked slots survive regeneration.
	DeleteAvailableSlots(ctx context.Context, scheduleID uuid.UUID, dates []time.Time) error

	// UpdateSlot persists a validated transition, guarded by the status
	// the caller read inside the critical section. Returns ErrConflict
	// when the row no longer carries that status.
	UpdateSlot(ctx context.Context, next Slot, prevStatus SlotStatus) (*Slot, error)

	// BookSlot writes the appointment and the slot's transition to booked
	// as a single durable unit: both succeed or both fail.
	BookSlot(ctx context.Context, next Slot, appt Appointment) (*Appointment, *Slot, error)
}
