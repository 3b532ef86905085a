package booking

import (
	"context"

	"github.com/google/uuid"
)

// Event action names carried in slot-change events.
const (
	EventSlotBooked  = "booked"
	EventSlotBlocked = "blocked"
	EventSlotFreed   = "unblocked"
)

// SlotEvent is broadcast after any committed slot mutation so read paths
// (live availability views) can refresh. Delivery is at most once and is
// not part of the booking correctness guarantee.
type SlotEvent struct {
	SlotID   uuid.UUID  `json:"slot_id"`
	DoctorID uuid.UUID  `json:"doctor_id"`
	Action   string     `json:"action"`
	Status   SlotStatus `json:"status"`
}

// EventPublisher pushes slot-change events to subscribers. Implementations
// live in internal/pubsub; failures are logged and swallowed by the engine.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, ev SlotEvent) error
}

// SlotCache is the doctor-keyed listing cache. Keys are derived from the
// doctor id alone so cache-key enumeration can never leak patient or slot
// identifiers. All methods are best effort.
type SlotCache interface {
	Get(ctx context.Context, doctorID uuid.UUID) ([]Slot, bool)
	Set(ctx context.Context, doctorID uuid.UUID, slots []Slot)
	Invalidate(ctx context.Context, doctorID uuid.UUID) error
}
