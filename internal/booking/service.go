package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicore/slot-booking/internal/redis"
)

// Service is the booking engine. Every collaborator is injected so tests
// can substitute in-memory fakes; nothing here is process-global.
type Service struct {
	repo            Repository
	locker          redisclient.Locker
	cache           SlotCache
	bus             EventPublisher
	topic           string
	maxGenerateDays int
}

func NewService(repo Repository, locker redisclient.Locker, cache SlotCache, bus EventPublisher, topic string, maxGenerateDays int) *Service {
	return &Service{
		repo:            repo,
		locker:          locker,
		cache:           cache,
		bus:             bus,
		topic:           topic,
		maxGenerateDays: maxGenerateDays,
	}
}

// Book reserves the slot for the acting patient. The slot is re-read
// inside the lock: a listing the caller saw seconds ago proves nothing
// about the slot's state now, and that stale-read window is exactly the
// race this engine closes. The appointment insert and the slot's
// transition to booked commit as one unit.
//
// For any N concurrent calls on the same slot exactly one succeeds; the
// rest get ErrConflict or ErrLockBusy.
func (s *Service) Book(ctx context.Context, actor Actor, slotID uuid.UUID, notes string) (*Appointment, *Slot, error) {
	if actor.ID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: missing requester id", ErrInvalidRequest)
	}

	var (
		created *Appointment
		updated *Slot
	)

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, err := s.repo.GetSlotByID(lockCtx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return err
			}
			return fmt.Errorf("load slot: %w", err)
		}

		apptID := uuid.New()
		next, err := applyBook(*slot, apptID, time.Now().UTC())
		if err != nil {
			return err
		}

		appt := Appointment{
			ID:            apptID,
			SlotID:        slot.ID,
			DoctorID:      slot.DoctorID,
			PatientID:     actor.ID,
			Status:        AppointmentConfirmed,
			PaymentStatus: PaymentUnpaid,
		}
		if notes != "" {
			appt.Notes = &notes
		}

		created, updated, err = s.repo.BookSlot(lockCtx, next, appt)
		if err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockBusy) {
			return nil, nil, ErrLockBusy
		}
		if errors.Is(err, redisclient.ErrLockUnavailable) {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, nil, err
	}

	// Both are best effort: the booking is already durable and must not
	// be failed or rolled back by read-path plumbing.
	s.invalidate(ctx, updated.DoctorID)
	s.publish(ctx, SlotEvent{
		SlotID:   updated.ID,
		DoctorID: updated.DoctorID,
		Action:   EventSlotBooked,
		Status:   updated.Status,
	})

	return created, updated, nil
}

// UpdateSlotStatus blocks or unblocks one slot on behalf of the actor.
// Authorization is checked before anything else about the request is
// judged, so an outsider learns nothing beyond "forbidden".
func (s *Service) UpdateSlotStatus(ctx context.Context, actor Actor, slotID uuid.UUID, action, reason string) (*Slot, error) {
	var updated *Slot

	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, err := s.repo.GetSlotByID(lockCtx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return err
			}
			return fmt.Errorf("load slot: %w", err)
		}

		if !CanManageSlots(actor.Role, slot.DoctorID, actor.ID) {
			return fmt.Errorf("%w: actor may not manage this doctor's slots", ErrForbidden)
		}

		now := time.Now().UTC()
		var next Slot
		switch action {
		case ActionBlock:
			next, err = applyBlock(*slot, actor.ID, reason, now)
		case ActionUnblock:
			next, err = applyUnblock(*slot, now)
		default:
			err = fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
		}
		if err != nil {
			return err
		}

		updated, err = s.repo.UpdateSlot(lockCtx, next, slot.Status)
		if err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockBusy) {
			return nil, ErrLockBusy
		}
		if errors.Is(err, redisclient.ErrLockUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	s.invalidate(ctx, updated.DoctorID)
	eventAction := EventSlotBlocked
	if action == ActionUnblock {
		eventAction = EventSlotFreed
	}
	s.publish(ctx, SlotEvent{
		SlotID:   updated.ID,
		DoctorID: updated.DoctorID,
		Action:   eventAction,
		Status:   updated.Status,
	})

	return updated, nil
}

// GenerateSlots expands a weekly schedule over [from, to] and stores the
// result. Additive mode leaves dates that already have coverage alone;
// override mode first clears still-available slots on the affected dates.
// Returns how many slots were created, which is zero (and still success)
// when additive generation finds full coverage.
func (s *Service) GenerateSlots(ctx context.Context, actor Actor, scheduleID uuid.UUID, from, to time.Time, mode GenerateMode) (int, error) {
	sched, err := s.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("load schedule: %w", err)
	}

	if !CanManageSlots(actor.Role, sched.DoctorID, actor.ID) {
		return 0, fmt.Errorf("%w: actor may not generate slots for this schedule", ErrForbidden)
	}
	if !sched.Active {
		return 0, fmt.Errorf("%w: schedule is inactive", ErrConflict)
	}

	candidates, err := ExpandSchedule(*sched, from, to, s.maxGenerateDays, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	switch mode {
	case ModeAdditive:
		covered, err := s.repo.DatesWithSlots(ctx, scheduleID, dateOnly(from), dateOnly(to))
		if err != nil {
			return 0, fmt.Errorf("check slot coverage: %w", err)
		}
		kept := candidates[:0]
		for _, c := range candidates {
			if !covered[c.Date] {
				kept = append(kept, c)
			}
		}
		candidates = kept
	case ModeOverride:
		dates := make([]time.Time, 0, len(candidates))
		seen := make(map[time.Time]struct{})
		for _, c := range candidates {
			if _, ok := seen[c.Date]; !ok {
				seen[c.Date] = struct{}{}
				dates = append(dates, c.Date)
			}
		}
		if err := s.repo.DeleteAvailableSlots(ctx, scheduleID, dates); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: unknown generation mode %q", ErrInvalidRequest, mode)
	}

	count, err := s.repo.InsertSlots(ctx, candidates)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.invalidate(ctx, sched.DoctorID)
	}

	return count, nil
}

// ListSlots serves a doctor's slots through the listing cache. An
// optional date narrows the listing after retrieval so the cache key
// stays keyed by doctor id alone.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date *time.Time) ([]Slot, error) {
	slots, hit := s.cache.Get(ctx, doctorID)
	if !hit {
		var err error
		slots, err = s.repo.ListSlotsByDoctor(ctx, doctorID)
		if err != nil {
			return nil, fmt.Errorf("list slots: %w", err)
		}
		s.cache.Set(ctx, doctorID, slots)
	}

	if date == nil {
		return slots, nil
	}

	day := dateOnly(*date)
	filtered := make([]Slot, 0, len(slots))
	for _, sl := range slots {
		if sl.Date.Equal(day) {
			filtered = append(filtered, sl)
		}
	}
	return filtered, nil
}

func (s *Service) invalidate(ctx context.Context, doctorID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, doctorID); err != nil {
		log.Printf("invalidate slot listing for doctor %s: %v", doctorID, err)
	}
}

func (s *Service) publish(ctx context.Context, ev SlotEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, s.topic, ev); err != nil {
		log.Printf("publish slot event %s for slot %s: %v", ev.Action, ev.SlotID, err)
	}
}
