package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/clinicore/slot-booking/internal/redis"
)

// In-memory stand-ins for the injected collaborators. They mirror the
// contracts of the real backends closely enough for the engine not to
// know the difference: the locker fails fast when a slot is contended,
// and the repository applies booking writes atomically under one mutex.

type memRepo struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]Slot
	schedules    map[uuid.UUID]Schedule
	appointments map[uuid.UUID]Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots:        make(map[uuid.UUID]Slot),
		schedules:    make(map[uuid.UUID]Schedule),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *memRepo) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *memRepo) GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &s, nil
}

func (r *memRepo) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.DoctorID == doctorID && s.Status != SlotCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) DatesWithSlots(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	covered := make(map[time.Time]bool)
	for _, s := range r.slots {
		if s.ScheduleID == scheduleID && !s.Date.Before(from) && !s.Date.After(to) {
			covered[s.Date] = true
		}
	}
	return covered, nil
}

func (r *memRepo) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, s := range slots {
		if r.hasSlotAtLocked(s.ScheduleID, s.Date, s.StartMin) {
			continue
		}
		r.slots[s.ID] = s
		inserted++
	}
	return inserted, nil
}

func (r *memRepo) hasSlotAtLocked(scheduleID uuid.UUID, date time.Time, startMin int) bool {
	for _, s := range r.slots {
		if s.ScheduleID == scheduleID && s.Date.Equal(date) && s.StartMin == startMin {
			return true
		}
	}
	return false
}

func (r *memRepo) DeleteAvailableSlots(ctx context.Context, scheduleID uuid.UUID, dates []time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dateSet := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		dateSet[d] = struct{}{}
	}
	for id, s := range r.slots {
		if s.ScheduleID != scheduleID || s.Status != SlotAvailable {
			continue
		}
		if _, ok := dateSet[s.Date]; ok {
			delete(r.slots, id)
		}
	}
	return nil
}

func (r *memRepo) UpdateSlot(ctx context.Context, next Slot, prevStatus SlotStatus) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.slots[next.ID]
	if !ok || cur.Status != prevStatus {
		return nil, fmt.Errorf("%w: slot status changed concurrently", ErrConflict)
	}
	r.slots[next.ID] = next
	return &next, nil
}

func (r *memRepo) BookSlot(ctx context.Context, next Slot, appt Appointment) (*Appointment, *Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.slots[next.ID]
	if !ok {
		return nil, nil, ErrSlotNotFound
	}
	if cur.Status != SlotAvailable {
		return nil, nil, fmt.Errorf("%w: slot is no longer available", ErrConflict)
	}
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	r.appointments[appt.ID] = appt
	r.slots[next.ID] = next
	return &appt, &next, nil
}

func (r *memRepo) appointmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appointments)
}

func (r *memRepo) slot(id uuid.UUID) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[id]
}

func (r *memRepo) putSlot(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = s
}

func (r *memRepo) putSchedule(s Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
}

// memLocker applies the coordinator's fail-fast contract with one
// try-lock mutex per slot.
type memLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *memLocker) slotMutex(slotID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[slotID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[slotID] = m
	}
	return m
}

func (l *memLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	m := l.slotMutex(slotID)
	if !m.TryLock() {
		return redisclient.ErrLockBusy
	}
	defer m.Unlock()
	return fn(ctx)
}

// memCache records invalidations per doctor.
type memCache struct {
	mu           sync.Mutex
	listings     map[uuid.UUID][]Slot
	invalidation map[uuid.UUID]int
}

func newMemCache() *memCache {
	return &memCache{
		listings:     make(map[uuid.UUID][]Slot),
		invalidation: make(map[uuid.UUID]int),
	}
}

func (c *memCache) Get(ctx context.Context, doctorID uuid.UUID) ([]Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.listings[doctorID]
	return slots, ok
}

func (c *memCache) Set(ctx context.Context, doctorID uuid.UUID, slots []Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[doctorID] = slots
}

func (c *memCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, doctorID)
	c.invalidation[doctorID]++
	return nil
}

func (c *memCache) invalidations(doctorID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidation[doctorID]
}

// memPublisher records events; failErr makes every publish fail to prove
// the engine treats the bus as best effort.
type memPublisher struct {
	mu      sync.Mutex
	events  []SlotEvent
	failErr error
}

func (p *memPublisher) Publish(ctx context.Context, topic string, ev SlotEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *memPublisher) published() []SlotEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlotEvent, len(p.events))
	copy(out, p.events)
	return out
}
