package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateMode controls how freshly generated slots meet existing ones.
type GenerateMode string

const (
	// ModeAdditive skips dates that already have slots for the schedule.
	ModeAdditive GenerateMode = "additive"
	// ModeOverride deletes still-available slots on the affected dates
	// before inserting the new set. Booked slots are never touched.
	ModeOverride GenerateMode = "override"
)

func ParseGenerateMode(s string) (GenerateMode, bool) {
	switch GenerateMode(s) {
	case ModeAdditive, ModeOverride:
		return GenerateMode(s), true
	case "":
		return ModeAdditive, true
	default:
		return "", false
	}
}

// ValidateSchedule checks the structural invariants a schedule must hold
// before it can be expanded: positive slot duration, working hours in
// order, and break intervals strictly inside working hours without
// overlapping each other. Breaks are assumed sorted by start.
func ValidateSchedule(s Schedule) error {
	if s.SlotDurationMin <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidRequest)
	}
	if s.WorkStartMin < 0 || s.WorkEndMin > 24*60 || s.WorkStartMin >= s.WorkEndMin {
		return fmt.Errorf("%w: working hours %s-%s are invalid", ErrInvalidRequest,
			ClockString(s.WorkStartMin), ClockString(s.WorkEndMin))
	}
	prevEnd := s.WorkStartMin
	for _, b := range s.Breaks {
		if b.StartMin >= b.EndMin {
			return fmt.Errorf("%w: break %s-%s is empty or inverted", ErrInvalidRequest,
				ClockString(b.StartMin), ClockString(b.EndMin))
		}
		if b.StartMin < s.WorkStartMin || b.EndMin > s.WorkEndMin {
			return fmt.Errorf("%w: break %s-%s falls outside working hours", ErrInvalidRequest,
				ClockString(b.StartMin), ClockString(b.EndMin))
		}
		if b.StartMin < prevEnd {
			return fmt.Errorf("%w: break %s-%s overlaps a previous break", ErrInvalidRequest,
				ClockString(b.StartMin), ClockString(b.EndMin))
		}
		prevEnd = b.EndMin
	}
	return nil
}

// ExpandSchedule produces candidate slot records for every date in the
// inclusive [from, to] range whose weekday matches the schedule. Working
// hours are cut into SlotDurationMin pieces; any piece intersecting a
// break is dropped, as is a tail shorter than the slot duration. The
// range may span at most maxDays days, which caps the size of a single
// generation request.
func ExpandSchedule(s Schedule, from, to time.Time, maxDays int, now time.Time) ([]Slot, error) {
	from = dateOnly(from)
	to = dateOnly(to)

	if from.After(to) {
		return nil, fmt.Errorf("%w: start date is after end date", ErrInvalidRequest)
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxDays {
		return nil, fmt.Errorf("%w: range spans %d days, limit is %d", ErrInvalidRequest, days, maxDays)
	}
	if err := ValidateSchedule(s); err != nil {
		return nil, err
	}

	var slots []Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != s.Weekday {
			continue
		}
		for start := s.WorkStartMin; start+s.SlotDurationMin <= s.WorkEndMin; start += s.SlotDurationMin {
			end := start + s.SlotDurationMin
			if intersectsBreak(start, end, s.Breaks) {
				continue
			}
			slots = append(slots, Slot{
				ID:         uuid.New(),
				DoctorID:   s.DoctorID,
				ScheduleID: s.ID,
				Date:       d,
				StartMin:   start,
				EndMin:     end,
				Status:     SlotAvailable,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	return slots, nil
}

// intersectsBreak reports whether the half-open [start, end) interval
// touches any break interval.
func intersectsBreak(start, end int, breaks []BreakInterval) bool {
	for _, b := range breaks {
		if start < b.EndMin && b.StartMin < end {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
