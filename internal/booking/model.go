package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
	SlotCancelled SlotStatus = "cancelled"
)

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Role is the closed set of actor roles the auth boundary may supply.
// Authorization never inspects anything on an actor beyond ID and Role.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a claim string onto the closed Role set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleStaff, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Actor is the authenticated caller handed in by the auth boundary.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// CanManageSlots reports whether an actor may block or unblock slots owned
// by ownerID. Only the owning doctor and admins qualify.
func CanManageSlots(role Role, ownerID, actorID uuid.UUID) bool {
	if role == RoleAdmin {
		return true
	}
	return role == RoleDoctor && actorID == ownerID
}

// BreakInterval is a half-open [Start, End) pause inside working hours,
// expressed in minutes from midnight.
type BreakInterval struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

type Schedule struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	Weekday         time.Weekday
	WorkStartMin    int
	WorkEndMin      int
	SlotDurationMin int
	Breaks          []BreakInterval
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Slot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	ScheduleID    uuid.UUID
	Date          time.Time // midnight UTC
	StartMin      int
	EndMin        int
	Status        SlotStatus
	BlockedBy     *uuid.UUID
	BlockReason   *string
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Appointment struct {
	ID            uuid.UUID
	SlotID        uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClockString renders minutes from midnight as HH:MM.
func ClockString(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// ParseClock parses HH:MM into minutes from midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
