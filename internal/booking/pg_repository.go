package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var blockedBy *uuid.UUID
	var blockReason *string
	var appointmentID *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.ScheduleID,
		&s.Date,
		&s.StartMin,
		&s.EndMin,
		&s.Status,
		&blockedBy,
		&blockReason,
		&appointmentID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, backendError("scan slot", err)
	}

	s.BlockedBy = blockedBy
	s.BlockReason = blockReason
	s.AppointmentID = appointmentID
	s.Date = s.Date.UTC()
	return &s, nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var weekday int
	var breaksRaw []byte

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&weekday,
		&s.WorkStartMin,
		&s.WorkEndMin,
		&s.SlotDurationMin,
		&breaksRaw,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, backendError("scan schedule", err)
	}

	s.Weekday = time.Weekday(weekday)
	if len(breaksRaw) > 0 {
		if err := json.Unmarshal(breaksRaw, &s.Breaks); err != nil {
			return nil, fmt.Errorf("decode schedule breaks: %w", err)
		}
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.DoctorID,
		&a.PatientID,
		&a.Status,
		&a.PaymentStatus,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, backendError("scan appointment", err)
	}

	a.Notes = notes
	return &a, nil
}

const slotColumns = `id, doctor_id, schedule_id, date, start_min, end_min, status, blocked_by, block_reason, appointment_id, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, weekday, work_start_min, work_end_min, slot_duration_min, breaks, active, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		ORDER BY date, start_min
	`, doctorID)
	if err != nil {
		return nil, backendError("list slots", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, backendError("list slots", err)
	}

	return result, nil
}

func (r *PgRepository) DatesWithSlots(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT date
		FROM slots
		WHERE schedule_id = $1
		  AND date BETWEEN $2 AND $3
	`, scheduleID, from, to)
	if err != nil {
		return nil, backendError("check slot coverage", err)
	}
	defer rows.Close()

	covered := make(map[time.Time]bool)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, backendError("check slot coverage", err)
		}
		covered[dateOnly(d)] = true
	}

	if err := rows.Err(); err != nil {
		return nil, backendError("check slot coverage", err)
	}

	return covered, nil
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, backendError("begin insert slots", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, s := range slots {
		// The unique (schedule_id, date, start_min) constraint keeps a
		// regeneration from ever duplicating a surviving booked slot.
		tag, err := tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_id, schedule_id, date, start_min, end_min, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (schedule_id, date, start_min) DO NOTHING
		`, s.ID, s.DoctorID, s.ScheduleID, s.Date, s.StartMin, s.EndMin, s.Status, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return 0, backendError("insert slot", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, backendError("commit insert slots", err)
	}

	return inserted, nil
}

func (r *PgRepository) DeleteAvailableSlots(ctx context.Context, scheduleID uuid.UUID, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE schedule_id = $1
		  AND status = 'available'
		  AND date = ANY($2)
	`, scheduleID, dates)
	if err != nil {
		return backendError("delete available slots", err)
	}
	return nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, next Slot, prevStatus SlotStatus) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    blocked_by = $3,
		    block_reason = $4,
		    appointment_id = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+slotColumns+`
	`, next.ID, next.Status, next.BlockedBy, next.BlockReason, next.AppointmentID, prevStatus)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// The row moved out from under us between read and write.
			return nil, fmt.Errorf("%w: slot status changed concurrently", ErrConflict)
		}
		return nil, err
	}
	return s, nil
}

func (r *PgRepository) BookSlot(ctx context.Context, next Slot, appt Appointment) (*Appointment, *Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, backendError("begin booking", err)
	}
	defer tx.Rollback(ctx)

	apptRow := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, doctor_id, patient_id, status, payment_status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, slot_id, doctor_id, patient_id, status, payment_status, notes, created_at, updated_at
	`, appt.ID, appt.SlotID, appt.DoctorID, appt.PatientID, appt.Status, appt.PaymentStatus, appt.Notes)

	created, err := scanAppointment(apptRow)
	if err != nil {
		// The partial unique index on live appointments is the last line
		// of defense; hitting it means the slot was taken after all.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, fmt.Errorf("%w: slot is no longer available", ErrConflict)
		}
		return nil, nil, fmt.Errorf("insert appointment: %w", err)
	}

	slotRow := tx.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    appointment_id = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, next.ID, next.Status, next.AppointmentID)

	updated, err := scanSlot(slotRow)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil, fmt.Errorf("%w: slot is no longer available", ErrConflict)
		}
		return nil, nil, fmt.Errorf("transition slot to booked: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, backendError("commit booking", err)
	}

	return created, updated, nil
}
