package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/slot-booking/internal/booking"
	"github.com/clinicore/slot-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	scheduleCount, err := seedSchedules(context.Background(), pool, doctorIDs)
	if err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	log.Printf("seeded %d schedules", scheduleCount)

	slotCount, err := seedSlots(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	log.Printf("seeded %d slots", slotCount)

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// mustClock converts HH:MM into minutes from midnight.
func mustClock(s string) int {
	min, err := booking.ParseClock(s)
	if err != nil {
		log.Fatalf("bad clock value: %v", err)
	}
	return min
}

// seedSchedules gives every doctor a Monday-to-Friday week: 09:00-17:00,
// 30-minute slots, a lunch break at 12:00-13:00.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) (int, error) {
	workStart := mustClock("09:00")
	workEnd := mustClock("17:00")
	breaks, err := json.Marshal([]booking.BreakInterval{
		{StartMin: mustClock("12:00"), EndMin: mustClock("13:00")},
	})
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, doctorID := range doctorIDs {
		for weekday := time.Monday; weekday <= time.Friday; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO schedules (id, doctor_id, weekday, work_start_min, work_end_min, slot_duration_min, breaks, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, true, now(), now())
			`, uuid.New(), doctorID, int(weekday), workStart, workEnd, 30, breaks)
			if err != nil {
				return 0, err
			}
			count++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return count, nil
}

// seedSlots expands every seeded schedule over the next four weeks using
// the same generator path the API uses.
func seedSlots(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	repo := booking.NewPgRepository(pool)

	rows, err := pool.Query(ctx, `SELECT id FROM schedules WHERE active`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var scheduleIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		scheduleIDs = append(scheduleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	from := now
	to := now.AddDate(0, 0, 27)

	total := 0
	for _, id := range scheduleIDs {
		sched, err := repo.GetScheduleByID(ctx, id)
		if err != nil {
			return 0, err
		}
		slots, err := booking.ExpandSchedule(*sched, from, to, 90, now)
		if err != nil {
			return 0, err
		}
		n, err := repo.InsertSlots(ctx, slots)
		if err != nil {
			return 0, err
		}
		total += n
	}

	return total, nil
}
