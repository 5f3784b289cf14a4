package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoliocare/clinic-backend/internal/appointment"
	"github.com/scoliocare/clinic-backend/internal/db"
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

	practitioners, err := seedPractitioners(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, practitioners, 400)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patients); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, first_name, last_name, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

type seededPatient struct {
	id             uuid.UUID
	practitionerID uuid.UUID
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID, count int) ([]seededPatient, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	patients := make([]seededPatient, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			practitionerID := practitioners[gofakeit.Number(0, len(practitioners)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, practitioner_id, first_name, last_name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, id, practitionerID, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			patients = append(patients, seededPatient{id: id, practitionerID: practitionerID})
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return patients, nil
}

// seedAppointments books each patient into the next free half-hour slot on
// their practitioner's calendar, so the seeded data never contains conflicts.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patients []seededPatient) error {
	log.Printf("seeding appointments for %d patients", len(patients))

	types := []appointment.Type{
		appointment.TypeInitialAssessment,
		appointment.TypeFollowUp,
		appointment.TypeBraceFitting,
		appointment.TypeRemoteConsultation,
	}
	statuses := []appointment.Status{
		appointment.StatusPending,
		appointment.StatusScheduled,
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour).Add(9 * time.Hour)
	nextSlot := make(map[uuid.UUID]time.Time)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range patients {
		slot, ok := nextSlot[p.practitionerID]
		if !ok {
			slot = dayStart
		}
		nextSlot[p.practitionerID] = slot.Add(30 * time.Minute)

		typ := types[gofakeit.Number(0, len(types)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, practitioner_id, patient_id, appointment_date_time, duration_minutes, type, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, uuid.New(), p.practitionerID, p.id, slot, 30, typ, status, gofakeit.Sentence(8))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}
