package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthlinkr/clinic-booking/internal/db"
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

	seedCtx := context.Background()

	clinics, err := seedClinics(seedCtx, pool, 10)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	doctors, err := seedDoctors(seedCtx, pool, clinics, 80)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedServices(seedCtx, pool, clinics); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedPatients(seedCtx, pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(seedCtx, pool, doctors, 20); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinics", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, address, contact_number, email, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id,
			gofakeit.Company()+" Clinic",
			gofakeit.Address().Address,
			gofakeit.Phone(),
			gofakeit.Email(),
			gofakeit.Sentence(12),
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinics seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, clinics []uuid.UUID, count int) ([]uuid.UUID, error) {
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
		clinic := clinics[gofakeit.Number(0, len(clinics)-1)]
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, clinic_id, full_name, specialty, qualification, consultation_fee, years_experience, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, clinic, gofakeit.Name(), spec, "MD", gofakeit.Price(50, 400), gofakeit.Number(1, 35))
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

func seedServices(ctx context.Context, pool *pgxpool.Pool, clinics []uuid.UUID) error {
	log.Println("seeding services")

	names := []string{"Consultation", "Follow-up", "Vaccination", "Health Check", "Lab Review"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, clinic := range clinics {
		for _, name := range names {
			_, err := tx.Exec(ctx, `
				INSERT INTO services (id, clinic_id, name, description, duration_minutes, fee, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), clinic, name, gofakeit.Sentence(8), gofakeit.Number(15, 60), gofakeit.Price(20, 200))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("services seeded")
	return nil
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
			birth := gofakeit.DateRange(
				time.Now().AddDate(-90, 0, 0),
				time.Now().AddDate(-18, 0, 0),
			)
			gender := "M"
			if gofakeit.Bool() {
				gender = "F"
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, full_name, birth_date, gender, phone, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), gofakeit.Name(), birth, gender, gofakeit.Phone(), gofakeit.Email())
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

// seedSlots creates half-hour windows over the next two weeks, 9 to 17.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID, perDoctor int) error {
	log.Printf("seeding %d slots per doctor", perDoctor)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctor := range doctors {
		for i := 0; i < perDoctor; i++ {
			day := gofakeit.Number(1, 14)
			hour := gofakeit.Number(9, 16)
			half := gofakeit.Number(0, 1) * 30

			date := time.Now().AddDate(0, 0, day)
			start := time.Date(date.Year(), date.Month(), date.Day(), hour, half, 0, 0, time.Local)
			end := start.Add(30 * time.Minute)

			// Overlapping duplicates are harmless for load testing.
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_slots (id, doctor_id, start_time, end_time, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), doctor, start, end)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("slots seeded")
	return nil
}
