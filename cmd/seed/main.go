package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfirst/availability-engine/internal/availability"
	"github.com/healthfirst/availability-engine/internal/db"
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

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

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
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
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

	log.Println("providers seeded")
	return ids, nil
}

// seedAvailability creates one morning window per provider for each of
// the next five days, slots included, writing through the repository so
// the generated data matches what the engine would produce.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding availability for %d providers", len(providerIDs))

	repo := availability.NewPgRepository(pool)
	today := availability.DateOnly(time.Now().UTC())

	types := []availability.AppointmentType{
		availability.TypeConsultation,
		availability.TypeFollowUp,
		availability.TypeTelemedicine,
	}

	created := 0
	for _, providerID := range providerIDs {
		for day := 1; day <= 5; day++ {
			w, err := availability.NewWindow(providerID, availability.CreateAvailabilityInput{
				Date:            today.AddDate(0, 0, day),
				StartTime:       "09:00",
				EndTime:         "12:00",
				Timezone:        "America/New_York",
				SlotDuration:    30,
				BreakDuration:   gofakeit.Number(0, 1) * 10,
				AppointmentType: types[gofakeit.Number(0, len(types)-1)],
			})
			if err != nil {
				return err
			}

			slots, err := availability.GenerateSlots(w)
			if err != nil {
				return err
			}

			if _, err := repo.CreateWindowWithSlots(ctx, w, slots); err != nil {
				return err
			}
			created++
		}
	}

	log.Printf("availability seeded: %d windows", created)
	return nil
}
