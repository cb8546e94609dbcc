package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const windowColumns = `
	id, provider_id, date, start_time, end_time, timezone,
	slot_duration, break_duration, max_appointments_per_slot, current_appointments,
	appointment_type, status, is_recurring, recurrence_pattern, recurrence_end_date,
	location, pricing, notes, special_requirements, created_at, updated_at`

const slotColumns = `
	id, availability_id, provider_id, patient_id, slot_start_time, slot_end_time,
	status, appointment_type, booking_reference, patient_notes, special_instructions,
	booked_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var (
		w                 AvailabilityWindow
		pattern           *string
		locationJSON      []byte
		pricingJSON       []byte
		recurrenceEndDate *time.Time
	)

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&w.Date,
		&w.StartTime,
		&w.EndTime,
		&w.Timezone,
		&w.SlotDuration,
		&w.BreakDuration,
		&w.MaxAppointmentsPerSlot,
		&w.CurrentAppointments,
		&w.AppointmentType,
		&w.Status,
		&w.IsRecurring,
		&pattern,
		&recurrenceEndDate,
		&locationJSON,
		&pricingJSON,
		&w.Notes,
		&w.SpecialRequirements,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	w.Date = DateOnly(w.Date)
	if pattern != nil {
		p := RecurrencePattern(*pattern)
		w.RecurrencePattern = &p
	}
	if recurrenceEndDate != nil {
		d := DateOnly(*recurrenceEndDate)
		w.RecurrenceEndDate = &d
	}
	if len(locationJSON) > 0 {
		var loc Location
		if err := json.Unmarshal(locationJSON, &loc); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		w.Location = &loc
	}
	if len(pricingJSON) > 0 {
		var pr Pricing
		if err := json.Unmarshal(pricingJSON, &pr); err != nil {
			return nil, fmt.Errorf("decode pricing: %w", err)
		}
		w.Pricing = &pr
	}

	return &w, nil
}

func scanSlot(row pgx.Row) (*AppointmentSlot, error) {
	var s AppointmentSlot

	err := row.Scan(
		&s.ID,
		&s.AvailabilityID,
		&s.ProviderID,
		&s.PatientID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.AppointmentType,
		&s.BookingReference,
		&s.PatientNotes,
		&s.SpecialInstructions,
		&s.BookedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func windowArgs(w *AvailabilityWindow) ([]any, error) {
	var pattern *string
	if w.RecurrencePattern != nil {
		p := string(*w.RecurrencePattern)
		pattern = &p
	}

	var locationJSON, pricingJSON []byte
	var err error
	if w.Location != nil {
		locationJSON, err = json.Marshal(w.Location)
		if err != nil {
			return nil, fmt.Errorf("encode location: %w", err)
		}
	}
	if w.Pricing != nil {
		pricingJSON, err = json.Marshal(w.Pricing)
		if err != nil {
			return nil, fmt.Errorf("encode pricing: %w", err)
		}
	}

	return []any{
		w.ID, w.ProviderID, w.Date, w.StartTime, w.EndTime, w.Timezone,
		w.SlotDuration, w.BreakDuration, w.MaxAppointmentsPerSlot, w.CurrentAppointments,
		w.AppointmentType, w.Status, w.IsRecurring, pattern, w.RecurrenceEndDate,
		locationJSON, pricingJSON, w.Notes, w.SpecialRequirements,
	}, nil
}

// Interface methods

func (r *PgRepository) CreateWindowWithSlots(ctx context.Context, w *AvailabilityWindow, slots []AppointmentSlot) (*AvailabilityWindow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	args, err := windowArgs(w)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO provider_availability (
			id, provider_id, date, start_time, end_time, timezone,
			slot_duration, break_duration, max_appointments_per_slot, current_appointments,
			appointment_type, status, is_recurring, recurrence_pattern, recurrence_end_date,
			location, pricing, notes, special_requirements, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		RETURNING`+windowColumns, args...)

	created, err := scanWindow(row)
	if err != nil {
		return nil, err
	}

	for i := range slots {
		if err := insertSlot(ctx, tx, &slots[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+windowColumns+`
		FROM provider_availability
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgRepository) ListWindows(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+windowColumns+`
		FROM provider_availability
		WHERE provider_id = $1
		  AND date BETWEEN $2 AND $3
		ORDER BY date, start_time, created_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateWindow(ctx context.Context, w *AvailabilityWindow) (*AvailabilityWindow, error) {
	args, err := windowArgs(w)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE provider_availability
		SET provider_id = $2,
		    date = $3,
		    start_time = $4,
		    end_time = $5,
		    timezone = $6,
		    slot_duration = $7,
		    break_duration = $8,
		    max_appointments_per_slot = $9,
		    current_appointments = $10,
		    appointment_type = $11,
		    status = $12,
		    is_recurring = $13,
		    recurrence_pattern = $14,
		    recurrence_end_date = $15,
		    location = $16,
		    pricing = $17,
		    notes = $18,
		    special_requirements = $19,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+windowColumns, args...)

	return scanWindow(row)
}

func (r *PgRepository) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE availability_id = $1
	`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM provider_availability WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []AppointmentSlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range slots {
		if err := insertSlot(ctx, tx, &slots[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertSlot(ctx context.Context, tx pgx.Tx, s *AppointmentSlot) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_slots (
			id, availability_id, provider_id, patient_id, slot_start_time, slot_end_time,
			status, appointment_type, booking_reference, patient_notes, special_instructions,
			booked_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`, s.ID, s.AvailabilityID, s.ProviderID, s.PatientID, s.StartTime, s.EndTime,
		s.Status, s.AppointmentType, s.BookingReference, s.PatientNotes, s.SpecialInstructions,
		s.BookedAt)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteAvailableSlots(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	// the status condition spares slots booked after they were listed
	_, err := r.pool.Exec(ctx, `
		DELETE FROM appointment_slots WHERE id = ANY($1) AND status = 'available'
	`, ids)
	return err
}

func (r *PgRepository) ListSlots(ctx context.Context, availabilityID uuid.UUID) ([]AppointmentSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+slotColumns+`
		FROM appointment_slots
		WHERE availability_id = $1
		ORDER BY slot_start_time
	`, availabilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error) {
	// to is an inclusive calendar date; the range covers its whole day
	rows, err := r.pool.Query(ctx, `
		SELECT`+slotColumns+`
		FROM appointment_slots
		WHERE provider_id = $1
		  AND status = 'available'
		  AND slot_start_time >= $2
		  AND slot_start_time < $3
		ORDER BY slot_start_time
	`, providerID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+slotColumns+`
		FROM appointment_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpdateSlot(ctx context.Context, s *AppointmentSlot) (*AppointmentSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_slots
		SET patient_id = $2,
		    status = $3,
		    booking_reference = $4,
		    patient_notes = $5,
		    special_instructions = $6,
		    booked_at = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+slotColumns,
		s.ID, s.PatientID, s.Status, s.BookingReference, s.PatientNotes,
		s.SpecialInstructions, s.BookedAt)

	return scanSlot(row)
}

func (r *PgRepository) FindStaleAvailableSlots(ctx context.Context, before time.Time) ([]AppointmentSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+slotColumns+`
		FROM appointment_slots
		WHERE status = 'available'
		  AND slot_end_time < $1
		ORDER BY slot_end_time
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]AppointmentSlot, error) {
	var result []AppointmentSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// PgProviderDirectory resolves providers from the providers table.
type PgProviderDirectory struct {
	pool *pgxpool.Pool
}

func NewPgProviderDirectory(pool *pgxpool.Pool) *PgProviderDirectory {
	return &PgProviderDirectory{pool: pool}
}

func (d *PgProviderDirectory) Exists(ctx context.Context, providerID uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)
	`, providerID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
