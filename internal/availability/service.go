package availability

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/healthfirst/availability-engine/internal/redis"
)

var (
	ErrUnauthorized      = errors.New("availability does not belong to provider")
	ErrScheduleBusy      = errors.New("schedule is being modified, please retry")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrSlotNotBookable   = errors.New("slot is not available for booking")
	ErrPatientRequired   = errors.New("patient id is required to book a slot")
	ErrUnknownSlotStatus = errors.New("unknown slot status")
)

// ConflictError reports a time overlap with an already stored window.
type ConflictError struct {
	ConflictingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time range conflicts with existing availability %s", e.ConflictingID)
}

// BookedSlotsError blocks destructive edits of a window that still owns
// booked appointments.
type BookedSlotsError struct {
	BookedCount int
}

func (e *BookedSlotsError) Error() string {
	return fmt.Sprintf("availability has %d booked appointment(s)", e.BookedCount)
}

const (
	defaultListWindowDays = 30
	defaultSlotWindowDays = 14
)

// Service orchestrates the window and slot lifecycle: admission with
// conflict detection, slot generation, recurrence expansion, guarded
// updates and deletes, and slot status transitions.
type Service struct {
	repo      Repository
	providers ProviderDirectory
	locker    redisclient.Locker
	log       *zap.Logger
}

func NewService(repo Repository, providers ProviderDirectory, locker redisclient.Locker, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		providers: providers,
		locker:    locker,
		log:       log,
	}
}

// OccurrenceOutcome records how one recurring occurrence fared. A skipped
// occurrence never aborts the rest of the series.
type OccurrenceOutcome struct {
	Date           time.Time
	AvailabilityID *uuid.UUID
	SlotsCreated   int
	Skipped        string // reason, empty when created
}

type CreateResult struct {
	Window           *AvailabilityWindow
	SlotsCreated     int
	RecurringCreated int
	Occurrences      []OccurrenceOutcome
}

// CreateAvailability admits a new window for a provider: validates it,
// scans the provider's windows on the same date for overlaps, persists
// the window together with its generated slots, and expands recurrence.
func (s *Service) CreateAvailability(ctx context.Context, providerID uuid.UUID, in CreateAvailabilityInput) (*CreateResult, error) {
	w, err := NewWindow(providerID, in)
	if err != nil {
		return nil, err
	}

	ok, err := s.providers.Exists(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("check provider: %w", err)
	}
	if !ok {
		return nil, ErrProviderNotFound
	}

	created, slots, err := s.admitWindow(ctx, w)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{
		Window:       created,
		SlotsCreated: len(slots),
	}

	if w.IsRecurring && w.RecurrencePattern != nil && w.RecurrenceEndDate != nil {
		result.Occurrences = s.expandRecurrence(ctx, created)
		for _, o := range result.Occurrences {
			if o.Skipped == "" {
				result.RecurringCreated++
			}
		}
	}

	s.log.Info("availability created",
		zap.String("provider_id", providerID.String()),
		zap.String("availability_id", created.ID.String()),
		zap.Int("slots_created", result.SlotsCreated),
		zap.Int("recurring_created", result.RecurringCreated),
	)

	return result, nil
}

// admitWindow runs the full admission path for one window under the
// provider's schedule lock: conflict scan, slot generation, atomic
// persistence of window plus slots.
func (s *Service) admitWindow(ctx context.Context, w *AvailabilityWindow) (*AvailabilityWindow, []AppointmentSlot, error) {
	var (
		created *AvailabilityWindow
		slots   []AppointmentSlot
	)

	err := s.locker.WithScheduleLock(ctx, w.ProviderID, w.Date, func(lockCtx context.Context) error {
		existing, err := s.repo.ListWindows(lockCtx, w.ProviderID, w.Date, w.Date)
		if err != nil {
			return fmt.Errorf("scan existing availability: %w", err)
		}

		conflict, err := firstConflict(w, existing)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
		}
		if conflict != nil {
			return &ConflictError{ConflictingID: conflict.ID}
		}

		slots, err = GenerateSlots(w)
		if err != nil {
			return err
		}

		created, err = s.repo.CreateWindowWithSlots(lockCtx, w, slots)
		if err != nil {
			return fmt.Errorf("persist availability: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrScheduleBusy
		}
		return nil, nil, err
	}

	return created, slots, nil
}

// expandRecurrence derives one window per occurrence date and runs each
// through the full admission path. Failures are recorded per occurrence
// and skipped; they do not abort the series.
func (s *Service) expandRecurrence(ctx context.Context, origin *AvailabilityWindow) []OccurrenceOutcome {
	dates := occurrenceDates(origin.Date, *origin.RecurrenceEndDate, *origin.RecurrencePattern)
	outcomes := make([]OccurrenceOutcome, 0, len(dates))

	for _, d := range dates {
		derived := origin.Clone()
		derived.ID = uuid.New()
		derived.Date = d
		derived.IsRecurring = false // derived instances never expand again
		derived.RecurrencePattern = nil
		derived.RecurrenceEndDate = nil
		derived.CurrentAppointments = 0

		created, slots, err := s.admitWindow(ctx, derived)
		if err != nil {
			s.log.Warn("recurring occurrence skipped",
				zap.String("provider_id", origin.ProviderID.String()),
				zap.Time("date", d),
				zap.Error(err),
			)
			outcomes = append(outcomes, OccurrenceOutcome{Date: d, Skipped: err.Error()})
			continue
		}
		id := created.ID
		outcomes = append(outcomes, OccurrenceOutcome{
			Date:           d,
			AvailabilityID: &id,
			SlotsCreated:   len(slots),
		})
	}

	return outcomes
}

type ListAvailabilityQuery struct {
	From   *time.Time
	To     *time.Time
	Status *AvailabilityStatus
}

// ListAvailability returns a provider's windows inside an inclusive date
// range, defaulting to today through the next 30 days, optionally
// filtered by status. Ordering is (date, start_time).
func (s *Service) ListAvailability(ctx context.Context, providerID uuid.UUID, q ListAvailabilityQuery) ([]AvailabilityWindow, error) {
	from, to := resolveRange(q.From, q.To, defaultListWindowDays)

	windows, err := s.repo.ListWindows(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}

	if q.Status == nil {
		return windows, nil
	}

	filtered := windows[:0]
	for _, w := range windows {
		if w.Status == *q.Status {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}

// UpdateAvailabilityInput is a patch: nil fields are left untouched.
type UpdateAvailabilityInput struct {
	StartTime              *string
	EndTime                *string
	Timezone               *string
	SlotDuration           *int
	BreakDuration          *int
	MaxAppointmentsPerSlot *int
	AppointmentType        *AppointmentType
	Status                 *AvailabilityStatus
	Location               *Location
	Pricing                *Pricing
	Notes                  *string
	SpecialRequirements    []string
}

func (in *UpdateAvailabilityInput) affectsTiming() bool {
	return in.StartTime != nil || in.EndTime != nil ||
		in.SlotDuration != nil || in.BreakDuration != nil
}

type UpdateResult struct {
	Window           *AvailabilityWindow
	SlotsRegenerated int
}

// UpdateAvailability applies a patch to a provider-owned window. When the
// patch touches the time shape (start, end, slot or break duration) the
// write and the slot regeneration run under the provider's schedule lock:
// still-available slots generated under the old parameters are replaced,
// booked slots are never touched, and regenerated slots that would
// overlap one are dropped.
func (s *Service) UpdateAvailability(ctx context.Context, providerID, availabilityID uuid.UUID, in UpdateAvailabilityInput) (*UpdateResult, error) {
	w, err := s.repo.GetWindowByID(ctx, availabilityID)
	if err != nil {
		return nil, err
	}
	if w.ProviderID != providerID {
		return nil, ErrUnauthorized
	}

	applyPatch(w, &in)

	if err := w.Validate(); err != nil {
		return nil, err
	}

	result := &UpdateResult{}

	if in.affectsTiming() {
		err = s.locker.WithScheduleLock(ctx, w.ProviderID, w.Date, func(lockCtx context.Context) error {
			updated, err := s.repo.UpdateWindow(lockCtx, w)
			if err != nil {
				return fmt.Errorf("update availability: %w", err)
			}
			result.Window = updated

			regenerated, err := s.regenerateSlots(lockCtx, updated)
			if err != nil {
				return err
			}
			result.SlotsRegenerated = regenerated
			return nil
		})
		if err != nil {
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				return nil, ErrScheduleBusy
			}
			return nil, err
		}
	} else {
		updated, err := s.repo.UpdateWindow(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("update availability: %w", err)
		}
		result.Window = updated
	}

	s.log.Info("availability updated",
		zap.String("availability_id", availabilityID.String()),
		zap.Int("slots_regenerated", result.SlotsRegenerated),
	)

	return result, nil
}

func applyPatch(w *AvailabilityWindow, in *UpdateAvailabilityInput) {
	if in.StartTime != nil {
		w.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		w.EndTime = *in.EndTime
	}
	if in.Timezone != nil {
		w.Timezone = *in.Timezone
	}
	if in.SlotDuration != nil {
		w.SlotDuration = *in.SlotDuration
	}
	if in.BreakDuration != nil {
		w.BreakDuration = *in.BreakDuration
	}
	if in.MaxAppointmentsPerSlot != nil {
		w.MaxAppointmentsPerSlot = *in.MaxAppointmentsPerSlot
	}
	if in.AppointmentType != nil {
		w.AppointmentType = *in.AppointmentType
	}
	if in.Status != nil {
		w.Status = *in.Status
	}
	if in.Location != nil {
		w.Location = in.Location
	}
	if in.Pricing != nil {
		w.Pricing = in.Pricing
	}
	if in.Notes != nil {
		w.Notes = in.Notes
	}
	if in.SpecialRequirements != nil {
		w.SpecialRequirements = in.SpecialRequirements
	}
}

// regenerateSlots replaces the window's available slots with a fresh
// batch generated from the updated parameters. Slots in any other status
// stay as they are; a fresh slot overlapping a booked one is discarded.
// The delete is conditional on the slot still being available, so a
// booking that lands between the scan and the delete survives, and the
// surviving slots are re-listed before the fresh batch is placed.
func (s *Service) regenerateSlots(ctx context.Context, w *AvailabilityWindow) (int, error) {
	current, err := s.repo.ListSlots(ctx, w.ID)
	if err != nil {
		return 0, fmt.Errorf("list slots: %w", err)
	}

	var staleIDs []uuid.UUID
	for _, slot := range current {
		if slot.Status == SlotAvailable {
			staleIDs = append(staleIDs, slot.ID)
		}
	}

	if len(staleIDs) > 0 {
		if err := s.repo.DeleteAvailableSlots(ctx, staleIDs); err != nil {
			return 0, fmt.Errorf("delete stale slots: %w", err)
		}
	}

	survivors, err := s.repo.ListSlots(ctx, w.ID)
	if err != nil {
		return 0, fmt.Errorf("list surviving slots: %w", err)
	}
	var booked []AppointmentSlot
	for _, slot := range survivors {
		if slot.Status == SlotBooked {
			booked = append(booked, slot)
		}
	}

	fresh, err := GenerateSlots(w)
	if err != nil {
		return 0, err
	}

	keep := fresh[:0]
	for _, slot := range fresh {
		if !overlapsAnySlot(slot, booked) {
			keep = append(keep, slot)
		}
	}

	if len(keep) > 0 {
		if err := s.repo.InsertSlots(ctx, keep); err != nil {
			return 0, fmt.Errorf("insert regenerated slots: %w", err)
		}
	}

	return len(keep), nil
}

func overlapsAnySlot(s AppointmentSlot, others []AppointmentSlot) bool {
	for _, o := range others {
		if s.StartTime.Before(o.EndTime) && o.StartTime.Before(s.EndTime) {
			return true
		}
	}
	return false
}

// DeleteAvailability hard-deletes a provider-owned window and its slots,
// refusing when any slot is booked. Returns the number of removed slots.
func (s *Service) DeleteAvailability(ctx context.Context, providerID, availabilityID uuid.UUID) (int, error) {
	w, err := s.repo.GetWindowByID(ctx, availabilityID)
	if err != nil {
		return 0, err
	}
	if w.ProviderID != providerID {
		return 0, ErrUnauthorized
	}

	var deleted int
	err = s.locker.WithScheduleLock(ctx, w.ProviderID, w.Date, func(lockCtx context.Context) error {
		slots, err := s.repo.ListSlots(lockCtx, availabilityID)
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}

		bookedCount := 0
		for _, slot := range slots {
			if slot.Status == SlotBooked {
				bookedCount++
			}
		}
		if bookedCount > 0 {
			return &BookedSlotsError{BookedCount: bookedCount}
		}

		if err := s.repo.DeleteWindow(lockCtx, availabilityID); err != nil {
			return fmt.Errorf("delete availability: %w", err)
		}
		deleted = len(slots)
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return 0, ErrScheduleBusy
		}
		return 0, err
	}

	s.log.Info("availability deleted",
		zap.String("availability_id", availabilityID.String()),
		zap.Int("slots_deleted", deleted),
	)

	return deleted, nil
}

type SlotQuery struct {
	From *time.Time
	To   *time.Time
}

// ListAvailableSlots returns a provider's bookable slots inside an
// inclusive date range, defaulting to today through the next 14 days,
// ordered by start time.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, q SlotQuery) ([]AppointmentSlot, error) {
	from, to := resolveRange(q.From, q.To, defaultSlotWindowDays)

	slots, err := s.repo.ListAvailableSlots(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// UpdateSlotStatus transitions one slot. Booking requires the slot to be
// available and a patient to be named; the transition runs under the
// per-slot lock and atomically sets the patient, the booked-at instant
// and a fresh booking reference. Any transition out of booked releases
// those fields again.
func (s *Service) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, status SlotStatus, patientID *uuid.UUID) (*AppointmentSlot, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlotStatus, status)
	}

	var updated *AppointmentSlot
	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, err := s.repo.GetSlotByID(lockCtx, slotID)
		if err != nil {
			return err
		}

		if status == SlotBooked {
			if patientID == nil {
				return ErrPatientRequired
			}
			if slot.Status != SlotAvailable {
				return ErrSlotNotBookable
			}
			now := time.Now().UTC()
			ref := newBookingReference()
			slot.PatientID = patientID
			slot.BookedAt = &now
			slot.BookingReference = &ref
		} else if slot.Status == SlotBooked {
			// leaving booked releases the booking relation
			slot.PatientID = nil
			slot.BookedAt = nil
			slot.BookingReference = nil
		}
		slot.Status = status

		updated, err = s.repo.UpdateSlot(lockCtx, slot)
		if err != nil {
			return fmt.Errorf("update slot: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info("slot status updated",
		zap.String("slot_id", slotID.String()),
		zap.String("status", string(status)),
	)

	return updated, nil
}

// ExpireStaleSlots cancels slots still marked available whose end time
// has passed. Intended to be called periodically by the expiry worker.
func (s *Service) ExpireStaleSlots(ctx context.Context) (int, error) {
	stale, err := s.repo.FindStaleAvailableSlots(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("find stale slots: %w", err)
	}

	expired := 0
	for i := range stale {
		slot := stale[i]
		slot.Status = SlotCancelled
		if _, err := s.repo.UpdateSlot(ctx, &slot); err != nil {
			s.log.Warn("failed to cancel stale slot",
				zap.String("slot_id", slot.ID.String()),
				zap.Error(err),
			)
			continue
		}
		expired++
	}

	return expired, nil
}

const bookingRefAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newBookingReference() string {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingRefAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		buf[i] = bookingRefAlphabet[n.Int64()]
	}
	return string(buf)
}

func resolveRange(from, to *time.Time, defaultDays int) (time.Time, time.Time) {
	start := DateOnly(time.Now().UTC())
	if from != nil {
		start = DateOnly(*from)
	}
	end := start.AddDate(0, 0, defaultDays)
	if to != nil {
		end = DateOnly(*to)
	}
	return start, end
}
