package availability

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "github.com/healthfirst/availability-engine/internal/redis"
)

// memoryRepo is an in-memory Repository with the same ordering semantics
// as the Postgres implementation.
type memoryRepo struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*AvailabilityWindow
	slots   map[uuid.UUID]*AppointmentSlot
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		windows: make(map[uuid.UUID]*AvailabilityWindow),
		slots:   make(map[uuid.UUID]*AppointmentSlot),
	}
}

func (r *memoryRepo) CreateWindowWithSlots(_ context.Context, w *AvailabilityWindow, slots []AppointmentSlot) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := w.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.windows[stored.ID] = stored

	for i := range slots {
		s := slots[i]
		s.CreatedAt = now
		s.UpdatedAt = now
		r.slots[s.ID] = &s
	}
	return stored.Clone(), nil
}

func (r *memoryRepo) GetWindowByID(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	return w.Clone(), nil
}

func (r *memoryRepo) ListWindows(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.ProviderID != providerID {
			continue
		}
		if w.Date.Before(from) || w.Date.After(to) {
			continue
		}
		out = append(out, *w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *memoryRepo) UpdateWindow(_ context.Context, w *AvailabilityWindow) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.windows[w.ID]; !ok {
		return nil, ErrAvailabilityNotFound
	}
	stored := w.Clone()
	stored.UpdatedAt = time.Now().UTC()
	r.windows[w.ID] = stored
	return stored.Clone(), nil
}

func (r *memoryRepo) DeleteWindow(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.windows[id]; !ok {
		return ErrAvailabilityNotFound
	}
	delete(r.windows, id)
	for slotID, s := range r.slots {
		if s.AvailabilityID == id {
			delete(r.slots, slotID)
		}
	}
	return nil
}

func (r *memoryRepo) InsertSlots(_ context.Context, slots []AppointmentSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for i := range slots {
		s := slots[i]
		s.CreatedAt = now
		s.UpdatedAt = now
		r.slots[s.ID] = &s
	}
	return nil
}

func (r *memoryRepo) DeleteAvailableSlots(_ context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if s, ok := r.slots[id]; ok && s.Status == SlotAvailable {
			delete(r.slots, id)
		}
	}
	return nil
}

func (r *memoryRepo) ListSlots(_ context.Context, availabilityID uuid.UUID) ([]AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AppointmentSlot
	for _, s := range r.slots {
		if s.AvailabilityID == availabilityID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *memoryRepo) ListAvailableSlots(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := to.AddDate(0, 0, 1)
	var out []AppointmentSlot
	for _, s := range r.slots {
		if s.ProviderID != providerID || s.Status != SlotAvailable {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(cutoff) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *memoryRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepo) UpdateSlot(_ context.Context, s *AppointmentSlot) (*AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[s.ID]; !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	cp.UpdatedAt = time.Now().UTC()
	r.slots[s.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memoryRepo) FindStaleAvailableSlots(_ context.Context, before time.Time) ([]AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AppointmentSlot
	for _, s := range r.slots {
		if s.Status == SlotAvailable && s.EndTime.Before(before) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type fakeDirectory struct {
	known map[uuid.UUID]bool
}

func (d *fakeDirectory) Exists(_ context.Context, providerID uuid.UUID) (bool, error) {
	return d.known[providerID], nil
}

// noopLocker runs the guarded section directly.
type noopLocker struct{}

func (noopLocker) WithScheduleLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(context.Context) error) error {
	return fn(ctx)
}

func (noopLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

// busyLocker simulates lock contention on every acquisition.
type busyLocker struct{}

func (busyLocker) WithScheduleLock(context.Context, uuid.UUID, time.Time, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func (busyLocker) WithSlotLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func newTestService(t *testing.T) (*Service, *memoryRepo, uuid.UUID) {
	t.Helper()
	repo := newMemoryRepo()
	providerID := uuid.New()
	dir := &fakeDirectory{known: map[uuid.UUID]bool{providerID: true}}
	svc := NewService(repo, dir, noopLocker{}, zap.NewNop())
	return svc, repo, providerID
}

func TestCreateAvailability_HappyPath(t *testing.T) {
	svc, repo, providerID := newTestService(t)

	in := validInput()
	in.EndTime = "12:00"

	res, err := svc.CreateAvailability(context.Background(), providerID, in)
	require.NoError(t, err)

	assert.Equal(t, 6, res.SlotsCreated)
	assert.Equal(t, 0, res.RecurringCreated)
	assert.Empty(t, res.Occurrences)
	require.NotNil(t, res.Window)

	stored, err := repo.GetWindowByID(context.Background(), res.Window.ID)
	require.NoError(t, err)
	assert.Equal(t, providerID, stored.ProviderID)

	slots, err := repo.ListSlots(context.Background(), res.Window.ID)
	require.NoError(t, err)
	require.Len(t, slots, 6)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), slots[0].StartTime)
	assert.Equal(t, time.Date(2024, 6, 3, 11, 30, 0, 0, time.UTC), slots[5].StartTime)
}

func TestCreateAvailability_UnknownProvider(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.CreateAvailability(context.Background(), uuid.New(), validInput())
	require.ErrorIs(t, err, ErrProviderNotFound)
	assert.Empty(t, repo.windows)
}

func TestCreateAvailability_InvalidInputNotPersisted(t *testing.T) {
	svc, repo, providerID := newTestService(t)

	in := validInput()
	in.SlotDuration = -10

	_, err := svc.CreateAvailability(context.Background(), providerID, in)
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Empty(t, repo.windows)
	assert.Empty(t, repo.slots)
}

func TestCreateAvailability_Conflict(t *testing.T) {
	svc, _, providerID := newTestService(t)
	ctx := context.Background()

	first := validInput()
	first.EndTime = "10:00"
	existing, err := svc.CreateAvailability(ctx, providerID, first)
	require.NoError(t, err)

	overlapping := validInput()
	overlapping.StartTime = "09:30"
	overlapping.EndTime = "10:30"

	_, err = svc.CreateAvailability(ctx, providerID, overlapping)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, existing.Window.ID, conflict.ConflictingID)

	// touching windows are admissible
	adjacent := validInput()
	adjacent.StartTime = "10:00"
	adjacent.EndTime = "11:00"
	_, err = svc.CreateAvailability(ctx, providerID, adjacent)
	require.NoError(t, err)
}

func TestCreateAvailability_ScheduleBusy(t *testing.T) {
	repo := newMemoryRepo()
	providerID := uuid.New()
	dir := &fakeDirectory{known: map[uuid.UUID]bool{providerID: true}}
	svc := NewService(repo, dir, busyLocker{}, zap.NewNop())

	_, err := svc.CreateAvailability(context.Background(), providerID, validInput())
	require.ErrorIs(t, err, ErrScheduleBusy)
}

func TestCreateAvailability_WeeklyRecurrence(t *testing.T) {
	svc, repo, providerID := newTestService(t)

	weekly := RecurrenceWeekly
	end := day(2024, 1, 22)
	in := CreateAvailabilityInput{
		Date:              day(2024, 1, 1),
		StartTime:         "09:00",
		EndTime:           "10:00",
		Timezone:          "UTC",
		IsRecurring:       true,
		RecurrencePattern: &weekly,
		RecurrenceEndDate: &end,
	}

	res, err := svc.CreateAvailability(context.Background(), providerID, in)
	require.NoError(t, err)

	assert.Equal(t, 3, res.RecurringCreated)
	require.Len(t, res.Occurrences, 3)
	assert.Equal(t, day(2024, 1, 8), res.Occurrences[0].Date)
	assert.Equal(t, day(2024, 1, 15), res.Occurrences[1].Date)
	assert.Equal(t, day(2024, 1, 22), res.Occurrences[2].Date)

	for _, o := range res.Occurrences {
		assert.Empty(t, o.Skipped)
		require.NotNil(t, o.AvailabilityID)
		assert.Equal(t, 2, o.SlotsCreated)

		derived, err := repo.GetWindowByID(context.Background(), *o.AvailabilityID)
		require.NoError(t, err)
		assert.False(t, derived.IsRecurring)
		assert.Nil(t, derived.RecurrencePattern)
		assert.Nil(t, derived.RecurrenceEndDate)
	}

	assert.Len(t, repo.windows, 4)
}

func TestCreateAvailability_RecurrenceSkipsConflictingOccurrence(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	blocker := validInput()
	blocker.Date = day(2024, 1, 15)
	blocker.EndTime = "10:00"
	_, err := svc.CreateAvailability(ctx, providerID, blocker)
	require.NoError(t, err)

	weekly := RecurrenceWeekly
	end := day(2024, 1, 22)
	in := CreateAvailabilityInput{
		Date:              day(2024, 1, 1),
		StartTime:         "09:00",
		EndTime:           "10:00",
		Timezone:          "UTC",
		IsRecurring:       true,
		RecurrencePattern: &weekly,
		RecurrenceEndDate: &end,
	}

	res, err := svc.CreateAvailability(ctx, providerID, in)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RecurringCreated)
	require.Len(t, res.Occurrences, 3)
	assert.Empty(t, res.Occurrences[0].Skipped)
	assert.NotEmpty(t, res.Occurrences[1].Skipped)
	assert.Nil(t, res.Occurrences[1].AvailabilityID)
	assert.Empty(t, res.Occurrences[2].Skipped)

	// blocker + origin + two derived
	assert.Len(t, repo.windows, 4)
}

func TestListAvailability_RangeAndStatusFilter(t *testing.T) {
	svc, _, providerID := newTestService(t)
	ctx := context.Background()

	today := DateOnly(time.Now().UTC())

	near := validInput()
	near.Date = today.AddDate(0, 0, 5)
	nearRes, err := svc.CreateAvailability(ctx, providerID, near)
	require.NoError(t, err)

	far := validInput()
	far.Date = today.AddDate(0, 0, 40)
	_, err = svc.CreateAvailability(ctx, providerID, far)
	require.NoError(t, err)

	// default range is today through +30 days
	windows, err := svc.ListAvailability(ctx, providerID, ListAvailabilityQuery{})
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, nearRes.Window.ID, windows[0].ID)

	from := today
	to := today.AddDate(0, 0, 60)
	windows, err = svc.ListAvailability(ctx, providerID, ListAvailabilityQuery{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, windows, 2)

	blocked := StatusBlocked
	_, err = svc.UpdateAvailability(ctx, providerID, nearRes.Window.ID, UpdateAvailabilityInput{Status: &blocked})
	require.NoError(t, err)

	windows, err = svc.ListAvailability(ctx, providerID, ListAvailabilityQuery{From: &from, To: &to, Status: &blocked})
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, StatusBlocked, windows[0].Status)
}

func TestUpdateAvailability_NotFoundAndUnauthorized(t *testing.T) {
	svc, _, providerID := newTestService(t)
	ctx := context.Background()

	notes := "note"
	_, err := svc.UpdateAvailability(ctx, providerID, uuid.New(), UpdateAvailabilityInput{Notes: &notes})
	require.ErrorIs(t, err, ErrAvailabilityNotFound)

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	_, err = svc.UpdateAvailability(ctx, uuid.New(), res.Window.ID, UpdateAvailabilityInput{Notes: &notes})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateAvailability_NonTimingPatchKeepsSlots(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	before, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)

	notes := "lunch moved"
	cancelled := StatusCancelled
	upd, err := svc.UpdateAvailability(ctx, providerID, res.Window.ID, UpdateAvailabilityInput{
		Notes:  &notes,
		Status: &cancelled,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, upd.SlotsRegenerated)
	assert.Equal(t, StatusCancelled, upd.Window.Status)
	require.NotNil(t, upd.Window.Notes)
	assert.Equal(t, notes, *upd.Window.Notes)

	after, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateAvailability_TimingPatchRegeneratesAroundBookings(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	in := validInput()
	in.EndTime = "11:00"
	res, err := svc.CreateAvailability(ctx, providerID, in)
	require.NoError(t, err)
	require.Equal(t, 4, res.SlotsCreated)

	// book the 10:00-10:30 slot
	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	patientID := uuid.New()
	booked, err := svc.UpdateSlotStatus(ctx, slots[2].ID, SlotBooked, &patientID)
	require.NoError(t, err)

	hour := 60
	upd, err := svc.UpdateAvailability(ctx, providerID, res.Window.ID, UpdateAvailabilityInput{
		SlotDuration: &hour,
	})
	require.NoError(t, err)

	// fresh slots would be 09:00-10:00 and 10:00-11:00; the second
	// overlaps the booking and is dropped
	assert.Equal(t, 1, upd.SlotsRegenerated)

	remaining, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	assert.Equal(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), remaining[0].StartTime)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), remaining[0].EndTime)
	assert.Equal(t, SlotAvailable, remaining[0].Status)

	assert.Equal(t, booked.ID, remaining[1].ID)
	assert.Equal(t, SlotBooked, remaining[1].Status)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), remaining[1].StartTime)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC), remaining[1].EndTime)
}

// bookDuringDelete books one targeted slot right before delegating the
// delete, standing in for a booking that lands between the regeneration
// scan and the stale-slot delete.
type bookDuringDelete struct {
	*memoryRepo
	target  uuid.UUID
	patient uuid.UUID
}

func (r *bookDuringDelete) DeleteAvailableSlots(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	if s, ok := r.slots[r.target]; ok && s.Status == SlotAvailable {
		s.Status = SlotBooked
		s.PatientID = &r.patient
	}
	r.mu.Unlock()
	return r.memoryRepo.DeleteAvailableSlots(ctx, ids)
}

func TestUpdateAvailability_RegenerationSparesMidFlightBooking(t *testing.T) {
	repo := newMemoryRepo()
	providerID := uuid.New()
	dir := &fakeDirectory{known: map[uuid.UUID]bool{providerID: true}}
	svc := NewService(repo, dir, noopLocker{}, zap.NewNop())
	ctx := context.Background()

	in := validInput()
	in.EndTime = "11:00"
	res, err := svc.CreateAvailability(ctx, providerID, in)
	require.NoError(t, err)
	require.Equal(t, 4, res.SlotsCreated)

	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)

	// the 10:00-10:30 slot gets booked while regeneration is in flight
	racing := &bookDuringDelete{memoryRepo: repo, target: slots[2].ID, patient: uuid.New()}
	racingSvc := NewService(racing, dir, noopLocker{}, zap.NewNop())

	hour := 60
	upd, err := racingSvc.UpdateAvailability(ctx, providerID, res.Window.ID, UpdateAvailabilityInput{
		SlotDuration: &hour,
	})
	require.NoError(t, err)

	// the booked slot survives and blocks the overlapping fresh slot
	booked, err := repo.GetSlotByID(ctx, slots[2].ID)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, booked.Status)

	assert.Equal(t, 1, upd.SlotsRegenerated)
	remaining, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), remaining[0].StartTime)
	assert.Equal(t, SlotAvailable, remaining[0].Status)
	assert.Equal(t, slots[2].ID, remaining[1].ID)
}

func TestUpdateAvailability_TimingPatchScheduleBusy(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	dir := &fakeDirectory{known: map[uuid.UUID]bool{providerID: true}}
	contended := NewService(repo, dir, busyLocker{}, zap.NewNop())

	hour := 60
	_, err = contended.UpdateAvailability(ctx, providerID, res.Window.ID, UpdateAvailabilityInput{
		SlotDuration: &hour,
	})
	require.ErrorIs(t, err, ErrScheduleBusy)

	// nothing changed while the lock was contended
	w, err := repo.GetWindowByID(ctx, res.Window.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, w.SlotDuration)
	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	assert.Len(t, slots, res.SlotsCreated)
}

func TestDeleteAvailability_RefusedWhileBooked(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	patientID := uuid.New()
	_, err = svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, &patientID)
	require.NoError(t, err)

	_, err = svc.DeleteAvailability(ctx, providerID, res.Window.ID)
	var bookedErr *BookedSlotsError
	require.ErrorAs(t, err, &bookedErr)
	assert.Equal(t, 1, bookedErr.BookedCount)

	// nothing was deleted
	_, err = repo.GetWindowByID(ctx, res.Window.ID)
	require.NoError(t, err)
	after, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(slots))
}

func TestDeleteAvailability_CascadesToSlots(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	deleted, err := svc.DeleteAvailability(ctx, providerID, res.Window.ID)
	require.NoError(t, err)
	assert.Equal(t, res.SlotsCreated, deleted)

	_, err = repo.GetWindowByID(ctx, res.Window.ID)
	require.ErrorIs(t, err, ErrAvailabilityNotFound)
	remaining, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDeleteAvailability_Unauthorized(t *testing.T) {
	svc, _, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)

	_, err = svc.DeleteAvailability(ctx, uuid.New(), res.Window.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestListAvailableSlots_OnlyBookable(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	today := DateOnly(time.Now().UTC())
	in := validInput()
	in.Date = today.AddDate(0, 0, 1)
	in.EndTime = "10:00"
	res, err := svc.CreateAvailability(ctx, providerID, in)
	require.NoError(t, err)
	require.Equal(t, 2, res.SlotsCreated)

	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)
	patientID := uuid.New()
	_, err = svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, &patientID)
	require.NoError(t, err)

	available, err := svc.ListAvailableSlots(ctx, providerID, SlotQuery{})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, slots[1].ID, available[0].ID)
	assert.Equal(t, SlotAvailable, available[0].Status)
}

func TestUpdateSlotStatus_Booking(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)
	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)

	patientID := uuid.New()
	booked, err := svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, &patientID)
	require.NoError(t, err)

	assert.Equal(t, SlotBooked, booked.Status)
	require.NotNil(t, booked.PatientID)
	assert.Equal(t, patientID, *booked.PatientID)
	require.NotNil(t, booked.BookedAt)
	require.NotNil(t, booked.BookingReference)
	require.Len(t, *booked.BookingReference, 8)
	for _, c := range *booked.BookingReference {
		assert.Contains(t, bookingRefAlphabet, string(c))
	}

	// double booking is refused
	other := uuid.New()
	_, err = svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, &other)
	require.ErrorIs(t, err, ErrSlotNotBookable)
}

func TestUpdateSlotStatus_Guards(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)
	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)

	_, err = svc.UpdateSlotStatus(ctx, slots[0].ID, SlotStatus("reserved"), nil)
	require.ErrorIs(t, err, ErrUnknownSlotStatus)

	_, err = svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, nil)
	require.ErrorIs(t, err, ErrPatientRequired)

	_, err = svc.UpdateSlotStatus(ctx, uuid.New(), SlotCancelled, nil)
	require.ErrorIs(t, err, ErrSlotNotFound)

	// non-booking transitions need no patient
	cancelled, err := svc.UpdateSlotStatus(ctx, slots[0].ID, SlotCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, SlotCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PatientID)
}

func TestUpdateSlotStatus_CancellingBookedSlotReleasesBooking(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateAvailability(ctx, providerID, validInput())
	require.NoError(t, err)
	slots, err := repo.ListSlots(ctx, res.Window.ID)
	require.NoError(t, err)

	patientID := uuid.New()
	booked, err := svc.UpdateSlotStatus(ctx, slots[0].ID, SlotBooked, &patientID)
	require.NoError(t, err)
	require.NotNil(t, booked.PatientID)

	cancelled, err := svc.UpdateSlotStatus(ctx, slots[0].ID, SlotCancelled, nil)
	require.NoError(t, err)

	assert.Equal(t, SlotCancelled, cancelled.Status)
	assert.Nil(t, cancelled.PatientID)
	assert.Nil(t, cancelled.BookedAt)
	assert.Nil(t, cancelled.BookingReference)
}

func TestUpdateSlotStatus_LockContention(t *testing.T) {
	repo := newMemoryRepo()
	providerID := uuid.New()
	dir := &fakeDirectory{known: map[uuid.UUID]bool{providerID: true}}
	svc := NewService(repo, dir, busyLocker{}, zap.NewNop())

	patientID := uuid.New()
	_, err := svc.UpdateSlotStatus(context.Background(), uuid.New(), SlotBooked, &patientID)
	require.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestExpireStaleSlots(t *testing.T) {
	svc, repo, providerID := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := AppointmentSlot{
		ID:              uuid.New(),
		AvailabilityID:  uuid.New(),
		ProviderID:      providerID,
		StartTime:       now.Add(-2 * time.Hour),
		EndTime:         now.Add(-90 * time.Minute),
		Status:          SlotAvailable,
		AppointmentType: TypeConsultation,
	}
	upcoming := AppointmentSlot{
		ID:              uuid.New(),
		AvailabilityID:  stale.AvailabilityID,
		ProviderID:      providerID,
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(90 * time.Minute),
		Status:          SlotAvailable,
		AppointmentType: TypeConsultation,
	}
	require.NoError(t, repo.InsertSlots(ctx, []AppointmentSlot{stale, upcoming}))

	expired, err := svc.ExpireStaleSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := repo.GetSlotByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, SlotCancelled, got.Status)

	got, err = repo.GetSlotByID(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, got.Status)
}
