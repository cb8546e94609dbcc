package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound     = errors.New("provider not found")
	ErrAvailabilityNotFound = errors.New("availability not found")
	ErrSlotNotFound         = errors.New("slot not found")
)

// ProviderDirectory answers whether a provider is known. The engine only
// consults it when admitting new availability.
type ProviderDirectory interface {
	Exists(ctx context.Context, providerID uuid.UUID) (bool, error)
}

// Repository contains all persistence interactions needed by the service.
// Implementations must make CreateWindowWithSlots atomic (the window and
// its slot batch land together or not at all) and must return windows
// ordered by (date, start_time) and slots ordered by start time.
type Repository interface {
	CreateWindowWithSlots(ctx context.Context, w *AvailabilityWindow, slots []AppointmentSlot) (*AvailabilityWindow, error)
	GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error)
	UpdateWindow(ctx context.Context, w *AvailabilityWindow) (*AvailabilityWindow, error)

	// DeleteWindow removes the window and cascades to its slots.
	DeleteWindow(ctx context.Context, id uuid.UUID) error

	InsertSlots(ctx context.Context, slots []AppointmentSlot) error

	// DeleteAvailableSlots removes the given slots, skipping any whose
	// status is no longer available.
	DeleteAvailableSlots(ctx context.Context, ids []uuid.UUID) error
	ListSlots(ctx context.Context, availabilityID uuid.UUID) ([]AppointmentSlot, error)
	ListAvailableSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error)
	UpdateSlot(ctx context.Context, s *AppointmentSlot) (*AppointmentSlot, error)

	// FindStaleAvailableSlots returns slots still marked available whose
	// end time is already in the past.
	FindStaleAvailableSlots(ctx context.Context, before time.Time) ([]AppointmentSlot, error)
}
