package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidWindow   = errors.New("invalid availability window")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

type AvailabilityStatus string

const (
	StatusAvailable   AvailabilityStatus = "available"
	StatusBooked      AvailabilityStatus = "booked"
	StatusCancelled   AvailabilityStatus = "cancelled"
	StatusBlocked     AvailabilityStatus = "blocked"
	StatusMaintenance AvailabilityStatus = "maintenance"
)

func (s AvailabilityStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusCancelled, StatusBlocked, StatusMaintenance:
		return true
	}
	return false
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
	SlotBlocked   SlotStatus = "blocked"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotCancelled, SlotBlocked:
		return true
	}
	return false
}

type RecurrencePattern string

const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow_up"
	TypeEmergency    AppointmentType = "emergency"
	TypeTelemedicine AppointmentType = "telemedicine"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeTelemedicine:
		return true
	}
	return false
}

type Location struct {
	Type       string  `json:"type"`
	Address    *string `json:"address,omitempty"`
	RoomNumber *string `json:"room_number,omitempty"`
}

type Pricing struct {
	BaseFee           *float64 `json:"base_fee,omitempty"`
	InsuranceAccepted bool     `json:"insurance_accepted"`
	Currency          string   `json:"currency"`
}

// AvailabilityWindow is one provider-declared open period on a single
// calendar date. StartTime and EndTime are same-day wall-clock values
// ("HH:MM") interpreted in Timezone; slots derived from the window are
// stored as absolute UTC instants.
type AvailabilityWindow struct {
	ID                     uuid.UUID
	ProviderID             uuid.UUID
	Date                   time.Time // calendar date, midnight UTC
	StartTime              string    // wall clock, "HH:MM"
	EndTime                string    // wall clock, "HH:MM"
	Timezone               string    // IANA zone name
	SlotDuration           int       // minutes, > 0
	BreakDuration          int       // minutes, >= 0
	MaxAppointmentsPerSlot int
	CurrentAppointments    int
	AppointmentType        AppointmentType
	Status                 AvailabilityStatus
	IsRecurring            bool
	RecurrencePattern      *RecurrencePattern
	RecurrenceEndDate      *time.Time
	Location               *Location
	Pricing                *Pricing
	Notes                  *string
	SpecialRequirements    []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// AppointmentSlot is one bookable unit derived from a window. Start and
// end are absolute UTC instants; the local wall-clock view is recovered
// by re-applying the owning window's timezone.
type AppointmentSlot struct {
	ID                  uuid.UUID
	AvailabilityID      uuid.UUID
	ProviderID          uuid.UUID
	PatientID           *uuid.UUID
	StartTime           time.Time
	EndTime             time.Time
	Status              SlotStatus
	AppointmentType     AppointmentType
	BookingReference    *string
	PatientNotes        *string
	SpecialInstructions *string
	BookedAt            *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateAvailabilityInput carries the caller-supplied fields for a new
// window. Zero values for slot duration, capacity and appointment type
// fall back to the usual defaults (30 minutes, 1, consultation).
type CreateAvailabilityInput struct {
	Date                   time.Time
	StartTime              string
	EndTime                string
	Timezone               string
	SlotDuration           int
	BreakDuration          int
	MaxAppointmentsPerSlot int
	AppointmentType        AppointmentType
	IsRecurring            bool
	RecurrencePattern      *RecurrencePattern
	RecurrenceEndDate      *time.Time
	Location               *Location
	Pricing                *Pricing
	Notes                  *string
	SpecialRequirements    []string
}

// NewWindow builds a validated window from caller input.
func NewWindow(providerID uuid.UUID, in CreateAvailabilityInput) (*AvailabilityWindow, error) {
	w := &AvailabilityWindow{
		ID:                     uuid.New(),
		ProviderID:             providerID,
		Date:                   DateOnly(in.Date),
		StartTime:              in.StartTime,
		EndTime:                in.EndTime,
		Timezone:               in.Timezone,
		SlotDuration:           in.SlotDuration,
		BreakDuration:          in.BreakDuration,
		MaxAppointmentsPerSlot: in.MaxAppointmentsPerSlot,
		AppointmentType:        in.AppointmentType,
		Status:                 StatusAvailable,
		IsRecurring:            in.IsRecurring,
		RecurrencePattern:      in.RecurrencePattern,
		Location:               in.Location,
		Pricing:                in.Pricing,
		Notes:                  in.Notes,
		SpecialRequirements:    in.SpecialRequirements,
	}
	if in.RecurrenceEndDate != nil {
		d := DateOnly(*in.RecurrenceEndDate)
		w.RecurrenceEndDate = &d
	}

	if w.SlotDuration == 0 {
		w.SlotDuration = 30
	}
	if w.MaxAppointmentsPerSlot == 0 {
		w.MaxAppointmentsPerSlot = 1
	}
	if w.AppointmentType == "" {
		w.AppointmentType = TypeConsultation
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate enforces the field-level constraints of the window model.
func (w *AvailabilityWindow) Validate() error {
	start, err := parseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("%w: start_time: %v", ErrInvalidWindow, err)
	}
	end, err := parseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("%w: end_time: %v", ErrInvalidWindow, err)
	}
	if start >= end {
		return fmt.Errorf("%w: start_time %q must be before end_time %q", ErrInvalidWindow, w.StartTime, w.EndTime)
	}
	if w.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot_duration must be positive", ErrInvalidWindow)
	}
	if w.BreakDuration < 0 {
		return fmt.Errorf("%w: break_duration must not be negative", ErrInvalidWindow)
	}
	if w.MaxAppointmentsPerSlot < 1 {
		return fmt.Errorf("%w: max_appointments_per_slot must be at least 1", ErrInvalidWindow)
	}
	if w.CurrentAppointments < 0 {
		return fmt.Errorf("%w: current_appointments must not be negative", ErrInvalidWindow)
	}
	if w.CurrentAppointments > w.MaxAppointmentsPerSlot {
		return fmt.Errorf("%w: current_appointments exceeds max_appointments_per_slot", ErrInvalidWindow)
	}
	if !w.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidWindow, w.Status)
	}
	if !w.AppointmentType.Valid() {
		return fmt.Errorf("%w: unknown appointment_type %q", ErrInvalidWindow, w.AppointmentType)
	}

	if w.IsRecurring {
		if w.RecurrencePattern == nil {
			return fmt.Errorf("%w: recurrence_pattern is required for recurring availability", ErrInvalidWindow)
		}
		if !w.RecurrencePattern.Valid() {
			return fmt.Errorf("%w: unknown recurrence_pattern %q", ErrInvalidWindow, *w.RecurrencePattern)
		}
		if w.RecurrenceEndDate == nil {
			return fmt.Errorf("%w: recurrence_end_date is required for recurring availability", ErrInvalidWindow)
		}
		if !w.RecurrenceEndDate.After(w.Date) {
			return fmt.Errorf("%w: recurrence_end_date must be after date", ErrInvalidWindow)
		}
	} else {
		if w.RecurrencePattern != nil {
			return fmt.Errorf("%w: recurrence_pattern set on non-recurring availability", ErrInvalidWindow)
		}
		if w.RecurrenceEndDate != nil {
			return fmt.Errorf("%w: recurrence_end_date set on non-recurring availability", ErrInvalidWindow)
		}
	}

	return nil
}

// Clone returns a deep copy, used when deriving recurring instances.
func (w *AvailabilityWindow) Clone() *AvailabilityWindow {
	c := *w
	if w.RecurrencePattern != nil {
		p := *w.RecurrencePattern
		c.RecurrencePattern = &p
	}
	if w.RecurrenceEndDate != nil {
		d := *w.RecurrenceEndDate
		c.RecurrenceEndDate = &d
	}
	if w.Location != nil {
		l := *w.Location
		c.Location = &l
	}
	if w.Pricing != nil {
		p := *w.Pricing
		c.Pricing = &p
	}
	if w.Notes != nil {
		n := *w.Notes
		c.Notes = &n
	}
	if w.SpecialRequirements != nil {
		c.SpecialRequirements = append([]string(nil), w.SpecialRequirements...)
	}
	return &c
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseClock converts an "HH:MM" wall-clock string to minutes since midnight.
func parseClock(v string) (int, error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return hour*60 + minute, nil
}
