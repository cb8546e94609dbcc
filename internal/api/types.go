package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthfirst/availability-engine/internal/availability"
)

type CreateAvailabilityRequest struct {
	Date                   string                 `json:"date"` // YYYY-MM-DD
	StartTime              string                 `json:"start_time"`
	EndTime                string                 `json:"end_time"`
	Timezone               string                 `json:"timezone"`
	SlotDuration           int                    `json:"slot_duration"`
	BreakDuration          int                    `json:"break_duration"`
	MaxAppointmentsPerSlot int                    `json:"max_appointments_per_slot"`
	AppointmentType        string                 `json:"appointment_type"`
	IsRecurring            bool                   `json:"is_recurring"`
	RecurrencePattern      *string                `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate      *string                `json:"recurrence_end_date,omitempty"` // YYYY-MM-DD
	Location               *availability.Location `json:"location,omitempty"`
	Pricing                *availability.Pricing  `json:"pricing,omitempty"`
	Notes                  *string                `json:"notes,omitempty"`
	SpecialRequirements    []string               `json:"special_requirements,omitempty"`
}

type UpdateAvailabilityRequest struct {
	StartTime              *string                `json:"start_time,omitempty"`
	EndTime                *string                `json:"end_time,omitempty"`
	Timezone               *string                `json:"timezone,omitempty"`
	SlotDuration           *int                   `json:"slot_duration,omitempty"`
	BreakDuration          *int                   `json:"break_duration,omitempty"`
	MaxAppointmentsPerSlot *int                   `json:"max_appointments_per_slot,omitempty"`
	AppointmentType        *string                `json:"appointment_type,omitempty"`
	Status                 *string                `json:"status,omitempty"`
	Location               *availability.Location `json:"location,omitempty"`
	Pricing                *availability.Pricing  `json:"pricing,omitempty"`
	Notes                  *string                `json:"notes,omitempty"`
	SpecialRequirements    []string               `json:"special_requirements,omitempty"`
}

type UpdateSlotStatusRequest struct {
	Status    string  `json:"status"`
	PatientID *string `json:"patient_id,omitempty"`
}

type WindowResponse struct {
	ID                     uuid.UUID              `json:"id"`
	ProviderID             uuid.UUID              `json:"provider_id"`
	Date                   string                 `json:"date"`
	StartTime              string                 `json:"start_time"`
	EndTime                string                 `json:"end_time"`
	Timezone               string                 `json:"timezone"`
	SlotDuration           int                    `json:"slot_duration"`
	BreakDuration          int                    `json:"break_duration"`
	MaxAppointmentsPerSlot int                    `json:"max_appointments_per_slot"`
	CurrentAppointments    int                    `json:"current_appointments"`
	AppointmentType        string                 `json:"appointment_type"`
	Status                 string                 `json:"status"`
	IsRecurring            bool                   `json:"is_recurring"`
	RecurrencePattern      *string                `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate      *string                `json:"recurrence_end_date,omitempty"`
	Location               *availability.Location `json:"location,omitempty"`
	Pricing                *availability.Pricing  `json:"pricing,omitempty"`
	Notes                  *string                `json:"notes,omitempty"`
	SpecialRequirements    []string               `json:"special_requirements,omitempty"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

type SlotResponse struct {
	ID               uuid.UUID  `json:"id"`
	AvailabilityID   uuid.UUID  `json:"availability_id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	PatientID        *uuid.UUID `json:"patient_id,omitempty"`
	StartTime        time.Time  `json:"slot_start_time"`
	EndTime          time.Time  `json:"slot_end_time"`
	Status           string     `json:"status"`
	AppointmentType  string     `json:"appointment_type"`
	BookingReference *string    `json:"booking_reference,omitempty"`
	BookedAt         *time.Time `json:"booked_at,omitempty"`
}

type OccurrenceResponse struct {
	Date           string     `json:"date"`
	AvailabilityID *uuid.UUID `json:"availability_id,omitempty"`
	SlotsCreated   int        `json:"slots_created"`
	Skipped        string     `json:"skipped,omitempty"`
}

type CreateAvailabilityResponse struct {
	Availability     WindowResponse       `json:"availability"`
	SlotsCreated     int                  `json:"slots_created"`
	RecurringCreated int                  `json:"recurring_created"`
	Occurrences      []OccurrenceResponse `json:"occurrences,omitempty"`
}

type ListAvailabilityResponse struct {
	Availability []WindowResponse `json:"availability"`
	TotalCount   int              `json:"total_count"`
}

type UpdateAvailabilityResponse struct {
	Availability     WindowResponse `json:"availability"`
	SlotsRegenerated int            `json:"slots_regenerated"`
}

type DeleteAvailabilityResponse struct {
	DeletedSlotsCount int `json:"deleted_slots_count"`
}

type ListSlotsResponse struct {
	Slots      []SlotResponse `json:"slots"`
	TotalCount int            `json:"total_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toWindowResponse(w *availability.AvailabilityWindow) WindowResponse {
	resp := WindowResponse{
		ID:                     w.ID,
		ProviderID:             w.ProviderID,
		Date:                   w.Date.Format("2006-01-02"),
		StartTime:              w.StartTime,
		EndTime:                w.EndTime,
		Timezone:               w.Timezone,
		SlotDuration:           w.SlotDuration,
		BreakDuration:          w.BreakDuration,
		MaxAppointmentsPerSlot: w.MaxAppointmentsPerSlot,
		CurrentAppointments:    w.CurrentAppointments,
		AppointmentType:        string(w.AppointmentType),
		Status:                 string(w.Status),
		IsRecurring:            w.IsRecurring,
		Location:               w.Location,
		Pricing:                w.Pricing,
		Notes:                  w.Notes,
		SpecialRequirements:    w.SpecialRequirements,
		CreatedAt:              w.CreatedAt,
		UpdatedAt:              w.UpdatedAt,
	}
	if w.RecurrencePattern != nil {
		p := string(*w.RecurrencePattern)
		resp.RecurrencePattern = &p
	}
	if w.RecurrenceEndDate != nil {
		d := w.RecurrenceEndDate.Format("2006-01-02")
		resp.RecurrenceEndDate = &d
	}
	return resp
}

func toSlotResponse(s *availability.AppointmentSlot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		AvailabilityID:   s.AvailabilityID,
		ProviderID:       s.ProviderID,
		PatientID:        s.PatientID,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Status:           string(s.Status),
		AppointmentType:  string(s.AppointmentType),
		BookingReference: s.BookingReference,
		BookedAt:         s.BookedAt,
	}
}
