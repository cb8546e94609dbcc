package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthfirst/availability-engine/internal/availability"
	redisclient "github.com/healthfirst/availability-engine/internal/redis"
)

func createAvailabilityHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "providerID", "provider_id")
		if !ok {
			return
		}

		var req CreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := toCreateInput(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		result, err := svc.CreateAvailability(r.Context(), providerID, in)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := CreateAvailabilityResponse{
			Availability:     toWindowResponse(result.Window),
			SlotsCreated:     result.SlotsCreated,
			RecurringCreated: result.RecurringCreated,
		}
		for _, o := range result.Occurrences {
			resp.Occurrences = append(resp.Occurrences, OccurrenceResponse{
				Date:           o.Date.Format("2006-01-02"),
				AvailabilityID: o.AvailabilityID,
				SlotsCreated:   o.SlotsCreated,
				Skipped:        o.Skipped,
			})
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func listAvailabilityHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "providerID", "provider_id")
		if !ok {
			return
		}

		q := availability.ListAvailabilityQuery{}
		var err error
		if q.From, err = queryDate(r, "start_date"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", err.Error())
			return
		}
		if q.To, err = queryDate(r, "end_date"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", err.Error())
			return
		}
		if v := r.URL.Query().Get("status"); v != "" {
			status := availability.AvailabilityStatus(v)
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown availability status")
				return
			}
			q.Status = &status
		}

		windows, err := svc.ListAvailability(r.Context(), providerID, q)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListAvailabilityResponse{TotalCount: len(windows)}
		for i := range windows {
			resp.Availability = append(resp.Availability, toWindowResponse(&windows[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateAvailabilityHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "providerID", "provider_id")
		if !ok {
			return
		}
		availabilityID, ok := pathUUID(w, r, "id", "availability_id")
		if !ok {
			return
		}

		var req UpdateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := availability.UpdateAvailabilityInput{
			StartTime:              req.StartTime,
			EndTime:                req.EndTime,
			Timezone:               req.Timezone,
			SlotDuration:           req.SlotDuration,
			BreakDuration:          req.BreakDuration,
			MaxAppointmentsPerSlot: req.MaxAppointmentsPerSlot,
			Location:               req.Location,
			Pricing:                req.Pricing,
			Notes:                  req.Notes,
			SpecialRequirements:    req.SpecialRequirements,
		}
		if req.AppointmentType != nil {
			t := availability.AppointmentType(*req.AppointmentType)
			in.AppointmentType = &t
		}
		if req.Status != nil {
			s := availability.AvailabilityStatus(*req.Status)
			in.Status = &s
		}

		result, err := svc.UpdateAvailability(r.Context(), providerID, availabilityID, in)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, UpdateAvailabilityResponse{
			Availability:     toWindowResponse(result.Window),
			SlotsRegenerated: result.SlotsRegenerated,
		})
	}
}

func deleteAvailabilityHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "providerID", "provider_id")
		if !ok {
			return
		}
		availabilityID, ok := pathUUID(w, r, "id", "availability_id")
		if !ok {
			return
		}

		deleted, err := svc.DeleteAvailability(r.Context(), providerID, availabilityID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteAvailabilityResponse{DeletedSlotsCount: deleted})
	}
}

func listAvailableSlotsHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "providerID", "provider_id")
		if !ok {
			return
		}

		q := availability.SlotQuery{}
		var err error
		if q.From, err = queryDate(r, "start_date"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", err.Error())
			return
		}
		if q.To, err = queryDate(r, "end_date"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", err.Error())
			return
		}

		slots, err := svc.ListAvailableSlots(r.Context(), providerID, q)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListSlotsResponse{TotalCount: len(slots)}
		for i := range slots {
			resp.Slots = append(resp.Slots, toSlotResponse(&slots[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateSlotStatusHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := pathUUID(w, r, "id", "slot_id")
		if !ok {
			return
		}

		var req UpdateSlotStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var patientID *uuid.UUID
		if req.PatientID != nil {
			id, err := uuid.Parse(*req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = &id
		}

		slot, err := svc.UpdateSlotStatus(r.Context(), slotID, availability.SlotStatus(req.Status), patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var conflict *availability.ConflictError
	var booked *availability.BookedSlotsError

	switch {
	case errors.Is(err, availability.ErrInvalidWindow),
		errors.Is(err, availability.ErrUnknownSlotStatus),
		errors.Is(err, availability.ErrPatientRequired):
		writeError(w, http.StatusUnprocessableEntity, "invalid_availability", err.Error())
	case errors.Is(err, availability.ErrInvalidTimezone):
		writeError(w, http.StatusUnprocessableEntity, "invalid_timezone", err.Error())
	case errors.Is(err, availability.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, availability.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, availability.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, availability.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "time_conflict", err.Error())
	case errors.As(err, &booked):
		writeError(w, http.StatusConflict, "has_booked_appointments", err.Error())
	case errors.Is(err, availability.ErrSlotNotBookable):
		writeError(w, http.StatusConflict, "slot_not_bookable", err.Error())
	case errors.Is(err, availability.ErrScheduleBusy),
		errors.Is(err, availability.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "another change is in flight, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toCreateInput(req CreateAvailabilityRequest) (availability.CreateAvailabilityInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return availability.CreateAvailabilityInput{}, errors.New("date must be YYYY-MM-DD")
	}

	in := availability.CreateAvailabilityInput{
		Date:                   date,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		Timezone:               req.Timezone,
		SlotDuration:           req.SlotDuration,
		BreakDuration:          req.BreakDuration,
		MaxAppointmentsPerSlot: req.MaxAppointmentsPerSlot,
		AppointmentType:        availability.AppointmentType(req.AppointmentType),
		IsRecurring:            req.IsRecurring,
		Location:               req.Location,
		Pricing:                req.Pricing,
		Notes:                  req.Notes,
		SpecialRequirements:    req.SpecialRequirements,
	}

	if req.RecurrencePattern != nil {
		p := availability.RecurrencePattern(*req.RecurrencePattern)
		in.RecurrencePattern = &p
	}
	if req.RecurrenceEndDate != nil {
		d, err := time.Parse("2006-01-02", *req.RecurrenceEndDate)
		if err != nil {
			return availability.CreateAvailabilityInput{}, errors.New("recurrence_end_date must be YYYY-MM-DD")
		}
		in.RecurrenceEndDate = &d
	}

	return in, nil
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+label, label+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, errors.New(key + " must be YYYY-MM-DD")
	}
	return &d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
