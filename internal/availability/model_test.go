package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() CreateAvailabilityInput {
	return CreateAvailabilityInput{
		Date:      day(2024, 6, 3),
		StartTime: "09:00",
		EndTime:   "17:00",
		Timezone:  "UTC",
	}
}

func TestNewWindow_Defaults(t *testing.T) {
	providerID := uuid.New()

	w, err := NewWindow(providerID, validInput())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, w.ID)
	assert.Equal(t, providerID, w.ProviderID)
	assert.Equal(t, 30, w.SlotDuration)
	assert.Equal(t, 0, w.BreakDuration)
	assert.Equal(t, 1, w.MaxAppointmentsPerSlot)
	assert.Equal(t, TypeConsultation, w.AppointmentType)
	assert.Equal(t, StatusAvailable, w.Status)
}

func TestNewWindow_TruncatesDates(t *testing.T) {
	in := validInput()
	in.Date = time.Date(2024, 6, 3, 15, 42, 7, 0, time.UTC)
	in.IsRecurring = true
	pattern := RecurrenceWeekly
	in.RecurrencePattern = &pattern
	end := time.Date(2024, 6, 24, 8, 1, 0, 0, time.UTC)
	in.RecurrenceEndDate = &end

	w, err := NewWindow(uuid.New(), in)
	require.NoError(t, err)

	assert.Equal(t, day(2024, 6, 3), w.Date)
	require.NotNil(t, w.RecurrenceEndDate)
	assert.Equal(t, day(2024, 6, 24), *w.RecurrenceEndDate)
}

func TestNewWindow_Validation(t *testing.T) {
	weekly := RecurrenceWeekly
	badPattern := RecurrencePattern("fortnightly")
	endDate := day(2024, 6, 24)
	pastEnd := day(2024, 6, 1)

	cases := []struct {
		name   string
		mutate func(*CreateAvailabilityInput)
	}{
		{"start after end", func(in *CreateAvailabilityInput) {
			in.StartTime = "17:00"
			in.EndTime = "09:00"
		}},
		{"start equals end", func(in *CreateAvailabilityInput) {
			in.EndTime = "09:00"
		}},
		{"malformed start", func(in *CreateAvailabilityInput) {
			in.StartTime = "9am"
		}},
		{"hour out of range", func(in *CreateAvailabilityInput) {
			in.StartTime = "25:00"
		}},
		{"minute out of range", func(in *CreateAvailabilityInput) {
			in.EndTime = "17:75"
		}},
		{"negative slot duration", func(in *CreateAvailabilityInput) {
			in.SlotDuration = -30
		}},
		{"negative break duration", func(in *CreateAvailabilityInput) {
			in.BreakDuration = -5
		}},
		{"negative capacity", func(in *CreateAvailabilityInput) {
			in.MaxAppointmentsPerSlot = -1
		}},
		{"unknown appointment type", func(in *CreateAvailabilityInput) {
			in.AppointmentType = "house_call"
		}},
		{"recurring without pattern", func(in *CreateAvailabilityInput) {
			in.IsRecurring = true
			in.RecurrenceEndDate = &endDate
		}},
		{"recurring with unknown pattern", func(in *CreateAvailabilityInput) {
			in.IsRecurring = true
			in.RecurrencePattern = &badPattern
			in.RecurrenceEndDate = &endDate
		}},
		{"recurring without end date", func(in *CreateAvailabilityInput) {
			in.IsRecurring = true
			in.RecurrencePattern = &weekly
		}},
		{"recurrence end not after date", func(in *CreateAvailabilityInput) {
			in.IsRecurring = true
			in.RecurrencePattern = &weekly
			in.RecurrenceEndDate = &pastEnd
		}},
		{"pattern on non-recurring", func(in *CreateAvailabilityInput) {
			in.RecurrencePattern = &weekly
		}},
		{"end date on non-recurring", func(in *CreateAvailabilityInput) {
			in.RecurrenceEndDate = &endDate
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			_, err := NewWindow(uuid.New(), in)
			require.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestValidate_CurrentAppointmentsBoundedByCapacity(t *testing.T) {
	w := testWindow(t, func(w *AvailabilityWindow) {
		w.MaxAppointmentsPerSlot = 1
		w.CurrentAppointments = 2
	})
	require.ErrorIs(t, w.Validate(), ErrInvalidWindow)

	w = testWindow(t, func(w *AvailabilityWindow) {
		w.MaxAppointmentsPerSlot = 2
		w.CurrentAppointments = 2
	})
	require.NoError(t, w.Validate())
}

func TestClone_IsDeep(t *testing.T) {
	pattern := RecurrenceDaily
	end := day(2024, 6, 10)
	notes := "bring referral"
	addr := "12 Main St"
	w := testWindow(t, func(w *AvailabilityWindow) {
		w.IsRecurring = true
		w.RecurrencePattern = &pattern
		w.RecurrenceEndDate = &end
		w.Notes = &notes
		w.Location = &Location{Type: "clinic", Address: &addr}
		w.SpecialRequirements = []string{"wheelchair access"}
	})

	c := w.Clone()
	*c.RecurrencePattern = RecurrenceMonthly
	*c.RecurrenceEndDate = day(2030, 1, 1)
	*c.Notes = "changed"
	c.Location.Type = "telehealth"
	c.SpecialRequirements[0] = "changed"

	assert.Equal(t, RecurrenceDaily, *w.RecurrencePattern)
	assert.Equal(t, end, *w.RecurrenceEndDate)
	assert.Equal(t, "bring referral", *w.Notes)
	assert.Equal(t, "clinic", w.Location.Type)
	assert.Equal(t, "wheelchair access", w.SpecialRequirements[0])
}

func TestParseClock(t *testing.T) {
	min, err := parseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, min)

	min, err = parseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, min)

	min, err = parseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23*60+59, min)

	for _, bad := range []string{"", "0930", "24:00", "12:60", "aa:bb", "-1:30"} {
		_, err := parseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
