package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSlots decomposes a window into its ordered, non-overlapping
// appointment slots. The walk starts at the window's zoned start instant
// and advances by slot duration plus break duration; a slot is emitted
// only when it fits entirely inside the window. Emitted instants are
// normalized to UTC. A window shorter than one slot yields zero slots,
// which is not an error.
func GenerateSlots(w *AvailabilityWindow) ([]AppointmentSlot, error) {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, w.Timezone)
	}

	startMin, err := parseClock(w.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrInvalidWindow, err)
	}
	endMin, err := parseClock(w.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrInvalidWindow, err)
	}

	y, m, d := w.Date.Date()
	windowStart := time.Date(y, m, d, startMin/60, startMin%60, 0, 0, loc)
	windowEnd := time.Date(y, m, d, endMin/60, endMin%60, 0, 0, loc)

	slotLen := time.Duration(w.SlotDuration) * time.Minute
	step := slotLen + time.Duration(w.BreakDuration)*time.Minute

	var slots []AppointmentSlot
	for cur := windowStart; !cur.Add(slotLen).After(windowEnd); cur = cur.Add(step) {
		slots = append(slots, AppointmentSlot{
			ID:              uuid.New(),
			AvailabilityID:  w.ID,
			ProviderID:      w.ProviderID,
			StartTime:       cur.UTC(),
			EndTime:         cur.Add(slotLen).UTC(),
			Status:          SlotAvailable,
			AppointmentType: w.AppointmentType,
		})
	}

	return slots, nil
}
