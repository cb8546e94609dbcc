package availability

// Overlaps reports whether the half-open minute ranges [aStart, aEnd)
// and [bStart, bEnd) intersect. Touching endpoints do not conflict.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// firstConflict scans existing windows in stored order and returns the
// first whose wall-clock range overlaps the candidate's, or nil when the
// candidate is admissible. Every window is checked; malformed stored
// times surface as errors rather than being skipped.
func firstConflict(candidate *AvailabilityWindow, existing []AvailabilityWindow) (*AvailabilityWindow, error) {
	cStart, cEnd, err := clockRange(candidate)
	if err != nil {
		return nil, err
	}

	for i := range existing {
		eStart, eEnd, err := clockRange(&existing[i])
		if err != nil {
			return nil, err
		}
		if Overlaps(cStart, cEnd, eStart, eEnd) {
			return &existing[i], nil
		}
	}
	return nil, nil
}

func clockRange(w *AvailabilityWindow) (start, end int, err error) {
	start, err = parseClock(w.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = parseClock(w.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
