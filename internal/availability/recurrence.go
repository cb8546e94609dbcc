package availability

import "time"

// occurrenceDates lists the future occurrence dates for a recurring
// window: one per period after the anchor date, up to and including the
// recurrence end date. Dates are computed from the anchor rather than
// from the previous occurrence so that monthly recurrence keeps the
// anchor's day-of-month (with Go's calendar rollover for short months).
func occurrenceDates(anchor, end time.Time, pattern RecurrencePattern) []time.Time {
	var dates []time.Time
	for n := 1; ; n++ {
		var next time.Time
		switch pattern {
		case RecurrenceDaily:
			next = anchor.AddDate(0, 0, n)
		case RecurrenceWeekly:
			next = anchor.AddDate(0, 0, 7*n)
		case RecurrenceMonthly:
			next = anchor.AddDate(0, n, 0)
		default:
			return dates
		}
		if next.After(end) {
			return dates
		}
		dates = append(dates, next)
	}
}
