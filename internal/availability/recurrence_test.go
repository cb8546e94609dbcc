package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccurrenceDates_WeeklyInclusiveEnd(t *testing.T) {
	// anchor Monday 2024-01-01, recurring weekly through 2024-01-22:
	// three derived occurrences, the end date itself included
	dates := occurrenceDates(day(2024, 1, 1), day(2024, 1, 22), RecurrenceWeekly)

	require.Len(t, dates, 3)
	assert.Equal(t, day(2024, 1, 8), dates[0])
	assert.Equal(t, day(2024, 1, 15), dates[1])
	assert.Equal(t, day(2024, 1, 22), dates[2])
}

func TestOccurrenceDates_Daily(t *testing.T) {
	dates := occurrenceDates(day(2024, 3, 1), day(2024, 3, 4), RecurrenceDaily)

	require.Len(t, dates, 3)
	assert.Equal(t, day(2024, 3, 2), dates[0])
	assert.Equal(t, day(2024, 3, 3), dates[1])
	assert.Equal(t, day(2024, 3, 4), dates[2])
}

func TestOccurrenceDates_MonthlyKeepsDayOfMonth(t *testing.T) {
	dates := occurrenceDates(day(2024, 1, 15), day(2024, 4, 15), RecurrenceMonthly)

	require.Len(t, dates, 3)
	assert.Equal(t, day(2024, 2, 15), dates[0])
	assert.Equal(t, day(2024, 3, 15), dates[1])
	assert.Equal(t, day(2024, 4, 15), dates[2])
}

func TestOccurrenceDates_MonthlyShortMonthRollsOver(t *testing.T) {
	// a Jan 31 anchor has no Feb 31: AddDate normalizes to Mar 2 in a
	// leap year, which here falls past the end date
	dates := occurrenceDates(day(2024, 1, 31), day(2024, 2, 29), RecurrenceMonthly)
	assert.Empty(t, dates)
}

func TestOccurrenceDates_EndBeforeFirstOccurrence(t *testing.T) {
	dates := occurrenceDates(day(2024, 1, 1), day(2024, 1, 5), RecurrenceWeekly)
	assert.Empty(t, dates)
}
