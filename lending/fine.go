package lending

import (
	"math"
	"time"
)

// FinePerDay is the default fine charged for each calendar day a copy is returned late.
const FinePerDay = 0.5

const hoursPerDay = 24

// DateOf truncates t to its calendar date, expressed as midnight UTC.
// The calendar date is taken in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from `from` to `to`, negative if `to` lies before `from`.
func DaysBetween(from, to time.Time) int {
	return int(math.Round(DateOf(to).Sub(DateOf(from)).Hours() / hoursPerDay))
}

// DueDateFor returns the due date of a loan starting on borrowDate for loanDays days.
func DueDateFor(borrowDate time.Time, loanDays int) time.Time {
	return DateOf(borrowDate).AddDate(0, 0, loanDays)
}

// ComputeFine returns perDay times the number of calendar days returned lies after due, or zero.
// Returning on the due date is not late.
func ComputeFine(due, returned time.Time, perDay float64) float64 {
	daysLate := DaysBetween(due, returned)
	if daysLate <= 0 {
		return 0
	}

	return float64(daysLate) * perDay
}

// ToCents converts a fine amount to integer cents, rounding half away from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts integer cents back to a fine amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
