package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for whole-day dates.
const DateLayout = "2006-01-02"

// Epoch is the earliest date the scheduler considers. Watermarks start here.
var Epoch = Date(1970, time.January, 1)

// InvalidDateError is returned when a date string cannot be parsed.
type InvalidDateError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid date %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid date for %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// Date builds a whole-day value at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize strips the time-of-day and location from t.
// Two normalized values for the same calendar day compare equal with ==.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string. field names the input in the error.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &InvalidDateError{Field: field, Value: value, Err: err}
	}
	return Normalize(t), nil
}

// Format renders a whole-day date, or "" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// AddDays moves t by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return Normalize(t).AddDate(0, 0, n)
}

// Max returns the later of a and b.
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Normalize(b).Sub(Normalize(a)).Hours() / 24)
}

// Overlaps reports whether two inclusive whole-day ranges share a day.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
