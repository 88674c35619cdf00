package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DayFormat is the canonical date-key layout used across the store and the
// upstream API. Lexicographic order equals chronological order.
const DayFormat = "2006-01-02"

// ParseDay parses a YYYY-MM-DD date key.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse day %q", s)
	}
	return t, nil
}

// FormatDay formats a time as a date key, dropping the time component.
func FormatDay(t time.Time) string {
	return t.Format(DayFormat)
}

// Truncate returns t at midnight UTC.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a date key by n days (n may be negative).
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return FormatDay(t.AddDate(0, 0, n)), nil
}

// Yesterday returns the date key for the day before now.
func Yesterday(now time.Time) string {
	return FormatDay(now.AddDate(0, 0, -1))
}
