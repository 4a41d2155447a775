package core

import (
	"fmt"
	"time"
)

// monthLayout is the canonical month identifier format used as ledger key.
const monthLayout = "2006-01"

// Month identifies a calendar month independent of any time zone.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, as seen in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// PreviousMonth returns the last completed month relative to now.
// January rolls back to December of the previous year.
func PreviousMonth(now time.Time) Month {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return MonthOf(first.AddDate(0, -1, 0))
}

// ParseMonth parses a "YYYY-MM" identifier.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// String returns the zero-padded "YYYY-MM" identifier.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Validate checks the month number and a sane year range.
func (m Month) Validate() error {
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	if m.Year < 1 || m.Year > 9999 {
		return ErrInvalidMonth
	}
	return nil
}

// Range returns the half-open interval [start, end) covering the month in loc:
// start is the first instant of the month, end the first instant of the next one.
func (m Month) Range(loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start = time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// InRange reports whether t falls inside the half-open range [start, end).
func InRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}
