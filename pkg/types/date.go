package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a date component is out of range or not a
// number.
var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar day with no time or location attached.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Today returns the current local calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// Validate checks that the date exists on the calendar.
func (d Date) Validate() error {
	if d.Year < 1 || d.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, d.Year)
	}
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidDate, d.Month)
	}
	if n := d.DaysInMonth(); d.Day < 1 || d.Day > n {
		return fmt.Errorf("%w: day %d out of range 1-%d", ErrInvalidDate, d.Day, n)
	}
	return nil
}

// DaysInMonth returns the number of days in d's month.
func (d Date) DaysInMonth() int {
	// day 0 of the next month normalizes to the last day of this month
	return time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Start returns midnight at the beginning of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
}

// End returns midnight at the end of d in loc.
func (d Date) End(loc *time.Location) time.Time {
	return d.Start(loc).AddDate(0, 0, 1)
}

// WithDay returns a copy of d set to the given day of the month.
func (d Date) WithDay(day int) Date {
	d.Day = day
	return d
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Override replaces the components of d with any non-empty year, month or day
// strings and validates the result. Empty strings keep the existing value.
func (d Date) Override(year, month, day string) (Date, error) {
	parts := []struct {
		name  string
		value string
		dest  *int
	}{
		{"year", year, &d.Year},
		{"month", month, &d.Month},
		{"day", day, &d.Day},
	}
	for _, p := range parts {
		v := strings.TrimSpace(p.value)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %s %q is not a number", ErrInvalidDate, p.name, p.value)
		}
		*p.dest = n
	}
	if err := d.Validate(); err != nil {
		return Date{}, err
	}
	return d, nil
}
