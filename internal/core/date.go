package core

import (
	"regexp"
	"time"
)

const (
	DayLayout       = "2006-01-02"
	YearMonthLayout = "2006-01"

	// TimestampLayout is fixed width so that text order matches time order.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

var yearMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// YearMonth is a calendar month in YYYY-MM form.
type YearMonth string

// Clock abstracts time.Now so services can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ParseYearMonth validates s and returns it as a YearMonth.
func ParseYearMonth(s string) (YearMonth, error) {
	if !yearMonthPattern.MatchString(s) {
		return "", ErrInvalidYearMonth
	}
	if _, err := time.Parse(YearMonthLayout, s); err != nil {
		return "", ErrInvalidYearMonth
	}
	return YearMonth(s), nil
}

// YearMonthOf returns the month containing t, in t's location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format(YearMonthLayout))
}

// FirstDay returns the YYYY-MM-01 day of the month.
func (ym YearMonth) FirstDay() string {
	return string(ym) + "-01"
}

// LastDay returns the last calendar day of the month.
func (ym YearMonth) LastDay() string {
	t, err := time.Parse(YearMonthLayout, string(ym))
	if err != nil {
		return string(ym) + "-31"
	}
	return t.AddDate(0, 1, -1).Format(DayLayout)
}

func (ym YearMonth) String() string { return string(ym) }

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// FormatTimestamp renders t in UTC with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts both the fixed-width layout and RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// DaysBetween lists every day from start to end inclusive.
// It returns nil when either bound is malformed or end precedes start.
func DaysBetween(start, end string) []string {
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil || e.Before(s) {
		return nil
	}
	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days
}

// MonthsBetween lists every month touched by the inclusive day range.
func MonthsBetween(start, end string) []YearMonth {
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil || e.Before(s) {
		return nil
	}
	var months []YearMonth
	for m := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(e); m = m.AddDate(0, 1, 0) {
		months = append(months, YearMonthOf(m))
	}
	return months
}
