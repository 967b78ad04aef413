// Package timerange provides the calendar arithmetic shared by the grid views:
// day, week and month boundaries plus hour offsets used for vertical layout.
//
// Every function works in the location of the value it is given, so callers
// convert instants to the display zone first. Ranges are half-open: End is the
// first instant that is no longer part of the range.
package timerange

import (
	"strings"
	"time"
)

// HoursPerDay is the height of a full day column in hour units.
const HoursPerDay = 24.0

// Range is a half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Overlaps reports whether the interval [start, end) intersects the range.
func (r Range) Overlaps(start, end time.Time) bool {
	return start.Before(r.End) && end.After(r.Start)
}

// DateOnly truncates t to local midnight of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayBounds returns the calendar day containing t.
func DayBounds(t time.Time) Range {
	start := DateOnly(t)
	return Range{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekBounds returns the seven day window containing t that begins on weekStartsOn.
func WeekBounds(t time.Time, weekStartsOn time.Weekday) Range {
	start := DateOnly(t)
	offset := (int(start.Weekday()) - int(weekStartsOn) + 7) % 7
	start = start.AddDate(0, 0, -offset)
	return Range{Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthBounds returns the calendar month containing t.
func MonthBounds(t time.Time) Range {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Range{Start: start, End: start.AddDate(0, 1, 0)}
}

// MonthGridBounds spans from the start of the week containing the first of the
// month through the end of the week containing its last day. The result always
// covers whole weeks, five or six rows for any month.
func MonthGridBounds(t time.Time, weekStartsOn time.Weekday) Range {
	month := MonthBounds(t)
	first := WeekBounds(month.Start, weekStartsOn)
	last := WeekBounds(month.End.AddDate(0, 0, -1), weekStartsOn)
	return Range{Start: first.Start, End: last.End}
}

// HourOffset returns the hours elapsed since local midnight, with everything
// below the hour, down to nanoseconds, as the fractional part.
func HourOffset(t time.Time) float64 {
	below := time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
	return float64(t.Hour()) + below.Hours()
}

// Days lists the local midnight of every calendar day in r.
func Days(r Range) []time.Time {
	if !r.Start.Before(r.End) {
		return nil
	}
	var days []time.Time
	for day := DateOnly(r.Start); day.Before(r.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// ParseWeekday maps an English weekday name to its time.Weekday value.
func ParseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) {
			return d, true
		}
	}
	return time.Sunday, false
}
