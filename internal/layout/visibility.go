// Package layout decides which events appear on a rendered day and where they
// sit inside an hour grid.
//
// Callers are expected to pass events whose Start is strictly before End, the
// event services reject anything else, and to convert both instants into the
// display location beforehand.
package layout

import (
	"time"

	"github.com/example/shared-calendar/internal/timerange"
)

// Event is the subset of an event needed for day placement.
type Event struct {
	ID         string
	CalendarID string
	Title      string
	Color      string
	Start      time.Time
	End        time.Time
}

// Segment identifies which part of an event a given day shows.
type Segment string

const (
	// SegmentNone means the event does not touch the day.
	SegmentNone Segment = ""
	// SegmentSingle is an event that starts and ends on the day.
	SegmentSingle Segment = "single"
	// SegmentStart is the first day of a multi-day event.
	SegmentStart Segment = "start"
	// SegmentEnd is the last day of a multi-day event.
	SegmentEnd Segment = "end"
	// SegmentMiddle is any day strictly between the first and last.
	SegmentMiddle Segment = "middle"
)

const (
	startsSuffix    = " (starts)"
	endsSuffix      = " (ends)"
	continuesSuffix = " (cont.)"
)

// DayEvent is an event annotated for one specific day.
type DayEvent struct {
	Event
	Day          time.Time
	Segment      Segment
	DisplayTitle string
}

func firstDay(e Event) time.Time {
	return timerange.DateOnly(e.Start)
}

// lastDay is the date of End, except that an event ending exactly at midnight
// finishes on the previous day so it never leaves an empty segment behind.
func lastDay(e Event) time.Time {
	end := timerange.DateOnly(e.End)
	if end.Equal(e.End) && e.End.After(e.Start) {
		return end.AddDate(0, 0, -1)
	}
	return end
}

// SegmentFor classifies day relative to the event span.
func SegmentFor(e Event, day time.Time) Segment {
	d := timerange.DateOnly(day.In(e.Start.Location()))
	first, last := firstDay(e), lastDay(e)

	isFirst := d.Equal(first)
	isLast := d.Equal(last)
	switch {
	case isFirst && isLast:
		return SegmentSingle
	case isFirst:
		return SegmentStart
	case isLast:
		return SegmentEnd
	case d.After(first) && d.Before(last):
		return SegmentMiddle
	default:
		return SegmentNone
	}
}

// IsVisible reports whether the event shows up on day. Only dates are
// compared; time of day is ignored. An event ending exactly at local midnight
// is not visible on its end date.
func IsVisible(e Event, day time.Time) bool {
	return SegmentFor(e, day) != SegmentNone
}

// Label returns the title as it should read on day.
func Label(e Event, day time.Time) string {
	return labelFor(e.Title, SegmentFor(e, day))
}

// VisibleEvents keeps the events that touch day, in input order, and labels
// each one for that day.
func VisibleEvents(events []Event, day time.Time) []DayEvent {
	var out []DayEvent
	for _, e := range events {
		segment := SegmentFor(e, day)
		if segment == SegmentNone {
			continue
		}
		out = append(out, DayEvent{
			Event:        e,
			Day:          timerange.DateOnly(day),
			Segment:      segment,
			DisplayTitle: labelFor(e.Title, segment),
		})
	}
	return out
}

func labelFor(title string, segment Segment) string {
	switch segment {
	case SegmentStart:
		return title + startsSuffix
	case SegmentEnd:
		return title + endsSuffix
	case SegmentMiddle:
		return title + continuesSuffix
	default:
		return title
	}
}
