// Package recurrence expands RFC 5545 recurrence rules into concrete
// occurrences. It is used when importing iCalendar files, since stored events
// are always single occurrences.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps the expansion of a single series.
const DefaultMaxOccurrences = 500

var (
	// ErrInvalidRule indicates the RRULE text could not be parsed.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
	// ErrInvalidWindow indicates the expansion window is empty or unbounded.
	ErrInvalidWindow = errors.New("recurrence: window requires start before end")
	// ErrInvalidDuration indicates the series' first occurrence does not end after it starts.
	ErrInvalidDuration = errors.New("recurrence: occurrence duration must be positive")
)

// Series is a recurring event as read from a source calendar.
type Series struct {
	// RRule is the rule text without the "RRULE:" prefix. Empty means a
	// single occurrence.
	RRule   string
	Start   time.Time
	End     time.Time
	AllDay  bool
	ExDates []time.Time
	// Overrides replaces individual occurrences, keyed by their original start.
	Overrides []Override
}

// Override moves one occurrence of a series, as RECURRENCE-ID does.
type Override struct {
	RecurrenceID time.Time
	Start        time.Time
	End          time.Time
}

// Window bounds an expansion. An occurrence is kept when it overlaps
// [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Occurrence is one expanded instance of a series.
type Occurrence struct {
	Start time.Time
	End   time.Time
	// Overridden reports whether an Override replaced the computed times.
	Overridden bool
}

// Result is the outcome of an expansion.
type Result struct {
	Occurrences []Occurrence
	// Truncated reports that MaxOccurrences cut the expansion short.
	Truncated bool
}

// Engine expands series into occurrences.
type Engine struct {
	location       *time.Location
	maxOccurrences int
}

// NewEngine constructs an Engine that converts results to loc. A nil loc
// keeps each occurrence in its series' own location; max <= 0 selects
// DefaultMaxOccurrences.
func NewEngine(loc *time.Location, max int) *Engine {
	if max <= 0 {
		max = DefaultMaxOccurrences
	}
	return &Engine{location: loc, maxOccurrences: max}
}

// Expand produces the occurrences of series overlapping window, ordered by
// start. Occurrences keep the duration of the first one; all-day series span
// whole days in the series' location.
func (e *Engine) Expand(series Series, window Window) (Result, error) {
	if window.Start.IsZero() || window.End.IsZero() || !window.End.After(window.Start) {
		return Result{}, ErrInvalidWindow
	}
	if !series.End.After(series.Start) {
		return Result{}, ErrInvalidDuration
	}

	if strings.TrimSpace(series.RRule) == "" {
		return e.single(series, window), nil
	}

	rule, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(series.RRule), "RRULE:"))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	rule.DTStart(series.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range series.ExDates {
		set.ExDate(ex.In(series.Start.Location()))
	}

	duration := series.End.Sub(series.Start)
	loc := series.Start.Location()
	// Between is inclusive on both ends; widen the lower bound by one
	// duration so occurrences already running at window.Start are kept.
	starts := set.Between(window.Start.Add(-duration).In(loc), window.End.In(loc), true)

	result := Result{}
	for _, start := range starts {
		occ := Occurrence{Start: start, End: start.Add(duration)}
		if series.AllDay {
			day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
			days := int(duration.Hours()/24 + 0.5)
			if days < 1 {
				days = 1
			}
			occ = Occurrence{Start: day, End: day.AddDate(0, 0, days)}
		}
		if ov, ok := findOverride(series.Overrides, start); ok {
			occ = Occurrence{Start: ov.Start, End: ov.End, Overridden: true}
		}
		if !overlaps(occ, window) {
			continue
		}
		if len(result.Occurrences) == e.maxOccurrences {
			result.Truncated = true
			break
		}
		result.Occurrences = append(result.Occurrences, e.localize(occ))
	}
	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result, nil
}

func (e *Engine) single(series Series, window Window) Result {
	occ := Occurrence{Start: series.Start, End: series.End}
	if !overlaps(occ, window) {
		return Result{}
	}
	return Result{Occurrences: []Occurrence{e.localize(occ)}}
}

func (e *Engine) localize(occ Occurrence) Occurrence {
	if e.location == nil {
		return occ
	}
	occ.Start = occ.Start.In(e.location)
	occ.End = occ.End.In(e.location)
	return occ
}

func findOverride(overrides []Override, start time.Time) (Override, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return Override{}, false
}

func overlaps(occ Occurrence, window Window) bool {
	return occ.Start.Before(window.End) && occ.End.After(window.Start)
}
