package ical

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/logging"
	"github.com/example/shared-calendar/internal/recurrence"
)

// UntitledEvent replaces an empty SUMMARY so imported events pass validation.
const UntitledEvent = "Untitled event"

var (
	// ErrEmptyDocument is returned when the input carries no data.
	ErrEmptyDocument = errors.New("ical: empty document")
	// ErrMalformedDocument wraps parser failures.
	ErrMalformedDocument = errors.New("ical: malformed document")
)

// DecodeOptions controls the expansion of imported events.
type DecodeOptions struct {
	// Window bounds recurring series. Required.
	Window recurrence.Window
	// Location converts imported times. Nil keeps the file's zones.
	Location *time.Location
	// MaxOccurrences caps each series; zero selects recurrence.DefaultMaxOccurrences.
	MaxOccurrences int
}

// Entry is one concrete occurrence read from a document.
type Entry struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Color       string
	Attendees   []string
}

// Report summarises a decode.
type Report struct {
	// Skipped counts VEVENTs that could not be read.
	Skipped int
	// Truncated lists UIDs whose expansion hit the occurrence cap.
	Truncated []string
}

type parsedEvent struct {
	entry     Entry
	allDay    bool
	rrule     string
	exDates   []time.Time
	recurring *time.Time
}

// Decode parses an iCalendar document into occurrences within opts.Window.
// Unreadable VEVENTs are skipped and counted; RECURRENCE-ID instances
// replace the matching occurrence of their series.
func Decode(ctx context.Context, r io.Reader, opts DecodeOptions) ([]Entry, Report, error) {
	logger := decodeLogger(ctx)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Report{}, fmt.Errorf("ical: read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, Report{}, ErrEmptyDocument
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, Report{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var (
		report    Report
		order     []string
		series    = make(map[string]parsedEvent)
		overrides = make(map[string][]recurrence.Override)
		events    = make(map[string][]Entry)
	)
	for _, ve := range cal.Events() {
		parsed, err := parseVEvent(ve)
		if err != nil {
			report.Skipped++
			logger.WarnContext(ctx, "skipping unreadable event", "error", err)
			continue
		}
		uid := parsed.entry.UID
		if parsed.recurring != nil {
			overrides[uid] = append(overrides[uid], recurrence.Override{
				RecurrenceID: *parsed.recurring,
				Start:        parsed.entry.Start,
				End:          parsed.entry.End,
			})
			events[uid] = append(events[uid], parsed.entry)
			continue
		}
		if _, seen := series[uid]; !seen {
			order = append(order, uid)
		}
		series[uid] = parsed
	}

	engine := recurrence.NewEngine(opts.Location, opts.MaxOccurrences)
	var out []Entry
	for _, uid := range order {
		base := series[uid]
		result, err := engine.Expand(recurrence.Series{
			RRule:     base.rrule,
			Start:     base.entry.Start,
			End:       base.entry.End,
			AllDay:    base.allDay,
			ExDates:   base.exDates,
			Overrides: overrides[uid],
		}, opts.Window)
		if errors.Is(err, recurrence.ErrInvalidWindow) {
			return nil, report, err
		}
		if err != nil {
			report.Skipped++
			logger.WarnContext(ctx, "skipping event that cannot be expanded", "uid", uid, "error", err)
			continue
		}
		if result.Truncated {
			report.Truncated = append(report.Truncated, uid)
		}
		for _, occ := range result.Occurrences {
			entry := base.entry
			if occ.Overridden {
				entry = overrideEntry(events[uid], occ, base.entry)
			}
			entry.Start = occ.Start
			entry.End = occ.End
			out = append(out, entry)
		}
	}
	logger.InfoContext(ctx, "ical document decoded", "entries", len(out), "skipped", report.Skipped)
	return out, report, nil
}

// Inputs converts entries into event inputs for calendarID.
func Inputs(entries []Entry, calendarID string) []application.EventInput {
	inputs := make([]application.EventInput, 0, len(entries))
	for _, e := range entries {
		inputs = append(inputs, application.EventInput{
			Title:       e.Title,
			Description: e.Description,
			Location:    e.Location,
			Start:       e.Start,
			End:         e.End,
			Color:       e.Color,
			CalendarID:  calendarID,
			IsShared:    len(e.Attendees) > 0,
			SharedWith:  append([]string(nil), e.Attendees...),
		})
	}
	return inputs
}

func overrideEntry(candidates []Entry, occ recurrence.Occurrence, fallback Entry) Entry {
	for _, c := range candidates {
		if c.Start.Equal(occ.Start) && c.End.Equal(occ.End) {
			return c
		}
	}
	return fallback
}

func parseVEvent(ve *ics.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.entry.UID = uid.Value
	out.entry.Title = UntitledEvent
	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.entry.Title = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ics.ComponentPropertyDescription); p != nil {
		out.entry.Description = p.Value
	}
	if p := ve.GetProperty(ics.ComponentPropertyLocation); p != nil {
		out.entry.Location = p.Value
	}
	if p := ve.GetProperty(propertyColor); p != nil {
		out.entry.Color = p.Value
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyAttendee) {
		if email := strings.TrimPrefix(strings.TrimSpace(p.Value), "mailto:"); email != "" {
			out.entry.Attendees = append(out.entry.Attendees, strings.ToLower(email))
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.entry.Start = start
	if p := ve.GetProperty(ics.ComponentPropertyDtStart); p != nil {
		out.allDay = !strings.Contains(p.Value, "T") || hasParam(p.ICalParameters, "VALUE", "DATE")
	}

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		out.entry.End = end
	case out.allDay:
		out.entry.End = start.AddDate(0, 0, 1)
	default:
		// A timed event without DTEND lasts until its start; give it an hour
		// so it survives the end-after-start rule.
		out.entry.End = start.Add(time.Hour)
	}

	if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(strings.TrimSpace(part), start.Location()); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}
	if p := ve.GetProperty(ics.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseTime(p.Value, start.Location()); err == nil {
			out.recurring = &t
		}
	}
	return out, nil
}

func hasParam(params map[string][]string, key, value string) bool {
	for _, v := range params[key] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// parseTime reads the DATE and DATE-TIME forms used by EXDATE and
// RECURRENCE-ID. Floating values are placed in loc.
func parseTime(value string, loc *time.Location) (time.Time, error) {
	switch {
	case value == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(value, "Z"):
		return time.Parse("20060102T150405Z", value)
	case strings.Contains(value, "T"):
		return time.ParseInLocation("20060102T150405", value, loc)
	default:
		return time.ParseInLocation("20060102", value, loc)
	}
}

func decodeLogger(ctx context.Context) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "ical")
}
