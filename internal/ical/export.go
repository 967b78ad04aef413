// Package ical converts calendars to and from iCalendar (RFC 5545) data.
package ical

import (
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/shared-calendar/internal/application"
)

// ProductID identifies this service in exported files.
const ProductID = "-//shared-calendar//EN"

const propertyColor = ics.ComponentProperty("COLOR")

// Export renders calendar and its events as an iCalendar document. Events are
// written in start order; now stamps DTSTAMP.
func Export(calendar application.Calendar, events []application.Event, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(calendar.Name)

	sorted := make([]application.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	for _, e := range sorted {
		ve := cal.AddEvent(e.ID)
		ve.SetDtStampTime(now.UTC())
		if !e.CreatedAt.IsZero() {
			ve.SetCreatedTime(e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt.UTC())
		}
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if e.Color != "" {
			ve.SetProperty(propertyColor, e.Color)
		}
		if e.IsShared {
			for _, email := range e.SharedWith {
				if email = strings.TrimSpace(email); email != "" {
					ve.AddAttendee("mailto:" + email)
				}
			}
		}
	}
	return cal.Serialize()
}
