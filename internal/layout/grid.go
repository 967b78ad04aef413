package layout

import (
	"sort"
	"time"

	"github.com/example/shared-calendar/internal/timerange"
)

// DefaultMonthCellLimit is how many events a month cell lists before it
// collapses the rest into an overflow count.
const DefaultMonthCellLimit = 3

// MonthCell is one day of the month grid.
type MonthCell struct {
	Date     time.Time
	InMonth  bool
	IsToday  bool
	Events   []DayEvent
	Overflow int
}

// MonthGrid is the 5 or 6 row month view.
type MonthGrid struct {
	Range timerange.Range
	Weeks [][]MonthCell
}

// PlacedEvent is an event positioned inside a day column.
type PlacedEvent struct {
	DayEvent
	Block Block
}

// DayColumn is one day of the week or day hour grid.
type DayColumn struct {
	Date    time.Time
	IsToday bool
	Events  []PlacedEvent
}

// BuildMonthGrid lays events out over the month containing ref. perCell caps
// the events listed per day; values below 1 fall back to DefaultMonthCellLimit.
func BuildMonthGrid(events []Event, ref, today time.Time, weekStartsOn time.Weekday, perCell int) MonthGrid {
	if perCell < 1 {
		perCell = DefaultMonthCellLimit
	}
	bounds := timerange.MonthGridBounds(ref, weekStartsOn)
	sorted := sortedByStart(events)

	grid := MonthGrid{Range: bounds}
	var week []MonthCell
	for _, day := range timerange.Days(bounds) {
		visible := VisibleEvents(sorted, day)
		cell := MonthCell{
			Date:    day,
			InMonth: day.Month() == ref.Month(),
			IsToday: timerange.SameDay(day, today),
		}
		if len(visible) > perCell {
			cell.Events = visible[:perCell]
			cell.Overflow = len(visible) - perCell
		} else {
			cell.Events = visible
		}
		week = append(week, cell)
		if len(week) == 7 {
			grid.Weeks = append(grid.Weeks, week)
			week = nil
		}
	}
	return grid
}

// BuildWeekGrid returns seven hour-grid columns for the week containing ref.
func BuildWeekGrid(events []Event, ref, today time.Time, weekStartsOn time.Weekday) []DayColumn {
	return buildColumns(events, timerange.WeekBounds(ref, weekStartsOn), today)
}

// BuildDayGrid returns the single hour-grid column for ref.
func BuildDayGrid(events []Event, ref, today time.Time) DayColumn {
	columns := buildColumns(events, timerange.DayBounds(ref), today)
	return columns[0]
}

func buildColumns(events []Event, bounds timerange.Range, today time.Time) []DayColumn {
	sorted := sortedByStart(events)
	days := timerange.Days(bounds)
	columns := make([]DayColumn, 0, len(days))
	for _, day := range days {
		column := DayColumn{Date: day, IsToday: timerange.SameDay(day, today)}
		for _, de := range VisibleEvents(sorted, day) {
			block, _ := ComputeLayout(de.Event, day)
			column.Events = append(column.Events, PlacedEvent{DayEvent: de, Block: block})
		}
		columns = append(columns, column)
	}
	return columns
}

func sortedByStart(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
