package recurrence

import (
	"errors"
	"testing"
	"time"
)

var utc = time.UTC

func monday9() time.Time {
	return time.Date(2024, time.March, 4, 9, 0, 0, 0, utc)
}

func TestEngineExpand(t *testing.T) {
	t.Parallel()

	start := monday9()
	month := Window{Start: start, End: start.AddDate(0, 1, 0)}

	t.Run("respects weekday selections", func(t *testing.T) {
		t.Parallel()
		series := Series{RRule: "FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=6", Start: start, End: start.Add(time.Hour)}
		result, err := NewEngine(nil, 0).Expand(series, month)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 6 {
			t.Fatalf("expected 6 occurrences, got %d", len(result.Occurrences))
		}
		want := []time.Weekday{time.Monday, time.Wednesday, time.Friday, time.Monday, time.Wednesday, time.Friday}
		for i, occ := range result.Occurrences {
			if occ.Start.Weekday() != want[i] {
				t.Fatalf("occurrence %d on %v, want %v", i, occ.Start.Weekday(), want[i])
			}
			if occ.End.Sub(occ.Start) != time.Hour {
				t.Fatalf("occurrence %d lost its duration: %v", i, occ.End.Sub(occ.Start))
			}
		}
	})

	t.Run("clips to the window", func(t *testing.T) {
		t.Parallel()
		series := Series{RRule: "RRULE:FREQ=DAILY", Start: start, End: start.Add(time.Hour)}
		window := Window{Start: start.AddDate(0, 0, 3), End: start.AddDate(0, 0, 6)}
		result, err := NewEngine(nil, 0).Expand(series, window)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 3 || !result.Occurrences[0].Start.Equal(window.Start) {
			t.Fatalf("unexpected occurrences: %+v", result.Occurrences)
		}
	})

	t.Run("keeps occurrences running at the window start", func(t *testing.T) {
		t.Parallel()
		series := Series{RRule: "FREQ=DAILY;COUNT=3", Start: start, End: start.Add(2 * time.Hour)}
		window := Window{Start: start.Add(time.Hour), End: start.Add(90 * time.Minute)}
		result, err := NewEngine(nil, 0).Expand(series, window)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 1 || !result.Occurrences[0].Start.Equal(start) {
			t.Fatalf("expected the running occurrence, got %+v", result.Occurrences)
		}
	})

	t.Run("applies exdates and overrides", func(t *testing.T) {
		t.Parallel()
		moved := start.AddDate(0, 0, 2).Add(3 * time.Hour)
		series := Series{
			RRule:   "FREQ=DAILY;COUNT=4",
			Start:   start,
			End:     start.Add(time.Hour),
			ExDates: []time.Time{start.AddDate(0, 0, 1)},
			Overrides: []Override{{
				RecurrenceID: start.AddDate(0, 0, 2),
				Start:        moved,
				End:          moved.Add(30 * time.Minute),
			}},
		}
		result, err := NewEngine(nil, 0).Expand(series, month)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 3 {
			t.Fatalf("expected 3 occurrences, got %+v", result.Occurrences)
		}
		if !result.Occurrences[1].Overridden || !result.Occurrences[1].Start.Equal(moved) {
			t.Fatalf("expected override in second slot, got %+v", result.Occurrences[1])
		}
	})

	t.Run("truncates at the cap", func(t *testing.T) {
		t.Parallel()
		series := Series{RRule: "FREQ=DAILY", Start: start, End: start.Add(time.Hour)}
		result, err := NewEngine(nil, 5).Expand(series, month)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 5 || !result.Truncated {
			t.Fatalf("expected 5 truncated occurrences, got %d truncated=%v", len(result.Occurrences), result.Truncated)
		}
	})

	t.Run("all day series span whole days", func(t *testing.T) {
		t.Parallel()
		day := time.Date(2024, time.March, 4, 0, 0, 0, 0, utc)
		series := Series{RRule: "FREQ=WEEKLY;COUNT=2", Start: day, End: day.AddDate(0, 0, 1), AllDay: true}
		result, err := NewEngine(nil, 0).Expand(series, month)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(result.Occurrences) != 2 {
			t.Fatalf("expected 2 occurrences, got %+v", result.Occurrences)
		}
		second := result.Occurrences[1]
		if !second.Start.Equal(day.AddDate(0, 0, 7)) || second.End.Sub(second.Start) != 24*time.Hour {
			t.Fatalf("unexpected all-day occurrence: %+v", second)
		}
	})

	t.Run("converts to the engine location", func(t *testing.T) {
		t.Parallel()
		tokyo := time.FixedZone("JST", 9*60*60)
		series := Series{Start: start, End: start.Add(time.Hour)}
		result, err := NewEngine(tokyo, 0).Expand(series, month)
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if got := result.Occurrences[0].Start; got.Location() != tokyo || got.Hour() != 18 {
			t.Fatalf("expected 18:00 JST, got %v", got)
		}
	})
}

func TestEngineExpandRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	start := monday9()
	window := Window{Start: start, End: start.AddDate(0, 0, 7)}
	cases := map[string]struct {
		series Series
		window Window
		want   error
	}{
		"bad rule":       {series: Series{RRule: "FREQ=SOMETIMES", Start: start, End: start.Add(time.Hour)}, window: window, want: ErrInvalidRule},
		"empty window":   {series: Series{Start: start, End: start.Add(time.Hour)}, window: Window{Start: start, End: start}, want: ErrInvalidWindow},
		"open window":    {series: Series{Start: start, End: start.Add(time.Hour)}, window: Window{Start: start}, want: ErrInvalidWindow},
		"inverted times": {series: Series{Start: start, End: start.Add(-time.Hour)}, window: window, want: ErrInvalidDuration},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewEngine(nil, 0).Expand(tc.series, tc.window); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
