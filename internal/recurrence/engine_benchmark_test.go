package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(nil, 0)
	start := monday9()
	series := Series{RRule: "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", Start: start, End: start.Add(90 * time.Minute)}
	window := Window{Start: start, End: start.AddDate(0, 3, 0)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Expand(series, window); err != nil {
			b.Fatalf("Expand returned error: %v", err)
		}
	}
}
