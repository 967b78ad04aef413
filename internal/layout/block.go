package layout

import (
	"time"

	"github.com/example/shared-calendar/internal/timerange"
)

// MinVisibleHeight is the smallest block height, in hours, a renderer should
// draw. Block.Height itself is never clamped to it.
const MinVisibleHeight = 0.25

// Block is the vertical extent of an event inside one day column, in hours
// from local midnight.
type Block struct {
	Top    float64
	Height float64
}

// Bottom returns Top + Height.
func (b Block) Bottom() float64 {
	return b.Top + b.Height
}

// RenderHeight applies MinVisibleHeight without exceeding the end of the day.
func (b Block) RenderHeight() float64 {
	h := b.Height
	if h < MinVisibleHeight {
		h = MinVisibleHeight
	}
	if b.Top+h > timerange.HoursPerDay {
		h = timerange.HoursPerDay - b.Top
	}
	return h
}

// ComputeLayout places the part of e that falls on day. The second result is
// false when the event does not touch day.
func ComputeLayout(e Event, day time.Time) (Block, bool) {
	switch SegmentFor(e, day) {
	case SegmentSingle:
		top := timerange.HourOffset(e.Start)
		return Block{Top: top, Height: endOffset(e) - top}, true
	case SegmentStart:
		top := timerange.HourOffset(e.Start)
		return Block{Top: top, Height: timerange.HoursPerDay - top}, true
	case SegmentEnd:
		return Block{Top: 0, Height: endOffset(e)}, true
	case SegmentMiddle:
		return Block{Top: 0, Height: timerange.HoursPerDay}, true
	default:
		return Block{}, false
	}
}

// endOffset treats an end at exactly midnight as the bottom of the previous day.
func endOffset(e Event) float64 {
	if timerange.DateOnly(e.End).Equal(e.End) {
		return timerange.HoursPerDay
	}
	return timerange.HourOffset(e.End)
}
