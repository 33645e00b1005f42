package timeline

import (
	"errors"
	"math"
)

// DefaultBlankSentinel is the mediaURL the event log uses while no slide is shown yet.
const DefaultBlankSentinel = "reserved"

// resourceMarker is the substring that marks a mediaURL as a real slide resource.
const resourceMarker = "http"

var (
	// ErrNoTimelineData is returned when no relevant slide event survives filtering.
	ErrNoTimelineData = errors.New("no timeline data")

	// ErrAlreadyFinalized is returned when a final duration is appended twice.
	ErrAlreadyFinalized = errors.New("timeline already finalized")
)

// SlideEvent is one entry of the presentation event log.
type SlideEvent struct {
	MediaURL    string `json:"mediaURL"`
	TimestampMs int64  `json:"timestamp"`
}

// Timeline is the recovered slide schedule in seconds.
//
// Until Finalize is called Durations has one element fewer than Offsets,
// since the last slide lasts until the (not yet known) end of the session.
type Timeline struct {
	Offsets   []float64 `json:"offsets"`
	Durations []float64 `json:"durations"`
}

// Single is the timeline of a session with one slide shown from the start.
func Single() Timeline {
	return Timeline{Offsets: []float64{0}, Durations: []float64{}}
}

// Slides returns the number of slides on the timeline.
func (t Timeline) Slides() int {
	return len(t.Offsets)
}

// Finalized reports whether every slide has a duration.
func (t Timeline) Finalized() bool {
	return len(t.Offsets) > 0 && len(t.Durations) == len(t.Offsets)
}

// LastOffset returns the start of the last slide, or 0 for an empty timeline.
func (t Timeline) LastOffset() float64 {
	if len(t.Offsets) == 0 {
		return 0
	}
	return t.Offsets[len(t.Offsets)-1]
}

// Total returns the sum of all known durations.
func (t Timeline) Total() float64 {
	var sum float64
	for _, d := range t.Durations {
		sum += d
	}
	return sum
}

// Finalize returns a copy of t with the last slide's duration appended,
// computed as |totalSec - LastOffset()|. t itself is not modified.
func (t Timeline) Finalize(totalSec float64) (Timeline, error) {
	if len(t.Offsets) == 0 {
		return Timeline{}, ErrNoTimelineData
	}
	if t.Finalized() {
		return Timeline{}, ErrAlreadyFinalized
	}
	out := Timeline{
		Offsets:   append([]float64(nil), t.Offsets...),
		Durations: make([]float64, 0, len(t.Offsets)),
	}
	out.Durations = append(out.Durations, t.Durations...)
	out.Durations = append(out.Durations, math.Abs(totalSec-t.LastOffset()))
	return out, nil
}
