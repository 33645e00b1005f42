package timeline

import "strings"

// IsRelevant reports whether mediaURL denotes a slide resource or the blank
// slide sentinel. Everything else in the log is telemetry.
func IsRelevant(mediaURL, blankSentinel string) bool {
	return strings.Contains(mediaURL, resourceMarker) || mediaURL == blankSentinel
}

// Extract derives slide start offsets and durations from the event log.
//
// Deltas between consecutive relevant events become slide durations, except
// that a leading run of zero deltas (duplicate events logged before the first
// real slide change) is skipped. Offsets are measured from the first event
// after that run. An event logged earlier than its predecessor is treated as
// simultaneous with it so offsets never decrease.
//
// The returned timeline is not finalized: the last slide has no duration.
func Extract(events []SlideEvent, blankSentinel string) (Timeline, error) {
	ts := make([]int64, 0, len(events))
	for _, ev := range events {
		if !IsRelevant(ev.MediaURL, blankSentinel) {
			continue
		}
		t := ev.TimestampMs
		if n := len(ts); n > 0 && t < ts[n-1] {
			t = ts[n-1]
		}
		ts = append(ts, t)
	}
	if len(ts) == 0 {
		return Timeline{}, ErrNoTimelineData
	}

	start := 0
	for start < len(ts)-1 && ts[start+1] == ts[start] {
		start++
	}

	// Durations[i] == Offsets[i+1]-Offsets[i] exactly.
	offsets := make([]float64, 0, len(ts)-start)
	for _, t := range ts[start:] {
		offsets = append(offsets, float64(t-ts[start])/1000)
	}
	durations := make([]float64, 0, len(offsets))
	for i := 1; i < len(offsets); i++ {
		durations = append(durations, offsets[i]-offsets[i-1])
	}

	return Timeline{Offsets: offsets, Durations: durations}, nil
}
