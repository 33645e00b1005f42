package timeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_example(t *testing.T) {
	events := []SlideEvent{
		{TimestampMs: 1000, MediaURL: "blank"},
		{TimestampMs: 1000, MediaURL: "blank"},
		{TimestampMs: 3000, MediaURL: "http://x/1.jpg"},
		{TimestampMs: 7000, MediaURL: "http://x/2.jpg"},
	}

	tl, err := Extract(events, DefaultBlankSentinel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 4}, tl.Offsets)
	assert.Equal(t, []float64{4}, tl.Durations)
	assert.False(t, tl.Finalized())

	final, err := tl.Finalize(10)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 6}, final.Durations)
	assert.True(t, final.Finalized())
	assert.Equal(t, []float64{4}, tl.Durations, "Finalize must not modify the receiver")
}

func TestExtract_sentinel_is_kept(t *testing.T) {
	events := []SlideEvent{
		{TimestampMs: 500, MediaURL: "reserved"},
		{TimestampMs: 500, MediaURL: "reserved"},
		{TimestampMs: 2500, MediaURL: "https://cdn/1.png"},
		{TimestampMs: 2600, MediaURL: "heartbeat"},
		{TimestampMs: 6000, MediaURL: "https://cdn/2.png"},
	}

	tl, err := Extract(events, DefaultBlankSentinel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 5.5}, tl.Offsets)
	assert.Equal(t, []float64{2, 3.5}, tl.Durations)
}

func TestExtract_no_data(t *testing.T) {
	_, err := Extract(nil, DefaultBlankSentinel)
	assert.ErrorIs(t, err, ErrNoTimelineData)

	_, err = Extract([]SlideEvent{{TimestampMs: 1, MediaURL: "ping"}}, DefaultBlankSentinel)
	assert.True(t, errors.Is(err, ErrNoTimelineData))
}

func TestExtract_single_event(t *testing.T) {
	tl, err := Extract([]SlideEvent{{TimestampMs: 42, MediaURL: "http://x/1.jpg"}}, DefaultBlankSentinel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, tl.Offsets)
	assert.Empty(t, tl.Durations)
}

func TestExtract_leading_duplicates_property(t *testing.T) {
	for k := 0; k <= 4; k++ {
		for n := 1; n <= 6; n++ {
			t.Run(fmt.Sprintf("k=%d,n=%d", k, n), func(t *testing.T) {
				var events []SlideEvent
				for i := 0; i < k; i++ {
					events = append(events, SlideEvent{TimestampMs: 10_000, MediaURL: "reserved"})
				}
				ts := int64(10_000)
				for i := 0; i < n; i++ {
					events = append(events, SlideEvent{TimestampMs: ts, MediaURL: fmt.Sprintf("http://x/%d.jpg", i)})
					ts += int64(1300 + 17*i)
				}

				tl, err := Extract(events, DefaultBlankSentinel)
				require.NoError(t, err)
				require.Len(t, tl.Offsets, n)
				assert.Equal(t, 0.0, tl.Offsets[0])
				require.Len(t, tl.Durations, n-1)
				for i, d := range tl.Durations {
					assert.Equal(t, tl.Offsets[i+1]-tl.Offsets[i], d)
					assert.GreaterOrEqual(t, d, 0.0)
				}
			})
		}
	}
}

func TestExtract_interior_zero_delta_kept(t *testing.T) {
	events := []SlideEvent{
		{TimestampMs: 0, MediaURL: "http://x/1.jpg"},
		{TimestampMs: 1000, MediaURL: "http://x/2.jpg"},
		{TimestampMs: 1000, MediaURL: "http://x/3.jpg"},
		{TimestampMs: 2500, MediaURL: "http://x/4.jpg"},
	}
	tl, err := Extract(events, DefaultBlankSentinel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 2.5}, tl.Offsets)
	assert.Equal(t, []float64{1, 0, 1.5}, tl.Durations)
}

func TestExtract_out_of_order_clamped(t *testing.T) {
	events := []SlideEvent{
		{TimestampMs: 1000, MediaURL: "http://x/1.jpg"},
		{TimestampMs: 3000, MediaURL: "http://x/2.jpg"},
		{TimestampMs: 2000, MediaURL: "http://x/3.jpg"},
		{TimestampMs: 4000, MediaURL: "http://x/4.jpg"},
	}
	tl, err := Extract(events, DefaultBlankSentinel)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2, 2, 3}, tl.Offsets)
	for _, d := range tl.Durations {
		assert.GreaterOrEqual(t, d, 0.0)
	}
}

func TestFinalize(t *testing.T) {
	tl := Timeline{Offsets: []float64{0, 4, 9}, Durations: []float64{4, 5}}

	final, err := tl.Finalize(7)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 2}, final.Durations, "final duration is |total - last offset|")
	assert.Equal(t, 11.0, final.Total())

	_, err = final.Finalize(20)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	_, err = Timeline{}.Finalize(5)
	assert.ErrorIs(t, err, ErrNoTimelineData)
}

func TestSingle(t *testing.T) {
	tl := Single()
	assert.Equal(t, 1, tl.Slides())
	final, err := tl.Finalize(12.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{12.5}, final.Durations)
}
