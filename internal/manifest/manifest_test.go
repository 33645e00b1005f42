package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMPD(videoSegments int) string {
	var s strings.Builder
	for i := 0; i < videoSegments; i++ {
		fmt.Fprintf(&s, `<S t="%d" d="4000"/>`, i*4000)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" minBufferTime="PT4S" mediaPresentationDuration="PT10M">
  <Period id="0" start="PT0S">
    <AdaptationSet contentType="audio" mimeType="audio/mp4" segmentAlignment="true">
      <SegmentTemplate timescale="1000" initialization="audio/init.mp4" media="audio/seg-$Number$.m4f" startNumber="1">
        <SegmentTimeline><S t="0" d="4000" r="149"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="a0" bandwidth="64000" codecs="mp4a.40.2"/>
    </AdaptationSet>
    <AdaptationSet contentType="video" mimeType="video/mp4" segmentAlignment="true">
      <SegmentTemplate timescale="1000" initialization="video/init.mp4" media="video/seg-$Number$.m4f" startNumber="1">
        <SegmentTimeline>` + s.String() + `</SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v0" bandwidth="800000" codecs="avc1.4d401f" width="1280" height="720"/>
    </AdaptationSet>
  </Period>
</MPD>`
}

var observed = FragmentURLs{
	AudioInit:    "https://cdn.example/s/abc/audio/init.mp4?tok=1",
	VideoInit:    "https://cdn.example/s/abc/video/init.mp4?tok=1",
	AudioSegment: "https://cdn.example/s/abc/audio/seg-12.m4f",
	VideoSegment: "https://cdn.example/s/abc/video/seg-7.m4f",
}

func TestRewrite_audio_and_video(t *testing.T) {
	rw, err := Rewrite([]byte(sampleMPD(5)), observed)
	require.NoError(t, err)

	assert.Equal(t, KindAudioVideo, rw.Kind())
	assert.Equal(t, 5, rw.VideoSegments())
	assert.Equal(t, 2, rw.AdaptationSets())
	assert.Equal(t, []Template{
		{Initialization: observed.AudioInit, Media: "https://cdn.example/s/abc/audio/seg-$Number$.m4f"},
		{Initialization: observed.VideoInit, Media: "https://cdn.example/s/abc/video/seg-$Number$.m4f"},
	}, rw.Templates())

	out, err := rw.Bytes()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "minBufferTime")
	assert.Contains(t, string(out), `mediaPresentationDuration="PT10M"`, "unrelated attributes are preserved")
}

func TestRewrite_stub_video_is_dropped(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		t.Run(fmt.Sprintf("segments=%d", n), func(t *testing.T) {
			rw, err := Rewrite([]byte(sampleMPD(n)), observed)
			require.NoError(t, err)
			assert.Equal(t, KindAudioOnly, rw.Kind())
			assert.Equal(t, 1, rw.AdaptationSets())

			tmpls := rw.Templates()
			require.Len(t, tmpls, 1)
			assert.Equal(t, observed.AudioInit, tmpls[0].Initialization)

			out, err := rw.Bytes()
			require.NoError(t, err)
			assert.NotContains(t, string(out), `contentType="video"`)
		})
	}
}

func TestRewrite_three_segments_is_video(t *testing.T) {
	rw, err := Rewrite([]byte(sampleMPD(3)), observed)
	require.NoError(t, err)
	assert.Equal(t, KindAudioVideo, rw.Kind())
	assert.Equal(t, 2, rw.AdaptationSets())
}

func TestRewrite_idempotent(t *testing.T) {
	first, err := Rewrite([]byte(sampleMPD(4)), observed)
	require.NoError(t, err)
	firstBytes, err := first.Bytes()
	require.NoError(t, err)

	second, err := Rewrite(firstBytes, observed)
	require.NoError(t, err)
	secondBytes, err := second.Bytes()
	require.NoError(t, err)

	assert.Equal(t, first.Templates(), second.Templates())
	assert.Equal(t, string(firstBytes), string(secondBytes))
}

// An audio-only result holds a single AdaptationSet, so it is not valid input
// for another rewrite. The fetcher always rewrites the downloaded manifest.
func TestRewrite_audio_only_output_is_not_rewritable(t *testing.T) {
	first, err := Rewrite([]byte(sampleMPD(2)), observed)
	require.NoError(t, err)
	require.Equal(t, KindAudioOnly, first.Kind())
	firstBytes, err := first.Bytes()
	require.NoError(t, err)

	_, err = Rewrite(firstBytes, observed)
	require.ErrorIs(t, err, ErrUnexpectedManifestShape)
	assert.Contains(t, err.Error(), "want 2 AdaptationSets, got 1")
}

func TestRewrite_only_observed_urls(t *testing.T) {
	rw, err := Rewrite([]byte(sampleMPD(4)), observed)
	require.NoError(t, err)
	for _, tmpl := range rw.Templates() {
		assert.True(t, tmpl.Initialization == observed.AudioInit || tmpl.Initialization == observed.VideoInit)
		assert.True(t, strings.HasPrefix(tmpl.Media, "https://cdn.example/s/abc/"))
	}
}

func TestRewrite_unexpected_shape(t *testing.T) {
	cases := map[string]string{
		"not xml":    "hello",
		"wrong root": `<Playlist/>`,
		"no period":  `<MPD></MPD>`,
		"two periods": `<MPD><Period><AdaptationSet><SegmentTemplate/></AdaptationSet><AdaptationSet><SegmentTemplate/></AdaptationSet></Period>` +
			`<Period/></MPD>`,
		"one set":       `<MPD><Period><AdaptationSet><SegmentTemplate/></AdaptationSet></Period></MPD>`,
		"no template":   `<MPD><Period><AdaptationSet><SegmentTemplate/></AdaptationSet><AdaptationSet/></Period></MPD>`,
		"video first":   `<MPD><Period><AdaptationSet contentType="video"><SegmentTemplate/></AdaptationSet><AdaptationSet contentType="audio"><SegmentTemplate/></AdaptationSet></Period></MPD>`,
		"two templates": `<MPD><Period><AdaptationSet><SegmentTemplate/><SegmentTemplate/></AdaptationSet><AdaptationSet><SegmentTemplate/></AdaptationSet></Period></MPD>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Rewrite([]byte(doc), observed)
			assert.ErrorIs(t, err, ErrUnexpectedManifestShape)
		})
	}
}

func TestRewrite_incomplete_urls(t *testing.T) {
	urls := observed
	urls.VideoSegment = ""
	_, err := Rewrite([]byte(sampleMPD(4)), urls)
	assert.ErrorIs(t, err, ErrIncompleteFragments)
}

func TestRewritten_WriteFile(t *testing.T) {
	rw, err := Rewrite([]byte(sampleMPD(1)), observed)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "temp.mpd")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, rw.WriteFile(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := rw.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestKind_Ext(t *testing.T) {
	assert.Equal(t, ".mp4", KindAudioVideo.Ext())
	assert.Equal(t, ".m4a", KindAudioOnly.Ext())
}
