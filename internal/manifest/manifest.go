// Package manifest rewrites a live DASH manifest so that an external
// transcoder can fetch the session's fragments directly.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/renameio/v2"
)

// Kind is the container the rewritten manifest is remuxed into.
type Kind string

const (
	// KindAudioVideo is used when the session carries a real video track.
	KindAudioVideo Kind = "mp4"
	// KindAudioOnly is used when the video track is a stub.
	KindAudioOnly Kind = "m4a"
)

// Ext returns the file extension for k, including the dot.
func (k Kind) Ext() string {
	return "." + string(k)
}

// minVideoSegments is the smallest segment timeline that counts as real video.
// Stub video tracks announce at most two segments.
const minVideoSegments = 3

var (
	// ErrUnexpectedManifestShape is returned when the manifest is not one
	// Period holding an audio and a video AdaptationSet, each with one
	// SegmentTemplate.
	ErrUnexpectedManifestShape = errors.New("unexpected manifest shape")

	// ErrIncompleteFragments is returned when one of the observed fragment
	// URLs is missing.
	ErrIncompleteFragments = errors.New("incomplete fragment urls")
)

// FragmentURLs are the fragment requests observed on the network.
type FragmentURLs struct {
	AudioInit    string `json:"audio_init,omitempty"`
	VideoInit    string `json:"video_init,omitempty"`
	AudioSegment string `json:"audio_segment,omitempty"`
	VideoSegment string `json:"video_segment,omitempty"`
}

// Complete reports whether all four URLs are known.
func (u FragmentURLs) Complete() bool {
	return u.AudioInit != "" && u.VideoInit != "" && u.AudioSegment != "" && u.VideoSegment != ""
}

// Template is the pair of URL patterns of one SegmentTemplate.
type Template struct {
	Initialization string
	Media          string
}

// Rewritten is a manifest whose segment templates point at observed URLs.
type Rewritten struct {
	doc           *etree.Document
	kind          Kind
	videoSegments int
}

// Kind returns the container chosen for the manifest.
func (r *Rewritten) Kind() Kind { return r.kind }

// VideoSegments returns the number of segment descriptors the video track announced.
func (r *Rewritten) VideoSegments() int { return r.videoSegments }

// Templates returns the segment templates in document order.
func (r *Rewritten) Templates() []Template {
	var out []Template
	root := r.doc.Root()
	if root == nil {
		return nil
	}
	for _, period := range root.SelectElements("Period") {
		for _, set := range period.SelectElements("AdaptationSet") {
			tmpl := set.SelectElement("SegmentTemplate")
			if tmpl == nil {
				continue
			}
			out = append(out, Template{
				Initialization: tmpl.SelectAttrValue("initialization", ""),
				Media:          tmpl.SelectAttrValue("media", ""),
			})
		}
	}
	return out
}

// AdaptationSets returns the number of adaptation sets left in the manifest.
func (r *Rewritten) AdaptationSets() int {
	n := 0
	if root := r.doc.Root(); root != nil {
		for _, period := range root.SelectElements("Period") {
			n += len(period.SelectElements("AdaptationSet"))
		}
	}
	return n
}

// Bytes serializes the manifest.
func (r *Rewritten) Bytes() ([]byte, error) {
	return r.doc.WriteToBytes()
}

// WriteFile atomically replaces path with the serialized manifest.
func (r *Rewritten) WriteFile(path string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending manifest file: %w", err)
	}
	defer pending.Cleanup()

	if _, err := r.doc.WriteTo(pending); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace manifest file: %w", err)
	}
	return nil
}

// Rewrite parses raw, points both segment templates at the observed fragment
// URLs, drops the live-only minBufferTime hint, and removes the video
// AdaptationSet when its timeline holds fewer than three segments.
func Rewrite(raw []byte, urls FragmentURLs) (*Rewritten, error) {
	if !urls.Complete() {
		return nil, ErrIncompleteFragments
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedManifestShape, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "MPD" {
		return nil, fmt.Errorf("%w: missing MPD root", ErrUnexpectedManifestShape)
	}
	periods := root.SelectElements("Period")
	if len(periods) != 1 {
		return nil, fmt.Errorf("%w: want 1 Period, got %d", ErrUnexpectedManifestShape, len(periods))
	}
	period := periods[0]
	sets := period.SelectElements("AdaptationSet")
	if len(sets) != 2 {
		return nil, fmt.Errorf("%w: want 2 AdaptationSets, got %d", ErrUnexpectedManifestShape, len(sets))
	}
	audioSet, videoSet := sets[0], sets[1]
	if declares(audioSet, "video") || declares(videoSet, "audio") {
		return nil, fmt.Errorf("%w: adaptation sets are not ordered audio, video", ErrUnexpectedManifestShape)
	}

	audioTmpl, err := segmentTemplate(audioSet)
	if err != nil {
		return nil, err
	}
	videoTmpl, err := segmentTemplate(videoSet)
	if err != nil {
		return nil, err
	}

	if err := pointAt(audioTmpl, urls.AudioInit, urls.AudioSegment); err != nil {
		return nil, err
	}
	if err := pointAt(videoTmpl, urls.VideoInit, urls.VideoSegment); err != nil {
		return nil, err
	}

	root.RemoveAttr("minBufferTime")

	videoSegments := 0
	if tl := videoTmpl.SelectElement("SegmentTimeline"); tl != nil {
		videoSegments = len(tl.SelectElements("S"))
	}

	kind := KindAudioVideo
	if videoSegments < minVideoSegments {
		period.RemoveChild(videoSet)
		kind = KindAudioOnly
	}

	return &Rewritten{doc: doc, kind: kind, videoSegments: videoSegments}, nil
}

func segmentTemplate(set *etree.Element) (*etree.Element, error) {
	tmpls := set.SelectElements("SegmentTemplate")
	if len(tmpls) != 1 {
		return nil, fmt.Errorf("%w: want 1 SegmentTemplate per AdaptationSet, got %d", ErrUnexpectedManifestShape, len(tmpls))
	}
	return tmpls[0], nil
}

func pointAt(tmpl *etree.Element, initURL, segURL string) error {
	media, err := MediaPattern(segURL)
	if err != nil {
		return err
	}
	tmpl.CreateAttr("initialization", initURL)
	tmpl.CreateAttr("media", media)
	return nil
}

// declares reports whether set announces a content type starting with kind.
func declares(set *etree.Element, kind string) bool {
	for _, key := range []string{"contentType", "mimeType"} {
		if strings.HasPrefix(set.SelectAttrValue(key, ""), kind) {
			return true
		}
	}
	return false
}
