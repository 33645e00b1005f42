package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"slidecast/internal/manifest"
	"slidecast/internal/media"
	"slidecast/internal/platform/metrics"
	"slidecast/internal/timeline"
)

// DefaultEventLogMatch identifies the event sync request carrying the presentation log.
const DefaultEventLogMatch = "eventRegistration/includes/eventsync.jsp?"

// TimelineLoader fetches and extracts the slide timeline of a session.
type TimelineLoader interface {
	Load(ctx context.Context, url, blankSentinel string) (timeline.Timeline, error)
}

// MediaFetcher reconstructs the media file from the manifest and fragments.
type MediaFetcher interface {
	Fetch(ctx context.Context, manifestURL string, urls manifest.FragmentURLs) (media.Result, error)
}

// ListenerConfig tunes URL classification.
type ListenerConfig struct {
	EventLogMatch string
	BlankSentinel string
}

// Listener watches page requests, latches the URLs the session needs, and
// starts the timeline load and the media fetch in the background. Readers
// poll Timeline and Media.
type Listener struct {
	store    Store
	timeline TimelineLoader
	fetcher  MediaFetcher
	cfg      ListenerConfig
	log      *slog.Logger
	metrics  *metrics.Metrics

	tl              Latch[timeline.Timeline]
	timelineLoading atomic.Bool
	media           Latch[MediaOutcome]
	mediaStarted    atomic.Bool

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewListener returns a Listener. m may be nil.
func NewListener(store Store, tl TimelineLoader, fetcher MediaFetcher, cfg ListenerConfig, log *slog.Logger, m *metrics.Metrics) *Listener {
	if cfg.EventLogMatch == "" {
		cfg.EventLogMatch = DefaultEventLogMatch
	}
	if cfg.BlankSentinel == "" {
		cfg.BlankSentinel = timeline.DefaultBlankSentinel
	}
	return &Listener{store: store, timeline: tl, fetcher: fetcher, cfg: cfg, log: log, metrics: m}
}

// Classify returns the slots url can fill, in a fixed order.
func (l *Listener) Classify(url string) []Slot {
	var slots []Slot
	if strings.Contains(url, l.cfg.EventLogMatch) {
		slots = append(slots, SlotEventLog)
	}
	if strings.Contains(url, "mpd") {
		slots = append(slots, SlotManifest)
	}
	audio, video := strings.Contains(url, "audio"), strings.Contains(url, "video")
	if strings.Contains(url, "init.mp4") {
		if audio {
			slots = append(slots, SlotAudioInit)
		}
		if video {
			slots = append(slots, SlotVideoInit)
		}
	}
	if strings.Contains(url, "m4f") {
		if audio {
			slots = append(slots, SlotAudioSegment)
		}
		if video {
			slots = append(slots, SlotVideoSegment)
		}
	}
	return slots
}

// HandleRequest is called for every request the page issues. It never blocks
// on network or transcoder work.
//
// The event log is reloaded on each matching request until a timeline has
// been extracted; only one load runs at a time. Fragment slots are latched on
// first sight.
func (l *Listener) HandleRequest(ctx context.Context, url string) {
	l.metrics.IncRequestsObserved()

	for _, slot := range l.Classify(url) {
		if slot == SlotEventLog {
			l.maybeLoadTimeline(ctx, url)
			continue
		}
		if !l.store.Latch(slot, url) {
			continue
		}
		l.metrics.IncLatched(string(slot))
		l.log.Debug("captured url", slog.String("slot", string(slot)), slog.String("url", url))
	}

	if l.fragmentsComplete() && l.mediaStarted.CompareAndSwap(false, true) {
		if !l.spawn(func() { l.fetchMedia(ctx) }) {
			l.mediaStarted.Store(false)
		}
	}
}

func (l *Listener) maybeLoadTimeline(ctx context.Context, url string) {
	if _, ok := l.tl.Get(); ok {
		return
	}
	if !l.timelineLoading.CompareAndSwap(false, true) {
		return
	}
	if !l.spawn(func() { l.loadTimeline(ctx, url) }) {
		l.timelineLoading.Store(false)
	}
}

// spawn runs fn in a tracked goroutine unless the listener has been stopped.
func (l *Listener) spawn(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
	return true
}

func (l *Listener) loadTimeline(ctx context.Context, url string) {
	l.log.Info("getting slide time data", slog.String("url", url))

	tl, err := l.timeline.Load(ctx, url, l.cfg.BlankSentinel)
	if err != nil {
		l.log.Warn("slide time data unavailable, waiting for the next event log request",
			slog.String("error", err.Error()))
		l.timelineLoading.Store(false)
		return
	}
	if l.tl.Set(tl) {
		if l.store.Latch(SlotEventLog, url) {
			l.metrics.IncLatched(string(SlotEventLog))
		}
		l.metrics.IncLatched("timeline")
		l.log.Info("slide time data captured", slog.Int("slides", tl.Slides()))
	}
}

func (l *Listener) fetchMedia(ctx context.Context) {
	manifestURL, _ := l.store.Get(SlotManifest)
	res, err := l.fetcher.Fetch(ctx, manifestURL, l.Fragments())
	if err != nil {
		l.log.Error("media fetch failed", slog.String("error", err.Error()))
	}
	if l.media.Set(MediaOutcome{Result: res, Err: err}) && err == nil {
		l.metrics.IncLatched("media")
	}
}

// Fragments returns the fragment URLs captured so far.
func (l *Listener) Fragments() manifest.FragmentURLs {
	get := func(s Slot) string {
		v, _ := l.store.Get(s)
		return v
	}
	return manifest.FragmentURLs{
		AudioInit:    get(SlotAudioInit),
		VideoInit:    get(SlotVideoInit),
		AudioSegment: get(SlotAudioSegment),
		VideoSegment: get(SlotVideoSegment),
	}
}

func (l *Listener) fragmentsComplete() bool {
	_, ok := l.store.Get(SlotManifest)
	return ok && l.Fragments().Complete()
}

// Timeline returns the captured timeline, if any.
func (l *Listener) Timeline() (timeline.Timeline, bool) {
	return l.tl.Get()
}

// Media returns the outcome of the media fetch, once it has finished.
func (l *Listener) Media() (MediaOutcome, bool) {
	return l.media.Get()
}

// MediaStarted reports whether all required URLs were seen and the fetch began.
func (l *Listener) MediaStarted() bool {
	return l.mediaStarted.Load()
}

// Captured returns the latched URLs.
func (l *Listener) Captured() map[Slot]string {
	return l.store.Snapshot()
}

// Wait blocks until background work started by HandleRequest has finished.
// Requests arriving during Wait may start new work; use Stop to prevent that.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// Stop makes later requests no-ops and waits for background work to finish.
func (l *Listener) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wg.Wait()
}
