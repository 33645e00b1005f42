// Package session drives one capture session from page load to the files in
// the output directory.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"slidecast/internal/manifest"
	"slidecast/internal/platform/metrics"
	"slidecast/internal/platform/retry"
	"slidecast/internal/slides"
	"slidecast/internal/timeline"

	"github.com/google/uuid"
)

// combinedFile is where slide video and audio are muxed before promotion.
const combinedFile = "combined.mp4"

// ErrNetworkCaptureTimeout is returned when the manifest and fragment URLs
// are not all observed within the capture timeout.
var ErrNetworkCaptureTimeout = errors.New("network capture timeout")

// Page is the automation layer as seen by the orchestrator.
type Page interface {
	slides.Player
	// OnRequest registers fn to be called with the URL of every request.
	OnRequest(fn func(url string))
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	// Login submits the registration form and waits for the player.
	Login(ctx context.Context, email string) error
	// PreparePlayback mutes the player and lays the slide area out for capture.
	PreparePlayback(ctx context.Context) error
	Duration(ctx context.Context) (float64, error)
}

// SlideSynthesizer renders the slide video.
type SlideSynthesizer interface {
	Synthesize(ctx context.Context, tl timeline.Timeline, totalSec float64) (string, error)
}

// Muxer combines a video-only file with an audio-only file.
type Muxer interface {
	Mux(ctx context.Context, video, audio, out string) error
}

// Config holds the orchestrator's directories and wait policies.
type Config struct {
	WorkDir   string
	OutputDir string

	NavigationTimeout time.Duration
	// CaptureTimeout bounds how long after navigation the manifest and
	// fragment URLs may take to appear.
	CaptureTimeout time.Duration

	TimelinePolicy    retry.Policy
	MediaPollInterval time.Duration
}

// Orchestrator runs a single session. It is not reusable.
type Orchestrator struct {
	page     Page
	listener *Listener
	synth    SlideSynthesizer
	muxer    Muxer
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics

	id        string
	startedAt time.Time

	mu      sync.RWMutex
	phase   Phase
	title   string
	outputs *Outputs
}

// New returns an Orchestrator. m may be nil.
func New(page Page, listener *Listener, synth SlideSynthesizer, muxer Muxer, cfg Config, log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	id := uuid.New().String()
	return &Orchestrator{
		page:      page,
		listener:  listener,
		synth:     synth,
		muxer:     muxer,
		cfg:       cfg,
		log:       log.With(slog.String("session_id", id)),
		metrics:   m,
		id:        id,
		startedAt: time.Now().UTC(),
		phase:     PhaseIdle,
	}
}

// ID returns the session identifier used in logs.
func (o *Orchestrator) ID() string { return o.id }

// Run captures the session at eventURL and promotes its outputs.
func (o *Orchestrator) Run(ctx context.Context, eventURL, email string) (Outputs, error) {
	out, err := o.run(ctx, eventURL, email)
	if err != nil {
		o.setPhase(PhaseFailed)
		return Outputs{}, err
	}
	o.mu.Lock()
	o.outputs = &out
	o.mu.Unlock()
	o.setPhase(PhaseDone)
	o.log.Info("process finished", slog.String("output_dir", o.cfg.OutputDir))
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, eventURL, email string) (Outputs, error) {
	o.setPhase(PhasePrepare)
	if err := CleanWorkDir(o.cfg.WorkDir); err != nil {
		return Outputs{}, err
	}
	if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
		return Outputs{}, fmt.Errorf("create output dir: %w", err)
	}

	o.page.OnRequest(func(url string) { o.listener.HandleRequest(ctx, url) })

	o.setPhase(PhaseNavigate)
	navStart := time.Now()
	if err := o.navigate(ctx, eventURL); err != nil {
		return Outputs{}, err
	}

	title, err := o.page.Title(ctx)
	if err != nil {
		return Outputs{}, fmt.Errorf("read session title: %w", err)
	}
	slug := Slug(title)
	if slug == "" {
		slug = o.id
	}
	o.mu.Lock()
	o.title = title
	o.mu.Unlock()
	o.log.Info("scraping event", slog.String("title", title), slog.String("slug", slug))

	o.setPhase(PhaseLogin)
	if err := o.page.Login(ctx, email); err != nil {
		return Outputs{}, fmt.Errorf("login: %w", err)
	}

	o.setPhase(PhaseTimeline)
	tl, err := o.awaitTimeline(ctx)
	if err != nil {
		return Outputs{}, err
	}

	if err := o.page.PreparePlayback(ctx); err != nil {
		return Outputs{}, fmt.Errorf("prepare playback: %w", err)
	}
	total, err := o.page.Duration(ctx)
	if err != nil {
		return Outputs{}, fmt.Errorf("read session duration: %w", err)
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Outputs{}, fmt.Errorf("read session duration: invalid value %v", total)
	}

	tl, err = tl.Finalize(total)
	if err != nil {
		return Outputs{}, fmt.Errorf("finalize timeline: %w", err)
	}
	o.log.Info("timeline ready",
		slog.Int("slides", tl.Slides()),
		slog.Float64("session_sec", total),
		slog.Float64("total_sec", tl.Total()),
	)

	o.setPhase(PhaseSlides)
	slidePath, err := o.synth.Synthesize(ctx, tl, total)
	if err != nil {
		return Outputs{}, fmt.Errorf("synthesize slides: %w", err)
	}

	o.setPhase(PhaseMedia)
	res, err := o.awaitMedia(ctx, navStart)
	if err != nil {
		return Outputs{}, err
	}

	o.setPhase(PhaseFinalize)
	return o.finalize(ctx, slug, res.Result.Path, res.Result.Kind, slidePath)
}

func (o *Orchestrator) navigate(ctx context.Context, eventURL string) error {
	navCtx := ctx
	if o.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, o.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := o.page.Navigate(navCtx, eventURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", eventURL, err)
	}
	return nil
}

// awaitTimeline polls for the timeline with the bounded policy and falls back
// to a single slide when it never arrives.
func (o *Orchestrator) awaitTimeline(ctx context.Context) (timeline.Timeline, error) {
	policy := o.cfg.TimelinePolicy
	policy.OnWait = func(int) { o.log.Info("waiting for slide data to be fetched") }

	err := retry.Await(ctx, policy, func(context.Context) (bool, error) {
		_, ok := o.listener.Timeline()
		return ok, nil
	})
	switch {
	case err == nil:
		tl, _ := o.listener.Timeline()
		return tl, nil
	case errors.Is(err, retry.ErrAttemptsExhausted):
		o.log.Warn("slide data never arrived, using a single slide", slog.Int("attempts", policy.MaxAttempts))
		return timeline.Single(), nil
	default:
		return timeline.Timeline{}, err
	}
}

// awaitMedia polls until the background media fetch has finished.
func (o *Orchestrator) awaitMedia(ctx context.Context, navStart time.Time) (MediaOutcome, error) {
	policy := retry.Unbounded(o.cfg.MediaPollInterval)
	policy.OnWait = func(int) { o.log.Info("waiting for media to be downloaded") }

	var out MediaOutcome
	err := retry.Await(ctx, policy, func(context.Context) (bool, error) {
		res, ok := o.listener.Media()
		if ok {
			out = res
			return true, res.Err
		}
		if !o.listener.MediaStarted() && o.cfg.CaptureTimeout > 0 && time.Since(navStart) > o.cfg.CaptureTimeout {
			missing := o.missingSlots()
			return false, fmt.Errorf("%w: missing %v", ErrNetworkCaptureTimeout, missing)
		}
		return false, nil
	})
	if err != nil {
		return MediaOutcome{}, fmt.Errorf("fetch media: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) missingSlots() []Slot {
	captured := o.listener.Captured()
	var missing []Slot
	for _, s := range []Slot{SlotManifest, SlotAudioInit, SlotVideoInit, SlotAudioSegment, SlotVideoSegment} {
		if _, ok := captured[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// finalize promotes the session's files. Audio-only media is muxed with the
// slide video into one file; real video is kept next to the slide video.
func (o *Orchestrator) finalize(ctx context.Context, slug, mediaPath string, kind manifest.Kind, slidePath string) (Outputs, error) {
	videoOut := filepath.Join(o.cfg.OutputDir, VideoName(slug))

	if kind == manifest.KindAudioOnly {
		o.log.Info("will combine audio and video")
		combined := filepath.Join(o.cfg.WorkDir, combinedFile)
		if err := o.muxer.Mux(ctx, slidePath, mediaPath, combined); err != nil {
			return Outputs{}, fmt.Errorf("combine slides and audio: %w", err)
		}
		if err := moveFile(combined, videoOut); err != nil {
			return Outputs{}, err
		}
		for _, p := range []string{slidePath, mediaPath} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				o.log.Warn("remove working file", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
		return Outputs{Video: videoOut}, nil
	}

	o.log.Info("separating the output")
	slidesOut := filepath.Join(o.cfg.OutputDir, SlidesName(slug))
	for _, p := range []string{mediaPath, slidePath} {
		if _, err := os.Stat(p); err != nil {
			return Outputs{}, fmt.Errorf("finalize outputs: %w", err)
		}
	}
	if err := moveFile(mediaPath, videoOut); err != nil {
		return Outputs{}, err
	}
	if err := moveFile(slidePath, slidesOut); err != nil {
		// Both files are promoted or neither is.
		if rmErr := os.Remove(videoOut); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.log.Warn("remove promoted video", slog.String("path", videoOut), slog.String("error", rmErr.Error()))
		}
		return Outputs{}, err
	}
	return Outputs{Video: videoOut, Slides: slidesOut}, nil
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	prev := o.phase
	o.phase = p
	o.mu.Unlock()

	o.metrics.SetPhase(string(prev), string(p))
	o.log.Debug("session phase", slog.String("phase", string(p)))
}

// Snapshot implements StatusSource.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	snap := Snapshot{
		ID:        o.id,
		Phase:     o.phase,
		Title:     o.title,
		StartedAt: o.startedAt,
		Outputs:   o.outputs,
	}
	o.mu.RUnlock()

	snap.Captured = o.listener.Captured()
	if tl, ok := o.listener.Timeline(); ok {
		snap.TimelineSlides = tl.Slides()
	}
	if res, ok := o.listener.Media(); ok {
		if res.Err != nil {
			snap.MediaError = res.Err.Error()
		} else {
			snap.MediaKind = res.Result.Kind
		}
	}
	return snap
}
