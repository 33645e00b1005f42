// Package slides renders the slide deck of a session into a video whose
// per-slide durations follow the recovered timeline.
package slides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"slidecast/internal/platform/metrics"
	"slidecast/internal/platform/retry"
	"slidecast/internal/timeline"
	"slidecast/internal/transcode"

	"github.com/google/renameio/v2"
)

const (
	listFile      = "input.txt"
	untrimmedFile = "output.mp4"
	// TrimmedFile is the synthesized slide video handed to the orchestrator.
	TrimmedFile = "formattedOutput.mp4"
)

// ErrTimelineNotFinalized is returned when the last slide has no duration yet.
var ErrTimelineNotFinalized = errors.New("timeline not finalized")

// Player is the part of the page the synthesizer drives.
type Player interface {
	SetPlaybackTime(ctx context.Context, sec float64) error
	CaptureVisualSample(ctx context.Context, path string) error
}

// Transcoder assembles and trims the slide video.
type Transcoder interface {
	Concat(ctx context.Context, listPath, out, pixFmt string) error
	Trim(ctx context.Context, in, out string, end time.Duration) error
}

// Config holds the capture timings. Both values are empirical.
type Config struct {
	WorkDir string
	// LeadIn is added to each slide offset so the sample is not taken on a transition.
	LeadIn time.Duration
	// Settle is waited after seeking and again after capturing.
	Settle time.Duration
}

// Synthesizer captures one sample per slide and turns them into a video.
type Synthesizer struct {
	player  Player
	tc      Transcoder
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewSynthesizer returns a Synthesizer. m may be nil.
func NewSynthesizer(player Player, tc Transcoder, cfg Config, log *slog.Logger, m *metrics.Metrics) *Synthesizer {
	return &Synthesizer{player: player, tc: tc, cfg: cfg, log: log, metrics: m}
}

// Synthesize captures the slides of tl and returns the path of a video cut to
// exactly totalSec seconds. tl must be finalized.
func (s *Synthesizer) Synthesize(ctx context.Context, tl timeline.Timeline, totalSec float64) (string, error) {
	if !tl.Finalized() {
		return "", ErrTimelineNotFinalized
	}
	if totalSec <= 0 || math.IsNaN(totalSec) || math.IsInf(totalSec, 0) {
		return "", fmt.Errorf("invalid session duration %v", totalSec)
	}

	entries := make([]transcode.ConcatEntry, 0, tl.Slides())
	for i, off := range tl.Offsets {
		name := fmt.Sprintf("%d.jpg", i)
		if err := s.capture(ctx, i, off, filepath.Join(s.cfg.WorkDir, name)); err != nil {
			return "", err
		}
		entries = append(entries, transcode.ConcatEntry{File: name, Duration: seconds(tl.Durations[i])})
	}

	listPath := filepath.Join(s.cfg.WorkDir, listFile)
	if err := writeList(listPath, entries); err != nil {
		return "", err
	}

	untrimmed := filepath.Join(s.cfg.WorkDir, untrimmedFile)
	trimmed := filepath.Join(s.cfg.WorkDir, TrimmedFile)

	s.log.Info("creating slide video", slog.Int("slides", len(entries)), slog.String("list", listPath))
	if err := s.tc.Concat(ctx, listPath, untrimmed, transcode.PixelFormat); err != nil {
		return "", fmt.Errorf("assemble slide video: %w", err)
	}

	s.log.Info("trimming slide video", slog.Float64("total_sec", totalSec))
	if err := s.tc.Trim(ctx, untrimmed, trimmed, seconds(totalSec)); err != nil {
		return "", fmt.Errorf("trim slide video: %w", err)
	}

	if err := os.Remove(untrimmed); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("remove untrimmed slide video", slog.String("error", err.Error()))
	}
	return trimmed, nil
}

func (s *Synthesizer) capture(ctx context.Context, i int, offset float64, path string) error {
	pos := offset + s.cfg.LeadIn.Seconds()
	s.log.Debug("seeking slide", slog.Int("slide", i), slog.Float64("position", pos))

	if err := s.player.SetPlaybackTime(ctx, pos); err != nil {
		return fmt.Errorf("seek slide %d: %w", i, err)
	}
	if err := retry.Sleep(ctx, s.cfg.Settle); err != nil {
		return err
	}
	if err := s.player.CaptureVisualSample(ctx, path); err != nil {
		return fmt.Errorf("capture slide %d: %w", i, err)
	}
	s.metrics.IncSlidesCaptured()
	return retry.Sleep(ctx, s.cfg.Settle)
}

func writeList(path string, entries []transcode.ConcatEntry) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending concat list: %w", err)
	}
	defer pending.Cleanup()

	if err := transcode.WriteConcatList(pending, entries); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace concat list: %w", err)
	}
	return nil
}

func seconds(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
