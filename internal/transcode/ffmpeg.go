// Package transcode drives the external ffmpeg binary. Every invocation is
// built as an argument list and executed without a shell.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"slidecast/internal/platform/metrics"
)

const (
	defaultBinary    = "ffmpeg"
	defaultTailLines = 50

	// PixelFormat is understood by every mainstream player.
	PixelFormat = "yuv420p"
)

var (
	// ErrTranscodeFailure is returned when ffmpeg exits unsuccessfully.
	ErrTranscodeFailure = errors.New("transcode failure")

	// ErrInvalidArgument is returned for paths that cannot be passed to ffmpeg safely.
	ErrInvalidArgument = errors.New("invalid transcoder argument")
)

// Runner executes a command, streaming its diagnostic output to stderr.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stderr io.Writer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	return cmd.Run()
}

// FFmpeg exposes the four transcoder operations the pipeline needs.
type FFmpeg struct {
	Binary string
	Runner Runner
	// TailLines is how many diagnostic lines are kept for the failure log,
	// at most 255.
	TailLines int

	log     *slog.Logger
	metrics *metrics.Metrics
}

// New returns an FFmpeg using binary (or "ffmpeg" when empty). m may be nil.
func New(binary string, log *slog.Logger, m *metrics.Metrics) *FFmpeg {
	if binary == "" {
		binary = defaultBinary
	}
	return &FFmpeg{
		Binary:    binary,
		Runner:    ExecRunner{},
		TailLines: defaultTailLines,
		log:       log,
		metrics:   m,
	}
}

func baseArgs() []string {
	return []string{"-y", "-nostdin", "-hide_banner", "-loglevel", "error"}
}

// RemuxArgs builds a stream-copy remux of a manifest into out.
func RemuxArgs(manifestPath, out string) ([]string, error) {
	if err := checkPaths(manifestPath, out); err != nil {
		return nil, err
	}
	return append(baseArgs(),
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto",
		"-i", manifestPath,
		"-c", "copy",
		out,
	), nil
}

// ConcatArgs builds the assembly of a concat list of timed images into a video.
func ConcatArgs(listPath, out, pixFmt string) ([]string, error) {
	if err := checkPaths(listPath, out); err != nil {
		return nil, err
	}
	if pixFmt == "" {
		pixFmt = PixelFormat
	}
	return append(baseArgs(),
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-pix_fmt", pixFmt,
		out,
	), nil
}

// TrimArgs builds a stream-copy cut of in to the range [0, end].
func TrimArgs(in, out string, end time.Duration) ([]string, error) {
	if err := checkPaths(in, out); err != nil {
		return nil, err
	}
	if end <= 0 {
		return nil, fmt.Errorf("%w: trim end %v", ErrInvalidArgument, end)
	}
	return append(baseArgs(),
		"-ss", "00:00:00",
		"-i", in,
		"-to", FormatTimestamp(end),
		"-c", "copy",
		out,
	), nil
}

// MuxArgs builds the combination of the video stream of video with the
// audio stream of audio. Video is copied, audio is encoded to AAC.
func MuxArgs(video, audio, out string) ([]string, error) {
	if err := checkPaths(video, audio, out); err != nil {
		return nil, err
	}
	return append(baseArgs(),
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		out,
	), nil
}

// Remux copies the streams described by a manifest file into out.
func (f *FFmpeg) Remux(ctx context.Context, manifestPath, out string) error {
	args, err := RemuxArgs(manifestPath, out)
	if err != nil {
		return err
	}
	return f.run(ctx, "remux", args)
}

// Concat assembles the images listed in a concat list into a video.
func (f *FFmpeg) Concat(ctx context.Context, listPath, out, pixFmt string) error {
	args, err := ConcatArgs(listPath, out, pixFmt)
	if err != nil {
		return err
	}
	return f.run(ctx, "concat", args)
}

// Trim cuts in to [0, end] without re-encoding.
func (f *FFmpeg) Trim(ctx context.Context, in, out string, end time.Duration) error {
	args, err := TrimArgs(in, out, end)
	if err != nil {
		return err
	}
	return f.run(ctx, "trim", args)
}

// Mux combines a video-only file with an audio-only file.
func (f *FFmpeg) Mux(ctx context.Context, video, audio, out string) error {
	args, err := MuxArgs(video, audio, out)
	if err != nil {
		return err
	}
	return f.run(ctx, "mux", args)
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) error {
	tail := newTailWriter(f.TailLines)
	start := time.Now()

	f.log.Debug("transcoder start", slog.String("op", op), slog.String("args", strings.Join(args, " ")))
	err := f.Runner.Run(ctx, f.Binary, args, tail)
	f.metrics.ObserveTranscode(op, err)

	if err != nil {
		f.log.Error("transcoder failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Any("diagnostics", tail.Lines()),
		)
		return fmt.Errorf("%w: %s: %w", ErrTranscodeFailure, op, err)
	}
	f.log.Info("transcoder finished",
		slog.String("op", op),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

func checkPaths(paths ...string) error {
	for _, p := range paths {
		switch {
		case p == "":
			return fmt.Errorf("%w: empty path", ErrInvalidArgument)
		case strings.HasPrefix(p, "-"):
			return fmt.Errorf("%w: %q looks like an option", ErrInvalidArgument, p)
		case strings.ContainsAny(p, "\x00\r\n"):
			return fmt.Errorf("%w: control character in %q", ErrInvalidArgument, p)
		}
	}
	return nil
}
