package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidecast/internal/browser"
	"slidecast/internal/media"
	"slidecast/internal/platform/config"
	"slidecast/internal/platform/logger"
	"slidecast/internal/platform/metrics"
	"slidecast/internal/platform/retry"
	"slidecast/internal/session"
	"slidecast/internal/slides"
	"slidecast/internal/timeline"
	"slidecast/internal/transcode"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s <email> <event-url> [output-dir]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	_ = config.Load()

	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "text")
	log := logger.New(logLevel, logFormat)

	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 || len(args) > 3 {
		flag.Usage()
		os.Exit(1)
	}

	outputDir := config.GetEnv("OUTPUT_DIR", "./output")
	if len(args) == 3 {
		outputDir = args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, args[0], args[1], outputDir); err != nil {
		log.Error("session failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, email, rawURL, outputDir string) error {
	eventURL, err := session.NormalizeEventURL(rawURL)
	if err != nil {
		return err
	}

	workDir := config.GetEnv("WORK_DIR", "./tmp")
	navTimeout := config.GetEnvDuration("NAVIGATION_TIMEOUT", 50*time.Second)
	statusAddr := config.GetEnv("STATUS_ADDR", "")

	met := metrics.New()
	ff := transcode.New(config.GetEnv("FFMPEG_PATH", "ffmpeg"), log, met)

	bcfg := browser.DefaultConfig()
	bcfg.Headless = config.GetEnvBool("HEADLESS", true)
	bcfg.ActionTimeout = navTimeout
	page, err := browser.New(ctx, bcfg, log)
	if err != nil {
		return err
	}
	defer page.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	listener := session.NewListener(
		session.NewInMemoryStore(),
		timeline.NewClient(httpClient),
		media.NewFetcher(httpClient, ff, workDir, log),
		session.ListenerConfig{
			EventLogMatch: config.GetEnv("EVENT_LOG_MATCH", session.DefaultEventLogMatch),
			BlankSentinel: config.GetEnv("BLANK_SLIDE_SENTINEL", timeline.DefaultBlankSentinel),
		},
		log, met,
	)
	synth := slides.NewSynthesizer(page, ff, slides.Config{
		WorkDir: workDir,
		LeadIn:  config.GetEnvDuration("CAPTURE_LEAD_IN", time.Second),
		Settle:  config.GetEnvDuration("CAPTURE_SETTLE", 4*time.Second),
	}, log, met)

	orch := session.New(page, listener, synth, ff, session.Config{
		WorkDir:           workDir,
		OutputDir:         outputDir,
		NavigationTimeout: navTimeout,
		CaptureTimeout:    config.GetEnvDuration("CAPTURE_TIMEOUT", 2*time.Minute),
		TimelinePolicy: retry.Bounded(
			config.GetEnvInt("TIMELINE_RETRY_ATTEMPTS", 5),
			config.GetEnvDuration("TIMELINE_RETRY_INTERVAL", 2*time.Second),
		),
		MediaPollInterval: config.GetEnvDuration("MEDIA_POLL_INTERVAL", 12*time.Second),
	}, log, met)

	log.Info("session starting",
		slog.String("session_id", orch.ID()),
		slog.String("url", eventURL),
		slog.String("output_dir", outputDir),
		slog.String("status_addr", statusAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		out, err := orch.Run(gctx, eventURL, email)
		if err != nil {
			return err
		}
		log.Info("outputs written", slog.String("video", out.Video), slog.String("slides", out.Slides))
		return nil
	})

	if statusAddr != "" {
		srv := &http.Server{
			Addr:              statusAddr,
			Handler:           session.NewHandler(orch, log, met).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	page.OnRequest(nil)
	listener.Stop()
	return err
}
