// Package browser drives the session player in a Chrome instance through the
// DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/renameio/v2"
)

const (
	alreadyRegistered = `//*[text()='Already Registered?']`
	emailInput        = `input.login-field`
	loginButton       = `#login-container > div > form > div > div.col-xs-12.col-sm-2.submit-container > button`
	titleSpan         = `span[name='title']`

	screenshotQuality = 90
)

// layoutScript mutes the player, stretches the slide frame over the whole
// viewport and removes the dock so screenshots contain only the slide.
const layoutScript = `(() => {
	document.querySelector("video").muted = true;
	const slide = document.querySelector('[aria-label="player_slide"]');
	if (slide) {
		slide.style = "position: absolute !important;left: 0px !important;top: 0px !important;width: 100vw !important;height: 100vh !important;z-index: 9999 !important;padding: 0px !important;margin: 0px !important;";
	}
	const content = document.querySelector(".window-content");
	if (content) {
		content.style = "border: none !important; width: none;";
	}
	const dock = document.querySelector("#dock-widget-list");
	if (dock) {
		dock.remove();
	}
	return true;
})()`

// Config controls the browser instance.
type Config struct {
	Headless bool
	Width    int
	Height   int
	// ActionTimeout bounds every single page interaction. Zero disables it.
	ActionTimeout time.Duration
	// Prime is how long the player runs before being paused, so that seeking
	// renders frames.
	Prime time.Duration
	// StepDelay is waited between the login form interactions.
	StepDelay time.Duration
}

// DefaultConfig returns the viewport and timings the player needs.
func DefaultConfig() Config {
	return Config{
		Headless:      true,
		Width:         1920,
		Height:        1080,
		ActionTimeout: 50 * time.Second,
		Prime:         1500 * time.Millisecond,
		StepDelay:     2 * time.Second,
	}
}

// Browser is one Chrome tab. It implements the page used by the session.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	log    *slog.Logger

	mu        sync.RWMutex
	onRequest func(url string)
}

// New starts Chrome and opens a tab with network events enabled. Close
// releases it.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug("chrome", slog.String("msg", fmt.Sprintf(format, args...)))
		}),
	)

	b := &Browser{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		cfg: cfg,
		log: log,
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Request != nil {
			b.mu.RLock()
			fn := b.onRequest
			b.mu.RUnlock()
			if fn != nil {
				fn(e.Request.URL)
			}
		}
	})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
	); err != nil {
		b.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return b, nil
}

// Close shuts the tab and the browser down.
func (b *Browser) Close() {
	b.cancel()
}

// OnRequest registers fn for the URL of every request the tab sends. fn runs
// on the event loop and must not block.
func (b *Browser) OnRequest(fn func(url string)) {
	b.mu.Lock()
	b.onRequest = fn
	b.mu.Unlock()
}

// run executes actions on the tab, bounded by ctx and the action timeout.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDl context.CancelFunc
		runCtx, cancelDl = context.WithDeadline(runCtx, dl)
		defer cancelDl()
	}
	if b.cfg.ActionTimeout > 0 {
		var cancelTo context.CancelFunc
		runCtx, cancelTo = context.WithTimeout(runCtx, b.cfg.ActionTimeout)
		defer cancelTo()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

// Navigate loads url and waits for the document.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.log.Info("navigating", slog.String("url", url))
	return b.run(ctx, chromedp.Navigate(url))
}

// Title returns the session title shown on the registration page.
func (b *Browser) Title(ctx context.Context) (string, error) {
	var title string
	if err := b.run(ctx, chromedp.Text(titleSpan, &title, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(title), nil
}

// Login submits the returning-attendee form and waits for the player.
func (b *Browser) Login(ctx context.Context, email string) error {
	b.log.Info("logging in")
	return b.run(ctx,
		chromedp.Click(alreadyRegistered, chromedp.BySearch),
		chromedp.Sleep(b.cfg.StepDelay),
		chromedp.Click(emailInput, chromedp.ByQuery),
		chromedp.Sleep(b.cfg.StepDelay),
		chromedp.SendKeys(emailInput, email, chromedp.ByQuery),
		chromedp.Sleep(b.cfg.StepDelay),
		chromedp.Click(loginButton, chromedp.ByQuery),
		chromedp.WaitReady("video", chromedp.ByQuery),
	)
}

// PreparePlayback mutes the player, lays the slide out for capture and runs
// the video briefly so later seeks render.
func (b *Browser) PreparePlayback(ctx context.Context) error {
	b.log.Info("applying slide layout")
	var ok bool
	return b.run(ctx,
		chromedp.Evaluate(layoutScript, &ok),
		chromedp.Evaluate(primeScript(b.cfg.Prime), nil, awaitPromise),
	)
}

// Duration returns the player's media duration in seconds.
func (b *Browser) Duration(ctx context.Context) (float64, error) {
	var d float64
	if err := b.run(ctx, chromedp.Evaluate(`document.querySelector("video").duration`, &d)); err != nil {
		return 0, fmt.Errorf("read video duration: %w", err)
	}
	return d, nil
}

// SetPlaybackTime seeks the player to sec.
func (b *Browser) SetPlaybackTime(ctx context.Context, sec float64) error {
	return b.run(ctx, chromedp.Evaluate(seekScript(sec), nil))
}

// CaptureVisualSample writes a JPEG screenshot of the page to path.
func (b *Browser) CaptureVisualSample(ctx context.Context, path string) error {
	var buf []byte
	if err := b.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func seekScript(sec float64) string {
	return `document.querySelector("video").currentTime = ` + strconv.FormatFloat(sec, 'f', -1, 64)
}

func primeScript(d time.Duration) string {
	return fmt.Sprintf(`new Promise((resolve) => {
	const v = document.querySelector("video");
	v.play();
	setTimeout(() => { v.pause(); resolve(true); }, %d);
})`, d.Milliseconds())
}
