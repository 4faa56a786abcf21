package imot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"imot-scraper/config"
	"imot-scraper/utils"
)

// ErrRenderTimeout marks a headless page load that did not produce the
// content marker within the deadline. It is a transient failure.
var ErrRenderTimeout = errors.New("render timeout")

// Renderer loads one JavaScript-dependent page in a headless browser and
// returns its rendered markup.
type Renderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// ChromeRenderer runs pages through a shared Chrome allocator. Concurrent
// tabs are bounded by a semaphore; the tab is released on every exit path.
type ChromeRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pages       *semaphore.Weighted
	timeout     time.Duration
	log         *zap.SugaredLogger
}

func NewChromeRenderer(cfg *config.Config, log *zap.SugaredLogger) *ChromeRenderer {
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(cfg.Headless)...,
	)
	return &ChromeRenderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pages:       semaphore.NewWeighted(int64(cfg.RenderPages)),
		timeout:     cfg.RenderTimeout,
		log:         log,
	}
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	r.allocCancel()
}

func (r *ChromeRenderer) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if err := r.pages.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire render page: %w", err)
	}
	defer r.pages.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()

	// The tab context descends from the allocator, not from the caller's
	// ctx; propagate caller cancellation by hand.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		utils.HideWebDriver(),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s after %v", ErrRenderTimeout, url, r.timeout)
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	r.log.Debugw("page rendered", "url", url, "bytes", len(html))
	return html, nil
}
