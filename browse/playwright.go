package browse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Renderer drives a headless chromium through Playwright and returns fully
// rendered documents. One Renderer owns one browser process; pages are opened
// and closed per navigation.
type Renderer struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	userAgent  string
	navTimeout time.Duration
	settle     Settle
	logger     *slog.Logger
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	UserAgent  string
	NavTimeout time.Duration
	Settle     Settle
	Proxy      string // optional outbound proxy, e.g. http://host:port
}

// NewRenderer launches the browser. Callers must Close it.
func NewRenderer(opts RendererOptions, logger *slog.Logger) (*Renderer, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	}
	if opts.Proxy != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.Proxy}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			logger.Warn("Failed to stop playwright after launch error", "error", stopErr)
		}
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	logger.Info("Browser launched", "headless", true, "proxy", opts.Proxy != "")

	return &Renderer{
		pw:         pw,
		browser:    browser,
		userAgent:  opts.UserAgent,
		navTimeout: opts.NavTimeout,
		settle:     opts.Settle,
		logger:     logger,
	}, nil
}

// Render navigates to pageURL, applies the settle policy, and returns the
// rendered document.
func (r *Renderer) Render(ctx context.Context, pageURL string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := r.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(r.userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	defer func() {
		if closeErr := bctx.Close(); closeErr != nil {
			r.logger.Warn("Failed to close browser context", "error", closeErr)
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	startTime := time.Now()
	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(r.navTimeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("goto %s: %w", pageURL, err)
	}

	r.logger.Info("Page rendered",
		"url", pageURL,
		"duration_ms", time.Since(startTime).Milliseconds())

	r.applySettle(page)

	markup, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}

	return NewDocument(pageURL, markup)
}

// applySettle waits and scrolls so lazily loaded tiles get a chance to
// render. Failures here are not fatal; extraction tolerates partial content.
func (r *Renderer) applySettle(page playwright.Page) {
	if r.settle.Delay > 0 {
		page.WaitForTimeout(float64(r.settle.Delay.Milliseconds()))
	}

	for i := 0; i < r.settle.ScrollSteps; i++ {
		if _, err := page.Evaluate("window.scrollBy(0, window.innerHeight)"); err != nil {
			r.logger.Warn("Scroll step failed", "step", i, "error", err)
			return
		}
		if r.settle.StepDelay > 0 {
			page.WaitForTimeout(float64(r.settle.StepDelay.Milliseconds()))
		}
	}
}

// Close shuts down the browser and the playwright driver.
func (r *Renderer) Close() error {
	if err := r.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	if err := r.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}
