// Package browser is the headless Chromium fetch engine. It renders product
// and search pages for sites that serve empty shells to plain HTTP clients.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/internal/fetcher"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      config.DefaultUserAgents()[0],
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
	}
}

// OptionsFromConfig fills Options from cfg, keeping defaults for zero values.
func OptionsFromConfig(cfg config.BrowserConfig, userAgent string) *Options {
	opts := DefaultOptions()
	opts.Headless = cfg.Headless
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts.ViewportWidth = cfg.ViewportWidth
		opts.ViewportHeight = cfg.ViewportHeight
	}
	if cfg.AcceptLanguage != "" {
		opts.AcceptLanguage = cfg.AcceptLanguage
	}
	if cfg.Locale != "" {
		opts.Locale = cfg.Locale
	}
	if cfg.TimezoneID != "" {
		opts.TimezoneID = cfg.TimezoneID
	}
	if userAgent != "" {
		opts.UserAgent = userAgent
	}
	return opts
}

func (o *Options) headers() map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": o.AcceptLanguage,
		"DNT":             "1",
	}
}

// Browser implements fetcher.Fetcher by rendering each document in a fresh
// page of one shared context. Images go through the HTTP fetcher.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	assets  fetcher.Fetcher
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func New(opts *Options, assets fetcher.Fetcher, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.headers(),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		assets:  assets,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Fetch navigates to rawURL and returns the rendered DOM with the main
// response's status. A cancelled ctx closes the page, aborting navigation.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &fetcher.Error{URL: rawURL, Message: "context done", Cause: err}
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, &fetcher.Error{URL: rawURL, Message: "failed to create page", Cause: err}
	}
	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	stop := context.AfterFunc(ctx, func() { _ = page.Close() })
	defer func() {
		if stop() {
			_ = page.Close()
		}
	}()

	start := time.Now()
	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
	})
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &fetcher.Error{URL: rawURL, Message: "navigation failed", Cause: err}
	}
	if resp == nil {
		return nil, &fetcher.Error{URL: rawURL, Message: "navigation returned no response"}
	}

	content, err := page.Content()
	if err != nil {
		return nil, &fetcher.Error{URL: rawURL, Message: "failed to read content", Cause: err}
	}

	status := resp.Status()
	b.logger.Debug("rendered page", "url", rawURL, "status", status, "bytes", len(content), "duration", time.Since(start))

	return &fetcher.Response{
		URL:         page.URL(),
		StatusCode:  status,
		ContentType: resp.Headers()["content-type"],
		Body:        []byte(content),
		OK:          status >= 200 && status < 300,
	}, nil
}

func (b *Browser) FetchAsset(ctx context.Context, rawURL string) (*fetcher.Response, error) {
	if b.assets == nil {
		return nil, &fetcher.Error{URL: rawURL, Message: "no asset fetcher configured"}
	}
	return b.assets.FetchAsset(ctx, rawURL)
}

func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if b.context != nil {
			if err := b.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close context: %w", err))
			}
		}
		if b.browser != nil {
			if err := b.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}
		if b.pw != nil {
			if err := b.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
			}
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &fetcher.Error{URL: rawURL, Message: "invalid url", Cause: fetcher.ErrInvalidURL}
	}
	return nil
}
