package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"
)

// Renderer loads a page in a headless browser and returns the rendered HTML
// and the URL after redirects.
type Renderer interface {
	Render(ctx context.Context, url string) (html string, finalURL string, err error)
	Close() error
}

var errNoRenderer = errors.New("no browser renderer configured")

// renderHTML fetches urlStr through the configured renderer.
func (c *Client) renderHTML(ctx context.Context, urlStr string) (*goquery.Document, string, string, error) {
	if err := c.checkURL(urlStr); err != nil {
		return nil, "", "", err
	}
	if c.renderer == nil {
		return nil, "", urlStr, errNoRenderer
	}
	html, finalURL, err := c.renderer.Render(ctx, urlStr)
	if err != nil {
		return nil, "", finalURL, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", finalURL, fmt.Errorf("failed to parse rendered HTML of %s: %w", urlStr, err)
	}
	return doc, html, finalURL, nil
}

// ChromedpRenderer drives a local Chrome through the DevTools protocol. A
// fresh browser is started per page so no state leaks between stores.
type ChromedpRenderer struct {
	userAgent string
}

func NewChromedpRenderer() *ChromedpRenderer {
	return &ChromedpRenderer{userAgent: defaultUserAgent}
}

func (r *ChromedpRenderer) Render(ctx context.Context, url string) (string, string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.userAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var html, location string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", url, fmt.Errorf("chromedp render of %s: %w", url, err)
	}
	if location == "" {
		location = url
	}
	return html, location, nil
}

func (r *ChromedpRenderer) Close() error { return nil }

// PlaywrightRenderer keeps one Chromium instance alive and opens a page per
// render. The browser is started on first use.
type PlaywrightRenderer struct {
	mu        sync.Mutex
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
}

func NewPlaywrightRenderer() *PlaywrightRenderer {
	return &PlaywrightRenderer{userAgent: defaultUserAgent}
}

func (r *PlaywrightRenderer) start() (playwright.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}
	r.pw, r.browser = pw, browser
	return browser, nil
}

func (r *PlaywrightRenderer) Render(ctx context.Context, url string) (string, string, error) {
	browser, err := r.start()
	if err != nil {
		return "", url, err
	}
	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(r.userAgent),
	})
	if err != nil {
		return "", url, fmt.Errorf("could not open page: %w", err)
	}
	defer page.Close()

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return "", url, fmt.Errorf("playwright render of %s: %w", url, context.DeadlineExceeded)
		}
		return "", url, fmt.Errorf("playwright render of %s: %w", url, err)
	}
	html, err := page.Content()
	if err != nil {
		return "", url, fmt.Errorf("could not read page content: %w", err)
	}
	return html, page.URL(), nil
}

func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	if stopErr := r.pw.Stop(); err == nil {
		err = stopErr
	}
	r.browser, r.pw = nil, nil
	return err
}
