package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/pauljones0/skuwatch/internal/util"
	"github.com/pauljones0/skuwatch/internal/validator"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0"
	maxBodyBytes     = 8 << 20
)

// storeDomains are the only hosts adapters may contact.
var storeDomains = []string{
	"bike-components.de",
	"chainreactioncycles.com",
	"starbike.com",
	"tradeinn.com",
	"bike-discount.de",
	"bike24.com",
}

// Client is the HTTP side shared by all adapters.
type Client struct {
	httpClient     *http.Client
	selectors      SelectorConfig
	allowedDomains []string
	userAgent      string
	validate       *validator.Validator
	renderer       Renderer
	tradeinnAPI    string
}

// New creates a client limited to the store domains. The cookie jar is
// keyed by public suffix so store cookies never leak across stores.
func New(selectors SelectorConfig) *Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		slog.Warn("Failed to create cookie jar, continuing without", "error", err)
		jar = nil
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Jar:     jar,
		},
		selectors:      selectors,
		allowedDomains: storeDomains,
		userAgent:      defaultUserAgent,
		validate:       validator.New(),
	}
}

// WithRenderer sets the headless browser used by stores that reject plain HTTP clients.
func (c *Client) WithRenderer(r Renderer) *Client {
	c.renderer = r
	return c
}

func (c *Client) validator() *validator.Validator {
	return c.validate
}

// WithAllowedDomains replaces the host allowlist. Used by tests pointing
// adapters at local servers.
func (c *Client) WithAllowedDomains(domains ...string) *Client {
	c.allowedDomains = domains
	return c
}

func (c *Client) checkURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("failed to parse URL %s: %w", urlStr, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	for _, domain := range c.allowedDomains {
		if util.HostMatches(hostname, domain) {
			return nil
		}
	}
	return fmt.Errorf("security violation: URL hostname %s is not in allowlist", hostname)
}

// fetchBody downloads urlStr and returns the body and the URL after redirects.
func (c *Client) fetchBody(ctx context.Context, urlStr string, headers map[string]string) ([]byte, string, error) {
	if err := c.checkURL(urlStr); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request for URL %s: %w", urlStr, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	finalURL := urlStr
	if res.Request != nil && res.Request.URL != nil {
		finalURL = res.Request.URL.String()
	}

	if res.StatusCode != http.StatusOK {
		return nil, finalURL, fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, finalURL, fmt.Errorf("failed to read body of %s: %w", urlStr, err)
	}
	return body, finalURL, nil
}

func (c *Client) fetchHTMLContent(ctx context.Context, urlStr string, headers map[string]string) (*goquery.Document, []byte, string, error) {
	body, finalURL, err := c.fetchBody(ctx, urlStr, headers)
	if err != nil {
		return nil, nil, finalURL, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, finalURL, fmt.Errorf("failed to parse HTML of %s: %w", urlStr, err)
	}
	return doc, body, finalURL, nil
}

// cleanText unescapes the "\/" sequences some stores leave in names.
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `\/`, "/"))
}
