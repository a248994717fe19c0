package util

import (
	"fmt"
	"net/url"
	"strings"
)

var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"gclid", "fbclid", "srsltid", "ref",
}

// NormalizeURL produces the canonical form of a product URL used as a cache
// key: https scheme, lower-case host, no fragment and no tracking parameters.
func NormalizeURL(rawURL string) (string, error) {
	// Non-breaking spaces show up when links are copied out of chat clients.
	rawURL = strings.TrimSpace(strings.ReplaceAll(rawURL, "\u00a0", ""))
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}
	if parsedURL.Host == "" {
		return rawURL, fmt.Errorf("url %q has no host", rawURL)
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = strings.ToLower(parsedURL.Host)
	parsedURL.Fragment = ""
	parsedURL.RawFragment = ""

	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
