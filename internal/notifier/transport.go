package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxAttempts     = 3
	maxResponseBody = 1 << 20
)

type backoffFunc func(resp *http.Response, body []byte, attempt int) time.Duration

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not worth retrying.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
		return time.Second << attempt
	case resp.StatusCode >= 500:
		return 500 * time.Millisecond << attempt
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// postJSON sends payload, retrying network errors and the statuses backoff
// allows. A non-2xx final response is returned with a nil error so callers
// can classify it.
func postJSON(ctx context.Context, hc *http.Client, limiter *rate.Limiter, url string, payload any, backoff backoffFunc) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			if attempt+1 >= maxAttempts || ctx.Err() != nil {
				return 0, nil, err
			}
			slog.Warn("Request failed, retrying", "attempt", attempt+1, "error", err)
			if err := sleepCtx(ctx, time.Second<<attempt); err != nil {
				return 0, nil, err
			}
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, body, nil
		}
		wait := backoff(resp, body, attempt)
		if wait == 0 || attempt+1 >= maxAttempts {
			return resp.StatusCode, body, nil
		}
		slog.Warn("Retryable response", "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return 0, nil, err
		}
	}
}
