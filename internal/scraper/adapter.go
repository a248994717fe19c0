package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/validator"
)

// Status classifies the outcome of one adapter fetch.
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusParseError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusParseError:
		return "parse_error"
	}
	return "unknown"
}

// Result is what an adapter returns for one product page. An OK result with
// zero variants means the product exists but has no purchasable offers.
type Result struct {
	Status   Status
	Variants models.VariantSet
	// URL is the page URL after redirects, used as the canonical product URL.
	URL string
	Err error
}

// OK reports whether the page was fetched and understood.
func (r Result) OK() bool { return r.Status == StatusOK }

// Adapter fetches one store's product page and normalizes it into variants.
// Implementations must not write to shared state.
type Adapter interface {
	Store() models.StoreID
	Fetch(ctx context.Context, url string, timeout time.Duration) Result
}

// parseFunc does the store specific part of a fetch: download and extract.
type parseFunc func(ctx context.Context, url string) (models.VariantSet, string, error)

type storeAdapter struct {
	store    models.StoreID
	validate *validator.Validator
	parse    parseFunc
}

func newStoreAdapter(store models.StoreID, v *validator.Validator, parse parseFunc) *storeAdapter {
	return &storeAdapter{store: store, validate: v, parse: parse}
}

func (a *storeAdapter) Store() models.StoreID { return a.store }

func (a *storeAdapter) Fetch(ctx context.Context, url string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	variants, finalURL, err := a.parse(ctx, url)
	if finalURL == "" {
		finalURL = url
	}
	if err != nil {
		if isTimeout(ctx, err) {
			return Result{Status: StatusTimeout, URL: finalURL, Err: fmt.Errorf("%w: %s %s: %v", models.ErrFetchTimeout, a.store, url, err)}
		}
		return Result{Status: StatusParseError, URL: finalURL, Err: fmt.Errorf("%w: %s %s: %v", models.ErrParseFailure, a.store, url, err)}
	}
	if variants == nil {
		variants = models.VariantSet{}
	}
	if err := a.validate.ValidateVariantSet(a.store, variants); err != nil {
		return Result{Status: StatusParseError, URL: finalURL, Err: fmt.Errorf("%w: %s %s: %v", models.ErrParseFailure, a.store, url, err)}
	}
	return Result{Status: StatusOK, Variants: variants, URL: finalURL}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
