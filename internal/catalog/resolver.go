// Package catalog resolves a tracked product to its current variants, going
// to the store only when the product cache has nothing fresh.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pauljones0/skuwatch/internal/cache"
	"github.com/pauljones0/skuwatch/internal/metrics"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/scraper"
	"github.com/pauljones0/skuwatch/internal/util"
)

// Source tells whether a resolution hit the network.
type Source string

const (
	SourceCache Source = "cache"
	SourceWeb   Source = "web"
)

// Resolution is the outcome of resolving one product.
type Resolution struct {
	// Variants is nil when the fetch failed.
	Variants models.VariantSet
	Source   Source
	Status   scraper.Status
}

func (r Resolution) OK() bool { return r.Status == scraper.StatusOK }

// AdapterLookup finds the adapter for a store.
type AdapterLookup interface {
	Lookup(store models.StoreID) (scraper.Adapter, bool)
}

type Resolver struct {
	cache    cache.Store
	adapters AdapterLookup
	timeout  time.Duration
	metrics  *metrics.Metrics
	group    singleflight.Group
}

func New(c cache.Store, adapters AdapterLookup, timeout time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{cache: c, adapters: adapters, timeout: timeout, metrics: m}
}

func productCacheKey(k models.ProductKey) string { return "product:" + k.String() }

func urlCacheKey(rawURL string) string {
	if normalized, err := util.NormalizeURL(rawURL); err == nil {
		return "url:" + normalized
	}
	return "url:" + rawURL
}

// Resolve returns the variants of a product. The cache is consulted by
// product key first, then by URL. Concurrent misses for the same URL share
// one fetch; only the caller that performed it sees SourceWeb.
func (r *Resolver) Resolve(ctx context.Context, store models.StoreID, productID, url string) (Resolution, error) {
	adapter, ok := r.adapters.Lookup(store)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", models.ErrUnknownStore, store)
	}

	var keys []string
	if productID != "" {
		keys = append(keys, productCacheKey(models.ProductKey{Store: store, ProductID: productID}))
	}
	urlKey := urlCacheKey(url)
	keys = append(keys, urlKey)

	if res, ok := r.lookup(ctx, keys...); ok {
		r.metrics.Resolution(string(store), string(SourceCache))
		return res, nil
	}

	fetched := false
	v, _, _ := r.group.Do(urlKey, func() (interface{}, error) {
		// A caller that lost the race to a finished flight finds the result here.
		if res, ok := r.lookup(ctx, urlKey); ok {
			return res, nil
		}
		fetched = true
		return r.fetch(ctx, adapter, url, urlKey), nil
	})
	res := v.(Resolution)
	if fetched {
		res.Source = SourceWeb
	} else {
		res.Source = SourceCache
	}
	r.metrics.Resolution(string(store), string(res.Source))
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, keys ...string) (Resolution, bool) {
	for _, key := range keys {
		e, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Cache read failed, treating as miss", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		res := Resolution{Variants: e.Variants, Source: SourceCache, Status: scraper.StatusOK}
		if e.Variants == nil {
			res.Status = scraper.StatusParseError
		}
		return res, true
	}
	return Resolution{}, false
}

func (r *Resolver) fetch(ctx context.Context, adapter scraper.Adapter, url, urlKey string) Resolution {
	store := adapter.Store()
	result := adapter.Fetch(ctx, url, r.timeout)
	r.metrics.Fetch(string(store), result.Status.String())

	if !result.OK() {
		slog.Warn("Store fetch failed", "store", store, "url", url, "status", result.Status, "error", result.Err)
		if err := r.cache.Put(ctx, urlKey, nil); err != nil {
			slog.Warn("Cache write failed", "key", urlKey, "error", err)
		}
		return Resolution{Status: result.Status}
	}

	if err := r.cache.Put(ctx, urlKey, result.Variants); err != nil {
		slog.Warn("Cache write failed", "key", urlKey, "error", err)
	}
	if key, ok := result.Variants.ProductKey(); ok {
		pk := productCacheKey(key)
		if err := r.cache.Put(ctx, pk, result.Variants); err != nil {
			slog.Warn("Cache write failed", "key", pk, "error", err)
		}
	}
	return Resolution{Variants: result.Variants, Status: scraper.StatusOK}
}
