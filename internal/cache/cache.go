// Package cache holds recent adapter results so that one product page is
// fetched at most once per lifetime window, however many subscribers track it.
package cache

import (
	"context"
	"time"

	"github.com/pauljones0/skuwatch/internal/models"
)

// Store is a product cache keyed by product key or canonical URL.
// A nil VariantSet records a failed fetch.
type Store interface {
	Get(ctx context.Context, key string) (models.CacheEntry, bool, error)
	Put(ctx context.Context, key string, vs models.VariantSet) error
	EvictOlderThan(ctx context.Context, lifetime time.Duration) (int, error)
}
