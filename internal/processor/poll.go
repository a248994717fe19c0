package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pauljones0/skuwatch/internal/catalog"
	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/scraper"
)

// PollStats summarizes one poll pass.
type PollStats struct {
	Due       int
	Skipped   int
	Good      int
	Failed    int
	WebCalls  int
	SaveFails int
}

// Poll refreshes every due item. Items of one product are resolved
// together; store failures and write errors are counted, never fatal.
func (p *Processor) Poll(ctx context.Context, cfg *config.Config) (PollStats, error) {
	var stats PollStats
	now := p.now()

	items, err := p.store.FindDue(ctx, now, cfg.CheckInterval)
	if err != nil {
		return stats, fmt.Errorf("failed to find due items: %w", err)
	}

	groups := make(map[models.ProductKey][]models.TrackedItem)
	for _, item := range items {
		if !cfg.IsStoreActive(item.Store) || !dueAfterBackoff(item, now, cfg.CheckInterval) {
			stats.Skipped++
			continue
		}
		stats.Due++
		key := item.ProductKey()
		groups[key] = append(groups[key], item)
	}

	keys := make([]models.ProductKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Store != keys[j].Store {
			return keys[i].Store < keys[j].Store
		}
		return keys[i].ProductID < keys[j].ProductID
	})

	slog.Info("Polling due items", "due", stats.Due, "products", len(keys), "skipped", stats.Skipped)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		group := groups[key]

		res, err := p.resolver.Resolve(ctx, key.Store, key.ProductID, group[0].URL)
		if err != nil {
			slog.Warn("Failed to resolve product", "product", key.String(), "error", err)
			res = catalog.Resolution{Status: scraper.StatusParseError}
		}

		for _, item := range group {
			u := evaluate(item, res, cfg.PriceChangeThreshold(item.Store), now)
			p.metrics.PollOutcome(string(item.Store), u.Good)
			if u.Good {
				stats.Good++
			} else {
				stats.Failed++
			}
			if err := p.store.ApplyPoll(ctx, item.ID, u); err != nil {
				stats.SaveFails++
				slog.Error("Failed to save poll result", "item", item.ID, "error", err)
			}
		}

		if res.Source == catalog.SourceWeb {
			stats.WebCalls++
			if err := p.sleep(ctx, cfg.RequestDelay); err != nil {
				return stats, err
			}
		}
	}

	slog.Info("Finished polling", "good", stats.Good, "failed", stats.Failed, "web_calls", stats.WebCalls, "save_failures", stats.SaveFails)
	return stats, nil
}

// dueAfterBackoff stretches the interval of items that have not been seen
// in the store for a day or more by one hour per inactive day.
func dueAfterBackoff(item models.TrackedItem, now time.Time, interval time.Duration) bool {
	inactive := now.Sub(item.LastGoodAt)
	if inactive < 24*time.Hour {
		return true
	}
	return now.Sub(item.LastCheckedAt) >= interval+inactive/24
}

// evaluate turns one resolution into the poller's write for item.
func evaluate(item models.TrackedItem, res catalog.Resolution, threshold float64, now time.Time) models.PollUpdate {
	u := models.PollUpdate{LastCheckedAt: now, ErrorCount: item.ErrorCount + 1}
	if !res.OK() {
		return u
	}
	v, ok := res.Variants[item.VariantID]
	if !ok {
		return u
	}

	u.Good = true
	u.ErrorCount = 0
	u.Price = v.Price
	u.Currency = v.Currency
	u.InStock = v.InStock
	u.Label = v.Label
	u.LastGoodAt = now

	if v.InStock != item.InStock {
		switch {
		case item.PendingInStockFrom == nil:
			old := item.InStock
			u.TouchPendingInStock, u.PendingInStockFrom = true, &old
		case *item.PendingInStockFrom == v.InStock:
			u.TouchPendingInStock = true
		}
	}

	switch {
	case v.Currency != item.Currency:
		// Prices in different currencies are not comparable.
		if item.PendingPriceFrom != nil {
			u.TouchPendingPrice = true
		}
	case item.PendingPriceFrom != nil:
		if *item.PendingPriceFrom == v.Price {
			u.TouchPendingPrice = true
		}
	case significantChange(item.Price, v.Price, threshold):
		old := item.Price
		u.TouchPendingPrice, u.PendingPriceFrom = true, &old
	}
	return u
}

// significantChange reports whether cur moved away from old by more than
// the threshold fraction of old.
func significantChange(old, cur int64, threshold float64) bool {
	if old == cur {
		return false
	}
	return math.Abs(float64(cur-old)) > float64(old)*threshold
}
