package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/notifier"
)

// SweepCache evicts product cache entries older than the cache lifetime.
func (p *Processor) SweepCache(ctx context.Context, cfg *config.Config) (int, error) {
	if p.cache == nil {
		return 0, nil
	}
	n, err := p.cache.EvictOlderThan(ctx, cfg.CacheLifetime)
	if err != nil {
		return n, fmt.Errorf("failed to evict cache entries: %w", err)
	}
	slog.Info("Swept product cache", "evicted", n)
	return n, nil
}

// PurgeStale deletes enabled items in active stores that have not been
// seen for longer than the error max age. Items the poller skips are left
// alone. Each owner gets one farewell message listing everything removed;
// a failed farewell does not keep the items.
func (p *Processor) PurgeStale(ctx context.Context, cfg *config.Config) (int, error) {
	before := p.now().Add(-cfg.ErrorMaxAge)
	found, err := p.store.FindStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale items: %w", err)
	}
	items := found[:0]
	for _, item := range found {
		if item.Enabled && cfg.IsStoreActive(item.Store) {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	farewells := make(map[string][]string)
	for _, item := range items {
		farewells[item.SubscriberID] = append(farewells[item.SubscriberID], notifier.ItemLine(notifier.HTML, item, notifier.LineOptions{}))
	}
	subs := make([]string, 0, len(farewells))
	for sub := range farewells {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	days := int(cfg.ErrorMaxAge.Hours() / 24)
	for _, sub := range subs {
		header := fmt.Sprintf("🗑 Not available for more than %d days, removed from tracking:", days)
		err := p.deliverer.Send(ctx, sub, append([]string{header}, farewells[sub]...))
		switch {
		case err == nil:
			p.metrics.Delivery("ok")
		case errors.Is(err, models.ErrRecipientGone):
			p.metrics.Delivery("gone")
			if err := p.store.SetSubscriberEnabled(ctx, sub, false); err != nil {
				slog.Error("Failed to disable subscriber", "subscriber", sub, "error", err)
			}
		default:
			p.metrics.Delivery("error")
			slog.Warn("Failed to send farewell", "subscriber", sub, "error", err)
		}
	}

	deleted := 0
	for _, item := range items {
		if err := p.store.DeleteItem(ctx, item.ID); err != nil {
			slog.Error("Failed to delete stale item", "item", item.ID, "error", err)
			continue
		}
		deleted++
	}
	slog.Info("Purged stale items", "deleted", deleted, "subscribers_notified", len(subs))
	return deleted, nil
}
