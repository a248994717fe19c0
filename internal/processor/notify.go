package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/notifier"
)

const (
	kindBackInStock    = "back_in_stock"
	kindOutOfStock     = "out_of_stock"
	kindPriceDecreased = "price_decreased"
	kindPriceIncreased = "price_increased"
	kindBestDeal       = "best_deal"

	bestDealsTitle = "Best deals"
	warnMarker     = "‼️"
)

// NotifyStats summarizes one notify pass.
type NotifyStats struct {
	Selected    int
	Subscribers int
	Delivered   int
	Deferred    int
	Disabled    int
	Failed      int
	Cleared     int
	BestDeals   int
}

// change is one notification-worthy event on a tracked item.
type change struct {
	kind string
	text string
}

// BestDeal is a price decrease large enough for the best deals digest.
type BestDeal struct {
	Item     models.TrackedItem
	OldPrice int64
	Percent  int
	Absolute int64
	Warn     bool
}

// changesFor renders the subscriber messages for item's pending markers.
// Price messages are only sent while the item is in stock.
func changesFor(item models.TrackedItem) []change {
	var out []change
	line := notifier.ItemLine(notifier.HTML, item, notifier.LineOptions{})

	if item.PendingInStockFrom != nil && *item.PendingInStockFrom != item.InStock {
		if item.InStock {
			out = append(out, change{kindBackInStock, "✅ Back in stock!\n" + line})
		} else {
			out = append(out, change{kindOutOfStock, "🚫 Out of stock\n" + line})
		}
	}

	if item.PendingPriceFrom != nil && item.InStock {
		old := *item.PendingPriceFrom
		was := notifier.WasPrice(old, item.Currency)
		switch {
		case item.Price < old:
			out = append(out, change{kindPriceDecreased, "📉 Price decreased!\n" + line + was})
		case item.Price > old:
			out = append(out, change{kindPriceIncreased, "📈 Price increased\n" + line + was})
		}
	}
	return out
}

// bestDeal reports whether item's pending price decrease qualifies for the digest.
func bestDeal(item models.TrackedItem, cfg *config.Config) (BestDeal, bool) {
	if item.PendingPriceFrom == nil || !item.InStock {
		return BestDeal{}, false
	}
	old := *item.PendingPriceFrom
	if old == 0 || item.Price >= old {
		return BestDeal{}, false
	}
	d := BestDeal{
		Item:     item,
		OldPrice: old,
		Percent:  int(math.Round((1 - float64(item.Price)/float64(old)) * 100)),
		Absolute: old - item.Price,
	}
	if d.Percent < cfg.BestDealsMinPercent || d.Absolute < cfg.MinAbsoluteDrop(item.Currency) {
		return BestDeal{}, false
	}
	d.Warn = d.Percent >= cfg.BestDealsWarnPercent
	return d, true
}

// Line renders the deal for the best deals channel.
func (d BestDeal) Line() string {
	s := notifier.ItemLine(notifier.Markdown, d.Item, notifier.LineOptions{}) +
		notifier.WasPrice(d.OldPrice, d.Item.Currency) + fmt.Sprintf(" %d%%", d.Percent)
	if d.Warn {
		s += warnMarker
	}
	return s
}

// Notify delivers pending changes grouped per subscriber, then clears the
// markers of everything that does not need another attempt and posts the
// best deals digest.
func (p *Processor) Notify(ctx context.Context, cfg *config.Config) (NotifyStats, error) {
	var stats NotifyStats

	items, err := p.store.FindPending(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to find pending items: %w", err)
	}
	stats.Selected = len(items)
	if len(items) == 0 {
		return stats, nil
	}

	bySubscriber := make(map[string][]models.TrackedItem)
	for _, item := range items {
		bySubscriber[item.SubscriberID] = append(bySubscriber[item.SubscriberID], item)
	}
	subscribers := make([]string, 0, len(bySubscriber))
	for id := range bySubscriber {
		subscribers = append(subscribers, id)
	}
	sort.Strings(subscribers)

	var toClear []string
	var deals []BestDeal
	seenDeals := make(map[string]bool)

	for _, sub := range subscribers {
		subItems := bySubscriber[sub]
		sort.Slice(subItems, func(i, j int) bool { return subItems[i].ID < subItems[j].ID })

		var blocks []string
		var kinds []string
		for _, item := range subItems {
			for _, c := range changesFor(item) {
				blocks = append(blocks, c.text)
				kinds = append(kinds, c.kind)
			}
		}

		keep := false
		if len(blocks) > 0 {
			stats.Subscribers++
			keep = p.deliver(ctx, sub, blocks, kinds, &stats)
		}
		if keep {
			continue
		}

		for _, item := range subItems {
			toClear = append(toClear, item.ID)
			if d, ok := bestDeal(item, cfg); ok && !seenDeals[item.DealKey()] {
				seenDeals[item.DealKey()] = true
				deals = append(deals, d)
			}
		}
	}

	if len(toClear) > 0 {
		if err := p.store.ClearPending(ctx, toClear); err != nil {
			return stats, fmt.Errorf("failed to clear pending markers: %w", err)
		}
		stats.Cleared = len(toClear)
	}

	if len(deals) > 0 {
		stats.BestDeals = len(deals)
		p.postBestDeals(ctx, deals)
	}

	slog.Info("Finished notifying",
		"selected", stats.Selected,
		"delivered", stats.Delivered,
		"deferred", stats.Deferred,
		"disabled", stats.Disabled,
		"failed", stats.Failed,
		"best_deals", stats.BestDeals)
	return stats, nil
}

// deliver sends one subscriber's messages and reports whether their
// markers must be kept for a later pass.
func (p *Processor) deliver(ctx context.Context, sub string, blocks, kinds []string, stats *NotifyStats) bool {
	err := p.deliverer.Send(ctx, sub, blocks)
	switch {
	case err == nil:
		stats.Delivered++
		p.metrics.Delivery("ok")
		for _, k := range kinds {
			p.metrics.Notification(k)
		}
		return false
	case errors.Is(err, models.ErrRecipientGone):
		p.metrics.Delivery("gone")
		slog.Info("Subscriber unreachable, disabling", "subscriber", sub, "error", err)
		if err := p.store.SetSubscriberEnabled(ctx, sub, false); err != nil {
			slog.Error("Failed to disable subscriber", "subscriber", sub, "error", err)
			return false
		}
		stats.Disabled++
		return false
	case errors.Is(err, models.ErrDeliveryTransient), errors.Is(err, models.ErrConfigurationMissing):
		stats.Deferred++
		p.metrics.Delivery("deferred")
		slog.Warn("Delivery deferred to next pass", "subscriber", sub, "error", err)
		return true
	default:
		stats.Failed++
		p.metrics.Delivery("error")
		slog.Error("Delivery failed", "subscriber", sub, "error", err)
		return false
	}
}

func (p *Processor) postBestDeals(ctx context.Context, deals []BestDeal) {
	if p.deals == nil {
		return
	}
	lines := make([]string, len(deals))
	for i, d := range deals {
		lines[i] = d.Line()
		p.metrics.Notification(kindBestDeal)
	}
	if err := p.deals.Post(ctx, bestDealsTitle, lines); err != nil {
		slog.Error("Failed to post best deals", "count", len(deals), "error", err)
	}
}
