package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pauljones0/skuwatch/internal/catalog"
	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/notifier"
	"github.com/pauljones0/skuwatch/internal/scraper"
)

// EnrollRequest names the variant a subscriber wants to track.
type EnrollRequest struct {
	SubscriberID string         `json:"subscriberId" validate:"required"`
	Store        models.StoreID `json:"store" validate:"required"`
	ProductID    string         `json:"productId" validate:"required"`
	VariantID    string         `json:"variantId" validate:"required"`
	URL          string         `json:"url" validate:"required,url"`
}

func resolutionError(res catalog.Resolution) error {
	if res.Status == scraper.StatusTimeout {
		return models.ErrFetchTimeout
	}
	return models.ErrParseFailure
}

func checkStore(cfg *config.Config, store models.StoreID) error {
	if !store.Valid() {
		return fmt.Errorf("%w: %s", models.ErrUnknownStore, store)
	}
	if !cfg.IsStoreActive(store) {
		return fmt.Errorf("%w: %s", models.ErrStoreInactive, store)
	}
	return nil
}

// Enroll starts tracking a variant for a subscriber with fresh state.
func (p *Processor) Enroll(ctx context.Context, cfg *config.Config, req EnrollRequest) (models.TrackedItem, error) {
	if err := checkStore(cfg, req.Store); err != nil {
		return models.TrackedItem{}, err
	}

	n, err := p.store.CountBySubscriber(ctx, req.SubscriberID)
	if err != nil {
		return models.TrackedItem{}, fmt.Errorf("failed to count items: %w", err)
	}
	if n >= cfg.MaxItemsPerSubscriber {
		return models.TrackedItem{}, fmt.Errorf("%w: %d items", models.ErrItemLimit, cfg.MaxItemsPerSubscriber)
	}

	id := models.ItemID(req.SubscriberID, req.Store, req.ProductID, req.VariantID)
	if _, err := p.store.GetItem(ctx, id); err == nil {
		return models.TrackedItem{}, models.ErrItemExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.TrackedItem{}, fmt.Errorf("failed to check item %s: %w", id, err)
	}

	res, err := p.resolver.Resolve(ctx, req.Store, req.ProductID, req.URL)
	if err != nil {
		return models.TrackedItem{}, err
	}
	if !res.OK() {
		return models.TrackedItem{}, resolutionError(res)
	}
	v, ok := res.Variants[req.VariantID]
	if !ok {
		return models.TrackedItem{}, fmt.Errorf("%w: %s", models.ErrVariantMissing, req.VariantID)
	}
	// The item ID checked above must be the one created.
	if v.Store != req.Store || v.ProductID != req.ProductID {
		return models.TrackedItem{}, fmt.Errorf("%w: %s belongs to %s/%s, not %s/%s",
			models.ErrVariantMissing, req.VariantID, v.Store, v.ProductID, req.Store, req.ProductID)
	}

	item := models.NewTrackedItem(req.SubscriberID, v, p.now())
	if err := p.store.CreateItem(ctx, item); err != nil {
		return models.TrackedItem{}, err
	}
	slog.Info("Item enrolled", "item", item.ID, "subscriber", req.SubscriberID)
	return item, nil
}

// Variants detects the store of rawURL and lists the product's variants
// sorted by ID.
func (p *Processor) Variants(ctx context.Context, cfg *config.Config, rawURL string) ([]models.Variant, error) {
	store, canonical, err := scraper.Detect(rawURL)
	if err != nil {
		return nil, err
	}
	if err := checkStore(cfg, store); err != nil {
		return nil, err
	}

	res, err := p.resolver.Resolve(ctx, store, "", canonical)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, resolutionError(res)
	}
	out := make([]models.Variant, 0, len(res.Variants))
	for _, id := range res.Variants.SortedIDs() {
		out = append(out, res.Variants[id])
	}
	return out, nil
}

// Remove stops tracking one of the subscriber's items.
func (p *Processor) Remove(ctx context.Context, subscriberID, itemID string) error {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.SubscriberID != subscriberID {
		return models.ErrNotFound
	}
	return p.store.DeleteItem(ctx, itemID)
}

// Resume registers a subscriber, or re-enables one that was disabled,
// together with all of their items.
func (p *Processor) Resume(ctx context.Context, sub models.Subscriber) error {
	sub.Enabled = true
	if err := p.store.UpsertSubscriber(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscriber %s: %w", sub.ID, err)
	}
	if err := p.store.SetSubscriberEnabled(ctx, sub.ID, true); err != nil {
		return fmt.Errorf("failed to enable subscriber %s: %w", sub.ID, err)
	}
	return nil
}

// List renders a subscriber's items with stock icons, sorted by store and name.
func (p *Processor) List(ctx context.Context, cfg *config.Config, subscriberID string) ([]string, error) {
	items, err := p.store.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Store != items[j].Store {
			return items[i].Store < items[j].Store
		}
		return items[i].Name < items[j].Name
	})
	opts := notifier.LineOptions{Icon: true, ErrorThreshold: cfg.ErrorDisplayThreshold}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = notifier.ItemLine(notifier.HTML, item, opts)
	}
	return lines, nil
}

// StoreCounts returns the number of tracked items per store.
func (p *Processor) StoreCounts(ctx context.Context) (map[models.StoreID]int, error) {
	return p.store.CountByStore(ctx)
}
