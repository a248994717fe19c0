package models

import (
	"strings"
	"time"
)

// TrackedItem is one subscriber's subscription to one variant.
type TrackedItem struct {
	ID           string  `firestore:"-" json:"id"`
	SubscriberID string  `firestore:"subscriberId" json:"subscriberId"`
	Store        StoreID `firestore:"store" json:"store"`
	ProductID    string  `firestore:"productId" json:"productId"`
	VariantID    string  `firestore:"variantId" json:"variantId"`
	Name         string  `firestore:"name" json:"name"`
	Label        string  `firestore:"label" json:"label"`
	URL          string  `firestore:"url" json:"url"`
	Price        int64   `firestore:"price" json:"price"`
	Currency     string  `firestore:"currency" json:"currency"`
	InStock      bool    `firestore:"inStock" json:"inStock"`
	ErrorCount   int     `firestore:"errorCount" json:"errorCount"`
	Enabled      bool    `firestore:"enabled" json:"enabled"`

	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
	LastGoodAt    time.Time `firestore:"lastGoodAt" json:"lastGoodAt"`
	LastCheckedAt time.Time `firestore:"lastCheckedAt" json:"lastCheckedAt"`

	// Pending markers hold the value last seen before a detected change
	// until the notifier consumes them.
	PendingPriceFrom   *int64 `firestore:"pendingPriceFrom" json:"pendingPriceFrom"`
	PendingInStockFrom *bool  `firestore:"pendingInStockFrom" json:"pendingInStockFrom"`
	// HasPending mirrors the two markers so stores can filter on one field.
	HasPending bool `firestore:"hasPending" json:"hasPending"`
}

// ItemID builds the stable identity of a tracked item.
func ItemID(subscriberID string, store StoreID, productID, variantID string) string {
	return strings.Join([]string{subscriberID, string(store), productID, variantID}, "_")
}

// ProductKey returns the product the item belongs to.
func (t TrackedItem) ProductKey() ProductKey {
	return ProductKey{Store: t.Store, ProductID: t.ProductID}
}

// DealKey identifies the variant regardless of subscriber.
func (t TrackedItem) DealKey() string {
	return string(t.Store) + "_" + t.ProductID + "_" + t.VariantID
}

func (t TrackedItem) PendingChange() bool {
	return t.PendingPriceFrom != nil || t.PendingInStockFrom != nil
}

// DisplayName is the variant label when present, otherwise the product name.
func (t TrackedItem) DisplayName() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Name
}

// NewTrackedItem creates the initial state of a subscription from a freshly resolved variant.
func NewTrackedItem(subscriberID string, v Variant, now time.Time) TrackedItem {
	return TrackedItem{
		ID:            ItemID(subscriberID, v.Store, v.ProductID, v.VariantID),
		SubscriberID:  subscriberID,
		Store:         v.Store,
		ProductID:     v.ProductID,
		VariantID:     v.VariantID,
		Name:          v.Name,
		Label:         v.Label,
		URL:           v.URL,
		Price:         v.Price,
		Currency:      v.Currency,
		InStock:       v.InStock,
		Enabled:       true,
		CreatedAt:     now,
		LastGoodAt:    now,
		LastCheckedAt: now,
	}
}

// Subscriber receives notifications about their tracked items.
type Subscriber struct {
	ID        string `firestore:"-" json:"id"`
	FirstName string `firestore:"firstName" json:"firstName"`
	LastName  string `firestore:"lastName" json:"lastName"`
	Username  string `firestore:"username" json:"username"`
	Enabled   bool   `firestore:"enabled" json:"enabled"`
}

// PollUpdate carries the fields the poller owns. Stores apply it as a
// field-scoped write so concurrent notifier clears are not overwritten.
type PollUpdate struct {
	LastCheckedAt time.Time
	ErrorCount    int

	// Good is set when the tracked variant was found; the fields below are
	// only written in that case.
	Good       bool
	Price      int64
	Currency   string
	InStock    bool
	Label      string
	LastGoodAt time.Time

	// Pending markers are written only when Touch* is set.
	TouchPendingPrice   bool
	PendingPriceFrom    *int64
	TouchPendingInStock bool
	PendingInStockFrom  *bool
}

// Apply returns item with the update applied, mirroring what stores persist.
func (u PollUpdate) Apply(item TrackedItem) TrackedItem {
	item.LastCheckedAt = u.LastCheckedAt
	item.ErrorCount = u.ErrorCount
	if u.Good {
		item.Price = u.Price
		item.Currency = u.Currency
		item.InStock = u.InStock
		item.Label = u.Label
		item.LastGoodAt = u.LastGoodAt
	}
	if u.TouchPendingPrice {
		item.PendingPriceFrom = u.PendingPriceFrom
	}
	if u.TouchPendingInStock {
		item.PendingInStockFrom = u.PendingInStockFrom
	}
	item.HasPending = item.PendingChange()
	return item
}

// StorePollOutcome is one poll attempt's result, used for health aggregation.
type StorePollOutcome struct {
	Store   StoreID
	Success bool
}
