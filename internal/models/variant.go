package models

import (
	"sort"
	"time"
)

// StoreID identifies one of the supported web stores.
type StoreID string

const (
	StoreBikeComponents StoreID = "BC"
	StoreChainReaction  StoreID = "CRC"
	StoreStarbike       StoreID = "SB"
	StoreTradeinn       StoreID = "TI"
	StoreBikeDiscount   StoreID = "BD"
	StoreBike24         StoreID = "B24"
)

// AllStores lists every store an adapter exists for, in display order.
var AllStores = []StoreID{
	StoreBikeComponents,
	StoreChainReaction,
	StoreStarbike,
	StoreTradeinn,
	StoreBikeDiscount,
	StoreBike24,
}

// Valid reports whether s is one of the known stores.
func (s StoreID) Valid() bool {
	for _, known := range AllStores {
		if s == known {
			return true
		}
	}
	return false
}

// Variant is one purchasable SKU of a product at one store.
// Prices are integers in minor currency units.
type Variant struct {
	Store     StoreID `json:"store" firestore:"store" validate:"required"`
	ProductID string  `json:"productId" firestore:"productId" validate:"required"`
	VariantID string  `json:"variantId" firestore:"variantId" validate:"required"`
	Name      string  `json:"name" firestore:"name" validate:"required"`
	Label     string  `json:"label" firestore:"label"`
	Price     int64   `json:"price" firestore:"price" validate:"gte=0"`
	Currency  string  `json:"currency" firestore:"currency" validate:"required,len=3,uppercase"`
	InStock   bool    `json:"inStock" firestore:"inStock"`
	URL       string  `json:"url" firestore:"url" validate:"required,url"`
}

// DisplayName is the label when present, otherwise the product name.
func (v Variant) DisplayName() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}

// ProductKey identifies a product independently of the URL it was fetched from.
type ProductKey struct {
	Store     StoreID
	ProductID string
}

func (k ProductKey) String() string {
	return string(k.Store) + "_" + k.ProductID
}

// VariantSet maps variant IDs to variants of a single product.
// A nil or empty set means the page had no usable offers.
type VariantSet map[string]Variant

// ProductKey returns the shared product key of the set. ok is false for an empty set.
func (vs VariantSet) ProductKey() (ProductKey, bool) {
	for _, v := range vs {
		return ProductKey{Store: v.Store, ProductID: v.ProductID}, true
	}
	return ProductKey{}, false
}

// SortedIDs returns the variant IDs in lexical order.
func (vs VariantSet) SortedIDs() []string {
	ids := make([]string, 0, len(vs))
	for id := range vs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CacheEntry is the most recent fetch result for one cache key.
// Variants is nil when the fetch failed; failures are cached too.
type CacheEntry struct {
	Key       string     `json:"key"`
	Variants  VariantSet `json:"variants"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// Fresh reports whether the entry may still be served at now.
func (e CacheEntry) Fresh(now time.Time, lifetime time.Duration) bool {
	return now.Sub(e.FetchedAt) < lifetime
}
