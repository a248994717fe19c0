package scraper

import (
	"fmt"
	"regexp"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

type urlPattern struct {
	store     models.StoreID
	re        *regexp.Regexp
	canonical func(m []string) string
}

func firstGroup(m []string) string { return m[1] }

var urlPatterns = []urlPattern{
	{models.StoreBikeComponents, regexp.MustCompile(`(https://www\.bike-components\.de/\S+p(\d+)/)`), firstGroup},
	{models.StoreChainReaction, regexp.MustCompile(`https?://www\.chainreactioncycles\.com/\S+/rp-prod(\d+)`), func(m []string) string {
		return "https://www.chainreactioncycles.com/en/rp-prod" + m[1]
	}},
	{models.StoreStarbike, regexp.MustCompile(`(https://www\.starbike\.com/en/\S+)`), firstGroup},
	{models.StoreTradeinn, regexp.MustCompile(`(https://www\.tradeinn\.com/\S+/\d+/p)`), firstGroup},
	{models.StoreBike24, regexp.MustCompile(`(https://www\.bike24\.com/p2\d+\.html)`), firstGroup},
	{models.StoreBikeDiscount, regexp.MustCompile(`(https://www\.bike-discount\.de/.+?/[^?&]+)`), firstGroup},
}

// Registry maps stores to their adapters.
type Registry struct {
	adapters map[models.StoreID]Adapter
}

// NewRegistry indexes adapters by the store they serve.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.StoreID]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Store()] = a
	}
	return r
}

// NewDefaultRegistry builds a registry with one adapter per supported store.
func NewDefaultRegistry(c *Client) *Registry {
	return NewRegistry(
		c.NewBikeComponents(),
		c.NewChainReaction(),
		c.NewStarbike(),
		c.NewTradeinn(),
		c.NewBikeDiscount(),
		c.NewBike24(),
	)
}

// Lookup returns the adapter for store.
func (r *Registry) Lookup(store models.StoreID) (Adapter, bool) {
	a, ok := r.adapters[store]
	return a, ok
}

// Detect finds the store a product link belongs to and returns the URL
// the store's adapter should be pointed at.
func Detect(rawURL string) (models.StoreID, string, error) {
	normalized, err := util.NormalizeURL(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", models.ErrUnknownStore, err)
	}
	for _, p := range urlPatterns {
		if m := p.re.FindStringSubmatch(normalized); m != nil {
			return p.store, p.canonical(m), nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", models.ErrUnknownStore, rawURL)
}
