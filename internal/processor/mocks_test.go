package processor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pauljones0/skuwatch/internal/catalog"
	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/scraper"
)

// --- Mock implementations ---

type mockStore struct {
	mu          sync.Mutex
	items       map[string]models.TrackedItem
	subscribers map[string]models.Subscriber

	applyErr     error
	disableErr   error
	clearCalls   [][]string
	disabledSubs []string
}

func newMockStore(items ...models.TrackedItem) *mockStore {
	s := &mockStore{
		items:       make(map[string]models.TrackedItem),
		subscribers: make(map[string]models.Subscriber),
	}
	for _, i := range items {
		s.items[i.ID] = i
	}
	return s
}

func (m *mockStore) filter(keep func(models.TrackedItem) bool) []models.TrackedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TrackedItem
	for _, i := range m.items {
		if keep(i) {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (m *mockStore) FindDue(_ context.Context, now time.Time, interval time.Duration) ([]models.TrackedItem, error) {
	return m.filter(func(i models.TrackedItem) bool {
		return i.Enabled && now.Sub(i.LastCheckedAt) >= interval
	}), nil
}

func (m *mockStore) FindPending(_ context.Context) ([]models.TrackedItem, error) {
	return m.filter(func(i models.TrackedItem) bool { return i.Enabled && i.PendingChange() }), nil
}

func (m *mockStore) ApplyPoll(_ context.Context, id string, u models.PollUpdate) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return models.ErrNotFound
	}
	m.items[id] = u.Apply(item)
	return nil
}

func (m *mockStore) ClearPending(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls = append(m.clearCalls, ids)
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			item.PendingPriceFrom, item.PendingInStockFrom, item.HasPending = nil, nil, false
			m.items[id] = item
		}
	}
	return nil
}

func (m *mockStore) CreateItem(_ context.Context, item models.TrackedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; ok {
		return models.ErrItemExists
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockStore) GetItem(_ context.Context, id string) (models.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return models.TrackedItem{}, models.ErrNotFound
	}
	return item, nil
}

func (m *mockStore) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *mockStore) ListBySubscriber(_ context.Context, subscriberID string) ([]models.TrackedItem, error) {
	return m.filter(func(i models.TrackedItem) bool { return i.SubscriberID == subscriberID }), nil
}

func (m *mockStore) CountBySubscriber(ctx context.Context, subscriberID string) (int, error) {
	items, _ := m.ListBySubscriber(ctx, subscriberID)
	return len(items), nil
}

func (m *mockStore) CountByStore(_ context.Context) (map[models.StoreID]int, error) {
	out := make(map[models.StoreID]int)
	for _, i := range m.filter(func(models.TrackedItem) bool { return true }) {
		out[i.Store]++
	}
	return out, nil
}

func (m *mockStore) FindCheckedSince(_ context.Context, since time.Time) ([]models.TrackedItem, error) {
	return m.filter(func(i models.TrackedItem) bool { return i.LastCheckedAt.After(since) }), nil
}

func (m *mockStore) FindStale(_ context.Context, before time.Time) ([]models.TrackedItem, error) {
	return m.filter(func(i models.TrackedItem) bool { return i.Enabled && i.LastGoodAt.Before(before) }), nil
}

func (m *mockStore) GetSubscriber(_ context.Context, id string) (models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return models.Subscriber{}, models.ErrNotFound
	}
	return s, nil
}

func (m *mockStore) UpsertSubscriber(_ context.Context, s models.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s.ID] = s
	return nil
}

func (m *mockStore) SetSubscriberEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disableErr != nil {
		return m.disableErr
	}
	if !enabled {
		m.disabledSubs = append(m.disabledSubs, id)
	}
	s := m.subscribers[id]
	s.ID = id
	s.Enabled = enabled
	m.subscribers[id] = s
	for id2, item := range m.items {
		if item.SubscriberID == id {
			item.Enabled = enabled
			m.items[id2] = item
		}
	}
	return nil
}

func (m *mockStore) get(id string) models.TrackedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type mockResolver struct {
	mu       sync.Mutex
	products map[models.ProductKey]models.VariantSet
	status   scraper.Status
	source   catalog.Source
	calls    []models.ProductKey
	urls     []string
}

func newMockResolver() *mockResolver {
	return &mockResolver{products: make(map[models.ProductKey]models.VariantSet), source: catalog.SourceWeb}
}

func (m *mockResolver) set(variants ...models.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range variants {
		key := models.ProductKey{Store: v.Store, ProductID: v.ProductID}
		if m.products[key] == nil {
			m.products[key] = make(models.VariantSet)
		}
		m.products[key][v.VariantID] = v
	}
}

func (m *mockResolver) Resolve(_ context.Context, store models.StoreID, productID, url string) (catalog.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.ProductKey{Store: store, ProductID: productID}
	m.calls = append(m.calls, key)
	m.urls = append(m.urls, url)
	if m.status != scraper.StatusOK {
		return catalog.Resolution{Source: m.source, Status: m.status}, nil
	}
	if productID == "" {
		for k, vs := range m.products {
			if k.Store == store {
				return catalog.Resolution{Variants: vs, Source: m.source}, nil
			}
		}
	}
	vs, ok := m.products[key]
	if !ok {
		return catalog.Resolution{Source: m.source, Status: scraper.StatusParseError}, nil
	}
	return catalog.Resolution{Variants: vs, Source: m.source}, nil
}

type sentMessage struct {
	subscriberID string
	blocks       []string
}

type mockDeliverer struct {
	mu   sync.Mutex
	sent []sentMessage
	errs map[string]error
}

func (m *mockDeliverer) Send(_ context.Context, subscriberID string, blocks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[subscriberID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{subscriberID, blocks})
	return nil
}

type post struct {
	title string
	lines []string
}

type mockChannel struct {
	posts []post
	err   error
}

func (m *mockChannel) Post(_ context.Context, title string, lines []string) error {
	if m.err != nil {
		return m.err
	}
	m.posts = append(m.posts, post{title, lines})
	return nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		CacheLifetime:         time.Hour,
		CheckInterval:         3 * time.Hour,
		ErrorDisplayThreshold: 3,
		ErrorMaxAge:           30 * 24 * time.Hour,
		MaxItemsPerSubscriber: 50,
		BestDealsMinPercent:   20,
		BestDealsWarnPercent:  40,
		BestDealsMinAbsolute:  map[string]int64{},
		PriceChangeThresholds: map[models.StoreID]float64{},
		ActiveStores: map[models.StoreID]bool{
			models.StoreBikeComponents: true,
			models.StoreChainReaction:  true,
			models.StoreStarbike:       true,
			models.StoreTradeinn:       true,
		},
	}
}

func testVariant(store models.StoreID, product, variant string, price int64, inStock bool) models.Variant {
	return models.Variant{
		Store:     store,
		ProductID: product,
		VariantID: variant,
		Name:      "Product " + product,
		Label:     "Size " + variant,
		Price:     price,
		Currency:  "EUR",
		InStock:   inStock,
		URL:       "https://www.bike-components.de/en/p" + product + "/",
	}
}

func testItem(sub string, v models.Variant, checked time.Time) models.TrackedItem {
	return models.NewTrackedItem(sub, v, checked)
}

// newTestProcessor returns a processor with a fixed clock and no pacing.
func newTestProcessor(store TrackingStore, r Resolver, d Deliverer, now *time.Time) (*Processor, *[]time.Duration) {
	var slept []time.Duration
	p := New(store, r, d, nil).WithClock(func() time.Time { return *now })
	p.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return p, &slept
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool { return &v }
