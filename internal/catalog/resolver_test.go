package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pauljones0/skuwatch/internal/cache"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/scraper"
)

type mockAdapter struct {
	store   models.StoreID
	calls   atomic.Int32
	release chan struct{}
	result  scraper.Result
}

func (m *mockAdapter) Store() models.StoreID { return m.store }

func (m *mockAdapter) Fetch(ctx context.Context, url string, _ time.Duration) scraper.Result {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	return m.result
}

type registry map[models.StoreID]scraper.Adapter

func (r registry) Lookup(store models.StoreID) (scraper.Adapter, bool) {
	a, ok := r[store]
	return a, ok
}

const productURL = "https://www.bike-components.de/en/maxxis/minion-p42/"

func okResult() scraper.Result {
	return scraper.Result{
		Status: scraper.StatusOK,
		URL:    productURL,
		Variants: models.VariantSet{
			"1": {Store: models.StoreBikeComponents, ProductID: "42", VariantID: "1", Name: "Minion", Price: 5000, Currency: "EUR", InStock: true, URL: productURL},
		},
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestResolver(a *mockAdapter) (*Resolver, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemory(time.Hour).WithClock(c.now)
	return New(store, registry{a.store: a}, time.Second, nil), c
}

func TestResolve_ConcurrentMissesShareOneFetch(t *testing.T) {
	a := &mockAdapter{store: models.StoreBikeComponents, release: make(chan struct{}), result: okResult()}
	r, _ := newTestResolver(a)

	const callers = 8
	var wg sync.WaitGroup
	sources := make(chan Source, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), models.StoreBikeComponents, "42", productURL)
			if err != nil || !res.OK() {
				t.Errorf("unexpected resolution %+v err=%v", res, err)
			}
			sources <- res.Source
		}()
	}
	// Let every caller reach the flight before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(a.release)
	wg.Wait()
	close(sources)

	if got := a.calls.Load(); got != 1 {
		t.Fatalf("adapter called %d times, want 1", got)
	}
	web := 0
	for s := range sources {
		if s == SourceWeb {
			web++
		}
	}
	if web != 1 {
		t.Errorf("%d callers reported a web fetch, want 1", web)
	}
}

func TestResolve_CacheWithinLifetime(t *testing.T) {
	a := &mockAdapter{store: models.StoreBikeComponents, result: okResult()}
	r, c := newTestResolver(a)
	ctx := context.Background()

	first, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", productURL)
	if first.Source != SourceWeb {
		t.Fatalf("first resolution source = %s, want web", first.Source)
	}

	c.advance(30 * time.Minute)
	// Same product through a different link is served by product key.
	second, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", productURL+"?utm_source=x&ref=y&color=red")
	if second.Source != SourceCache || second.Variants["1"].Price != 5000 {
		t.Errorf("second resolution = %+v, want cached variants", second)
	}

	c.advance(31 * time.Minute)
	third, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", productURL)
	if third.Source != SourceWeb {
		t.Errorf("resolution after lifetime source = %s, want web", third.Source)
	}
	if got := a.calls.Load(); got != 2 {
		t.Errorf("adapter called %d times, want 2", got)
	}
}

func TestResolve_FailureIsCached(t *testing.T) {
	a := &mockAdapter{store: models.StoreBikeComponents, result: scraper.Result{Status: scraper.StatusTimeout, Err: models.ErrFetchTimeout}}
	r, _ := newTestResolver(a)
	ctx := context.Background()

	first, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", productURL)
	if first.OK() || first.Variants != nil {
		t.Fatalf("expected failed resolution, got %+v", first)
	}
	second, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", productURL)
	if second.OK() || second.Source != SourceCache {
		t.Errorf("expected cached failure, got %+v", second)
	}
	if got := a.calls.Load(); got != 1 {
		t.Errorf("adapter called %d times, want 1", got)
	}
}

func TestResolve_EnrollmentWithoutProductID(t *testing.T) {
	a := &mockAdapter{store: models.StoreBikeComponents, result: okResult()}
	r, _ := newTestResolver(a)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, models.StoreBikeComponents, "", productURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, _ := r.Resolve(ctx, models.StoreBikeComponents, "42", "https://www.bike-components.de/de/maxxis/minion-p42/")
	if res.Source != SourceCache {
		t.Errorf("expected product key populated by the URL fetch, got %s", res.Source)
	}
}

func TestResolve_UnknownStore(t *testing.T) {
	a := &mockAdapter{store: models.StoreBikeComponents, result: okResult()}
	r, _ := newTestResolver(a)
	_, err := r.Resolve(context.Background(), models.StoreBike24, "1", "https://www.bike24.com/p21.html")
	if !errors.Is(err, models.ErrUnknownStore) {
		t.Errorf("expected ErrUnknownStore, got %v", err)
	}
}
