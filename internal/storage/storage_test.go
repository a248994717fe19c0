package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pauljones0/skuwatch/internal/models"
)

type trackingStore interface {
	FindDue(ctx context.Context, now time.Time, interval time.Duration) ([]models.TrackedItem, error)
	FindPending(ctx context.Context) ([]models.TrackedItem, error)
	ApplyPoll(ctx context.Context, id string, u models.PollUpdate) error
	ClearPending(ctx context.Context, ids []string) error
	CreateItem(ctx context.Context, item models.TrackedItem) error
	GetItem(ctx context.Context, id string) (models.TrackedItem, error)
	DeleteItem(ctx context.Context, id string) error
	ListBySubscriber(ctx context.Context, subscriberID string) ([]models.TrackedItem, error)
	CountBySubscriber(ctx context.Context, subscriberID string) (int, error)
	CountByStore(ctx context.Context) (map[models.StoreID]int, error)
	FindCheckedSince(ctx context.Context, since time.Time) ([]models.TrackedItem, error)
	FindStale(ctx context.Context, before time.Time) ([]models.TrackedItem, error)
	GetSubscriber(ctx context.Context, id string) (models.Subscriber, error)
	UpsertSubscriber(ctx context.Context, s models.Subscriber) error
	SetSubscriberEnabled(ctx context.Context, id string, enabled bool) error
}

var (
	_ trackingStore = (*BoltStore)(nil)
	_ trackingStore = (*Client)(nil)
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testItem(sub string, store models.StoreID, product, variant string, checked time.Time) models.TrackedItem {
	item := models.NewTrackedItem(sub, models.Variant{
		Store:     store,
		ProductID: product,
		VariantID: variant,
		Name:      "Product " + product,
		Price:     1000,
		Currency:  "EUR",
		InStock:   true,
		URL:       "https://example.com/" + product,
	}, checked)
	return item
}

func ids(items []models.TrackedItem) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i.ID] = true
	}
	return m
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, s trackingStore) {
	ctx := context.Background()

	due := testItem("100", models.StoreBikeComponents, "1", "a", t0.Add(-4*time.Hour))
	fresh := testItem("100", models.StoreBikeComponents, "1", "b", t0.Add(-time.Hour))
	other := testItem("200", models.StoreStarbike, "9", "0", t0.Add(-5*time.Hour))
	for _, item := range []models.TrackedItem{due, fresh, other} {
		if err := s.CreateItem(ctx, item); err != nil {
			t.Fatalf("CreateItem(%s) failed: %v", item.ID, err)
		}
	}
	for _, sub := range []string{"100", "200"} {
		if err := s.UpsertSubscriber(ctx, models.Subscriber{ID: sub, FirstName: "Sub " + sub, Enabled: true}); err != nil {
			t.Fatalf("UpsertSubscriber failed: %v", err)
		}
	}

	t.Run("create rejects duplicates", func(t *testing.T) {
		if err := s.CreateItem(ctx, due); !errors.Is(err, models.ErrItemExists) {
			t.Errorf("expected ErrItemExists, got %v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.GetItem(ctx, due.ID)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if got.ID != due.ID || got.Price != 1000 || !got.LastCheckedAt.Equal(due.LastCheckedAt) {
			t.Errorf("unexpected item: %+v", got)
		}
		if _, err := s.GetItem(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("find due", func(t *testing.T) {
		items, err := s.FindDue(ctx, t0, 3*time.Hour)
		if err != nil {
			t.Fatalf("FindDue failed: %v", err)
		}
		got := ids(items)
		if !got[due.ID] || !got[other.ID] || got[fresh.ID] || len(got) != 2 {
			t.Errorf("FindDue = %v", got)
		}
	})

	t.Run("apply poll and clear pending", func(t *testing.T) {
		from := int64(1000)
		err := s.ApplyPoll(ctx, due.ID, models.PollUpdate{
			LastCheckedAt:     t0,
			Good:              true,
			Price:             800,
			Currency:          "EUR",
			InStock:           true,
			LastGoodAt:        t0,
			TouchPendingPrice: true,
			PendingPriceFrom:  &from,
		})
		if err != nil {
			t.Fatalf("ApplyPoll failed: %v", err)
		}
		got, _ := s.GetItem(ctx, due.ID)
		if got.Price != 800 || got.PendingPriceFrom == nil || *got.PendingPriceFrom != 1000 || !got.HasPending {
			t.Fatalf("poll not applied: %+v", got)
		}

		pending, err := s.FindPending(ctx)
		if err != nil {
			t.Fatalf("FindPending failed: %v", err)
		}
		if p := ids(pending); !p[due.ID] || len(p) != 1 {
			t.Errorf("FindPending = %v", p)
		}

		if err := s.ClearPending(ctx, []string{due.ID, "missing"}); err != nil {
			t.Fatalf("ClearPending failed: %v", err)
		}
		got, _ = s.GetItem(ctx, due.ID)
		if got.PendingChange() || got.HasPending {
			t.Errorf("pending markers not cleared: %+v", got)
		}
		if got.Price != 800 {
			t.Errorf("ClearPending touched price: %d", got.Price)
		}
	})

	t.Run("failed poll keeps last good values", func(t *testing.T) {
		err := s.ApplyPoll(ctx, other.ID, models.PollUpdate{LastCheckedAt: t0, ErrorCount: 1})
		if err != nil {
			t.Fatalf("ApplyPoll failed: %v", err)
		}
		got, _ := s.GetItem(ctx, other.ID)
		if got.ErrorCount != 1 || got.Price != 1000 || !got.LastGoodAt.Equal(other.LastGoodAt) || !got.LastCheckedAt.Equal(t0) {
			t.Errorf("unexpected item after failed poll: %+v", got)
		}
		if err := s.ApplyPoll(ctx, "missing", models.PollUpdate{LastCheckedAt: t0}); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("counts", func(t *testing.T) {
		n, err := s.CountBySubscriber(ctx, "100")
		if err != nil || n != 2 {
			t.Errorf("CountBySubscriber = %d, %v; want 2", n, err)
		}
		list, _ := s.ListBySubscriber(ctx, "200")
		if len(list) != 1 || list[0].ID != other.ID {
			t.Errorf("ListBySubscriber = %v", ids(list))
		}
		byStore, err := s.CountByStore(ctx)
		if err != nil {
			t.Fatalf("CountByStore failed: %v", err)
		}
		if byStore[models.StoreBikeComponents] != 2 || byStore[models.StoreStarbike] != 1 {
			t.Errorf("CountByStore = %v", byStore)
		}
	})

	t.Run("checked since and stale", func(t *testing.T) {
		recent, err := s.FindCheckedSince(ctx, t0.Add(-2*time.Hour))
		if err != nil {
			t.Fatalf("FindCheckedSince failed: %v", err)
		}
		if got := ids(recent); !got[due.ID] || !got[other.ID] || !got[fresh.ID] {
			t.Errorf("FindCheckedSince = %v", got)
		}
		stale, err := s.FindStale(ctx, t0.Add(-90*time.Minute))
		if err != nil {
			t.Fatalf("FindStale failed: %v", err)
		}
		if got := ids(stale); !got[other.ID] || got[due.ID] || got[fresh.ID] {
			t.Errorf("FindStale = %v", got)
		}
	})

	t.Run("disabling a subscriber cascades", func(t *testing.T) {
		if err := s.SetSubscriberEnabled(ctx, "100", false); err != nil {
			t.Fatalf("SetSubscriberEnabled failed: %v", err)
		}
		sub, err := s.GetSubscriber(ctx, "100")
		if err != nil || sub.Enabled || sub.FirstName != "Sub 100" {
			t.Errorf("subscriber = %+v, %v", sub, err)
		}
		items, _ := s.FindDue(ctx, t0.Add(24*time.Hour), time.Hour)
		if got := ids(items); got[due.ID] || got[fresh.ID] || !got[other.ID] {
			t.Errorf("disabled items still due: %v", got)
		}
		stale, _ := s.FindStale(ctx, t0.Add(time.Hour))
		if got := ids(stale); got[due.ID] || got[fresh.ID] || !got[other.ID] {
			t.Errorf("disabled items reported stale: %v", got)
		}

		if err := s.SetSubscriberEnabled(ctx, "100", true); err != nil {
			t.Fatalf("SetSubscriberEnabled failed: %v", err)
		}
		items, _ = s.FindDue(ctx, t0.Add(24*time.Hour), time.Hour)
		if got := ids(items); !got[due.ID] || !got[fresh.ID] {
			t.Errorf("re-enabled items not due: %v", got)
		}
	})

	t.Run("disabling an unknown subscriber creates the record", func(t *testing.T) {
		orphan := testItem("300", models.StoreTradeinn, "7", "x", t0)
		if err := s.CreateItem(ctx, orphan); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
		if err := s.SetSubscriberEnabled(ctx, "300", false); err != nil {
			t.Fatalf("SetSubscriberEnabled failed: %v", err)
		}
		sub, err := s.GetSubscriber(ctx, "300")
		if err != nil || sub.Enabled {
			t.Errorf("subscriber = %+v, %v", sub, err)
		}
		got, _ := s.GetItem(ctx, orphan.ID)
		if got.Enabled {
			t.Error("item of unknown subscriber still enabled")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteItem(ctx, fresh.ID); err != nil {
			t.Fatalf("DeleteItem failed: %v", err)
		}
		if _, err := s.GetItem(ctx, fresh.ID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}
