package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pauljones0/skuwatch/internal/models"
)

var (
	itemsBucket       = []byte(itemsCollection)
	subscribersBucket = []byte(subscribersCollection)
)

// BoltStore keeps items and subscribers in a local bbolt file, one JSON
// value per key. Queries scan the bucket.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{itemsBucket, subscribersBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// scanItems returns the items matching keep, ordered by ID.
func (s *BoltStore) scanItems(keep func(models.TrackedItem) bool) ([]models.TrackedItem, error) {
	var items []models.TrackedItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			var item models.TrackedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decoding item %s: %w", k, err)
			}
			item.ID = string(k)
			if keep(item) {
				items = append(items, item)
			}
			return nil
		})
	})
	return items, err
}

// updateItem runs fn on the stored item and writes the result back.
func updateItem(tx *bolt.Tx, id string, fn func(*models.TrackedItem)) error {
	b := tx.Bucket(itemsBucket)
	data := b.Get([]byte(id))
	if data == nil {
		return fmt.Errorf("item %s: %w", id, models.ErrNotFound)
	}
	var item models.TrackedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return fmt.Errorf("decoding item %s: %w", id, err)
	}
	item.ID = id
	fn(&item)
	item.HasPending = item.PendingChange()
	return putJSON(b, id, item)
}

func (s *BoltStore) FindDue(_ context.Context, now time.Time, interval time.Duration) ([]models.TrackedItem, error) {
	cutoff := now.Add(-interval)
	return s.scanItems(func(i models.TrackedItem) bool {
		return i.Enabled && !i.LastCheckedAt.After(cutoff)
	})
}

func (s *BoltStore) FindPending(_ context.Context) ([]models.TrackedItem, error) {
	return s.scanItems(func(i models.TrackedItem) bool {
		return i.Enabled && i.HasPending
	})
}

func (s *BoltStore) ApplyPoll(_ context.Context, id string, u models.PollUpdate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return updateItem(tx, id, func(item *models.TrackedItem) {
			*item = u.Apply(*item)
		})
	})
}

// ClearPending resets markers of all ids in a single transaction. Missing
// items are skipped.
func (s *BoltStore) ClearPending(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			err := updateItem(tx, id, func(item *models.TrackedItem) {
				item.PendingPriceFrom = nil
				item.PendingInStockFrom = nil
			})
			if err != nil && !isNotFound(err) {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) CreateItem(_ context.Context, item models.TrackedItem) error {
	item.HasPending = item.PendingChange()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		if b.Get([]byte(item.ID)) != nil {
			return models.ErrItemExists
		}
		return putJSON(b, item.ID, item)
	})
}

func (s *BoltStore) GetItem(_ context.Context, id string) (models.TrackedItem, error) {
	var item models.TrackedItem
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(itemsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("item %s: %w", id, models.ErrNotFound)
		}
		return json.Unmarshal(data, &item)
	})
	item.ID = id
	return item, err
}

func (s *BoltStore) DeleteItem(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) ListBySubscriber(_ context.Context, subscriberID string) ([]models.TrackedItem, error) {
	items, err := s.scanItems(func(i models.TrackedItem) bool { return i.SubscriberID == subscriberID })
	sort.Slice(items, func(a, b int) bool { return items[a].CreatedAt.Before(items[b].CreatedAt) })
	return items, err
}

func (s *BoltStore) CountBySubscriber(ctx context.Context, subscriberID string) (int, error) {
	items, err := s.ListBySubscriber(ctx, subscriberID)
	return len(items), err
}

func (s *BoltStore) CountByStore(_ context.Context) (map[models.StoreID]int, error) {
	counts := make(map[models.StoreID]int)
	_, err := s.scanItems(func(i models.TrackedItem) bool {
		counts[i.Store]++
		return false
	})
	return counts, err
}

func (s *BoltStore) FindCheckedSince(_ context.Context, since time.Time) ([]models.TrackedItem, error) {
	return s.scanItems(func(i models.TrackedItem) bool {
		return i.Enabled && !i.LastCheckedAt.Before(since)
	})
}

func (s *BoltStore) FindStale(_ context.Context, before time.Time) ([]models.TrackedItem, error) {
	return s.scanItems(func(i models.TrackedItem) bool {
		return i.Enabled && i.LastGoodAt.Before(before)
	})
}

func (s *BoltStore) GetSubscriber(_ context.Context, id string) (models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(subscribersBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("subscriber %s: %w", id, models.ErrNotFound)
		}
		return json.Unmarshal(data, &sub)
	})
	sub.ID = id
	return sub, err
}

func (s *BoltStore) UpsertSubscriber(_ context.Context, sub models.Subscriber) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(subscribersBucket), sub.ID, sub)
	})
}

// SetSubscriberEnabled updates the subscriber and all of their items in
// one transaction. A subscriber without a record gets one.
func (s *BoltStore) SetSubscriberEnabled(_ context.Context, id string, enabled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		subs := tx.Bucket(subscribersBucket)
		sub := models.Subscriber{ID: id}
		if data := subs.Get([]byte(id)); data != nil {
			if err := json.Unmarshal(data, &sub); err != nil {
				return fmt.Errorf("decoding subscriber %s: %w", id, err)
			}
		}
		sub.Enabled = enabled
		if err := putJSON(subs, id, sub); err != nil {
			return err
		}

		var owned []string
		err := tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			var item models.TrackedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decoding item %s: %w", k, err)
			}
			if item.SubscriberID == id {
				owned = append(owned, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Keys are collected first: bbolt forbids writes during ForEach.
		for _, itemID := range owned {
			if err := updateItem(tx, itemID, func(item *models.TrackedItem) { item.Enabled = enabled }); err != nil {
				return err
			}
		}
		return nil
	})
}
