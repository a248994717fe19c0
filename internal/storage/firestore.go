package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/skuwatch/internal/models"
)

const (
	itemsCollection       = "items"
	subscribersCollection = "subscribers"
)

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) items() *firestore.CollectionRef {
	return c.client.Collection(itemsCollection)
}

func (c *Client) subscribers() *firestore.CollectionRef {
	return c.client.Collection(subscribersCollection)
}

func collectItems(iter *firestore.DocumentIterator) ([]models.TrackedItem, error) {
	defer iter.Stop()
	var items []models.TrackedItem
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		var item models.TrackedItem
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item %s: %w", doc.Ref.ID, err)
		}
		item.ID = doc.Ref.ID
		items = append(items, item)
	}
}

// FindDue returns enabled items last checked at least interval ago.
func (c *Client) FindDue(ctx context.Context, now time.Time, interval time.Duration) ([]models.TrackedItem, error) {
	iter := c.items().
		Where("enabled", "==", true).
		Where("lastCheckedAt", "<=", now.Add(-interval)).
		Documents(ctx)
	items, err := collectItems(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to query due items: %w", err)
	}
	return items, nil
}

// FindPending returns enabled items with an unconsumed pending marker.
func (c *Client) FindPending(ctx context.Context) ([]models.TrackedItem, error) {
	iter := c.items().
		Where("enabled", "==", true).
		Where("hasPending", "==", true).
		Documents(ctx)
	items, err := collectItems(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	return items, nil
}

// ApplyPoll writes only the fields the poller owns. hasPending depends on
// both markers, so the read and write share a transaction.
func (c *Client) ApplyPoll(ctx context.Context, id string, u models.PollUpdate) error {
	ref := c.items().Doc(id)
	return c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("item %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("failed to read item %s: %w", id, err)
		}
		var item models.TrackedItem
		if err := doc.DataTo(&item); err != nil {
			return fmt.Errorf("failed to unmarshal item %s: %w", id, err)
		}
		after := u.Apply(item)

		updates := []firestore.Update{
			{Path: "lastCheckedAt", Value: u.LastCheckedAt},
			{Path: "errorCount", Value: u.ErrorCount},
		}
		if u.Good {
			updates = append(updates,
				firestore.Update{Path: "price", Value: u.Price},
				firestore.Update{Path: "currency", Value: u.Currency},
				firestore.Update{Path: "inStock", Value: u.InStock},
				firestore.Update{Path: "label", Value: u.Label},
				firestore.Update{Path: "lastGoodAt", Value: u.LastGoodAt},
			)
		}
		if u.TouchPendingPrice {
			updates = append(updates, firestore.Update{Path: "pendingPriceFrom", Value: u.PendingPriceFrom})
		}
		if u.TouchPendingInStock {
			updates = append(updates, firestore.Update{Path: "pendingInStockFrom", Value: u.PendingInStockFrom})
		}
		updates = append(updates, firestore.Update{Path: "hasPending", Value: after.HasPending})
		return tx.Update(ref, updates)
	})
}

// ClearPending resets the pending markers of ids in one bulk write.
func (c *Client) ClearPending(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	updates := []firestore.Update{
		{Path: "pendingPriceFrom", Value: nil},
		{Path: "pendingInStockFrom", Value: nil},
		{Path: "hasPending", Value: false},
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = c.items().Doc(id)
	}
	return c.bulkUpdate(ctx, refs, updates)
}

// bulkUpdate queues one update per ref and waits for all of them. Documents
// deleted in the meantime are skipped.
func (c *Client) bulkUpdate(ctx context.Context, refs []*firestore.DocumentRef, updates []firestore.Update) error {
	bulkWriter := c.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bulkWriter.Update(ref, updates)
		if err != nil {
			slog.Error("Error queueing bulk update", "id", ref.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	var firstErr error
	failed := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("bulk update failed for %d of %d documents: %w", failed, len(refs), firstErr)
	}
	return nil
}

// CreateItem stores a new item. Returns models.ErrItemExists if the ID is taken.
func (c *Client) CreateItem(ctx context.Context, item models.TrackedItem) error {
	item.HasPending = item.PendingChange()
	_, err := c.items().Doc(item.ID).Create(ctx, item)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrItemExists
		}
		return fmt.Errorf("failed to create item %s: %w", item.ID, err)
	}
	return nil
}

func (c *Client) GetItem(ctx context.Context, id string) (models.TrackedItem, error) {
	doc, err := c.items().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.TrackedItem{}, fmt.Errorf("item %s: %w", id, models.ErrNotFound)
		}
		return models.TrackedItem{}, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	var item models.TrackedItem
	if err := doc.DataTo(&item); err != nil {
		return models.TrackedItem{}, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}
	item.ID = doc.Ref.ID
	return item, nil
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	if _, err := c.items().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

func (c *Client) ListBySubscriber(ctx context.Context, subscriberID string) ([]models.TrackedItem, error) {
	items, err := collectItems(c.items().Where("subscriberId", "==", subscriberID).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list items of %s: %w", subscriberID, err)
	}
	return items, nil
}

func (c *Client) CountBySubscriber(ctx context.Context, subscriberID string) (int, error) {
	return c.count(ctx, c.items().Where("subscriberId", "==", subscriberID))
}

// CountByStore counts tracked items per store, disabled ones included.
func (c *Client) CountByStore(ctx context.Context) (map[models.StoreID]int, error) {
	counts := make(map[models.StoreID]int, len(models.AllStores))
	for _, store := range models.AllStores {
		n, err := c.count(ctx, c.items().Where("store", "==", string(store)))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[store] = n
		}
	}
	return counts, nil
}

func (c *Client) count(ctx context.Context, q firestore.Query) (int, error) {
	result, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return aggregateCount(result, "all")
}

// aggregateCount extracts a count from an aggregation result. The client
// returns *firestorepb.Value; older versions returned int64.
func aggregateCount(result firestore.AggregationResult, alias string) (int, error) {
	v, ok := result[alias]
	if !ok {
		return 0, fmt.Errorf("count aggregation result was invalid: %q key missing", alias)
	}
	switch val := v.(type) {
	case *firestorepb.Value:
		return int(val.GetIntegerValue()), nil
	case int64:
		return int(val), nil
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}

// FindCheckedSince returns enabled items checked at or after since.
func (c *Client) FindCheckedSince(ctx context.Context, since time.Time) ([]models.TrackedItem, error) {
	iter := c.items().
		Where("enabled", "==", true).
		Where("lastCheckedAt", ">=", since).
		Documents(ctx)
	items, err := collectItems(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently checked items: %w", err)
	}
	return items, nil
}

// FindStale returns enabled items whose last good result is older than before.
func (c *Client) FindStale(ctx context.Context, before time.Time) ([]models.TrackedItem, error) {
	iter := c.items().
		Where("enabled", "==", true).
		Where("lastGoodAt", "<", before).
		Documents(ctx)
	items, err := collectItems(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale items: %w", err)
	}
	return items, nil
}

func (c *Client) GetSubscriber(ctx context.Context, id string) (models.Subscriber, error) {
	doc, err := c.subscribers().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Subscriber{}, fmt.Errorf("subscriber %s: %w", id, models.ErrNotFound)
		}
		return models.Subscriber{}, fmt.Errorf("failed to get subscriber %s: %w", id, err)
	}
	var s models.Subscriber
	if err := doc.DataTo(&s); err != nil {
		return models.Subscriber{}, fmt.Errorf("failed to unmarshal subscriber %s: %w", id, err)
	}
	s.ID = doc.Ref.ID
	return s, nil
}

func (c *Client) UpsertSubscriber(ctx context.Context, s models.Subscriber) error {
	if _, err := c.subscribers().Doc(s.ID).Set(ctx, s); err != nil {
		return fmt.Errorf("failed to upsert subscriber %s: %w", s.ID, err)
	}
	return nil
}

// SetSubscriberEnabled flips the subscriber and every item they own. The
// subscriber document is created when missing.
func (c *Client) SetSubscriberEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := c.subscribers().Doc(id).Set(ctx, map[string]any{"enabled": enabled}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update subscriber %s: %w", id, err)
	}

	refs, err := c.items().Where("subscriberId", "==", id).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to list items of %s: %w", id, err)
	}
	itemRefs := make([]*firestore.DocumentRef, len(refs))
	for i, doc := range refs {
		itemRefs[i] = doc.Ref
	}
	if len(itemRefs) == 0 {
		return nil
	}
	return c.bulkUpdate(ctx, itemRefs, []firestore.Update{{Path: "enabled", Value: enabled}})
}
