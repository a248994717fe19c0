package processor

import (
	"context"
	"time"

	"github.com/pauljones0/skuwatch/internal/catalog"
	"github.com/pauljones0/skuwatch/internal/models"
)

// TrackingStore abstracts the storage layer for tracked items and subscribers.
type TrackingStore interface {
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

// Resolver returns the current variants of a product.
type Resolver interface {
	Resolve(ctx context.Context, store models.StoreID, productID, url string) (catalog.Resolution, error)
}

// Deliverer sends text blocks to one subscriber. Implementations paginate.
type Deliverer interface {
	Send(ctx context.Context, subscriberID string, blocks []string) error
}

// AlertChannel posts to a broadcast channel such as the operator or best deals channel.
type AlertChannel interface {
	Post(ctx context.Context, title string, lines []string) error
}

// CacheSweeper drops expired product cache entries.
type CacheSweeper interface {
	EvictOlderThan(ctx context.Context, lifetime time.Duration) (int, error)
}
