// Package processor runs the periodic passes of the tracker: polling stores,
// notifying subscribers, monitoring store health and sweeping stale state.
package processor

import (
	"context"
	"time"

	"github.com/pauljones0/skuwatch/internal/metrics"
)

// Processor holds the collaborators shared by all passes. Each pass takes
// the configuration snapshot it should run with.
type Processor struct {
	store     TrackingStore
	resolver  Resolver
	deliverer Deliverer
	operator  AlertChannel
	deals     AlertChannel
	cache     CacheSweeper
	metrics   *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store TrackingStore, resolver Resolver, deliverer Deliverer, m *metrics.Metrics) *Processor {
	return &Processor{
		store:     store,
		resolver:  resolver,
		deliverer: deliverer,
		metrics:   m,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// WithOperatorChannel sets where store health alerts go. Without one they are only logged.
func (p *Processor) WithOperatorChannel(ch AlertChannel) *Processor {
	p.operator = ch
	return p
}

// WithDealsChannel sets where the best deals digest is posted.
func (p *Processor) WithDealsChannel(ch AlertChannel) *Processor {
	p.deals = ch
	return p
}

func (p *Processor) WithCache(c CacheSweeper) *Processor {
	p.cache = c
	return p
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
