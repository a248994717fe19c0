package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
)

const (
	healthTitle = "Store health"
	// A store is unhealthy once failures exceed this share of successes.
	maxFailureRatio = 0.8
)

// StoreHealth is the check tally of one store over the last window.
type StoreHealth struct {
	Store     models.StoreID
	Successes int
	Failures  int
	Alert     bool
}

func (h StoreHealth) unhealthy() bool {
	if h.Successes == 0 {
		return h.Failures > 0
	}
	return float64(h.Failures)/float64(h.Successes) > maxFailureRatio
}

// CheckHealth tallies items checked within the last check interval per
// active store and alerts the operator channel about unhealthy stores.
func (p *Processor) CheckHealth(ctx context.Context, cfg *config.Config) ([]StoreHealth, error) {
	since := p.now().Add(-cfg.CheckInterval)
	items, err := p.store.FindCheckedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to find recently checked items: %w", err)
	}

	tally := make(map[models.StoreID]*StoreHealth)
	for _, item := range items {
		if !cfg.IsStoreActive(item.Store) {
			continue
		}
		h, ok := tally[item.Store]
		if !ok {
			h = &StoreHealth{Store: item.Store}
			tally[item.Store] = h
		}
		if item.ErrorCount == 0 {
			h.Successes++
		} else {
			h.Failures++
		}
	}

	var report []StoreHealth
	var lines []string
	for _, store := range cfg.ActiveStoreList() {
		h, ok := tally[store]
		if !ok {
			continue
		}
		p.metrics.FailureRatio(string(store), h.Successes, h.Failures)
		h.Alert = h.unhealthy()
		if h.Alert {
			slog.Warn("Store unhealthy", "store", store, "good", h.Successes, "bad", h.Failures)
			lines = append(lines, fmt.Sprintf("Problem with %s!\nGood: %d\nBad: %d", store, h.Successes, h.Failures))
		}
		report = append(report, *h)
	}

	if len(lines) > 0 && p.operator != nil {
		if err := p.operator.Post(ctx, healthTitle, lines); err != nil {
			return report, fmt.Errorf("failed to post health alert: %w", err)
		}
	}
	return report, nil
}
