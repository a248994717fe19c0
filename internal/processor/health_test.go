package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/skuwatch/internal/models"
)

func TestStoreHealth_Unhealthy(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      bool
	}{
		{"all good", 10, 0, false},
		{"no successes", 0, 3, true},
		{"ratio at limit", 10, 8, false},
		{"ratio above limit", 10, 9, true},
		{"no checks", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := StoreHealth{Successes: tt.successes, Failures: tt.failures}
			if got := h.unhealthy(); got != tt.want {
				t.Errorf("unhealthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckHealth(t *testing.T) {
	now := t0.Add(10 * time.Hour)
	recent := now.Add(-time.Hour)
	var items []models.TrackedItem
	add := func(store models.StoreID, product string, errors int, checked time.Time) {
		item := testItem("u1", testVariant(store, product, "a", 1000, true), checked)
		item.ErrorCount = errors
		items = append(items, item)
	}

	// BC healthy, TI fully failing, SB failing but only outside the window,
	// BD failing but inactive.
	add(models.StoreBikeComponents, "1", 0, recent)
	add(models.StoreBikeComponents, "1b", 0, recent)
	add(models.StoreBikeComponents, "1c", 0, recent)
	add(models.StoreBikeComponents, "2", 1, recent)
	add(models.StoreTradeinn, "3", 2, recent)
	add(models.StoreTradeinn, "4", 5, recent)
	add(models.StoreStarbike, "5", 4, now.Add(-5*time.Hour))
	add(models.StoreBikeDiscount, "6", 4, recent)

	store := newMockStore(items...)
	operator := &mockChannel{}
	p, _ := newTestProcessor(store, newMockResolver(), &mockDeliverer{}, &now)
	p.WithOperatorChannel(operator)

	report, err := p.CheckHealth(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}

	if len(report) != 2 {
		t.Fatalf("expected 2 stores in report, got %+v", report)
	}
	if report[0].Store != models.StoreBikeComponents || report[0].Alert {
		t.Errorf("BC should be healthy: %+v", report[0])
	}
	if report[1].Store != models.StoreTradeinn || !report[1].Alert || report[1].Failures != 2 {
		t.Errorf("TI should alert: %+v", report[1])
	}

	if len(operator.posts) != 1 || len(operator.posts[0].lines) != 1 {
		t.Fatalf("expected one alert line, got %+v", operator.posts)
	}
	if line := operator.posts[0].lines[0]; line != "Problem with TI!\nGood: 0\nBad: 2" {
		t.Errorf("alert = %q", line)
	}
}

func TestCheckHealth_NoAlertNoPost(t *testing.T) {
	now := t0.Add(time.Hour)
	store := newMockStore(testItem("u1", testVariant(models.StoreBikeComponents, "1", "a", 1000, true), t0))
	operator := &mockChannel{}
	p, _ := newTestProcessor(store, newMockResolver(), &mockDeliverer{}, &now)
	p.WithOperatorChannel(operator)

	if _, err := p.CheckHealth(context.Background(), testConfig()); err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if len(operator.posts) != 0 {
		t.Errorf("healthy stores should not post, got %+v", operator.posts)
	}
}

func TestCheckHealth_PostError(t *testing.T) {
	now := t0.Add(time.Hour)
	item := testItem("u1", testVariant(models.StoreBikeComponents, "1", "a", 1000, true), t0)
	item.ErrorCount = 1
	p, _ := newTestProcessor(newMockStore(item), newMockResolver(), &mockDeliverer{}, &now)
	p.WithOperatorChannel(&mockChannel{err: context.DeadlineExceeded})

	report, err := p.CheckHealth(context.Background(), testConfig())
	if err == nil || !strings.Contains(err.Error(), "health alert") {
		t.Fatalf("expected post error, got %v", err)
	}
	if len(report) != 1 || !report[0].Alert {
		t.Errorf("report should still be returned: %+v", report)
	}
}
