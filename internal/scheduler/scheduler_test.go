package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/metrics"
)

func newTestScheduler() (*Scheduler, *metrics.Metrics) {
	m := metrics.New(nil)
	holder := config.NewHolder(&config.Config{CheckInterval: time.Hour})
	return New(holder, m), m
}

func TestRun_PassesConfigSnapshot(t *testing.T) {
	s, m := newTestScheduler()
	var got *config.Config
	s.Register("poll", func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return errors.New("store down")
	})

	if !s.Run(context.Background(), "poll") {
		t.Fatal("Run() should run a registered pass")
	}
	if got == nil || got.CheckInterval != time.Hour {
		t.Errorf("pass got config %+v", got)
	}
	if n := testutil.CollectAndCount(m.PassDuration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}

func TestRun_Unknown(t *testing.T) {
	s, _ := newTestScheduler()
	if s.Run(context.Background(), "nope") {
		t.Error("Run() of an unknown pass should return false")
	}
	if s.Trigger("nope") {
		t.Error("Trigger() of an unknown pass should return false")
	}
}

func TestRun_NoOverlap(t *testing.T) {
	s, _ := newTestScheduler()
	release := make(chan struct{})
	started := make(chan struct{})
	var runs int32
	s.Register("notify", func(ctx context.Context, _ *config.Config) error {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
		return nil
	})

	if !s.Trigger("notify") {
		t.Fatal("Trigger() returned false")
	}
	<-started
	if s.Run(context.Background(), "notify") {
		t.Error("second run should be skipped while the first is running")
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestRun_OverrunsInterval(t *testing.T) {
	m := metrics.New(nil)
	s := New(config.NewHolder(&config.Config{CheckInterval: 10 * time.Millisecond}), m)
	var err error
	s.Register("poll", func(ctx context.Context, _ *config.Config) error {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
		}
		err = ctx.Err()
		return err
	})
	if !s.Trigger("poll") {
		t.Fatal("Trigger() returned false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := s.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop() error = %v", stopErr)
	}
	if err != nil {
		t.Errorf("pass was cancelled after its interval: %v", err)
	}
}

func TestStop_CancelsPassesAfterGracePeriod(t *testing.T) {
	s, _ := newTestScheduler()
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	s.Register("poll", func(ctx context.Context, _ *config.Config) error {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	})
	s.Trigger("poll")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}
	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("pass context error = %v, want canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("running pass was not cancelled on shutdown")
	}
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"@every 5m", false},
		{"@hourly", false},
		{"*/10 * * * *", false},
		{"not a schedule", true},
		{"0 */10 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, _ := newTestScheduler()
			err := s.Schedule("health", tt.spec, func(context.Context, *config.Config) error { return nil })
			if (err != nil) != tt.wantErr {
				t.Fatalf("Schedule(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && len(s.Names()) != 1 {
				t.Errorf("Names() = %v", s.Names())
			}
		})
	}
}
