package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pauljones0/skuwatch/internal/cache"
	"github.com/pauljones0/skuwatch/internal/catalog"
	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/metrics"
	"github.com/pauljones0/skuwatch/internal/notifier"
	"github.com/pauljones0/skuwatch/internal/processor"
	"github.com/pauljones0/skuwatch/internal/scheduler"
	"github.com/pauljones0/skuwatch/internal/scraper"
	"github.com/pauljones0/skuwatch/internal/storage"
	"github.com/pauljones0/skuwatch/internal/validator"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("Starting skuwatch server...")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	holder := config.NewHolder(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing tracking store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	productCache, err := openCache(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing product cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}

	renderer := newRenderer(cfg.BrowserEngine)
	defer renderer.Close()

	m := metrics.New(nil)
	client := scraper.New(scraper.LoadConfig()).WithRenderer(renderer)
	resolver := catalog.New(productCache, scraper.NewDefaultRegistry(client), cfg.HTTPTimeout, m)

	p := processor.New(store, resolver, notifier.NewTelegram(cfg.TelegramBotToken), m).
		WithOperatorChannel(notifier.NewDiscord(cfg.OperatorWebhookURL)).
		WithDealsChannel(notifier.NewDiscord(cfg.BestDealsWebhookURL).WithDealsColor()).
		WithCache(productCache)

	sched := scheduler.New(holder, m)
	if err := schedulePasses(sched, p, cfg); err != nil {
		slog.Error("Critical error scheduling passes", "error", err)
		os.Exit(1)
	}
	sched.Start()

	srv := &Server{
		holder:    holder,
		passes:    sched,
		tracker:   p,
		validator: validator.New(),
		metrics:   m.Handler(),
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Warn("Passes still running at shutdown", "error", err)
		}
		stop()
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func openStore(ctx context.Context, cfg *config.Config) (processor.TrackingStore, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendBolt:
		s, err := storage.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := storage.New(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// openCache returns the shared product cache. The cache lifetime is fixed
// for the life of the process.
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.CacheBackend == config.BackendRedis {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(client, cfg.CacheLifetime), nil
	}
	mem := cache.NewMemory(cfg.CacheLifetime)
	go mem.Run(ctx, cfg.CacheLifetime)
	return mem, nil
}

func newRenderer(engine string) scraper.Renderer {
	if engine == config.EnginePlaywright {
		return scraper.NewPlaywrightRenderer()
	}
	return scraper.NewChromedpRenderer()
}

const (
	passPoll       = "poll"
	passNotify     = "notify"
	passHealth     = "health"
	passSweepCache = "sweep-cache"
	passSweepStale = "sweep-stale"
)

func schedulePasses(s *scheduler.Scheduler, p *processor.Processor, cfg *config.Config) error {
	passes := []struct {
		name string
		spec string
		run  scheduler.Pass
	}{
		{passPoll, cfg.PollSchedule, func(ctx context.Context, cfg *config.Config) error {
			_, err := p.Poll(ctx, cfg)
			return err
		}},
		{passNotify, cfg.NotifySchedule, func(ctx context.Context, cfg *config.Config) error {
			_, err := p.Notify(ctx, cfg)
			return err
		}},
		{passHealth, cfg.HealthSchedule, func(ctx context.Context, cfg *config.Config) error {
			_, err := p.CheckHealth(ctx, cfg)
			return err
		}},
		{passSweepCache, cfg.SweepSchedule, func(ctx context.Context, cfg *config.Config) error {
			_, err := p.SweepCache(ctx, cfg)
			return err
		}},
		{passSweepStale, cfg.SweepSchedule, func(ctx context.Context, cfg *config.Config) error {
			_, err := p.PurgeStale(ctx, cfg)
			return err
		}},
	}
	for _, pass := range passes {
		if err := s.Schedule(pass.name, pass.spec, pass.run); err != nil {
			return fmt.Errorf("pass %s: %w", pass.name, err)
		}
	}
	return nil
}
