package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/skuwatch/internal/models"
)

const (
	BackendFirestore = "firestore"
	BackendBolt      = "bolt"
	BackendMemory    = "memory"
	BackendRedis     = "redis"

	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// Config is an immutable snapshot of the service settings. Components
// receive a snapshot and never mutate it; Holder swaps whole snapshots.
type Config struct {
	StoreBackend string
	ProjectID    string
	BoltPath     string

	CacheBackend  string
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	TelegramBotToken    string
	OperatorWebhookURL  string
	BestDealsWebhookURL string
	Port                string
	BrowserEngine       string

	CacheLifetime time.Duration
	CheckInterval time.Duration
	RequestDelay  time.Duration
	HTTPTimeout   time.Duration

	ErrorDisplayThreshold int
	ErrorMaxAge           time.Duration
	MaxItemsPerSubscriber int

	BestDealsMinPercent  int
	BestDealsWarnPercent int
	// BestDealsMinAbsolute is keyed by currency code, in minor units.
	BestDealsMinAbsolute  map[string]int64
	PriceChangeThresholds map[models.StoreID]float64
	ActiveStores          map[models.StoreID]bool

	PollSchedule   string
	NotifySchedule string
	HealthSchedule string
	SweepSchedule  string
}

// IsStoreActive reports whether polling and health checks run for store.
func (c *Config) IsStoreActive(store models.StoreID) bool {
	return c.ActiveStores[store]
}

// PriceChangeThreshold is the relative price move below which changes are not notified.
func (c *Config) PriceChangeThreshold(store models.StoreID) float64 {
	return c.PriceChangeThresholds[store]
}

// MinAbsoluteDrop returns the smallest price drop that qualifies as a best deal in currency.
func (c *Config) MinAbsoluteDrop(currency string) int64 {
	return c.BestDealsMinAbsolute[strings.ToUpper(currency)]
}

// ActiveStoreList returns the active stores sorted by ID.
func (c *Config) ActiveStoreList() []models.StoreID {
	stores := make([]models.StoreID, 0, len(c.ActiveStores))
	for s, on := range c.ActiveStores {
		if on {
			stores = append(stores, s)
		}
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	return stores
}

// Load reads the configuration from the environment. A .env file in the
// working directory is honoured but never overrides variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg := &Config{
		StoreBackend:        envOr("STORE_BACKEND", BackendFirestore),
		ProjectID:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		BoltPath:            envOr("BOLT_PATH", "skuwatch.db"),
		CacheBackend:        envOr("CACHE_BACKEND", BackendMemory),
		RedisAddress:        os.Getenv("REDIS_ADDRESS"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		OperatorWebhookURL:  os.Getenv("OPERATOR_WEBHOOK_URL"),
		BestDealsWebhookURL: os.Getenv("BEST_DEALS_WEBHOOK_URL"),
		Port:                envOr("PORT", "8080"),
		BrowserEngine:       envOr("BROWSER_ENGINE", EngineChromedp),
		PollSchedule:        envOr("POLL_SCHEDULE", "@every 5m"),
		NotifySchedule:      envOr("NOTIFY_SCHEDULE", "@every 5m"),
		SweepSchedule:       envOr("SWEEP_SCHEDULE", "@hourly"),
	}

	switch cfg.StoreBackend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend: %w", models.ErrConfigurationMissing)
		}
	case BackendBolt:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.CacheBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisAddress == "" {
			return nil, fmt.Errorf("REDIS_ADDRESS environment variable is required for the redis cache: %w", models.ErrConfigurationMissing)
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}

	if cfg.BrowserEngine != EngineChromedp && cfg.BrowserEngine != EnginePlaywright {
		return nil, fmt.Errorf("invalid BROWSER_ENGINE %q", cfg.BrowserEngine)
	}

	if cfg.TelegramBotToken == "" {
		slog.Warn("TELEGRAM_BOT_TOKEN not set, subscriber notifications will be skipped")
	}
	if cfg.OperatorWebhookURL == "" {
		slog.Warn("OPERATOR_WEBHOOK_URL not set, store health alerts will only be logged")
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	minutes := func(key string, def int) (time.Duration, error) {
		n, err := envInt(key, def)
		if err == nil && n == 0 {
			err = fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(n) * time.Minute, err
	}
	if cfg.CacheLifetime, err = minutes("CACHE_LIFETIME_MINUTES", 60); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = minutes("CHECK_INTERVAL_MINUTES", 180); err != nil {
		return nil, err
	}

	seconds, err := envInt("REQUEST_DELAY_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.RequestDelay = time.Duration(seconds) * time.Second

	if seconds, err = envInt("HTTP_TIMEOUT_SECONDS", 30); err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(seconds) * time.Second

	if cfg.ErrorDisplayThreshold, err = envInt("ERROR_DISPLAY_THRESHOLD", 3); err != nil {
		return nil, err
	}
	days, err := envInt("ERROR_MAX_AGE_DAYS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ErrorMaxAge = time.Duration(days) * 24 * time.Hour

	if cfg.MaxItemsPerSubscriber, err = envInt("MAX_ITEMS_PER_SUBSCRIBER", 50); err != nil {
		return nil, err
	}
	if cfg.BestDealsMinPercent, err = envInt("BEST_DEALS_MIN_PERCENT", 20); err != nil {
		return nil, err
	}
	if cfg.BestDealsWarnPercent, err = envInt("BEST_DEALS_WARN_PERCENT", 40); err != nil {
		return nil, err
	}

	if cfg.BestDealsMinAbsolute, err = parseMinAbsolute(os.Getenv("BEST_DEALS_MIN_ABSOLUTE")); err != nil {
		return nil, err
	}
	if cfg.PriceChangeThresholds, err = parseThresholds(os.Getenv("PRICE_CHANGE_THRESHOLDS")); err != nil {
		return nil, err
	}
	if cfg.ActiveStores, err = parseStores(envOr("ACTIVE_STORES", "BC,CRC,SB,TI")); err != nil {
		return nil, err
	}

	// The health window equals the check interval unless overridden.
	cfg.HealthSchedule = envOr("HEALTH_SCHEDULE", "@every "+cfg.CheckInterval.String())

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return n, nil
}

// pairs splits "A:1,B:2" into key/value pairs.
func pairs(raw, name string) ([][2]string, error) {
	var out [][2]string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %q: expected KEY:VALUE", name, part)
		}
		out = append(out, [2]string{strings.ToUpper(strings.TrimSpace(k)), strings.TrimSpace(v)})
	}
	return out, nil
}

func parseMinAbsolute(raw string) (map[string]int64, error) {
	kv, err := pairs(raw, "BEST_DEALS_MIN_ABSOLUTE")
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(kv))
	for _, p := range kv {
		n, err := strconv.ParseInt(p[1], 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid BEST_DEALS_MIN_ABSOLUTE amount for %s: %q", p[0], p[1])
		}
		out[p[0]] = n
	}
	return out, nil
}

func parseThresholds(raw string) (map[models.StoreID]float64, error) {
	kv, err := pairs(raw, "PRICE_CHANGE_THRESHOLDS")
	if err != nil {
		return nil, err
	}
	out := make(map[models.StoreID]float64, len(kv))
	for _, p := range kv {
		store := models.StoreID(p[0])
		if !store.Valid() {
			return nil, fmt.Errorf("invalid PRICE_CHANGE_THRESHOLDS store %q: %w", p[0], models.ErrUnknownStore)
		}
		f, err := strconv.ParseFloat(p[1], 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid PRICE_CHANGE_THRESHOLDS ratio for %s: %q", p[0], p[1])
		}
		out[store] = f
	}
	return out, nil
}

func parseStores(raw string) (map[models.StoreID]bool, error) {
	out := make(map[models.StoreID]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		store := models.StoreID(part)
		if !store.Valid() {
			return nil, fmt.Errorf("invalid ACTIVE_STORES entry %q: %w", part, models.ErrUnknownStore)
		}
		out[store] = true
	}
	return out, nil
}

// Holder publishes the current configuration snapshot. Passes call
// Current once when they start and use that snapshot until they finish.
type Holder struct {
	current atomic.Pointer[Config]
	load    func() (*Config, error)
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{load: Load}
	h.current.Store(cfg)
	return h
}

func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Reload builds a fresh snapshot and swaps it in. On error the previous
// snapshot stays active.
func (h *Holder) Reload() (*Config, error) {
	cfg, err := h.load()
	if err != nil {
		return nil, err
	}
	h.current.Store(cfg)
	slog.Info("Configuration reloaded", "active_stores", cfg.ActiveStoreList())
	return cfg, nil
}
