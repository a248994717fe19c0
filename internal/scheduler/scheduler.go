// Package scheduler runs the processing passes on cron schedules and on
// demand, never letting a pass overlap with itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/metrics"
)

// Pass is one processing pass. It receives the configuration snapshot
// taken when it started.
type Pass func(ctx context.Context, cfg *config.Config) error

type job struct {
	name    string
	pass    Pass
	running sync.Mutex
}

type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	holder  *config.Holder
	metrics *metrics.Metrics

	// ctx is cancelled only when Stop gives up waiting for running passes.
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// New creates a scheduler. Passes are not bounded in time: a pass that
// outlasts its interval keeps running and the next tick is skipped.
func New(holder *config.Holder, m *metrics.Metrics) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    c,
		parser:  parser,
		holder:  holder,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}
}

// Register makes a pass available to Trigger without scheduling it.
func (s *Scheduler) Register(name string, pass Pass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{name: name, pass: pass}
}

// Schedule registers a pass and runs it on spec, a five field cron
// expression or a descriptor such as "@every 5m".
func (s *Scheduler) Schedule(name, spec string, pass Pass) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.Register(name, pass)
	if _, err := s.cron.AddFunc(spec, func() { s.Run(s.ctx, name) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	slog.Info("Pass scheduled", "pass", name, "schedule", spec)
	return nil
}

// Names lists the registered passes.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the named pass synchronously. It returns false without
// running when the pass is unknown or already in progress.
func (s *Scheduler) Run(ctx context.Context, name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !j.running.TryLock() {
		slog.Info("Pass already running, skipping", "pass", name)
		return false
	}
	defer j.running.Unlock()

	cfg := s.holder.Current()
	runID := uuid.NewString()
	logger := slog.With("pass", name, "run_id", runID)

	logger.Info("Pass started")
	start := time.Now()
	err := j.pass(ctx, cfg)
	elapsed := time.Since(start)
	s.metrics.Pass(name, elapsed)
	if err != nil {
		logger.Error("Pass failed", "duration", elapsed, "error", err)
	} else {
		logger.Info("Pass finished", "duration", elapsed)
	}
	return true
}

// Trigger starts the named pass in the background. It reports whether
// the pass exists.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in triggered pass", "pass", name, "panic", r)
			}
		}()
		s.Run(s.ctx, name)
	}()
	return true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running passes until ctx is done,
// then cancels whatever is still running.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()
	cronDone := s.cron.Stop()
	triggered := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(triggered)
	}()

	for _, done := range []<-chan struct{}{cronDone.Done(), triggered} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
