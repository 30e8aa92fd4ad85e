package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
)

// Scheduler drives each registered adapter on its declared cadence, the
// in-process stand-in for an external scheduler. A failed outcome is
// retryable on the next tick, never fatal.
type Scheduler struct {
	runner   *Runner
	registry *adapter.Registry
	log      *zap.Logger
}

// NewScheduler creates a scheduler over the registry.
func NewScheduler(runner *Runner, registry *adapter.Registry, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		registry: registry,
		log:      log,
	}
}

// Start runs one ticking goroutine per adapter and blocks until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	adapters := s.registry.List()

	var wg sync.WaitGroup
	wg.Add(len(adapters))

	for _, a := range adapters {
		go func(a adapter.SourceAdapter) {
			defer wg.Done()
			s.drive(ctx, a)
		}(a)
	}

	wg.Wait()
	return nil
}

func (s *Scheduler) drive(ctx context.Context, a adapter.SourceAdapter) {
	interval := a.Interval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.log.Info("Scheduling adapter",
		zap.String("adapter_id", a.ID()),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx, a)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler shutting down adapter",
				zap.String("adapter_id", a.ID()))
			return
		case <-ticker.C:
			s.tick(ctx, a)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, a adapter.SourceAdapter) {
	outcome, err := s.runner.RunAdapter(ctx, a)
	if errors.Is(err, ErrAlreadyRunning) {
		s.log.Warn("Skipping tick, previous run still in progress",
			zap.String("adapter_id", a.ID()))
		return
	}
	if outcome != OutcomeSuccess {
		s.log.Warn("Adapter run did not fully succeed",
			zap.String("adapter_id", a.ID()),
			zap.String("outcome", string(outcome)))
	}
}
