// Package sink implements the idempotent append path between adapters and
// the correlator. Appending an id twice is a no-op returning the prior
// record, which is what makes at-least-once delivery from adapters safe to
// retry.
package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/dedup"
	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/repository"
)

// Correlator consumes events in the order the sink committed them.
type Correlator interface {
	Apply(ctx context.Context, e *domain.SignalEvent) (*domain.Incident, error)
}

// Config tunes sink behavior.
type Config struct {
	// FailOpen keeps ingesting when the dedup index is unreachable, leaning
	// on the store's replacing engine to collapse the rare duplicate. Fail
	// closed to prefer rejecting events over any chance of double
	// correlation.
	FailOpen bool
}

// Sink is the idempotent append-only writer. Callers are serialized per
// adapter by the run coordinator; the sink hands each first-append to the
// correlator synchronously, preserving per-adapter commit order.
type Sink struct {
	repo       repository.EventRepository
	index      dedup.Index
	correlator Correlator
	config     Config
	log        *zap.Logger
	clock      func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a sink. index may be nil, in which case only the in-process
// seen set and the store's replacing engine deduplicate.
func New(repo repository.EventRepository, index dedup.Index, correlator Correlator, config Config, log *zap.Logger) *Sink {
	return &Sink{
		repo:       repo,
		index:      index,
		correlator: correlator,
		config:     config,
		log:        log,
		clock:      time.Now,
		seen:       make(map[string]struct{}),
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Sink) WithClock(clock func() time.Time) *Sink {
	s.clock = clock
	return s
}

// Append ingests one validated event. The bool reports whether the event was
// newly appended; false means a duplicate was ignored and the returned event
// is the stored record (or the candidate itself when the store has no copy
// to return). Duplicates are never errors.
func (s *Sink) Append(ctx context.Context, e *domain.SignalEvent) (*domain.SignalEvent, bool, error) {
	if dup := s.alreadySeen(e.ID); dup {
		return s.existing(ctx, e), false, nil
	}

	if s.index != nil {
		first, err := s.index.FirstSeen(ctx, e.ID)
		if err != nil {
			if !s.config.FailOpen {
				return nil, false, err
			}
			s.log.Warn("Dedup index unavailable, failing open",
				zap.String("event_id", e.ID),
				zap.Error(err))
		} else if !first {
			s.markSeen(e.ID)
			return s.existing(ctx, e), false, nil
		}
	}

	stamped := *e
	stamped.IngestedAt = s.clock()

	if err := s.repo.InsertEvent(ctx, &stamped); err != nil {
		return nil, false, err
	}
	s.markSeen(e.ID)

	if _, err := s.correlator.Apply(ctx, &stamped); err != nil {
		// The event is durable; only the incident fold failed. Surface it so
		// the run is recorded as partial.
		return &stamped, true, err
	}

	return &stamped, true, nil
}

func (s *Sink) alreadySeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

func (s *Sink) markSeen(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[id] = struct{}{}
}

// existing fetches the stored record for a duplicate id; falls back to the
// candidate when the store lookup fails or the row has not surfaced yet.
func (s *Sink) existing(ctx context.Context, e *domain.SignalEvent) *domain.SignalEvent {
	s.log.Debug("Duplicate event ignored",
		zap.String("event_id", e.ID),
		zap.String("source", e.Source),
		zap.String("type", e.Type))

	stored, err := s.repo.GetEvent(ctx, e.ID)
	if err != nil || stored == nil {
		return e
	}
	return stored
}
