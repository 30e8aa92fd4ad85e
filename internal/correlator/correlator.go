// Package correlator folds appended SignalEvents into Incident records.
//
// The state machine is driven by arrival order; occurred_at only moves the
// first_seen/last_seen bookkeeping. That keeps behavior well-defined when
// the network reorders or replays deliveries.
package correlator

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/repository"
)

const lockStripes = 64

// Correlator owns all Incident mutations. Writes to one incident key are
// serialized through a striped lock; different keys proceed in parallel.
type Correlator struct {
	store repository.IncidentRepository
	log   *zap.Logger
	clock func() time.Time

	locks [lockStripes]sync.Mutex

	mu    sync.RWMutex
	cache map[string]*domain.Incident
}

// New creates a correlator writing through to the given incident store.
func New(store repository.IncidentRepository, log *zap.Logger) *Correlator {
	return &Correlator{
		store: store,
		log:   log,
		clock: time.Now,
		cache: make(map[string]*domain.Incident),
	}
}

// WithClock overrides the clock for deterministic testing.
func (c *Correlator) WithClock(clock func() time.Time) *Correlator {
	c.clock = clock
	return c
}

func (c *Correlator) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// Apply folds one appended event into its incident and returns the updated
// record. The sink calls this exactly once per first append.
func (c *Correlator) Apply(ctx context.Context, e *domain.SignalEvent) (*domain.Incident, error) {
	if e.IncidentKey == "" {
		return nil, fmt.Errorf("event %s has no incident key", e.ID)
	}

	lock := c.lockFor(e.IncidentKey)
	lock.Lock()
	defer lock.Unlock()

	current, err := c.load(ctx, e.IncidentKey)
	if err != nil {
		return nil, err
	}

	var updated *domain.Incident
	if current == nil {
		updated = c.create(e)
	} else {
		updated = c.transition(current, e)
	}
	updated.Version = uint64(c.clock().UnixNano())

	if err := c.store.UpsertIncident(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to persist incident %s: %w", e.IncidentKey, err)
	}

	c.mu.Lock()
	c.cache[e.IncidentKey] = updated
	c.mu.Unlock()

	if current == nil || current.Status != updated.Status {
		c.log.Info("Incident status changed",
			zap.String("incident_key", updated.IncidentKey),
			zap.String("status", string(updated.Status)),
			zap.String("event_id", e.ID),
			zap.String("event_type", e.Type))
	}

	return updated, nil
}

// load returns the current incident for key, consulting the cache first and
// falling back to the store so episodes survive process restarts.
func (c *Correlator) load(ctx context.Context, key string) (*domain.Incident, error) {
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	stored, err := c.store.GetIncident(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", key, err)
	}
	return stored, nil
}

// create opens a new incident for a previously-unseen key. A firing-class
// event opens straight to FIRING; informational first signals open OPEN. A
// terminal event for an unseen key records a RESOLVED incident so late or
// replayed resolutions still leave an audit trail.
func (c *Correlator) create(e *domain.SignalEvent) *domain.Incident {
	status := domain.IncidentOpen
	switch domain.Classify(e) {
	case domain.ClassFiring:
		status = domain.IncidentFiring
	case domain.ClassTerminal:
		status = domain.IncidentResolved
	}

	return &domain.Incident{
		IncidentKey: e.IncidentKey,
		Status:      status,
		Severity:    e.Severity,
		FirstSeen:   e.OccurredAt,
		LastSeen:    e.OccurredAt,
		EventIDs:    []string{e.ID},
	}
}

// transition folds an event into an existing incident. Status moves by
// arrival order; first_seen/last_seen move by occurred_at ordering;
// first_seen is never reset on reopen — it anchors the first-ever
// occurrence of the key.
func (c *Correlator) transition(current *domain.Incident, e *domain.SignalEvent) *domain.Incident {
	updated := *current
	updated.EventIDs = append(append([]string(nil), current.EventIDs...), e.ID)

	if e.OccurredAt.Before(updated.FirstSeen) {
		updated.FirstSeen = e.OccurredAt
	}
	if e.OccurredAt.After(updated.LastSeen) {
		updated.LastSeen = e.OccurredAt
	}
	if e.Severity != "" {
		// Monotonic-latest: the newest severity-bearing arrival wins, it is
		// deliberately not a max.
		updated.Severity = e.Severity
	}

	switch domain.Classify(e) {
	case domain.ClassFiring:
		// Opens, extends, or reopens — a RESOLVED incident reopens into the
		// same record, preserving continuity of history.
		updated.Status = domain.IncidentFiring
	case domain.ClassTerminal:
		updated.Status = domain.IncidentResolved
	}

	return &updated
}

// Get returns the current incident for key, nil when unknown.
func (c *Correlator) Get(ctx context.Context, key string) (*domain.Incident, error) {
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return c.load(ctx, key)
}
