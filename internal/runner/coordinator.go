package runner

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when an adapter's run slot is held.
var ErrAlreadyRunning = errors.New("adapter run already in progress")

// Outcome is the recorded result of one adapter run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Lease is the mutual-exclusion token for one adapter run. At most one
// lease per adapter is live at any time.
type Lease struct {
	Token     string
	AdapterID string
	StartedAt time.Time
	Deadline  time.Time
}

// AdapterRunRecord reports one finished run upstream. Ephemeral health
// state, not durable domain state.
type AdapterRunRecord struct {
	AdapterID     string    `json:"adapter_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       Outcome   `json:"outcome"`
	EventsEmitted int       `json:"events_emitted"`
	LastError     string    `json:"last_error,omitempty"`
}

// Coordinator guards per-adapter run slots. A lease held past its deadline
// is force-expired on the next StartRun and the stuck run recorded as a
// timeout failure; the in-flight probe is expected to cancel cooperatively
// through its run context.
type Coordinator struct {
	timeout time.Duration
	clock   func() time.Time
	log     *zap.Logger

	mu      sync.Mutex
	active  map[string]*Lease
	records map[string]*AdapterRunRecord
}

// NewCoordinator creates a coordinator enforcing the given per-run timeout.
func NewCoordinator(timeout time.Duration, log *zap.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		clock:   time.Now,
		log:     log,
		active:  make(map[string]*Lease),
		records: make(map[string]*AdapterRunRecord),
	}
}

// WithClock overrides the clock for deterministic testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// Timeout returns the per-run timeout runs must respect.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// StartRun acquires the run slot for adapterID. Returns ErrAlreadyRunning
// while a live lease holds the slot.
func (c *Coordinator) StartRun(adapterID string) (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if held, ok := c.active[adapterID]; ok {
		if now.Before(held.Deadline) {
			return nil, ErrAlreadyRunning
		}
		// Force-expire the overdue lease and record the stuck run.
		c.log.Warn("Force-expiring overdue run lease",
			zap.String("adapter_id", adapterID),
			zap.Time("deadline", held.Deadline))
		c.records[adapterID] = &AdapterRunRecord{
			AdapterID:  adapterID,
			StartedAt:  held.StartedAt,
			FinishedAt: now,
			Outcome:    OutcomeFailed,
			LastError:  "timeout: lease expired",
		}
		delete(c.active, adapterID)
	}

	lease := &Lease{
		Token:     uuid.NewString(),
		AdapterID: adapterID,
		StartedAt: now,
		Deadline:  now.Add(c.timeout),
	}
	c.active[adapterID] = lease
	return lease, nil
}

// EndRun releases the slot and records the run outcome. A lease that was
// already force-expired is ignored; its timeout record stands.
func (c *Coordinator) EndRun(lease *Lease, outcome Outcome, eventsEmitted int, runErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.active[lease.AdapterID]
	if !ok || held.Token != lease.Token {
		return
	}
	delete(c.active, lease.AdapterID)

	record := &AdapterRunRecord{
		AdapterID:     lease.AdapterID,
		StartedAt:     lease.StartedAt,
		FinishedAt:    c.clock(),
		Outcome:       outcome,
		EventsEmitted: eventsEmitted,
	}
	if runErr != nil {
		record.LastError = runErr.Error()
	}
	c.records[lease.AdapterID] = record
}

// Records returns the latest run record per adapter, ordered by adapter id.
func (c *Coordinator) Records() []AdapterRunRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AdapterRunRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdapterID < out[j].AdapterID })
	return out
}
