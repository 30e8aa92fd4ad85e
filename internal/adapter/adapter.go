package adapter

import (
	"context"
	"time"

	"github.com/signalfold/signal-collector/internal/domain"
)

// RawRecord is one unparsed record fetched from an external system. Body is
// whatever the backend returned for that record; Ack, when non-nil, confirms
// durable handling back to the source (queue-style adapters only).
type RawRecord struct {
	Body []byte
	Ack  func(context.Context) error
}

// SourceAdapter is the contract every signal source implements. The runner
// has no adapter-specific knowledge beyond this interface.
//
// Probe may suspend on network I/O and must respect ctx cancellation.
// Normalize is a pure transform: no I/O, deterministic, safe to retry.
type SourceAdapter interface {
	// ID returns the unique adapter identifier, used as the event source.
	ID() string

	// Interval returns the polling cadence this adapter declares.
	Interval() time.Duration

	// Probe fetches zero or more raw records from the external system.
	// Failures carry a kind: Transient for network/backend hiccups retried on
	// the next tick, Permanent for misconfiguration or incompatible upstream
	// schema.
	Probe(ctx context.Context) ([]RawRecord, error)

	// Normalize transforms one raw record into a SignalEvent. The bool is
	// false when the record is deliberately skipped (noise threshold etc.);
	// an error means the record is malformed.
	Normalize(rec RawRecord) (*domain.SignalEvent, bool, error)

	// DeriveEventID computes the deterministic event id for a candidate.
	// Two observations of the same underlying occurrence must collide.
	DeriveEventID(e *domain.SignalEvent) string

	// DeriveIncidentKey computes the correlation key grouping all events
	// that describe the same underlying condition across its lifecycle.
	DeriveIncidentKey(e *domain.SignalEvent) string
}
