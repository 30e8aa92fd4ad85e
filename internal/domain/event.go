package domain

import (
	"encoding/json"
	"time"
)

// SpecVersion is the envelope schema version stamped on every SignalEvent.
const SpecVersion = "1.0"

// Event types emitted by the built-in adapters.
const (
	TypeAlertFiring       = "alert.firing"
	TypeAlertResolved     = "alert.resolved"
	TypeProbeOK           = "probe.ok"
	TypeProbeDegraded     = "probe.degraded"
	TypeProbeRateLimited  = "probe.rate_limited"
	TypePoolHealthChanged = "pool.health_changed"
)

// Severity levels carried on severity-bearing events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SignalEvent is the canonical event envelope all adapters produce,
// CloudEvents-compatible on the wire. Immutable once appended; the sink
// stamps IngestedAt on first successful append.
type SignalEvent struct {
	ID          string          `json:"id" ch:"id"`
	Source      string          `json:"source" ch:"source"`
	Type        string          `json:"type" ch:"type"`
	SpecVersion string          `json:"specversion" ch:"spec_version"`
	OccurredAt  time.Time       `json:"time" ch:"occurred_at"`
	IngestedAt  time.Time       `json:"-" ch:"ingested_at"`
	IncidentKey string          `json:"incident_key" ch:"incident_key"`
	Severity    string          `json:"severity,omitempty" ch:"severity"`
	Data        json.RawMessage `json:"data" ch:"data"`
}

// EventClass drives the correlator state machine per event type.
type EventClass int

const (
	// ClassInformational neither opens nor closes an episode; it creates an
	// OPEN incident for an unseen key and refreshes an existing one.
	ClassInformational EventClass = iota
	// ClassFiring opens or refreshes an active negative condition.
	ClassFiring
	// ClassTerminal ends the current episode for its key.
	ClassTerminal
)

// Classify maps an event to its correlator class. pool.health_changed is the
// one type that swings both ways: a quarantine announcement is a firing
// signal, a release announcement terminates the episode.
func Classify(e *SignalEvent) EventClass {
	switch e.Type {
	case TypeAlertFiring, TypeProbeDegraded, TypeProbeRateLimited:
		return ClassFiring
	case TypeAlertResolved:
		return ClassTerminal
	case TypePoolHealthChanged:
		if e.Severity == SeverityInfo {
			return ClassTerminal
		}
		return ClassFiring
	default:
		return ClassInformational
	}
}
