package domain

import "time"

// IncidentStatus is the lifecycle state of an Incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "OPEN"
	IncidentFiring   IncidentStatus = "FIRING"
	IncidentResolved IncidentStatus = "RESOLVED"
)

// Incident is the stateful aggregation of all SignalEvents sharing an
// incident key. Owned exclusively by the correlator; never deleted —
// resolution is a status transition, so history survives for audit.
type Incident struct {
	IncidentKey string         `json:"incident_key" ch:"incident_key"`
	Status      IncidentStatus `json:"status" ch:"status"`
	Severity    string         `json:"severity,omitempty" ch:"severity"`
	FirstSeen   time.Time      `json:"first_seen" ch:"first_seen"`
	LastSeen    time.Time      `json:"last_seen" ch:"last_seen"`
	// EventIDs is append-only, in correlation (arrival) order, which is not
	// necessarily occurred_at order.
	EventIDs []string `json:"event_ids" ch:"event_ids"`
	// Version increases on every mutation so the replacing store keeps the
	// newest row.
	Version uint64 `json:"-" ch:"version"`
}
