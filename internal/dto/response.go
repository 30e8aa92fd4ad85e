package dto

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"unknown status FOO"`
}

// IncidentResponse represents one incident record
type IncidentResponse struct {
	IncidentKey string    `json:"incident_key" example:"prod:HighLatency:abc123"`
	Status      string    `json:"status" example:"FIRING"`
	Severity    string    `json:"severity,omitempty" example:"critical"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	EventIDs    []string  `json:"event_ids"`
}

// ListIncidentsResponse represents a paged incident listing
type ListIncidentsResponse struct {
	Incidents     []IncidentResponse `json:"incidents"`
	TotalRowCount uint64             `json:"total_row_count" example:"42"`
}

// EventResponse represents one stored signal event
type EventResponse struct {
	ID          string      `json:"id"`
	Source      string      `json:"source" example:"alertmanager"`
	Type        string      `json:"type" example:"alert.firing"`
	SpecVersion string      `json:"specversion" example:"1.0"`
	OccurredAt  time.Time   `json:"time"`
	IngestedAt  time.Time   `json:"ingested_at"`
	IncidentKey string      `json:"incident_key"`
	Severity    string      `json:"severity,omitempty"`
	Data        interface{} `json:"data"`
}

// ListEventsResponse represents an incident's contributing events in
// correlation order
type ListEventsResponse struct {
	IncidentKey string          `json:"incident_key"`
	Events      []EventResponse `json:"events"`
}
