package repository

import (
	"context"

	"github.com/signalfold/signal-collector/internal/domain"
)

// EventFilter narrows a stored-event listing. Zero values mean "any".
type EventFilter struct {
	Source      string
	Type        string
	IncidentKey string
	Limit       int
}

// IncidentQuery represents an incident listing query
type IncidentQuery struct {
	Status domain.IncidentStatus
	Start  int
	Size   int
}

// EventRepository defines the interface for durable SignalEvent storage
type EventRepository interface {
	// InsertEvent appends one event to the store
	InsertEvent(ctx context.Context, event *domain.SignalEvent) error

	// GetEvent retrieves an event by id; returns nil when absent
	GetEvent(ctx context.Context, id string) (*domain.SignalEvent, error)

	// ListEvents retrieves events matching the filter, ingestion order
	ListEvents(ctx context.Context, filter EventFilter) ([]*domain.SignalEvent, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}

// IncidentRepository defines the interface for incident storage
type IncidentRepository interface {
	// UpsertIncident writes the full incident record; the newest version wins
	UpsertIncident(ctx context.Context, incident *domain.Incident) error

	// GetIncident retrieves an incident by key; returns nil when absent
	GetIncident(ctx context.Context, incidentKey string) (*domain.Incident, error)

	// ListIncidents retrieves incidents matching the query plus the total count
	ListIncidents(ctx context.Context, query IncidentQuery) ([]*domain.Incident, uint64, error)
}
