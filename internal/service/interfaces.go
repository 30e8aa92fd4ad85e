package service

import (
	"context"

	"github.com/signalfold/signal-collector/internal/dto"
)

// IncidentServicer defines the interface for incident query operations
type IncidentServicer interface {
	GetIncident(ctx context.Context, incidentKey string) (*dto.IncidentResponse, error)
	ListIncidents(ctx context.Context, req *dto.ListIncidentsRequest) (*dto.ListIncidentsResponse, error)
	GetIncidentEvents(ctx context.Context, incidentKey string) (*dto.ListEventsResponse, error)
	Ping(ctx context.Context) error
}
