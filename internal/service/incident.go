package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/dto"
	"github.com/signalfold/signal-collector/internal/repository"
)

// ErrNotFound is returned when no incident exists for the requested key.
var ErrNotFound = errors.New("incident not found")

const maxPageSize = 500

// IncidentService serves the read-only incident query surface
type IncidentService struct {
	incidents repository.IncidentRepository
	events    repository.EventRepository
	log       *zap.Logger
}

// NewIncidentService creates a new incident service
func NewIncidentService(incidents repository.IncidentRepository, events repository.EventRepository, log *zap.Logger) *IncidentService {
	return &IncidentService{
		incidents: incidents,
		events:    events,
		log:       log,
	}
}

// GetIncident retrieves one incident by key
func (s *IncidentService) GetIncident(ctx context.Context, incidentKey string) (*dto.IncidentResponse, error) {
	incident, err := s.incidents.GetIncident(ctx, incidentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	if incident == nil {
		return nil, ErrNotFound
	}

	resp := toIncidentResponse(incident)
	return &resp, nil
}

// ListIncidents retrieves incidents filtered by status, paged
func (s *IncidentService) ListIncidents(ctx context.Context, req *dto.ListIncidentsRequest) (*dto.ListIncidentsResponse, error) {
	status := domain.IncidentStatus(req.Status)
	switch status {
	case "", domain.IncidentOpen, domain.IncidentFiring, domain.IncidentResolved:
	default:
		return nil, fmt.Errorf("invalid status %q (supported: OPEN, FIRING, RESOLVED)", req.Status)
	}

	size := req.Size
	if size <= 0 {
		size = 50
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	start := req.Start
	if start < 0 {
		start = 0
	}

	incidents, total, err := s.incidents.ListIncidents(ctx, repository.IncidentQuery{
		Status: status,
		Start:  start,
		Size:   size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	resp := &dto.ListIncidentsResponse{
		Incidents:     make([]dto.IncidentResponse, 0, len(incidents)),
		TotalRowCount: total,
	}
	for _, incident := range incidents {
		resp.Incidents = append(resp.Incidents, toIncidentResponse(incident))
	}
	return resp, nil
}

// GetIncidentEvents retrieves an incident's contributing events in
// correlation order, which is the incident's event id order, not the
// events' occurred_at order
func (s *IncidentService) GetIncidentEvents(ctx context.Context, incidentKey string) (*dto.ListEventsResponse, error) {
	incident, err := s.incidents.GetIncident(ctx, incidentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	if incident == nil {
		return nil, ErrNotFound
	}

	events, err := s.events.ListEvents(ctx, repository.EventFilter{IncidentKey: incidentKey})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	byID := make(map[string]*domain.SignalEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	resp := &dto.ListEventsResponse{
		IncidentKey: incidentKey,
		Events:      make([]dto.EventResponse, 0, len(incident.EventIDs)),
	}
	for _, id := range incident.EventIDs {
		e, ok := byID[id]
		if !ok {
			s.log.Warn("Incident references an event missing from the store",
				zap.String("incident_key", incidentKey),
				zap.String("event_id", id))
			continue
		}
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	return resp, nil
}

// Ping checks the backing store
func (s *IncidentService) Ping(ctx context.Context) error {
	return s.events.Ping(ctx)
}

func toIncidentResponse(incident *domain.Incident) dto.IncidentResponse {
	eventIDs := incident.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	return dto.IncidentResponse{
		IncidentKey: incident.IncidentKey,
		Status:      string(incident.Status),
		Severity:    incident.Severity,
		FirstSeen:   incident.FirstSeen,
		LastSeen:    incident.LastSeen,
		EventIDs:    eventIDs,
	}
}

func toEventResponse(e *domain.SignalEvent) dto.EventResponse {
	var data interface{}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		data = string(e.Data)
	}
	return dto.EventResponse{
		ID:          e.ID,
		Source:      e.Source,
		Type:        e.Type,
		SpecVersion: e.SpecVersion,
		OccurredAt:  e.OccurredAt,
		IngestedAt:  e.IngestedAt,
		IncidentKey: e.IncidentKey,
		Severity:    e.Severity,
		Data:        data,
	}
}
