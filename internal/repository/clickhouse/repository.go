package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/repository"
)

// Repository implements EventRepository and IncidentRepository for ClickHouse
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// InitSchema initializes the ClickHouse schema. Both tables use
// ReplacingMergeTree so a duplicate that races past the dedup index
// collapses to one row at merge time.
func (r *Repository) InitSchema(ctx context.Context) error {
	eventsTable := `
	CREATE TABLE IF NOT EXISTS signal_events (
		id String,
		source LowCardinality(String),
		type LowCardinality(String),
		spec_version LowCardinality(String),
		occurred_at DateTime64(3),
		ingested_at DateTime64(3) DEFAULT now64(3),
		incident_key String,
		severity LowCardinality(String),
		data String
	) ENGINE = ReplacingMergeTree
	PRIMARY KEY (id)
	ORDER BY (id)
	PARTITION BY toYYYYMM(occurred_at)
	SETTINGS index_granularity = 8192
	`

	incidentsTable := `
	CREATE TABLE IF NOT EXISTS incidents (
		incident_key String,
		status LowCardinality(String),
		severity LowCardinality(String),
		first_seen DateTime64(3),
		last_seen DateTime64(3),
		event_ids Array(String),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PRIMARY KEY (incident_key)
	ORDER BY (incident_key)
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, eventsTable); err != nil {
		return fmt.Errorf("failed to create signal_events table: %w", err)
	}
	if err := r.client.Conn().Exec(ctx, incidentsTable); err != nil {
		return fmt.Errorf("failed to create incidents table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertEvent appends one event to the signal_events table
func (r *Repository) InsertEvent(ctx context.Context, event *domain.SignalEvent) error {
	query := `
	INSERT INTO signal_events
		(id, source, type, spec_version, occurred_at, ingested_at, incident_key, severity, data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	data := string(event.Data)
	if data == "" {
		data = "{}"
	}

	ingestedAt := event.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	if err := r.client.Conn().Exec(ctx, query,
		event.ID,
		event.Source,
		event.Type,
		event.SpecVersion,
		event.OccurredAt,
		ingestedAt,
		event.IncidentKey,
		event.Severity,
		data,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// GetEvent retrieves an event by id, nil when absent
func (r *Repository) GetEvent(ctx context.Context, id string) (*domain.SignalEvent, error) {
	query := `
	SELECT id, source, type, spec_version, occurred_at, ingested_at, incident_key, severity, data
	FROM signal_events FINAL
	WHERE id = ?
	LIMIT 1
	`

	rows, err := r.client.Conn().Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanEvent(rows.Scan)
}

// ListEvents retrieves events matching the filter in ingestion order
func (r *Repository) ListEvents(ctx context.Context, filter repository.EventFilter) ([]*domain.SignalEvent, error) {
	query := `
	SELECT id, source, type, spec_version, occurred_at, ingested_at, incident_key, severity, data
	FROM signal_events FINAL
	WHERE 1 = 1
	`
	var args []interface{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.IncidentKey != "" {
		query += " AND incident_key = ?"
		args = append(args, filter.IncidentKey)
	}

	query += " ORDER BY ingested_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.client.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.SignalEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(scan func(...interface{}) error) (*domain.SignalEvent, error) {
	var event domain.SignalEvent
	var data string

	if err := scan(
		&event.ID,
		&event.Source,
		&event.Type,
		&event.SpecVersion,
		&event.OccurredAt,
		&event.IngestedAt,
		&event.IncidentKey,
		&event.Severity,
		&data,
	); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Data = json.RawMessage(data)
	return &event, nil
}

// UpsertIncident writes the full incident record with its version; the
// replacing engine keeps the row with the highest version per key
func (r *Repository) UpsertIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
	INSERT INTO incidents
		(incident_key, status, severity, first_seen, last_seen, event_ids, version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if incident.Version == 0 {
		incident.Version = uint64(time.Now().UnixNano())
	}

	eventIDs := incident.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}

	if err := r.client.Conn().Exec(ctx, query,
		incident.IncidentKey,
		string(incident.Status),
		incident.Severity,
		incident.FirstSeen,
		incident.LastSeen,
		eventIDs,
		incident.Version,
	); err != nil {
		return fmt.Errorf("failed to upsert incident: %w", err)
	}

	return nil
}

// GetIncident retrieves an incident by key, nil when absent
func (r *Repository) GetIncident(ctx context.Context, incidentKey string) (*domain.Incident, error) {
	query := `
	SELECT incident_key, status, severity, first_seen, last_seen, event_ids, version
	FROM incidents FINAL
	WHERE incident_key = ?
	LIMIT 1
	`

	rows, err := r.client.Conn().Query(ctx, query, incidentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanIncident(rows.Scan)
}

// ListIncidents retrieves incidents matching the query plus the total count
func (r *Repository) ListIncidents(ctx context.Context, query repository.IncidentQuery) ([]*domain.Incident, uint64, error) {
	where := ""
	var args []interface{}
	if query.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(query.Status))
	}

	countQuery := "SELECT count() FROM incidents FINAL" + where
	var total uint64
	if err := r.client.Conn().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	listQuery := `
	SELECT incident_key, status, severity, first_seen, last_seen, event_ids, version
	FROM incidents FINAL
	` + where + " ORDER BY last_seen DESC"

	if query.Size > 0 {
		listQuery += " LIMIT ? OFFSET ?"
		args = append(args, query.Size, query.Start)
	}

	rows, err := r.client.Conn().Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*domain.Incident
	for rows.Next() {
		incident, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, total, rows.Err()
}

func scanIncident(scan func(...interface{}) error) (*domain.Incident, error) {
	var incident domain.Incident
	var status string

	if err := scan(
		&incident.IncidentKey,
		&status,
		&incident.Severity,
		&incident.FirstSeen,
		&incident.LastSeen,
		&incident.EventIDs,
		&incident.Version,
	); err != nil {
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}

	incident.Status = domain.IncidentStatus(status)
	return &incident, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}
