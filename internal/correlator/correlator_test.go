package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/repository"
)

var (
	testClock = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	t0        = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
)

// MockIncidentRepository is a mock implementation of repository.IncidentRepository
type MockIncidentRepository struct {
	mock.Mock
}

func (m *MockIncidentRepository) UpsertIncident(ctx context.Context, incident *domain.Incident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}

func (m *MockIncidentRepository) GetIncident(ctx context.Context, incidentKey string) (*domain.Incident, error) {
	args := m.Called(ctx, incidentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Incident), args.Error(1)
}

func (m *MockIncidentRepository) ListIncidents(ctx context.Context, query repository.IncidentQuery) ([]*domain.Incident, uint64, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Incident), args.Get(1).(uint64), args.Error(2)
}

func newTestCorrelator(store *MockIncidentRepository) *Correlator {
	return New(store, zap.NewNop()).WithClock(func() time.Time { return testClock })
}

func event(id, eventType, severity string, occurredAt time.Time) *domain.SignalEvent {
	return &domain.SignalEvent{
		ID:          id,
		Source:      "alertmanager",
		Type:        eventType,
		SpecVersion: domain.SpecVersion,
		OccurredAt:  occurredAt,
		IncidentKey: "prod:HighErrorRate:abc123",
		Severity:    severity,
		Data:        json.RawMessage(`{}`),
	}
}

func TestApply_FiringEventOpensFiringIncident(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, "prod:HighErrorRate:abc123").Return(nil, nil)
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0))

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentFiring, incident.Status)
	assert.Equal(t, domain.SeverityCritical, incident.Severity)
	assert.Equal(t, t0, incident.FirstSeen)
	assert.Equal(t, t0, incident.LastSeen)
	assert.Equal(t, []string{"evt-1"}, incident.EventIDs)
	assert.Equal(t, uint64(testClock.UnixNano()), incident.Version)
}

func TestApply_InformationalEventOpensOpenIncident(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil)
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeProbeOK, domain.SeverityInfo, t0))

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentOpen, incident.Status)
}

func TestApply_TerminalEventOnUnseenKeyRecordsResolved(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil)
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertResolved, domain.SeverityInfo, t0))

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentResolved, incident.Status)
}

func TestApply_ResolveThenReopenPreservesFirstSeen(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil).Once()
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	_, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0))
	require.NoError(t, err)

	resolved, err := c.Apply(context.Background(), event("evt-2", domain.TypeAlertResolved, domain.SeverityInfo, t0.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentResolved, resolved.Status)
	assert.Equal(t, domain.SeverityInfo, resolved.Severity)

	reopened, err := c.Apply(context.Background(), event("evt-3", domain.TypeAlertFiring, domain.SeverityCritical, t0.Add(20*time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, domain.IncidentFiring, reopened.Status)
	assert.Equal(t, t0, reopened.FirstSeen, "reopen keeps the original first_seen")
	assert.Equal(t, t0.Add(20*time.Minute), reopened.LastSeen)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, reopened.EventIDs)
}

func TestApply_OutOfOrderArrival(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil).Once()
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	t1 := t0
	t2 := t0.Add(5 * time.Minute)

	// The later occurrence arrives first.
	_, err := c.Apply(context.Background(), event("evt-2", domain.TypeAlertFiring, domain.SeverityCritical, t2))
	require.NoError(t, err)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t1))
	require.NoError(t, err)

	assert.Equal(t, t1, incident.FirstSeen)
	assert.Equal(t, t2, incident.LastSeen)
	// Correlation order is arrival order, not occurred_at order.
	assert.Equal(t, []string{"evt-2", "evt-1"}, incident.EventIDs)
}

func TestApply_StatusByArrivalOrder(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil).Once()
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	// Resolution occurred later but arrives first; the stale firing event
	// arriving afterwards still reopens by arrival order.
	_, err := c.Apply(context.Background(), event("evt-2", domain.TypeAlertResolved, domain.SeverityInfo, t0.Add(10*time.Minute)))
	require.NoError(t, err)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0))
	require.NoError(t, err)

	assert.Equal(t, domain.IncidentFiring, incident.Status)
	assert.Equal(t, t0.Add(10*time.Minute), incident.LastSeen)
}

func TestApply_SeverityLatestWins(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil).Once()
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	_, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0))
	require.NoError(t, err)

	incident, err := c.Apply(context.Background(), event("evt-2", domain.TypeAlertFiring, domain.SeverityWarning, t0.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, domain.SeverityWarning, incident.Severity)
}

func TestApply_LoadsFromStoreWhenNotCached(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	existing := &domain.Incident{
		IncidentKey: "prod:HighErrorRate:abc123",
		Status:      domain.IncidentFiring,
		Severity:    domain.SeverityCritical,
		FirstSeen:   t0,
		LastSeen:    t0,
		EventIDs:    []string{"evt-0"},
	}
	store.On("GetIncident", mock.Anything, "prod:HighErrorRate:abc123").Return(existing, nil)
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(nil)

	incident, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertResolved, domain.SeverityInfo, t0.Add(time.Minute)))

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentResolved, incident.Status)
	assert.Equal(t, []string{"evt-0", "evt-1"}, incident.EventIDs)
}

func TestApply_MissingIncidentKey(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	e := event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0)
	e.IncidentKey = ""

	_, err := c.Apply(context.Background(), e)

	assert.Error(t, err)
}

func TestApply_UpsertFailure(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, mock.Anything).Return(nil, nil)
	store.On("UpsertIncident", mock.Anything, mock.Anything).Return(errors.New("write failed"))

	_, err := c.Apply(context.Background(), event("evt-1", domain.TypeAlertFiring, domain.SeverityCritical, t0))

	assert.Error(t, err)

	// The failed fold is not cached; the next Apply reloads from the store.
	incident, err := c.Get(context.Background(), "prod:HighErrorRate:abc123")
	require.NoError(t, err)
	assert.Nil(t, incident)
}

func TestGet_UnknownKeyReturnsNil(t *testing.T) {
	store := new(MockIncidentRepository)
	c := newTestCorrelator(store)

	store.On("GetIncident", mock.Anything, "prod:missing:key").Return(nil, nil)

	incident, err := c.Get(context.Background(), "prod:missing:key")

	require.NoError(t, err)
	assert.Nil(t, incident)
}
