package sink

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

	"github.com/signalfold/signal-collector/internal/dedup"
	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/repository"
)

var testIngestedAt = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertEvent(ctx context.Context, event *domain.SignalEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) GetEvent(ctx context.Context, id string) (*domain.SignalEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SignalEvent), args.Error(1)
}

func (m *MockEventRepository) ListEvents(ctx context.Context, filter repository.EventFilter) ([]*domain.SignalEvent, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SignalEvent), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockIndex is a mock implementation of dedup.Index
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) FirstSeen(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockCorrelator is a mock implementation of the sink's Correlator
type MockCorrelator struct {
	mock.Mock
}

func (m *MockCorrelator) Apply(ctx context.Context, e *domain.SignalEvent) (*domain.Incident, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Incident), args.Error(1)
}

func testEvent(id string) *domain.SignalEvent {
	return &domain.SignalEvent{
		ID:          id,
		Source:      "alertmanager",
		Type:        domain.TypeAlertFiring,
		SpecVersion: domain.SpecVersion,
		OccurredAt:  testIngestedAt.Add(-time.Minute),
		IncidentKey: "prod:HighErrorRate:abc123",
		Severity:    domain.SeverityCritical,
		Data:        json.RawMessage(`{"alertname": "HighErrorRate", "fingerprint": "abc123"}`),
	}
}

func newTestSink(repo *MockEventRepository, index *MockIndex, corr *MockCorrelator, failOpen bool) *Sink {
	var idx dedup.Index
	if index != nil {
		idx = index
	}
	s := New(repo, idx, corr, Config{FailOpen: failOpen}, zap.NewNop())
	return s.WithClock(func() time.Time { return testIngestedAt })
}

func TestAppend_FirstAppendInsertsAndCorrelates(t *testing.T) {
	repo := new(MockEventRepository)
	corr := new(MockCorrelator)
	s := newTestSink(repo, nil, corr, true)

	repo.On("InsertEvent", mock.Anything, mock.MatchedBy(func(e *domain.SignalEvent) bool {
		return e.ID == "evt-1" && e.IngestedAt.Equal(testIngestedAt)
	})).Return(nil)
	corr.On("Apply", mock.Anything, mock.Anything).Return(&domain.Incident{}, nil)

	stored, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	require.NoError(t, err)
	assert.True(t, appended)
	assert.Equal(t, testIngestedAt, stored.IngestedAt)
	repo.AssertExpectations(t)
	corr.AssertExpectations(t)
}

func TestAppend_DuplicateIDReturnsExistingRecord(t *testing.T) {
	repo := new(MockEventRepository)
	corr := new(MockCorrelator)
	s := newTestSink(repo, nil, corr, true)

	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil).Once()
	corr.On("Apply", mock.Anything, mock.Anything).Return(&domain.Incident{}, nil).Once()

	first, appended, err := s.Append(context.Background(), testEvent("evt-1"))
	require.NoError(t, err)
	require.True(t, appended)

	repo.On("GetEvent", mock.Anything, "evt-1").Return(first, nil)

	second, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	require.NoError(t, err)
	assert.False(t, appended)
	assert.Equal(t, first, second)
	// InsertEvent and Apply each ran exactly once.
	repo.AssertNumberOfCalls(t, "InsertEvent", 1)
	corr.AssertNumberOfCalls(t, "Apply", 1)
}

func TestAppend_IndexReportsDuplicate(t *testing.T) {
	repo := new(MockEventRepository)
	index := new(MockIndex)
	corr := new(MockCorrelator)
	s := newTestSink(repo, index, corr, true)

	index.On("FirstSeen", mock.Anything, "evt-1").Return(false, nil)
	repo.On("GetEvent", mock.Anything, "evt-1").Return(testEvent("evt-1"), nil)

	_, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	require.NoError(t, err)
	assert.False(t, appended)
	repo.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
	corr.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestAppend_IndexDownFailOpen(t *testing.T) {
	repo := new(MockEventRepository)
	index := new(MockIndex)
	corr := new(MockCorrelator)
	s := newTestSink(repo, index, corr, true)

	index.On("FirstSeen", mock.Anything, "evt-1").Return(false, errors.New("connection refused"))
	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	corr.On("Apply", mock.Anything, mock.Anything).Return(&domain.Incident{}, nil)

	_, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	require.NoError(t, err)
	assert.True(t, appended)
}

func TestAppend_IndexDownFailClosed(t *testing.T) {
	repo := new(MockEventRepository)
	index := new(MockIndex)
	corr := new(MockCorrelator)
	s := newTestSink(repo, index, corr, false)

	index.On("FirstSeen", mock.Anything, "evt-1").Return(false, errors.New("connection refused"))

	_, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	assert.Error(t, err)
	assert.False(t, appended)
	repo.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}

func TestAppend_InsertFailureSurfaced(t *testing.T) {
	repo := new(MockEventRepository)
	corr := new(MockCorrelator)
	s := newTestSink(repo, nil, corr, true)

	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(errors.New("write failed"))

	_, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	assert.Error(t, err)
	assert.False(t, appended)
	corr.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestAppend_CorrelatorFailureStillAppends(t *testing.T) {
	repo := new(MockEventRepository)
	corr := new(MockCorrelator)
	s := newTestSink(repo, nil, corr, true)

	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)
	corr.On("Apply", mock.Anything, mock.Anything).Return(nil, errors.New("store unavailable"))

	stored, appended, err := s.Append(context.Background(), testEvent("evt-1"))

	// The event is durable; the error reports the failed incident fold.
	assert.Error(t, err)
	assert.True(t, appended)
	require.NotNil(t, stored)
	assert.Equal(t, testIngestedAt, stored.IngestedAt)
}

func TestAppend_DuplicateWithStoreMissFallsBackToCandidate(t *testing.T) {
	repo := new(MockEventRepository)
	corr := new(MockCorrelator)
	s := newTestSink(repo, nil, corr, true)

	repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil).Once()
	corr.On("Apply", mock.Anything, mock.Anything).Return(&domain.Incident{}, nil).Once()

	_, _, err := s.Append(context.Background(), testEvent("evt-1"))
	require.NoError(t, err)

	repo.On("GetEvent", mock.Anything, "evt-1").Return(nil, nil)

	candidate := testEvent("evt-1")
	second, appended, err := s.Append(context.Background(), candidate)

	require.NoError(t, err)
	assert.False(t, appended)
	assert.Equal(t, candidate, second)
}
