package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/dto"
	"github.com/signalfold/signal-collector/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockIncidentServicer is a mock implementation of service.IncidentServicer
type MockIncidentServicer struct {
	mock.Mock
}

func (m *MockIncidentServicer) GetIncident(ctx context.Context, incidentKey string) (*dto.IncidentResponse, error) {
	args := m.Called(ctx, incidentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.IncidentResponse), args.Error(1)
}

func (m *MockIncidentServicer) ListIncidents(ctx context.Context, req *dto.ListIncidentsRequest) (*dto.ListIncidentsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListIncidentsResponse), args.Error(1)
}

func (m *MockIncidentServicer) GetIncidentEvents(ctx context.Context, incidentKey string) (*dto.ListEventsResponse, error) {
	args := m.Called(ctx, incidentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListEventsResponse), args.Error(1)
}

func (m *MockIncidentServicer) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func doRequest(h *Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck_OK(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("Ping", mock.Anything).Return(nil)

	w := doRequest(h, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck_StoreDown(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	w := doRequest(h, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListIncidents_OK(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("ListIncidents", mock.Anything, mock.MatchedBy(func(req *dto.ListIncidentsRequest) bool {
		return req.Status == "FIRING" && req.Start == 0 && req.Size == 50
	})).Return(&dto.ListIncidentsResponse{
		Incidents: []dto.IncidentResponse{
			{
				IncidentKey: "prod:HighErrorRate:abc123",
				Status:      "FIRING",
				Severity:    "critical",
				FirstSeen:   time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
				LastSeen:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
				EventIDs:    []string{"evt-1"},
			},
		},
		TotalRowCount: 1,
	}, nil)

	w := doRequest(h, http.MethodGet, "/incidents?status=FIRING")

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListIncidentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.TotalRowCount)
	require.Len(t, resp.Incidents, 1)
	assert.Equal(t, "prod:HighErrorRate:abc123", resp.Incidents[0].IncidentKey)
}

func TestListIncidents_ServiceError(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("ListIncidents", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

	w := doRequest(h, http.MethodGet, "/incidents")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetIncident_Found(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("GetIncident", mock.Anything, "prod:HighErrorRate:abc123").Return(&dto.IncidentResponse{
		IncidentKey: "prod:HighErrorRate:abc123",
		Status:      "RESOLVED",
	}, nil)

	w := doRequest(h, http.MethodGet, "/incidents/prod:HighErrorRate:abc123")

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RESOLVED", resp.Status)
}

func TestGetIncident_NotFound(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("GetIncident", mock.Anything, "prod:missing:key").Return(nil, service.ErrNotFound)

	w := doRequest(h, http.MethodGet, "/incidents/prod:missing:key")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestGetIncidentEvents_OK(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("GetIncidentEvents", mock.Anything, "prod:HighErrorRate:abc123").Return(&dto.ListEventsResponse{
		IncidentKey: "prod:HighErrorRate:abc123",
		Events: []dto.EventResponse{
			{ID: "evt-1", Source: "alertmanager", Type: "alert.firing"},
		},
	}, nil)

	w := doRequest(h, http.MethodGet, "/incidents/prod:HighErrorRate:abc123/events")

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "evt-1", resp.Events[0].ID)
}

func TestGetIncidentEvents_NotFound(t *testing.T) {
	svc := new(MockIncidentServicer)
	h := NewHandler(svc, zap.NewNop())

	svc.On("GetIncidentEvents", mock.Anything, mock.Anything).Return(nil, service.ErrNotFound)

	w := doRequest(h, http.MethodGet, "/incidents/prod:missing:key/events")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
