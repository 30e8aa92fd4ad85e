package alertmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
	"github.com/signalfold/signal-collector/internal/domain"
)

// Config configures the Alertmanager polling adapter.
type Config struct {
	// Scope prefixes every incident key this adapter derives, e.g. "prod".
	Scope string
	// BaseURL is the Alertmanager root, e.g. "http://alertmanager:9093".
	BaseURL string
	// PollInterval is the cadence this adapter declares to the scheduler.
	PollInterval time.Duration
	// DedupBucket is the time bucket width for event id derivation.
	DedupBucket time.Duration
}

// Adapter polls the Alertmanager v2 API and emits alert.firing /
// alert.resolved events per alert transition.
type Adapter struct {
	config Config
	client *http.Client
	log    *zap.Logger
}

// alert is the subset of the Alertmanager v2 alert shape this adapter reads.
type alert struct {
	Fingerprint string            `json:"fingerprint"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Status      struct {
		State string `json:"state"`
	} `json:"status"`
}

// payload is the normalized event payload for alert events.
type payload struct {
	AlertName   string            `json:"alertname"`
	Fingerprint string            `json:"fingerprint"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// New creates an Alertmanager adapter.
func New(config Config, client *http.Client, log *zap.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if config.DedupBucket <= 0 {
		config.DedupBucket = time.Minute
	}
	return &Adapter{
		config: config,
		client: client,
		log:    log,
	}
}

// ID returns the adapter identifier.
func (a *Adapter) ID() string {
	return "alertmanager"
}

// Interval returns the declared polling cadence.
func (a *Adapter) Interval() time.Duration {
	return a.config.PollInterval
}

// Probe fetches the current alert list from the Alertmanager v2 API, one raw
// record per alert.
func (a *Adapter) Probe(ctx context.Context) ([]adapter.RawRecord, error) {
	url := a.config.BaseURL + "/api/v2/alerts"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, adapter.NewPermanentError(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, adapter.NewTransientError(fmt.Errorf("failed to reach alertmanager: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapter.NewTransientError(fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, adapter.NewTransientError(fmt.Errorf("alertmanager returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, adapter.NewPermanentError(fmt.Errorf("alertmanager returned %d", resp.StatusCode))
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, adapter.NewPermanentError(fmt.Errorf("unexpected alertmanager response shape: %w", err))
	}

	a.log.Debug("Fetched alerts from alertmanager",
		zap.Int("alert_count", len(raw)))

	records := make([]adapter.RawRecord, len(raw))
	for i, r := range raw {
		records[i] = adapter.RawRecord{Body: r}
	}
	return records, nil
}

// Normalize transforms one Alertmanager alert into a SignalEvent. Suppressed
// alerts are skipped.
func (a *Adapter) Normalize(rec adapter.RawRecord) (*domain.SignalEvent, bool, error) {
	var al alert
	if err := json.Unmarshal(rec.Body, &al); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	alertName := al.Labels["alertname"]
	if al.Fingerprint == "" || alertName == "" {
		return nil, false, fmt.Errorf("alert missing fingerprint or alertname label")
	}

	var eventType string
	var occurredAt time.Time
	switch al.Status.State {
	case "active":
		eventType = domain.TypeAlertFiring
		occurredAt = al.StartsAt
	case "resolved":
		eventType = domain.TypeAlertResolved
		occurredAt = al.EndsAt
	case "suppressed":
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unknown alert state %q", al.Status.State)
	}

	data, err := json.Marshal(payload{
		AlertName:   alertName,
		Fingerprint: al.Fingerprint,
		Labels:      al.Labels,
		Annotations: al.Annotations,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	e := &domain.SignalEvent{
		Source:      a.ID(),
		Type:        eventType,
		SpecVersion: domain.SpecVersion,
		OccurredAt:  occurredAt,
		Severity:    a.severityOf(eventType, al.Labels),
		Data:        data,
	}
	return e, true, nil
}

// severityOf maps the alert's severity label onto envelope severity.
// Resolved events always carry info severity so the incident's
// monotonic-latest severity relaxes on resolution.
func (a *Adapter) severityOf(eventType string, labels map[string]string) string {
	if eventType == domain.TypeAlertResolved {
		return domain.SeverityInfo
	}
	switch labels["severity"] {
	case "critical", "page":
		return domain.SeverityCritical
	case "info":
		return domain.SeverityInfo
	default:
		return domain.SeverityWarning
	}
}

// DeriveEventID hashes source, type, the alert identity and a coarse time
// bucket. Repeated polls observing the same firing alert collide to one id;
// a later re-fire with a new startsAt lands in a new bucket.
func (a *Adapter) DeriveEventID(e *domain.SignalEvent) string {
	var p payload
	_ = json.Unmarshal(e.Data, &p)
	return adapter.EventID(map[string]interface{}{
		"source":      e.Source,
		"type":        e.Type,
		"alertname":   p.AlertName,
		"fingerprint": p.Fingerprint,
		"bucket":      adapter.TimeBucket(e.OccurredAt, a.config.DedupBucket),
	})
}

// DeriveIncidentKey groups the firing/resolved pair and every repeat-firing
// notification for one underlying alert: {scope}:{alertname}:{fingerprint}.
func (a *Adapter) DeriveIncidentKey(e *domain.SignalEvent) string {
	var p payload
	_ = json.Unmarshal(e.Data, &p)
	return fmt.Sprintf("%s:%s:%s", a.config.Scope, p.AlertName, p.Fingerprint)
}
