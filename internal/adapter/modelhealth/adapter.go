package modelhealth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
	"github.com/signalfold/signal-collector/internal/domain"
)

// Config configures the model-health probe adapter.
type Config struct {
	// Scope prefixes every incident key this adapter derives.
	Scope string
	// Models are the model ids probed each run.
	Models []string
	// PollInterval is the cadence this adapter declares to the scheduler.
	PollInterval time.Duration
	// DedupBucket is the time bucket width for event id derivation.
	DedupBucket time.Duration
	// Pool tunes the quarantine hysteresis.
	Pool PoolConfig
}

// Adapter probes each configured model for tool-use and streaming health,
// emits probe.ok / probe.degraded / probe.rate_limited events, and maintains
// the quarantine pool. Pool membership changes are emitted as
// pool.health_changed events and replayed at startup, never mutated out of
// band.
type Adapter struct {
	config Config
	prober Prober
	pool   *Pool
	log    *zap.Logger
}

// record is the internal raw record shape Probe hands to Normalize.
type record struct {
	Kind  string        `json:"kind"` // "probe" | "pool"
	Probe *probeRecord  `json:"probe,omitempty"`
	Pool  *changeRecord `json:"pool,omitempty"`
}

type probeRecord struct {
	ModelID    string    `json:"model_id"`
	Capability string    `json:"capability"`
	OK         bool      `json:"ok"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	// EmitOK marks good probes worth emitting: evidence while the pair is
	// quarantined or recovering. Healthy steady-state oks are noise and
	// skipped at normalization.
	EmitOK bool `json:"emit_ok,omitempty"`
}

type changeRecord struct {
	ModelID       string    `json:"model_id"`
	Capability    string    `json:"capability"`
	Action        string    `json:"action"`
	ErrorRate     float64   `json:"error_rate"`
	WindowSize    int       `json:"window_size"`
	ConsecutiveOK int       `json:"consecutive_ok,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// probePayload is the normalized event payload for probe events.
type probePayload struct {
	ModelID    string `json:"model_id"`
	Capability string `json:"capability"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// poolPayload is the normalized event payload for pool.health_changed.
type poolPayload struct {
	ModelID       string  `json:"model_id"`
	Capability    string  `json:"capability"`
	Action        string  `json:"action"`
	ErrorRate     float64 `json:"error_rate"`
	WindowSize    int     `json:"window_size"`
	ConsecutiveOK int     `json:"consecutive_ok,omitempty"`
}

// New creates a model-health adapter.
func New(config Config, prober Prober, log *zap.Logger) *Adapter {
	if config.DedupBucket <= 0 {
		config.DedupBucket = time.Minute
	}
	return &Adapter{
		config: config,
		prober: prober,
		pool:   NewPool(config.Pool),
		log:    log,
	}
}

// ID returns the adapter identifier.
func (a *Adapter) ID() string {
	return "modelhealth"
}

// Interval returns the declared polling cadence.
func (a *Adapter) Interval() time.Duration {
	return a.config.PollInterval
}

// Pool exposes the quarantine pool for health reporting.
func (a *Adapter) Pool() *Pool {
	return a.pool
}

// Probe checks every configured model on both capabilities, folds the
// outcomes into the quarantine pool, and returns one raw record per probe
// plus one per pool change. Pool bookkeeping happens here so Normalize stays
// pure.
func (a *Adapter) Probe(ctx context.Context) ([]adapter.RawRecord, error) {
	if len(a.config.Models) == 0 {
		return nil, adapter.NewPermanentError(fmt.Errorf("no models configured"))
	}

	var records []adapter.RawRecord
	for _, modelID := range a.config.Models {
		for _, capability := range Capabilities {
			if err := ctx.Err(); err != nil {
				return nil, adapter.NewTransientError(fmt.Errorf("probe cancelled: %w", err))
			}

			outcome := a.prober.ProbeCapability(ctx, modelID, capability)
			wasQuarantined := a.pool.IsQuarantined(modelID, capability)
			changes := a.pool.Observe(modelID, capability, outcome.OK)

			rec, err := marshalRecord(record{Kind: "probe", Probe: &probeRecord{
				ModelID:    modelID,
				Capability: capability,
				OK:         outcome.OK,
				StatusCode: outcome.StatusCode,
				Error:      outcome.Error,
				ObservedAt: outcome.ObservedAt,
				EmitOK:     wasQuarantined,
			}})
			if err != nil {
				return nil, adapter.NewPermanentError(err)
			}
			records = append(records, rec)

			for _, change := range changes {
				a.log.Info("Model pool membership changed",
					zap.String("model_id", change.ModelID),
					zap.String("capability", change.Capability),
					zap.String("action", string(change.Action)),
					zap.Float64("error_rate", change.ErrorRate))

				rec, err := marshalRecord(record{Kind: "pool", Pool: &changeRecord{
					ModelID:       change.ModelID,
					Capability:    change.Capability,
					Action:        string(change.Action),
					ErrorRate:     change.ErrorRate,
					WindowSize:    change.WindowSize,
					ConsecutiveOK: change.ConsecutiveOK,
					ObservedAt:    outcome.ObservedAt,
				}})
				if err != nil {
					return nil, adapter.NewPermanentError(err)
				}
				records = append(records, rec)
			}
		}
	}

	return records, nil
}

func marshalRecord(r record) (adapter.RawRecord, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return adapter.RawRecord{}, fmt.Errorf("failed to marshal probe record: %w", err)
	}
	return adapter.RawRecord{Body: body}, nil
}

// Normalize maps one raw record to a SignalEvent. Good probes of healthy
// pairs are skipped as noise; good probes of quarantined pairs are emitted
// as promotion evidence.
func (a *Adapter) Normalize(rec adapter.RawRecord) (*domain.SignalEvent, bool, error) {
	var r record
	if err := json.Unmarshal(rec.Body, &r); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	switch r.Kind {
	case "probe":
		return a.normalizeProbe(r.Probe)
	case "pool":
		return a.normalizePoolChange(r.Pool)
	default:
		return nil, false, fmt.Errorf("unknown record kind %q", r.Kind)
	}
}

func (a *Adapter) normalizeProbe(p *probeRecord) (*domain.SignalEvent, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("probe record missing body")
	}

	var eventType, severity string
	switch {
	case p.OK && !p.EmitOK:
		return nil, false, nil
	case p.OK:
		eventType = domain.TypeProbeOK
		severity = domain.SeverityInfo
	case p.StatusCode == 429:
		eventType = domain.TypeProbeRateLimited
		severity = domain.SeverityWarning
	default:
		eventType = domain.TypeProbeDegraded
		severity = domain.SeverityCritical
	}

	data, err := json.Marshal(probePayload{
		ModelID:    p.ModelID,
		Capability: p.Capability,
		StatusCode: p.StatusCode,
		Error:      p.Error,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal probe payload: %w", err)
	}

	e := &domain.SignalEvent{
		Source:      a.ID(),
		Type:        eventType,
		SpecVersion: domain.SpecVersion,
		OccurredAt:  p.ObservedAt,
		Severity:    severity,
		Data:        data,
	}
	return e, true, nil
}

func (a *Adapter) normalizePoolChange(c *changeRecord) (*domain.SignalEvent, bool, error) {
	if c == nil {
		return nil, false, fmt.Errorf("pool record missing body")
	}

	severity := domain.SeverityCritical
	if c.Action == string(ActionRelease) {
		severity = domain.SeverityInfo
	}

	data, err := json.Marshal(poolPayload{
		ModelID:       c.ModelID,
		Capability:    c.Capability,
		Action:        c.Action,
		ErrorRate:     c.ErrorRate,
		WindowSize:    c.WindowSize,
		ConsecutiveOK: c.ConsecutiveOK,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal pool payload: %w", err)
	}

	e := &domain.SignalEvent{
		Source:      a.ID(),
		Type:        domain.TypePoolHealthChanged,
		SpecVersion: domain.SpecVersion,
		OccurredAt:  c.ObservedAt,
		Severity:    severity,
		Data:        data,
	}
	return e, true, nil
}

// DeriveEventID hashes source, type, the model+capability identity and a
// coarse time bucket. Latency samples and status text never enter the hash;
// two probes of the same condition within one bucket collide to one id.
func (a *Adapter) DeriveEventID(e *domain.SignalEvent) string {
	var p poolPayload
	_ = json.Unmarshal(e.Data, &p)
	identity := map[string]interface{}{
		"source":     e.Source,
		"type":       e.Type,
		"model_id":   p.ModelID,
		"capability": p.Capability,
		"bucket":     adapter.TimeBucket(e.OccurredAt, a.config.DedupBucket),
	}
	if e.Type == domain.TypePoolHealthChanged {
		identity["action"] = p.Action
	}
	return adapter.EventID(identity)
}

// DeriveIncidentKey groups every health signal for one model+capability
// combination: {scope}:model_health:{model_id}:{capability}.
func (a *Adapter) DeriveIncidentKey(e *domain.SignalEvent) string {
	var p poolPayload
	_ = json.Unmarshal(e.Data, &p)
	return fmt.Sprintf("%s:model_health:%s:%s", a.config.Scope, p.ModelID, p.Capability)
}

// RestorePool rebuilds quarantine membership by replaying stored
// pool.health_changed events in ingestion order.
func (a *Adapter) RestorePool(events []*domain.SignalEvent) {
	restored := 0
	for _, e := range events {
		if e.Type != domain.TypePoolHealthChanged || e.Source != a.ID() {
			continue
		}
		var p poolPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			a.log.Warn("Skipping unreadable pool event during replay",
				zap.String("event_id", e.ID),
				zap.Error(err))
			continue
		}
		a.pool.Restore(p.ModelID, p.Capability, ChangeAction(p.Action))
		restored++
	}

	if restored > 0 {
		a.log.Info("Restored quarantine pool from event stream",
			zap.Int("replayed_events", restored),
			zap.Strings("quarantined", a.pool.Quarantined()))
	}
}
