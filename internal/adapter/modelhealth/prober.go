package modelhealth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Capabilities checked per model. Release from quarantine requires
// confirmed-good probes covering both.
const (
	CapabilityToolUse   = "tool_use"
	CapabilityStreaming = "streaming"
)

// Capabilities lists the capability checks in probe order.
var Capabilities = []string{CapabilityToolUse, CapabilityStreaming}

// ProbeOutcome is the raw result of one capability check against one model.
type ProbeOutcome struct {
	ModelID    string
	Capability string
	OK         bool
	StatusCode int
	Error      string
	Latency    time.Duration
	ObservedAt time.Time
}

// Prober executes a single capability check. Implementations own the actual
// transport; the adapter only interprets outcomes.
type Prober interface {
	ProbeCapability(ctx context.Context, modelID, capability string) ProbeOutcome
}

// HTTPProber checks model capabilities through the probe gateway's
// GET /v1/probe/{model}/{capability} endpoint.
type HTTPProber struct {
	baseURL string
	client  *http.Client
	clock   func() time.Time
}

// NewHTTPProber creates a prober against the given gateway base URL.
func NewHTTPProber(baseURL string, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProber{
		baseURL: baseURL,
		client:  client,
		clock:   time.Now,
	}
}

// ProbeCapability performs one capability check. Any response other than
// 2xx is a failed probe; transport errors are failed probes too, so a dead
// gateway degrades the pool rather than erroring the whole run.
func (p *HTTPProber) ProbeCapability(ctx context.Context, modelID, capability string) ProbeOutcome {
	outcome := ProbeOutcome{
		ModelID:    modelID,
		Capability: capability,
		ObservedAt: p.clock(),
	}

	url := fmt.Sprintf("%s/v1/probe/%s/%s", p.baseURL, modelID, capability)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	start := p.clock()
	resp, err := p.client.Do(req)
	outcome.Latency = p.clock().Sub(start)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	outcome.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !outcome.OK {
		outcome.Error = fmt.Sprintf("probe returned %d", resp.StatusCode)
	}
	return outcome
}
