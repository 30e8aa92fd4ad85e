package modelhealth

import (
	"fmt"
	"sort"
	"sync"
)

// ChangeAction is the direction of a pool membership change.
type ChangeAction string

const (
	ActionQuarantine ChangeAction = "quarantine"
	ActionRelease    ChangeAction = "release"
)

// Change records one promotion/demotion decision. Every change is emitted as
// a pool.health_changed event so the decision is auditable through the event
// stream rather than a side-channel mutation.
type Change struct {
	ModelID       string
	Capability    string
	Action        ChangeAction
	ErrorRate     float64
	WindowSize    int
	ConsecutiveOK int
}

// PoolConfig tunes the quarantine hysteresis.
type PoolConfig struct {
	// WindowSize is the trailing probe count per model+capability pair over
	// which the error rate is evaluated.
	WindowSize int
	// ErrorRateThreshold quarantines a pair once bad probes (errors or 429s)
	// reach this fraction of the window.
	ErrorRateThreshold float64
	// MinSamples is the minimum observations before the rate is trusted.
	MinSamples int
	// RequiredConsecutiveOK is the consecutive good probes a model needs on
	// every capability before a quarantined pair is released.
	RequiredConsecutiveOK int
}

// Pool tracks per-pair rolling health and the quarantine set. Demotion is per
// model+capability pair; promotion requires the whole model to look healthy:
// the required run of consecutive good probes must cover both the tool-use
// and streaming checks, so a single good probe never releases anything.
type Pool struct {
	config PoolConfig

	mu    sync.Mutex
	pairs map[string]*pairState
}

type pairState struct {
	modelID    string
	capability string

	// outcomes is a ring of the trailing window, true = good probe.
	outcomes []bool
	next     int
	filled   int

	quarantined   bool
	consecutiveOK int
}

// NewPool creates a pool with the given hysteresis settings.
func NewPool(config PoolConfig) *Pool {
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	if config.ErrorRateThreshold <= 0 {
		config.ErrorRateThreshold = 0.5
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 5
	}
	if config.RequiredConsecutiveOK <= 0 {
		config.RequiredConsecutiveOK = 3
	}
	return &Pool{
		config: config,
		pairs:  make(map[string]*pairState),
	}
}

func pairKey(modelID, capability string) string {
	return modelID + "|" + capability
}

func (p *Pool) pair(modelID, capability string) *pairState {
	key := pairKey(modelID, capability)
	ps, ok := p.pairs[key]
	if !ok {
		ps = &pairState{
			modelID:    modelID,
			capability: capability,
			outcomes:   make([]bool, p.config.WindowSize),
		}
		p.pairs[key] = ps
	}
	return ps
}

// Observe records one probe outcome and returns the pool changes it caused,
// if any. A bad probe can quarantine its own pair; a good probe can release
// every quarantined pair of the model once the consecutive-good requirement
// is met across all capabilities.
func (p *Pool) Observe(modelID, capability string, ok bool) []Change {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps := p.pair(modelID, capability)
	ps.outcomes[ps.next] = ok
	ps.next = (ps.next + 1) % len(ps.outcomes)
	if ps.filled < len(ps.outcomes) {
		ps.filled++
	}
	if ok {
		ps.consecutiveOK++
	} else {
		ps.consecutiveOK = 0
	}

	var changes []Change

	rate := ps.errorRate()
	if !ps.quarantined && ps.filled >= p.config.MinSamples && rate >= p.config.ErrorRateThreshold {
		ps.quarantined = true
		ps.consecutiveOK = 0
		changes = append(changes, Change{
			ModelID:    modelID,
			Capability: capability,
			Action:     ActionQuarantine,
			ErrorRate:  rate,
			WindowSize: ps.filled,
		})
	}

	if ok {
		changes = append(changes, p.tryReleaseLocked(modelID)...)
	}

	return changes
}

// tryReleaseLocked releases the model's quarantined pairs when every
// capability has accumulated the required consecutive good probes.
func (p *Pool) tryReleaseLocked(modelID string) []Change {
	for _, capability := range Capabilities {
		ps, ok := p.pairs[pairKey(modelID, capability)]
		if !ok || ps.consecutiveOK < p.config.RequiredConsecutiveOK {
			return nil
		}
	}

	var changes []Change
	for _, capability := range Capabilities {
		ps := p.pairs[pairKey(modelID, capability)]
		if !ps.quarantined {
			continue
		}
		ps.quarantined = false
		changes = append(changes, Change{
			ModelID:       modelID,
			Capability:    capability,
			Action:        ActionRelease,
			ErrorRate:     ps.errorRate(),
			WindowSize:    ps.filled,
			ConsecutiveOK: ps.consecutiveOK,
		})
	}
	return changes
}

func (ps *pairState) errorRate() float64 {
	if ps.filled == 0 {
		return 0
	}
	bad := 0
	for i := 0; i < ps.filled; i++ {
		if !ps.outcomes[i] {
			bad++
		}
	}
	return float64(bad) / float64(ps.filled)
}

// IsQuarantined reports whether the pair is currently excluded from routing.
func (p *Pool) IsQuarantined(modelID, capability string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.pairs[pairKey(modelID, capability)]
	return ok && ps.quarantined
}

// Quarantined returns the currently quarantined pairs as "model/capability"
// strings, sorted, for logging and health reporting.
func (p *Pool) Quarantined() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, ps := range p.pairs {
		if ps.quarantined {
			out = append(out, fmt.Sprintf("%s/%s", ps.modelID, ps.capability))
		}
	}
	sort.Strings(out)
	return out
}

// Restore replays a past pool change into the membership set without
// re-emitting it. Used at startup to rebuild state from stored
// pool.health_changed events.
func (p *Pool) Restore(modelID, capability string, action ChangeAction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps := p.pair(modelID, capability)
	ps.quarantined = action == ActionQuarantine
	if ps.quarantined {
		ps.consecutiveOK = 0
	}
}
