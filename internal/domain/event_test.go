package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_FiringTypes(t *testing.T) {
	for _, eventType := range []string{TypeAlertFiring, TypeProbeDegraded, TypeProbeRateLimited} {
		e := &SignalEvent{Type: eventType, Severity: SeverityCritical}
		assert.Equal(t, ClassFiring, Classify(e), "type %s should be firing", eventType)
	}
}

func TestClassify_Terminal(t *testing.T) {
	e := &SignalEvent{Type: TypeAlertResolved}
	assert.Equal(t, ClassTerminal, Classify(e))
}

func TestClassify_PoolHealthChanged_Quarantine(t *testing.T) {
	e := &SignalEvent{Type: TypePoolHealthChanged, Severity: SeverityCritical}
	assert.Equal(t, ClassFiring, Classify(e))
}

func TestClassify_PoolHealthChanged_Release(t *testing.T) {
	e := &SignalEvent{Type: TypePoolHealthChanged, Severity: SeverityInfo}
	assert.Equal(t, ClassTerminal, Classify(e))
}

func TestClassify_UnknownType(t *testing.T) {
	e := &SignalEvent{Type: "deploy.completed"}
	assert.Equal(t, ClassInformational, Classify(e))
}

func TestClassify_ProbeOK(t *testing.T) {
	e := &SignalEvent{Type: TypeProbeOK, Severity: SeverityInfo}
	assert.Equal(t, ClassInformational, Classify(e))
}
