package envelope

import "github.com/signalfold/signal-collector/internal/domain"

// builtinSchemas holds the payload schema for each event type the built-in
// adapters emit. Additional types register through Validator.RegisterSchema.
var builtinSchemas = map[string]string{
	domain.TypeAlertFiring:      alertSchema,
	domain.TypeAlertResolved:    alertSchema,
	domain.TypeProbeOK:          probeSchema,
	domain.TypeProbeDegraded:    probeSchema,
	domain.TypeProbeRateLimited: probeSchema,
	domain.TypePoolHealthChanged: `{
		"type": "object",
		"required": ["model_id", "capability", "action"],
		"properties": {
			"model_id": {"type": "string", "minLength": 1},
			"capability": {"type": "string", "enum": ["tool_use", "streaming"]},
			"action": {"type": "string", "enum": ["quarantine", "release"]},
			"error_rate": {"type": "number", "minimum": 0, "maximum": 1},
			"window_size": {"type": "integer", "minimum": 0},
			"consecutive_ok": {"type": "integer", "minimum": 0}
		}
	}`,
}

const alertSchema = `{
	"type": "object",
	"required": ["alertname", "fingerprint"],
	"properties": {
		"alertname": {"type": "string", "minLength": 1},
		"fingerprint": {"type": "string", "minLength": 1},
		"labels": {"type": "object", "additionalProperties": {"type": "string"}},
		"annotations": {"type": "object", "additionalProperties": {"type": "string"}}
	}
}`

const probeSchema = `{
	"type": "object",
	"required": ["model_id", "capability"],
	"properties": {
		"model_id": {"type": "string", "minLength": 1},
		"capability": {"type": "string", "enum": ["tool_use", "streaming"]},
		"status_code": {"type": "integer"},
		"error": {"type": "string"}
	}
}`
