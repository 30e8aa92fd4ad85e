package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/signalfold/signal-collector/internal/domain"
)

// ValidationError reports a dropped event. The raw payload travels with the
// error so it can be logged for diagnosis.
type ValidationError struct {
	Field      string
	Message    string
	RawPayload []byte
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Message)
}

// Validator checks SignalEvents against the envelope contract and the
// per-type payload schema before they are handed to the sink.
type Validator struct {
	schemas       map[string]*jsonschema.Schema
	skewTolerance time.Duration
	clock         func() time.Time
}

// NewValidator creates a validator with the built-in event type schemas
// registered. skewTolerance bounds how far in the future occurred_at may be.
func NewValidator(skewTolerance time.Duration) (*Validator, error) {
	v := &Validator{
		schemas:       make(map[string]*jsonschema.Schema),
		skewTolerance: skewTolerance,
		clock:         time.Now,
	}

	for eventType, schema := range builtinSchemas {
		if err := v.RegisterSchema(eventType, schema); err != nil {
			return nil, fmt.Errorf("failed to register schema for %s: %w", eventType, err)
		}
	}

	return v, nil
}

// WithClock overrides the clock for deterministic testing.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	v.clock = clock
	return v
}

// RegisterSchema compiles and registers the payload schema for an event type.
func (v *Validator) RegisterSchema(eventType, schema string) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := fmt.Sprintf("https://signalfold.io/schemas/%s.schema.json", eventType)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	v.schemas[eventType] = compiled
	return nil
}

// Validate checks a candidate event. A non-nil return is always a
// *ValidationError carrying the raw payload; the caller drops the event and
// logs it without failing sibling events in the batch.
func (v *Validator) Validate(e *domain.SignalEvent) error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Message: "required", RawPayload: e.Data}
	}
	if e.Source == "" {
		return &ValidationError{Field: "source", Message: "required", RawPayload: e.Data}
	}
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "required", RawPayload: e.Data}
	}
	if e.SpecVersion != domain.SpecVersion {
		return &ValidationError{
			Field:      "specversion",
			Message:    fmt.Sprintf("unsupported version %q, expected %q", e.SpecVersion, domain.SpecVersion),
			RawPayload: e.Data,
		}
	}
	if e.OccurredAt.IsZero() {
		return &ValidationError{Field: "time", Message: "required", RawPayload: e.Data}
	}
	if e.OccurredAt.After(v.clock().Add(v.skewTolerance)) {
		return &ValidationError{
			Field:      "time",
			Message:    fmt.Sprintf("occurred_at %s is in the future beyond skew tolerance", e.OccurredAt.Format(time.RFC3339)),
			RawPayload: e.Data,
		}
	}
	if !strings.Contains(e.IncidentKey, ":") {
		return &ValidationError{Field: "incident_key", Message: "must be scoped (missing ':' separator)", RawPayload: e.Data}
	}

	schema, ok := v.schemas[e.Type]
	if !ok {
		return &ValidationError{
			Field:      "type",
			Message:    fmt.Sprintf("no schema registered for event type %q", e.Type),
			RawPayload: e.Data,
		}
	}

	var payload interface{}
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return &ValidationError{Field: "data", Message: "payload is not valid JSON", RawPayload: e.Data}
	}
	if err := schema.Validate(payload); err != nil {
		return &ValidationError{Field: "data", Message: err.Error(), RawPayload: e.Data}
	}

	return nil
}
