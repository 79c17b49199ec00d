package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchemas maps each event kind to the JSON Schema its payload must
// satisfy. Schemas are compiled once at registry construction.
var payloadSchemas = map[Kind]string{
	KindGenesisVerdict: `{
		"type": "object",
		"required": ["why", "consent"],
		"properties": {
			"why":     {"type": "string", "minLength": 1},
			"consent": {"type": "boolean"}
		}
	}`,
	KindSessionOpened: `{
		"type": "object",
		"required": ["intent"],
		"properties": {
			"intent": {"type": "string", "minLength": 1}
		}
	}`,
	KindSessionClosed: `{
		"type": "object",
		"required": ["completed"],
		"properties": {
			"completed":       {"type": "boolean"},
			"durationMinutes": {"type": "number", "minimum": 0}
		}
	}`,
	KindCovenantSigned: `{
		"type": "object",
		"required": ["covenantId", "terms"],
		"properties": {
			"covenantId": {"type": "string", "minLength": 1},
			"terms":      {"type": "string", "minLength": 1},
			"graceDays":  {"type": "number", "minimum": 0}
		}
	}`,
	KindCovenantKept: `{
		"type": "object",
		"required": ["covenantId"],
		"properties": {
			"covenantId": {"type": "string", "minLength": 1}
		}
	}`,
	KindCovenantBreached: `{
		"type": "object",
		"required": ["covenantId"],
		"properties": {
			"covenantId": {"type": "string", "minLength": 1},
			"severity":   {"type": "string", "enum": ["minor", "major"]}
		}
	}`,
	KindDayClosed: `{
		"type": "object",
		"required": ["date", "active"],
		"properties": {
			"date":       {"type": "string", "minLength": 8},
			"active":     {"type": "boolean"},
			"continuity": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	KindLifecyclePromote: `{
		"type": "object",
		"required": ["target"],
		"properties": {
			"target":        {"type": "string", "minLength": 1},
			"recoveryToken": {"type": "string"}
		}
	}`,
	KindRecoveryInvoked: `{
		"type": "object",
		"required": ["token"],
		"properties": {
			"token": {"type": "string", "minLength": 1}
		}
	}`,
}

// Registry validates raw input and produces canonical events.
// Pure: no side effects beyond object construction.
type Registry struct {
	schemas map[Kind]*jsonschema.Schema
	clock   func() time.Time
}

// NewRegistry compiles the payload schemas for every recognized kind.
func NewRegistry() (*Registry, error) {
	compiled := make(map[Kind]*jsonschema.Schema, len(payloadSchemas))
	for kind, raw := range payloadSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://charter.schemas.local/events/%s.schema.json", kind)
		if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("event schema load failed for %s: %w", kind, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("event schema compile failed for %s: %w", kind, err)
		}
		compiled[kind] = s
	}
	return &Registry{schemas: compiled, clock: time.Now}, nil
}

// WithClock overrides the registry clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Create validates the raw input and returns a canonical event with a fresh
// identifier and timestamp. Unknown kinds and schema violations yield a
// *ValidationError.
func (r *Registry) Create(kind Kind, payload map[string]any, actorID string) (*Event, error) {
	schema, ok := r.schemas[kind]
	if !ok {
		return nil, &ValidationError{Kind: kind, Detail: "unrecognized event kind"}
	}
	if actorID == "" {
		return nil, &ValidationError{Kind: kind, Detail: "missing actor identity"}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	// The normalized form is canonical: every number downstream is float64,
	// matching what a JSON round trip would produce.
	payload = normalize(payload).(map[string]any)
	if err := schema.Validate(payload); err != nil {
		return nil, &ValidationError{Kind: kind, Detail: err.Error()}
	}

	return &Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		ActorID:   actorID,
		Timestamp: r.clock().UTC(),
	}, nil
}

// normalize widens Go-native scalar types to the shapes the schema
// validator expects (ints arrive as int from callers, float64 from JSON).
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
