// Package audit records every governance decision, state transition, and
// invariant violation as an append-only trail of structured records.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind categorizes an audit record.
type Kind string

const (
	KindDecision   Kind = "Decision"
	KindTransition Kind = "Transition"
	KindViolation  Kind = "Violation"
)

// Record is a single immutable audit entry.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Allowed   bool           `json:"allowed"`
	Reasons   []string       `json:"reasons,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Trail is an append-only audit store with an optional line-oriented JSON
// sink for external collection.
type Trail struct {
	mu      sync.Mutex
	records []Record
	sink    io.Writer
	clock   func() time.Time
}

// NewTrail creates an in-memory trail.
func NewTrail() *Trail {
	return &Trail{
		records: make([]Record, 0),
		clock:   time.Now,
	}
}

// WithSink mirrors every record to w as one JSON object per line.
func (t *Trail) WithSink(w io.Writer) *Trail {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = w
	return t
}

// WithClock overrides the clock for testing.
func (t *Trail) WithClock(clock func() time.Time) *Trail {
	t.clock = clock
	return t
}

// Append records an entry unconditionally and returns it.
func (t *Trail) Append(kind Kind, action, actor string, allowed bool, reasons []string, details map[string]any) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		ID:        uuid.New().String(),
		Timestamp: t.clock().UTC(),
		Kind:      kind,
		Action:    action,
		Actor:     actor,
		Allowed:   allowed,
		Reasons:   append([]string(nil), reasons...),
		Details:   details,
	}
	t.records = append(t.records, rec)

	if t.sink != nil {
		if line, err := json.Marshal(rec); err == nil {
			_, _ = t.sink.Write(append(line, '\n'))
		}
	}
	return rec
}

// Records returns a defensive copy of the full trail.
func (t *Trail) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Query returns every record matching the predicate.
func (t *Trail) Query(predicate func(Record) bool) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0)
	for _, r := range t.records {
		if predicate(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
