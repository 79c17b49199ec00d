package constitution

import (
	"errors"
	"fmt"
	"sync"
)

// Action types evaluated by the gate.
const (
	ActionIngestEvent = "INGEST_EVENT"
	ActionDomainWrite = "DOMAIN_WRITE"
)

// Reserved rule identifiers.
const (
	RuleProvenance        = "provenance.actor"
	RuleEmergencyOverride = "override.emergency"
	RuleSessionTransition = "session.legal-transition"
	RulePromotionEvidence = "lifecycle.promotion-evidence"
	RuleMinDegradedDays   = "lifecycle.min-degraded-days"
	RuleContinuityCeiling = "lifecycle.continuity-ceiling"
	RuleBaselineDrop      = "lifecycle.baseline-drop"
	RuleLawfulDegradation = "standing.lawful-degradation"
)

// IngestionRuleSet is the fixed set cited for every raw incoming event.
func IngestionRuleSet() []string {
	return []string{RuleProvenance, RuleEmergencyOverride}
}

// Action describes a proposed operation submitted to the gate.
type Action struct {
	Type    string         `json:"type"`
	Domain  string         `json:"domain,omitempty"`
	Actor   string         `json:"actor"`
	Rules   []string       `json:"rules"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Context is the evaluation input: the proposed action and a snapshot of the
// domain map. Snapshots are copies; rules can never reach live state.
type Context struct {
	Action Action
	State  map[string]map[string]any
}

// Rule is a named, pure predicate over a Context.
type Rule interface {
	ID() string
	Describe() string
	Evaluate(ctx Context) Verdict
}

// Level ranks a principle's authority.
type Level string

const (
	LevelSupreme Level = "supreme"
	LevelDerived Level = "derived"
	LevelPolicy  Level = "policy"
)

// Principle is declarative justification text for one or more rules.
// Not executable.
type Principle struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Level     Level   `json:"level"`
	Threshold float64 `json:"threshold,omitempty"`
}

// ErrSealed is returned by Register after the constitution is sealed.
var ErrSealed = errors.New("constitution is sealed")

// Constitution is the immutable registry of principles and rules.
type Constitution struct {
	mu         sync.RWMutex
	rules      map[string]Rule
	order      []string
	principles []Principle
	sealed     bool
}

// New creates an open constitution. Callers register rules and principles,
// then Seal it before handing it to the gate.
func New() *Constitution {
	return &Constitution{rules: make(map[string]Rule)}
}

// Register adds a rule. Duplicate IDs and post-seal registration fail.
func (c *Constitution) Register(r Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrSealed
	}
	if _, exists := c.rules[r.ID()]; exists {
		return fmt.Errorf("rule %q already registered", r.ID())
	}
	c.rules[r.ID()] = r
	c.order = append(c.order, r.ID())
	return nil
}

// RegisterPrinciple adds a declarative principle.
func (c *Constitution) RegisterPrinciple(p Principle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrSealed
	}
	c.principles = append(c.principles, p)
	return nil
}

// Seal closes the constitution to further registration.
func (c *Constitution) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Evaluate runs one rule by ID. Unknown rules are an error, not a denial:
// citing a rule that does not exist is a programming defect.
func (c *Constitution) Evaluate(ruleID string, ctx Context) (Verdict, error) {
	c.mu.RLock()
	r, ok := c.rules[ruleID]
	c.mu.RUnlock()
	if !ok {
		return Verdict{}, fmt.Errorf("unknown rule %q", ruleID)
	}
	return r.Evaluate(ctx), nil
}

// RuleIDs returns the registered rule identifiers in registration order.
func (c *Constitution) RuleIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Principles returns a copy of the registered principles.
func (c *Constitution) Principles() []Principle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Principle, len(c.principles))
	copy(out, c.principles)
	return out
}
