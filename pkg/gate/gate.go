// Package gate implements the sole chokepoint through which every mutation
// of institutional state must pass.
//
// Govern evaluates the cited rules against the proposed action and a state
// snapshot, writes an audit decision unconditionally, and invokes the
// caller-supplied operation only if the action is approved. The gate holds
// the capability token; domain engines never do.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/covenantworks/charter/pkg/audit"
	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/state"
)

// Violation is one rule rejection.
type Violation struct {
	RuleID string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s", v.RuleID, v.Reason)
}

// ComplianceViolationError rejects an action, carrying every rule denial.
type ComplianceViolationError struct {
	ActionType string
	Violations []Violation
}

func (e *ComplianceViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("compliance violation on %s: %s", e.ActionType, strings.Join(parts, "; "))
}

// Cites reports whether the error carries a denial from the given rule.
func (e *ComplianceViolationError) Cites(ruleID string) bool {
	for _, v := range e.Violations {
		if v.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Gate mediates rule evaluation, audit, and execution.
type Gate struct {
	cons  *constitution.Constitution
	store *state.Store
	token state.Token
	trail *audit.Trail
}

// New wires the gate. token must be the capability granted by store.
func New(cons *constitution.Constitution, store *state.Store, token state.Token, trail *audit.Trail) *Gate {
	return &Gate{cons: cons, store: store, token: token, trail: trail}
}

// Trail exposes the audit trail for read access and transition records.
func (g *Gate) Trail() *audit.Trail { return g.trail }

// Govern evaluates every cited rule against the action and the current
// snapshot. Any AllowOverride approves the action and discards collected
// denials. Otherwise all denials are collected without short-circuiting, so the
// audit record carries the complete reason set. The decision is recorded
// whether or not the action is approved; op runs only on approval and its
// result or error is returned as-is.
func (g *Gate) Govern(ctx context.Context, action constitution.Action, op func() (any, error)) (any, error) {
	evalCtx := constitution.Context{
		Action: action,
		State:  g.store.Snapshot(),
	}

	overridden := false
	violations := make([]Violation, 0)
	for _, ruleID := range action.Rules {
		verdict, err := g.cons.Evaluate(ruleID, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		switch verdict.Effect {
		case constitution.EffectAllowOverride:
			overridden = true
		case constitution.EffectDeny:
			violations = append(violations, Violation{RuleID: ruleID, Reason: verdict.Reason})
		}
	}

	approved := overridden || len(violations) == 0

	reasons := make([]string, len(violations))
	for i, v := range violations {
		reasons[i] = v.String()
	}
	if overridden {
		reasons = append(reasons, fmt.Sprintf("[%s] override engaged", constitution.RuleEmergencyOverride))
	}
	g.trail.Append(audit.KindDecision, action.Type, action.Actor, approved, reasons, map[string]any{
		"domain": action.Domain,
		"rules":  action.Rules,
	})

	if !approved {
		return nil, &ComplianceViolationError{ActionType: action.Type, Violations: violations}
	}
	if op == nil {
		return nil, nil
	}
	return op()
}

// GovernWrite submits a domain patch through Govern. action.Payload is what
// the rules see (patch plus any evaluation context); patch is what gets
// written on approval.
func (g *Gate) GovernWrite(ctx context.Context, action constitution.Action, patch map[string]any) error {
	_, err := g.Govern(ctx, action, func() (any, error) {
		return nil, g.store.Update(action.Domain, patch, g.token)
	})
	return err
}
