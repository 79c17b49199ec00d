// Package response contains the crisis containment path. When the invariant
// battery reports a constitutional crisis, the orchestrator locks the system
// rather than letting a corrupted state keep accepting events.
package response

import (
	"fmt"
	"time"

	"github.com/covenantworks/charter/pkg/audit"
	"github.com/covenantworks/charter/pkg/invariant"
	"github.com/covenantworks/charter/pkg/state"
)

// ActionLocked is the only containment action the orchestrator takes.
const ActionLocked = "Locked"

// OrchestratorActor identifies containment writes in the audit trail.
const OrchestratorActor = "kernel/response"

// Response describes what the orchestrator did about a crisis report.
type Response struct {
	Action     string                  `json:"action"`
	Triggered  time.Time               `json:"triggered"`
	PriorStage string                  `json:"priorStage"`
	Failures   []invariant.CheckResult `json:"failures"`
}

// Orchestrator suspends the lifecycle in response to a failed invariant
// battery. It writes through the capability token directly: containment must
// not itself be subject to rule evaluation, or a corrupted constitution
// could veto its own quarantine.
type Orchestrator struct {
	store *state.Store
	token state.Token
	trail *audit.Trail
	clock func() time.Time
}

func NewOrchestrator(store *state.Store, token state.Token, trail *audit.Trail) *Orchestrator {
	return &Orchestrator{
		store: store,
		token: token,
		trail: trail,
		clock: time.Now,
	}
}

// WithClock overrides the time source. Used in tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// HandleTrigger moves the lifecycle to Suspended, preserving the stage it
// was in so a later recovery can restore it, and records the violation.
// A report that is already nominal is a programming error at the call site;
// the orchestrator treats it as a no-op.
func (o *Orchestrator) HandleTrigger(report invariant.Report) (Response, error) {
	if report.Status == invariant.StatusNominal {
		return Response{}, nil
	}

	var failures []invariant.CheckResult
	var reasons []string
	for _, c := range report.Checks {
		if !c.Passed {
			failures = append(failures, c)
			reasons = append(reasons, fmt.Sprintf("[%s] %s", c.ID, c.Message))
		}
	}

	var lc state.Lifecycle
	raw, err := o.store.Domain(state.DomainLifecycle)
	if err != nil {
		return Response{}, err
	}
	if err := state.Decode(raw, &lc); err != nil {
		return Response{}, fmt.Errorf("lifecycle unreadable during containment: %w", err)
	}

	prior := lc.Stage
	if lc.Stage != state.StageSuspended {
		lc.PriorStage = lc.Stage
		lc.Stage = state.StageSuspended
		if err := o.store.Update(state.DomainLifecycle, state.ToPatch(lc), o.token); err != nil {
			return Response{}, err
		}
	} else {
		prior = lc.PriorStage
	}

	o.trail.Append(audit.KindViolation, ActionLocked, OrchestratorActor, false, reasons, map[string]any{
		"priorStage": prior,
	})

	return Response{
		Action:     ActionLocked,
		Triggered:  o.clock().UTC(),
		PriorStage: prior,
		Failures:   failures,
	}, nil
}
