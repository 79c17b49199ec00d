package engines

import (
	"context"
	"fmt"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// LifecycleEngine maintains the accumulated promotion signals and runs the
// forward-only promotion pass: at most one stage per cycle, the first
// eligible target in forward order wins. Collapse is never automatic; it is
// petitioned explicitly and judged by the collapse rules. Recovery from
// Suspended rides the emergency override.
type LifecycleEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewLifecycleEngine(g *gate.Gate, store *state.Store) *LifecycleEngine {
	return &LifecycleEngine{gate: g, store: store}
}

func (e *LifecycleEngine) Name() string { return "lifecycle" }

func (e *LifecycleEngine) Run(ctx context.Context, cyc Cycle) error {
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}

	ev := cyc.Event
	changed := false

	switch ev.Kind {
	case event.KindDayClosed:
		if active, _ := ev.Payload["active"].(bool); active {
			lc.ActiveDays++
		} else {
			lc.DegradedDays++
		}
		if c, ok := ev.Payload["continuity"].(float64); ok {
			lc.ContinuityIndex = c
		}
		changed = true

	case event.KindCovenantSigned:
		lc.CovenantCount++
		changed = true

	case event.KindLifecyclePromote:
		return e.petition(ctx, lc, ev)

	case event.KindRecoveryInvoked:
		return e.recover(ctx, lc, ev)
	}

	if changed {
		action := writeAction(e.Name(), state.DomainLifecycle,
			[]string{constitution.RuleProvenance}, state.ToPatch(lc))
		if err := e.gate.GovernWrite(ctx, action, state.ToPatch(lc)); err != nil {
			return err
		}
	}

	return e.promote(ctx)
}

// promote advances at most one stage when its evidence is already in place.
func (e *LifecycleEngine) promote(ctx context.Context) error {
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}
	var fnd state.Foundation
	if err := readDomain(e.store, state.DomainFoundation, &fnd); err != nil {
		return err
	}

	var target string
	switch lc.Stage {
	case state.StageGenesis:
		if fnd.Consent && fnd.Why != "" {
			target = state.StageProbation
		}
	case state.StageProbation:
		if lc.CovenantCount >= 3 && lc.ActiveDays >= 7 {
			target = state.StageActive
		}
	case state.StageActive:
		if lc.ActiveDays >= 30 && lc.BaselineCaptured {
			target = state.StageDegradable
		}
	}
	if target == "" {
		return nil
	}
	return e.advance(ctx, lc, target)
}

// petition handles an explicit promotion request. The initiating actor, not
// the engine, answers for provenance, and a collapse target is additionally
// judged by the collapse rules.
func (e *LifecycleEngine) petition(ctx context.Context, lc state.Lifecycle, ev event.Event) error {
	target, _ := ev.Payload["target"].(string)
	if _, ok := state.StageOrder[target]; !ok {
		return fmt.Errorf("unknown promotion target %q", target)
	}

	rules := []string{constitution.RuleProvenance, constitution.RulePromotionEvidence}
	if target == state.StageCollapsed {
		rules = append(rules,
			constitution.RuleMinDegradedDays,
			constitution.RuleContinuityCeiling,
			constitution.RuleBaselineDrop,
		)
	}

	next := lc
	next.PriorStage = lc.Stage
	next.Stage = target
	payload := state.ToPatch(next)
	if tok, ok := ev.Payload["recoveryToken"].(string); ok {
		payload["recoveryToken"] = tok
		rules = append(rules, constitution.RuleEmergencyOverride)
	}

	action := constitution.Action{
		Type:    constitution.ActionDomainWrite,
		Domain:  state.DomainLifecycle,
		Actor:   ev.ActorID,
		Rules:   rules,
		Payload: payload,
	}
	if err := e.gate.GovernWrite(ctx, action, state.ToPatch(next)); err != nil {
		return err
	}
	return e.captureBaseline(ctx, target)
}

// recover restores the stage held before suspension. Only the override path
// can approve it: the restoration is never a forward promotion.
func (e *LifecycleEngine) recover(ctx context.Context, lc state.Lifecycle, ev event.Event) error {
	if lc.Stage != state.StageSuspended {
		return nil
	}
	restored := lc.PriorStage
	if restored == "" {
		restored = state.StageGenesis
	}

	next := lc
	next.Stage = restored
	next.PriorStage = state.StageSuspended
	payload := state.ToPatch(next)
	if tok, ok := ev.Payload["token"].(string); ok {
		payload["recoveryToken"] = tok
	}

	action := constitution.Action{
		Type:    constitution.ActionDomainWrite,
		Domain:  state.DomainLifecycle,
		Actor:   ev.ActorID,
		Rules: []string{
			constitution.RuleProvenance,
			constitution.RulePromotionEvidence,
			constitution.RuleEmergencyOverride,
		},
		Payload: payload,
	}
	return e.gate.GovernWrite(ctx, action, state.ToPatch(next))
}

func (e *LifecycleEngine) advance(ctx context.Context, lc state.Lifecycle, target string) error {
	next := lc
	next.PriorStage = lc.Stage
	next.Stage = target
	action := writeAction(e.Name(), state.DomainLifecycle,
		[]string{constitution.RuleProvenance, constitution.RulePromotionEvidence},
		state.ToPatch(next))
	if err := e.gate.GovernWrite(ctx, action, state.ToPatch(next)); err != nil {
		return err
	}
	return e.captureBaseline(ctx, target)
}

// captureBaseline records the continuity baseline on first entry to
// Probation; degradation legality is later measured against it.
func (e *LifecycleEngine) captureBaseline(ctx context.Context, target string) error {
	if target != state.StageProbation {
		return nil
	}
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}
	if lc.BaselineCaptured {
		return nil
	}
	var st state.Standing
	if err := readDomain(e.store, state.DomainStanding, &st); err != nil {
		return err
	}

	lc.BaselineIndex = lc.ContinuityIndex
	if lc.BaselineIndex == 0 {
		lc.BaselineIndex = st.Index
	}
	lc.BaselineCaptured = true

	action := writeAction(e.Name(), state.DomainLifecycle,
		[]string{constitution.RuleProvenance}, state.ToPatch(lc))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(lc))
}
