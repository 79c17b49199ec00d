package engines

import (
	"context"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// StandingEngine derives standing by replaying the full event history
// through a pure transition function, then passes the result through a
// lifecycle-aware gate: no negative movement is honored before the
// lifecycle reaches Degradable, and once there, degradation additionally
// needs two independent negative evidence vectors plus a minimum drop from
// the probation baseline. Evidence counters accumulate regardless; only
// their negative consequences are suppressed.
type StandingEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewStandingEngine(g *gate.Gate, store *state.Store) *StandingEngine {
	return &StandingEngine{gate: g, store: store}
}

func (e *StandingEngine) Name() string { return "standing" }

func (e *StandingEngine) Run(ctx context.Context, cyc Cycle) error {
	var current state.Standing
	if err := readDomain(e.store, state.DomainStanding, &current); err != nil {
		return err
	}
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}
	var phys state.Physiology
	if err := readDomain(e.store, state.DomainPhysiology, &phys); err != nil {
		return err
	}

	candidate := Replay(cyc.History, true)
	if !degradationLawful(current, candidate, lc, phys) {
		candidate = Replay(cyc.History, false)
	}

	action := writeAction(e.Name(), state.DomainStanding,
		[]string{constitution.RuleProvenance, constitution.RuleLawfulDegradation},
		state.ToPatch(candidate))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(candidate))
}

// Replay folds the transition function over history from the declared
// default. With allowNegative false, transitions that would worsen standing
// are skipped while evidence counters still accumulate.
func Replay(history []event.Event, allowNegative bool) state.Standing {
	st := state.Standing{State: state.StandingPreInduction, Index: 0.5, Band: state.BandStable}
	for _, ev := range history {
		st = step(st, ev, allowNegative)
	}
	st.Band = bandFor(st.Index)
	if !allowNegative && (st.Band == state.BandDegraded || st.Band == state.BandBreached) {
		st.Band = state.BandStable
	}
	return st
}

func step(st state.Standing, ev event.Event, allowNegative bool) state.Standing {
	switch ev.Kind {
	case event.KindGenesisVerdict:
		if st.State == state.StandingPreInduction {
			st.State = state.StandingInducted
		}
		st.Index = clamp01(st.Index + 0.05)

	case event.KindSessionClosed:
		st.Index = clamp01(st.Index + 0.02)

	case event.KindCovenantSigned:
		if st.State == state.StandingInducted {
			st.State = state.StandingCompliant
		}
		st.Index = clamp01(st.Index + 0.03)

	case event.KindCovenantKept:
		st.KeptCount++
		st.Index = clamp01(st.Index + 0.08)
		switch st.State {
		case state.StandingStrained:
			st.State = state.StandingCompliant
		case state.StandingRecovery:
			st.State = state.StandingReconstituted
		case state.StandingReconstituted:
			st.State = state.StandingCompliant
		case state.StandingCompliant:
			if st.KeptCount >= 8 {
				st.State = state.StandingInstitutional
			}
		}

	case event.KindCovenantBreached:
		st.BreachCount++
		if allowNegative {
			st.Index = clamp01(st.Index - 0.15)
			switch st.State {
			case state.StandingCompliant, state.StandingInstitutional:
				st.State = state.StandingStrained
			case state.StandingStrained:
				st.State = state.StandingViolated
			}
		}

	case event.KindDayClosed:
		if active, _ := ev.Payload["active"].(bool); active {
			st.InactiveStreak = 0
			st.Index = clamp01(st.Index + 0.01)
		} else {
			st.InactiveStreak++
			if allowNegative {
				st.Index = clamp01(st.Index - 0.02)
			}
		}

	case event.KindRecoveryInvoked:
		if st.State == state.StandingViolated {
			st.State = state.StandingRecovery
		}
		st.Index = clamp01(st.Index + 0.05)
	}
	return st
}

func bandFor(index float64) string {
	switch {
	case index >= 0.7:
		return state.BandAscending
	case index >= 0.4:
		return state.BandStable
	case index >= 0.2:
		return state.BandDegraded
	default:
		return state.BandBreached
	}
}

var standingBandRank = map[string]int{
	state.BandBreached:  0,
	state.BandDegraded:  1,
	state.BandStable:    2,
	state.BandAscending: 3,
}

func negativeState(s string) bool {
	return s == state.StandingStrained || s == state.StandingViolated
}

// degradationLawful mirrors the lawful-degradation rule so the engine never
// proposes a patch the gate would have to reject.
func degradationLawful(current, candidate state.Standing, lc state.Lifecycle, phys state.Physiology) bool {
	degrading := standingBandRank[candidate.Band] < standingBandRank[current.Band] ||
		(negativeState(candidate.State) && !negativeState(current.State))
	if !degrading {
		return true
	}
	if !state.StageAtOrAfter(lc.Stage, state.StageDegradable) {
		return false
	}
	vectors := 0
	if current.BreachCount > 0 {
		vectors++
	}
	if current.InactiveStreak > 0 {
		vectors++
	}
	if phys.Strain > 0.7 {
		vectors++
	}
	if vectors < 2 {
		return false
	}
	if lc.BaselineCaptured && lc.BaselineIndex-candidate.Index < 0.2 {
		return false
	}
	return true
}
