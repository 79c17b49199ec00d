package engines

import (
	"context"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// Mandate codes. The presentation layer consumes these directives and never
// reads raw domain values.
const (
	MandateLocked          = "mandate.locked"
	MandateGenesisPending  = "mandate.genesis-pending"
	MandateCollapsed       = "mandate.collapsed"
	MandateSessionLive     = "mandate.session-live"
	MandateStandingWarning = "mandate.standing-warning"
	MandateRestNeeded      = "mandate.rest-needed"
	MandateCovenantsDue    = "mandate.covenants-due"
)

// MandateEngine generates presentation directives from the final domain
// values of the cycle. It runs last among the domain engines.
type MandateEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewMandateEngine(g *gate.Gate, store *state.Store) *MandateEngine {
	return &MandateEngine{gate: g, store: store}
}

func (e *MandateEngine) Name() string { return "mandate" }

func (e *MandateEngine) Run(ctx context.Context, cyc Cycle) error {
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}
	var st state.Standing
	if err := readDomain(e.store, state.DomainStanding, &st); err != nil {
		return err
	}
	var ses state.Session
	if err := readDomain(e.store, state.DomainSession, &ses); err != nil {
		return err
	}
	var phys state.Physiology
	if err := readDomain(e.store, state.DomainPhysiology, &phys); err != nil {
		return err
	}
	var fnd state.Foundation
	if err := readDomain(e.store, state.DomainFoundation, &fnd); err != nil {
		return err
	}

	directives := []state.Directive{}

	switch lc.Stage {
	case state.StageSuspended:
		directives = append(directives, state.Directive{
			Code: MandateLocked, Severity: "critical",
			Params: map[string]any{"priorStage": lc.PriorStage},
		})
	case state.StageGenesis:
		directives = append(directives, state.Directive{Code: MandateGenesisPending, Severity: "info"})
	case state.StageCollapsed:
		directives = append(directives, state.Directive{Code: MandateCollapsed, Severity: "critical"})
	}

	if ses.Status == state.SessionOpen {
		directives = append(directives, state.Directive{
			Code: MandateSessionLive, Severity: "info",
			Params: map[string]any{"intent": ses.Intent},
		})
	}
	if st.Band == state.BandDegraded || st.Band == state.BandBreached {
		directives = append(directives, state.Directive{
			Code: MandateStandingWarning, Severity: "warning",
			Params: map[string]any{"band": st.Band, "index": st.Index},
		})
	}
	if phys.Energy < 0.2 {
		directives = append(directives, state.Directive{Code: MandateRestNeeded, Severity: "warning"})
	}

	due := 0
	for _, c := range fnd.Covenants {
		if c.Status == state.CovenantActive {
			due++
		}
	}
	if due > 0 {
		directives = append(directives, state.Directive{
			Code: MandateCovenantsDue, Severity: "info",
			Params: map[string]any{"count": due},
		})
	}

	patch := state.ToPatch(state.Mandates{Directives: directives})
	action := writeAction(e.Name(), state.DomainMandates,
		[]string{constitution.RuleProvenance}, patch)
	return e.gate.GovernWrite(ctx, action, patch)
}
