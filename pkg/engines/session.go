package engines

import (
	"context"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// SessionEngine drives the session state machine and the physiological
// bookkeeping that follows it: opening a session spends energy and builds
// strain, closing one releases strain, closing a day restores energy.
type SessionEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewSessionEngine(g *gate.Gate, store *state.Store) *SessionEngine {
	return &SessionEngine{gate: g, store: store}
}

func (e *SessionEngine) Name() string { return "session" }

func (e *SessionEngine) Run(ctx context.Context, cyc Cycle) error {
	switch cyc.Event.Kind {
	case event.KindSessionOpened:
		return e.open(ctx, cyc.Event)
	case event.KindSessionClosed:
		return e.close(ctx, cyc.Event)
	case event.KindDayClosed:
		return e.restore(ctx)
	default:
		return nil
	}
}

func (e *SessionEngine) open(ctx context.Context, ev event.Event) error {
	var ses state.Session
	if err := readDomain(e.store, state.DomainSession, &ses); err != nil {
		return err
	}
	intent, _ := ev.Payload["intent"].(string)

	ses.Status = state.SessionOpen
	ses.Intent = intent
	ses.OpenedAt = ev.Timestamp.Format("2006-01-02T15:04:05Z07:00")

	action := writeAction(e.Name(), state.DomainSession,
		[]string{constitution.RuleProvenance, constitution.RuleSessionTransition},
		state.ToPatch(ses))
	if err := e.gate.GovernWrite(ctx, action, state.ToPatch(ses)); err != nil {
		return err
	}
	return e.adjustPhysiology(ctx, -0.1, +0.1)
}

func (e *SessionEngine) close(ctx context.Context, ev event.Event) error {
	var ses state.Session
	if err := readDomain(e.store, state.DomainSession, &ses); err != nil {
		return err
	}

	ses.Status = state.SessionIdle
	ses.Intent = ""
	ses.OpenedAt = ""
	ses.ClosedCount++
	if minutes, ok := ev.Payload["durationMinutes"].(float64); ok {
		ses.TotalMinutes += minutes
	}

	action := writeAction(e.Name(), state.DomainSession,
		[]string{constitution.RuleProvenance, constitution.RuleSessionTransition},
		state.ToPatch(ses))
	if err := e.gate.GovernWrite(ctx, action, state.ToPatch(ses)); err != nil {
		return err
	}
	return e.adjustPhysiology(ctx, 0, -0.05)
}

// restore resets energy at the day boundary.
func (e *SessionEngine) restore(ctx context.Context) error {
	var phys state.Physiology
	if err := readDomain(e.store, state.DomainPhysiology, &phys); err != nil {
		return err
	}
	phys.Energy = 1.0
	action := writeAction(e.Name(), state.DomainPhysiology,
		[]string{constitution.RuleProvenance}, state.ToPatch(phys))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(phys))
}

func (e *SessionEngine) adjustPhysiology(ctx context.Context, dEnergy, dStrain float64) error {
	var phys state.Physiology
	if err := readDomain(e.store, state.DomainPhysiology, &phys); err != nil {
		return err
	}
	phys.Energy = clamp01(phys.Energy + dEnergy)
	phys.Strain = clamp01(phys.Strain + dStrain)
	action := writeAction(e.Name(), state.DomainPhysiology,
		[]string{constitution.RuleProvenance}, state.ToPatch(phys))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(phys))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
