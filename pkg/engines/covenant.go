package engines

import (
	"context"
	"time"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// CovenantEngine keeps the foundation domain: the genesis verdict and the
// book of signed covenants. Signed covenants enter Pending and are activated
// once their grace window has elapsed; kept and breached reports settle them.
type CovenantEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewCovenantEngine(g *gate.Gate, store *state.Store) *CovenantEngine {
	return &CovenantEngine{gate: g, store: store}
}

func (e *CovenantEngine) Name() string { return "covenant" }

func (e *CovenantEngine) Run(ctx context.Context, cyc Cycle) error {
	var fnd state.Foundation
	if err := readDomain(e.store, state.DomainFoundation, &fnd); err != nil {
		return err
	}

	changed := false
	ev := cyc.Event

	switch ev.Kind {
	case event.KindGenesisVerdict:
		why, _ := ev.Payload["why"].(string)
		consent, _ := ev.Payload["consent"].(bool)
		fnd.Why = why
		fnd.Consent = consent
		fnd.EstablishedAt = ev.Timestamp.Format(time.RFC3339)
		changed = true

	case event.KindCovenantSigned:
		id, _ := ev.Payload["covenantId"].(string)
		terms, _ := ev.Payload["terms"].(string)
		grace, _ := ev.Payload["graceDays"].(float64)
		fnd.Covenants = append(fnd.Covenants, state.Covenant{
			ID:        id,
			Terms:     terms,
			Status:    state.CovenantPending,
			SignedAt:  ev.Timestamp.Format(time.RFC3339),
			GraceDays: grace,
		})
		changed = true

	case event.KindCovenantKept:
		changed = settle(fnd.Covenants, ev.Payload, state.CovenantKept)

	case event.KindCovenantBreached:
		changed = settle(fnd.Covenants, ev.Payload, state.CovenantBreached)
	}

	// Activation pass: pending covenants whose grace window has elapsed are
	// due for enforcement from this cycle on.
	for i := range fnd.Covenants {
		c := &fnd.Covenants[i]
		if c.Status != state.CovenantPending {
			continue
		}
		signed, err := time.Parse(time.RFC3339, c.SignedAt)
		if err != nil {
			continue
		}
		due := signed.Add(time.Duration(c.GraceDays * 24 * float64(time.Hour)))
		if !ev.Timestamp.Before(due) {
			c.Status = state.CovenantActive
			changed = true
		}
	}

	if !changed {
		return nil
	}
	action := writeAction(e.Name(), state.DomainFoundation,
		[]string{constitution.RuleProvenance}, state.ToPatch(fnd))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(fnd))
}

func settle(covenants []state.Covenant, payload map[string]any, status string) bool {
	id, _ := payload["covenantId"].(string)
	for i := range covenants {
		if covenants[i].ID == id {
			covenants[i].Status = status
			return true
		}
	}
	return false
}
