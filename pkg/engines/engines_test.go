package engines

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/audit"
	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// harness wires a store, sealed constitution, and gate the way the kernel
// does, with the recovery token fixed for override tests.
type harness struct {
	store *state.Store
	gate  *gate.Gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := constitution.DefaultConfig()
	cfg.RecoveryToken = "phoenix-9"
	cons, err := constitution.Default(cfg)
	require.NoError(t, err)

	store := state.NewStore(nil)
	token, err := store.Grant()
	require.NoError(t, err)

	return &harness{
		store: store,
		gate:  gate.New(cons, store, token, audit.NewTrail()),
	}
}

// seed writes a domain patch directly, bypassing the engines under test.
func (h *harness) seed(t *testing.T, domain string, v any) {
	t.Helper()
	action := constitution.Action{
		Type:   constitution.ActionDomainWrite,
		Domain: domain,
		Actor:  "engine/test",
		Rules:  []string{constitution.RuleProvenance},
	}
	require.NoError(t, h.gate.GovernWrite(context.Background(), action, state.ToPatch(v)))
}

func (h *harness) session(t *testing.T) state.Session {
	t.Helper()
	var v state.Session
	require.NoError(t, readDomain(h.store, state.DomainSession, &v))
	return v
}

func (h *harness) standing(t *testing.T) state.Standing {
	t.Helper()
	var v state.Standing
	require.NoError(t, readDomain(h.store, state.DomainStanding, &v))
	return v
}

func (h *harness) lifecycle(t *testing.T) state.Lifecycle {
	t.Helper()
	var v state.Lifecycle
	require.NoError(t, readDomain(h.store, state.DomainLifecycle, &v))
	return v
}

func (h *harness) foundation(t *testing.T) state.Foundation {
	t.Helper()
	var v state.Foundation
	require.NoError(t, readDomain(h.store, state.DomainFoundation, &v))
	return v
}

func (h *harness) physiology(t *testing.T) state.Physiology {
	t.Helper()
	var v state.Physiology
	require.NoError(t, readDomain(h.store, state.DomainPhysiology, &v))
	return v
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// ev fabricates an accepted event without going through the registry;
// engine tests exercise derivation, not payload validation.
func ev(kind event.Kind, payload map[string]any, actor string) event.Event {
	return event.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		ActorID:   actor,
		Timestamp: testEpoch,
	}
}

func evAt(kind event.Kind, payload map[string]any, actor string, at time.Time) event.Event {
	e := ev(kind, payload, actor)
	e.Timestamp = at
	return e
}

func cycleFor(history []event.Event) Cycle {
	return Cycle{Event: history[len(history)-1], History: history}
}
