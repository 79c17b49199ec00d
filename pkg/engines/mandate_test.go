package engines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/state"
)

func mandates(t *testing.T, h *harness) []state.Directive {
	t.Helper()
	var m state.Mandates
	require.NoError(t, readDomain(h.store, state.DomainMandates, &m))
	return m.Directives
}

func codes(directives []state.Directive) []string {
	out := make([]string, len(directives))
	for i, d := range directives {
		out[i] = d.Code
	}
	return out
}

func TestMandatesAtGenesis(t *testing.T) {
	h := newHarness(t)
	eng := NewMandateEngine(h.gate, h.store)

	day := ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": true}, "engine/cycle")
	require.NoError(t, eng.Run(context.Background(), cycleFor([]event.Event{day})))

	assert.Equal(t, []string{MandateGenesisPending}, codes(mandates(t, h)))
}

func TestMandatesWhileSuspended(t *testing.T) {
	h := newHarness(t)
	eng := NewMandateEngine(h.gate, h.store)

	h.seed(t, state.DomainLifecycle, state.Lifecycle{
		Stage: state.StageSuspended, PriorStage: state.StageActive,
	})

	day := ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": false}, "engine/cycle")
	require.NoError(t, eng.Run(context.Background(), cycleFor([]event.Event{day})))

	directives := mandates(t, h)
	require.NotEmpty(t, directives)
	assert.Equal(t, MandateLocked, directives[0].Code)
	assert.Equal(t, "critical", directives[0].Severity)
	assert.Equal(t, state.StageActive, directives[0].Params["priorStage"])
}

func TestMandatesReflectLiveSessionAndDueCovenants(t *testing.T) {
	h := newHarness(t)
	eng := NewMandateEngine(h.gate, h.store)

	h.seed(t, state.DomainLifecycle, state.Lifecycle{Stage: state.StageActive})
	h.seed(t, state.DomainSession, state.Session{Status: state.SessionOpen, Intent: "review"})
	h.seed(t, state.DomainFoundation, state.Foundation{Covenants: []state.Covenant{
		{ID: "c1", Status: state.CovenantActive},
		{ID: "c2", Status: state.CovenantKept},
	}})

	day := ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": true}, "engine/cycle")
	require.NoError(t, eng.Run(context.Background(), cycleFor([]event.Event{day})))

	got := codes(mandates(t, h))
	assert.Contains(t, got, MandateSessionLive)
	assert.Contains(t, got, MandateCovenantsDue)
	assert.NotContains(t, got, MandateGenesisPending)
}

func TestMandatesWarnOnDegradedStanding(t *testing.T) {
	h := newHarness(t)
	eng := NewMandateEngine(h.gate, h.store)

	h.seed(t, state.DomainLifecycle, state.Lifecycle{Stage: state.StageDegradable})
	h.seed(t, state.DomainStanding, state.Standing{
		State: state.StandingStrained, Index: 0.25, Band: state.BandDegraded, BreachCount: 2, InactiveStreak: 3,
	})

	day := ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": false}, "engine/cycle")
	require.NoError(t, eng.Run(context.Background(), cycleFor([]event.Event{day})))

	got := codes(mandates(t, h))
	assert.Contains(t, got, MandateStandingWarning)
}
