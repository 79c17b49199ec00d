package engines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/state"
)

func TestReplayLadder(t *testing.T) {
	history := []event.Event{
		ev(event.KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ada"),
		ev(event.KindCovenantSigned, map[string]any{"covenantId": "c1", "terms": "t"}, "member/ada"),
		ev(event.KindCovenantKept, map[string]any{"covenantId": "c1"}, "member/ada"),
	}

	st := Replay(history, true)
	assert.Equal(t, state.StandingCompliant, st.State)
	assert.Equal(t, 1, st.KeptCount)
	assert.Greater(t, st.Index, 0.5)
}

func TestReplayIsDeterministic(t *testing.T) {
	history := []event.Event{
		ev(event.KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ada"),
		ev(event.KindCovenantSigned, map[string]any{"covenantId": "c1", "terms": "t"}, "member/ada"),
		ev(event.KindCovenantBreached, map[string]any{"covenantId": "c1"}, "member/ada"),
		ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": false}, "engine/cycle"),
	}
	assert.Equal(t, Replay(history, true), Replay(history, true))
}

func TestReplaySuppressionKeepsCounters(t *testing.T) {
	history := []event.Event{
		ev(event.KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ada"),
		ev(event.KindCovenantSigned, map[string]any{"covenantId": "c1", "terms": "t"}, "member/ada"),
		ev(event.KindCovenantBreached, map[string]any{"covenantId": "c1"}, "member/ada"),
		ev(event.KindCovenantBreached, map[string]any{"covenantId": "c1"}, "member/ada"),
		ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": false}, "engine/cycle"),
	}

	raw := Replay(history, true)
	suppressed := Replay(history, false)

	assert.Equal(t, raw.BreachCount, suppressed.BreachCount)
	assert.Equal(t, raw.InactiveStreak, suppressed.InactiveStreak)
	assert.Less(t, raw.Index, suppressed.Index)
	assert.NotEqual(t, state.StandingStrained, suppressed.State)
	assert.NotEqual(t, state.BandDegraded, suppressed.Band)
	assert.NotEqual(t, state.BandBreached, suppressed.Band)
}

func TestStandingSuppressedBeforeDegradable(t *testing.T) {
	h := newHarness(t)
	eng := NewStandingEngine(h.gate, h.store)

	history := []event.Event{
		ev(event.KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ada"),
		ev(event.KindCovenantSigned, map[string]any{"covenantId": "c1", "terms": "t"}, "member/ada"),
	}
	for i := 0; i < 4; i++ {
		history = append(history, ev(event.KindCovenantBreached, map[string]any{"covenantId": "c1"}, "member/ada"))
	}

	require.NoError(t, eng.Run(context.Background(), cycleFor(history)))

	st := h.standing(t)
	assert.Equal(t, 4, st.BreachCount, "evidence accumulates even while suppressed")
	assert.NotEqual(t, state.BandDegraded, st.Band)
	assert.NotEqual(t, state.BandBreached, st.Band)
	assert.False(t, negativeState(st.State))
}

func TestStandingDegradesLawfullyAtDegradable(t *testing.T) {
	h := newHarness(t)
	eng := NewStandingEngine(h.gate, h.store)
	ctx := context.Background()

	h.seed(t, state.DomainLifecycle, state.Lifecycle{
		Stage:            state.StageDegradable,
		BaselineIndex:    0.9,
		BaselineCaptured: true,
	})

	history := []event.Event{
		ev(event.KindGenesisVerdict, map[string]any{"why": "x", "consent": true}, "member/ada"),
		ev(event.KindCovenantSigned, map[string]any{"covenantId": "c1", "terms": "t"}, "member/ada"),
	}
	for i := 0; i < 4; i++ {
		history = append(history, ev(event.KindCovenantBreached, map[string]any{"covenantId": "c1"}, "member/ada"))
	}
	history = append(history, ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": false}, "engine/cycle"))

	// First pass records the evidence counters under suppression.
	require.NoError(t, eng.Run(ctx, cycleFor(history)))
	first := h.standing(t)
	require.Greater(t, first.BreachCount, 0)
	require.Greater(t, first.InactiveStreak, 0)

	// With two evidence vectors on record and a deep drop from baseline,
	// the next cycle's degradation is lawful.
	history = append(history, ev(event.KindDayClosed, map[string]any{"date": "2026-03-02", "active": false}, "engine/cycle"))
	require.NoError(t, eng.Run(ctx, cycleFor(history)))

	st := h.standing(t)
	assert.Equal(t, state.StandingViolated, st.State)
	assert.Contains(t, []string{state.BandDegraded, state.BandBreached}, st.Band)
}
