package engines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

func TestSessionOpenAndClose(t *testing.T) {
	h := newHarness(t)
	eng := NewSessionEngine(h.gate, h.store)
	ctx := context.Background()

	opened := ev(event.KindSessionOpened, map[string]any{"intent": "deep work"}, "member/ada")
	require.NoError(t, eng.Run(ctx, cycleFor([]event.Event{opened})))

	ses := h.session(t)
	assert.Equal(t, state.SessionOpen, ses.Status)
	assert.Equal(t, "deep work", ses.Intent)
	assert.NotEmpty(t, ses.OpenedAt)

	phys := h.physiology(t)
	assert.InDelta(t, 0.9, phys.Energy, 1e-9)
	assert.InDelta(t, 0.1, phys.Strain, 1e-9)

	closed := ev(event.KindSessionClosed, map[string]any{"completed": true, "durationMinutes": 50.0}, "member/ada")
	require.NoError(t, eng.Run(ctx, cycleFor([]event.Event{opened, closed})))

	ses = h.session(t)
	assert.Equal(t, state.SessionIdle, ses.Status)
	assert.Empty(t, ses.Intent)
	assert.Equal(t, 1, ses.ClosedCount)
	assert.InDelta(t, 50.0, ses.TotalMinutes, 1e-9)
	assert.InDelta(t, 0.05, h.physiology(t).Strain, 1e-9)
}

func TestSessionDoubleOpenIsIllegal(t *testing.T) {
	h := newHarness(t)
	eng := NewSessionEngine(h.gate, h.store)
	ctx := context.Background()

	opened := ev(event.KindSessionOpened, map[string]any{"intent": "first"}, "member/ada")
	require.NoError(t, eng.Run(ctx, cycleFor([]event.Event{opened})))

	again := ev(event.KindSessionOpened, map[string]any{"intent": "second"}, "member/ada")
	err := eng.Run(ctx, cycleFor([]event.Event{opened, again}))

	var cve *gate.ComplianceViolationError
	require.ErrorAs(t, err, &cve)
	assert.True(t, cve.Cites(constitution.RuleSessionTransition))
	assert.Equal(t, "first", h.session(t).Intent, "rejected open must not touch state")
}

func TestDayCloseRestoresEnergy(t *testing.T) {
	h := newHarness(t)
	eng := NewSessionEngine(h.gate, h.store)
	ctx := context.Background()

	h.seed(t, state.DomainPhysiology, state.Physiology{Energy: 0.3, Strain: 0.4})

	day := ev(event.KindDayClosed, map[string]any{"date": "2026-03-01", "active": true}, "engine/cycle")
	require.NoError(t, eng.Run(ctx, cycleFor([]event.Event{day})))

	phys := h.physiology(t)
	assert.InDelta(t, 1.0, phys.Energy, 1e-9)
	assert.InDelta(t, 0.4, phys.Strain, 1e-9, "day close does not relieve strain")
}
