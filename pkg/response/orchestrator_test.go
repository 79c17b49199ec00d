package response

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/audit"
	"github.com/covenantworks/charter/pkg/invariant"
	"github.com/covenantworks/charter/pkg/state"
)

func crisisReport() invariant.Report {
	return invariant.Report{
		Status: invariant.StatusCrisis,
		Checks: []invariant.CheckResult{
			{ID: invariant.CheckLedgerMonotonic, Passed: false, Message: "ledger shrank from 4 to 2 entries"},
			{ID: invariant.CheckDomainsPresent, Passed: true},
		},
	}
}

func TestHandleTriggerSuspendsLifecycle(t *testing.T) {
	store := state.NewStore(nil)
	token, err := store.Grant()
	require.NoError(t, err)
	trail := audit.NewTrail()

	fixed := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	orch := NewOrchestrator(store, token, trail).WithClock(func() time.Time { return fixed })

	require.NoError(t, store.Update(state.DomainLifecycle,
		state.ToPatch(state.Lifecycle{Stage: state.StageActive, ActiveDays: 9}), token))

	resp, err := orch.HandleTrigger(crisisReport())
	require.NoError(t, err)

	assert.Equal(t, ActionLocked, resp.Action)
	assert.Equal(t, state.StageActive, resp.PriorStage)
	assert.Equal(t, fixed, resp.Triggered)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, invariant.CheckLedgerMonotonic, resp.Failures[0].ID)

	var lc state.Lifecycle
	raw, err := store.Domain(state.DomainLifecycle)
	require.NoError(t, err)
	require.NoError(t, state.Decode(raw, &lc))
	assert.Equal(t, state.StageSuspended, lc.Stage)
	assert.Equal(t, state.StageActive, lc.PriorStage)
	assert.Equal(t, 9, lc.ActiveDays, "containment must not disturb counters")
}

func TestHandleTriggerRecordsViolation(t *testing.T) {
	store := state.NewStore(nil)
	token, err := store.Grant()
	require.NoError(t, err)
	trail := audit.NewTrail()
	orch := NewOrchestrator(store, token, trail)

	_, err = orch.HandleTrigger(crisisReport())
	require.NoError(t, err)

	recs := trail.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindViolation, recs[0].Kind)
	assert.Equal(t, OrchestratorActor, recs[0].Actor)
	assert.False(t, recs[0].Allowed)
	require.Len(t, recs[0].Reasons, 1)
	assert.Contains(t, recs[0].Reasons[0], invariant.CheckLedgerMonotonic)
}

func TestHandleTriggerAlreadySuspended(t *testing.T) {
	store := state.NewStore(nil)
	token, err := store.Grant()
	require.NoError(t, err)
	orch := NewOrchestrator(store, token, audit.NewTrail())

	require.NoError(t, store.Update(state.DomainLifecycle,
		state.ToPatch(state.Lifecycle{Stage: state.StageSuspended, PriorStage: state.StageProbation}), token))

	resp, err := orch.HandleTrigger(crisisReport())
	require.NoError(t, err)
	assert.Equal(t, state.StageProbation, resp.PriorStage)

	var lc state.Lifecycle
	raw, _ := store.Domain(state.DomainLifecycle)
	require.NoError(t, state.Decode(raw, &lc))
	assert.Equal(t, state.StageProbation, lc.PriorStage, "prior stage must survive repeat triggers")
}

func TestHandleTriggerNominalIsNoOp(t *testing.T) {
	store := state.NewStore(nil)
	token, err := store.Grant()
	require.NoError(t, err)
	trail := audit.NewTrail()
	orch := NewOrchestrator(store, token, trail)

	resp, err := orch.HandleTrigger(invariant.Report{Status: invariant.StatusNominal})
	require.NoError(t, err)
	assert.Empty(t, resp.Action)
	assert.Zero(t, trail.Len())
}
