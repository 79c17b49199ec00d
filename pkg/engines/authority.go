package engines

import (
	"context"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/state"
)

// AuthorityEngine resolves permissions from the lifecycle stage and the
// standing band finalized earlier in the same cycle. Authority is always
// fully recomputed; it carries no memory of its own.
type AuthorityEngine struct {
	gate  *gate.Gate
	store *state.Store
}

func NewAuthorityEngine(g *gate.Gate, store *state.Store) *AuthorityEngine {
	return &AuthorityEngine{gate: g, store: store}
}

func (e *AuthorityEngine) Name() string { return "authority" }

// covenantCap is the base number of simultaneously open covenants per stage.
var covenantCap = map[string]int{
	state.StageGenesis:    0,
	state.StageProbation:  1,
	state.StageActive:     3,
	state.StageDegradable: 2,
	state.StageCollapsed:  0,
	state.StageSuspended:  0,
}

func (e *AuthorityEngine) Run(ctx context.Context, cyc Cycle) error {
	var lc state.Lifecycle
	if err := readDomain(e.store, state.DomainLifecycle, &lc); err != nil {
		return err
	}
	var st state.Standing
	if err := readDomain(e.store, state.DomainStanding, &st); err != nil {
		return err
	}

	auth := Resolve(lc, st)
	action := writeAction(e.Name(), state.DomainAuthority,
		[]string{constitution.RuleProvenance}, state.ToPatch(auth))
	return e.gate.GovernWrite(ctx, action, state.ToPatch(auth))
}

// Resolve derives the permission set for a stage and standing combination.
func Resolve(lc state.Lifecycle, st state.Standing) state.Authority {
	operational := lc.Stage != state.StageSuspended && lc.Stage != state.StageCollapsed

	auth := state.Authority{
		CanOpenSession:       operational && state.StageAtOrAfter(lc.Stage, state.StageProbation),
		CanSignCovenant:      operational && state.StageAtOrAfter(lc.Stage, state.StageProbation) && st.Band != state.BandBreached,
		CanPetitionPromotion: operational && state.StageAtOrAfter(lc.Stage, state.StageProbation) && (st.Band == state.BandStable || st.Band == state.BandAscending),
		MaxOpenCovenants:     covenantCap[lc.Stage],
	}
	if auth.CanSignCovenant && st.Band == state.BandAscending {
		auth.MaxOpenCovenants++
	}
	if !auth.CanSignCovenant {
		auth.MaxOpenCovenants = 0
	}
	return auth
}
