package constitution

import (
	"strings"

	"github.com/covenantworks/charter/pkg/state"
)

// ProvenanceRule restricts actors to a known allow-set: exact reserved
// identities plus recognized prefixes (internal engines, external members).
// Cited by default on essentially every mutation.
type ProvenanceRule struct {
	exact    map[string]bool
	prefixes []string
}

// NewProvenanceRule builds the reserved provenance rule.
func NewProvenanceRule(exact []string, prefixes []string) *ProvenanceRule {
	m := make(map[string]bool, len(exact))
	for _, id := range exact {
		m[id] = true
	}
	return &ProvenanceRule{exact: m, prefixes: prefixes}
}

func (r *ProvenanceRule) ID() string { return RuleProvenance }

func (r *ProvenanceRule) Describe() string {
	return "actor identity must belong to the recognized allow-set"
}

func (r *ProvenanceRule) Evaluate(ctx Context) Verdict {
	actor := ctx.Action.Actor
	if actor == "" {
		return Deny("empty actor identity")
	}
	if r.exact[actor] {
		return Allow()
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(actor, p) && len(actor) > len(p) {
			return Allow()
		}
	}
	return Deny("actor %q is not a recognized identity", actor)
}

// EmergencyOverrideRule yields AllowOverride only when the actor is the
// reserved administrative identity and the accompanying recovery token
// matches exactly. In every other case it raises no objection.
type EmergencyOverrideRule struct {
	adminActor    string
	recoveryToken string
}

// NewEmergencyOverrideRule builds the reserved escape-hatch rule.
func NewEmergencyOverrideRule(adminActor, recoveryToken string) *EmergencyOverrideRule {
	return &EmergencyOverrideRule{adminActor: adminActor, recoveryToken: recoveryToken}
}

func (r *EmergencyOverrideRule) ID() string { return RuleEmergencyOverride }

func (r *EmergencyOverrideRule) Describe() string {
	return "administrative actor with a matching recovery token overrides all denials"
}

func (r *EmergencyOverrideRule) Evaluate(ctx Context) Verdict {
	if r.recoveryToken == "" || ctx.Action.Actor != r.adminActor {
		return Allow()
	}
	token, _ := ctx.Action.Payload["recoveryToken"].(string)
	if token == "" {
		token, _ = ctx.Action.Payload["token"].(string)
	}
	if token == r.recoveryToken {
		return AllowOverride()
	}
	return Allow()
}

// SessionTransitionRule enforces the legality of session status changes.
type SessionTransitionRule struct{}

func (SessionTransitionRule) ID() string { return RuleSessionTransition }

func (SessionTransitionRule) Describe() string {
	return "session status changes must follow the session state machine"
}

var legalSessionTransitions = map[string]map[string]bool{
	state.SessionIdle: {state.SessionOpen: true},
	state.SessionOpen: {state.SessionIdle: true},
}

func (SessionTransitionRule) Evaluate(ctx Context) Verdict {
	proposed, ok := ctx.Action.Payload["status"].(string)
	if !ok {
		return Allow()
	}
	current, _ := ctx.State[state.DomainSession]["status"].(string)
	if current == proposed {
		return Deny("session already %s", current)
	}
	if !legalSessionTransitions[current][proposed] {
		return Deny("illegal session transition %s -> %s", current, proposed)
	}
	return Allow()
}

// PromotionEvidenceRule checks the eligibility predicates for a proposed
// lifecycle stage change. Forward promotions must target the immediate next
// stage and carry the accumulated evidence that stage requires. Collapse
// evidence is delegated to the dedicated collapse rules; this rule only
// checks structural legality for that target.
type PromotionEvidenceRule struct{}

func (PromotionEvidenceRule) ID() string { return RulePromotionEvidence }

func (PromotionEvidenceRule) Describe() string {
	return "lifecycle promotion requires the evidence its target stage demands"
}

func (PromotionEvidenceRule) Evaluate(ctx Context) Verdict {
	target, ok := ctx.Action.Payload["stage"].(string)
	if !ok {
		return Allow()
	}

	var lc state.Lifecycle
	if err := state.Decode(ctx.State[state.DomainLifecycle], &lc); err != nil {
		return Deny("lifecycle state unreadable: %v", err)
	}

	currentOrder, okCur := state.StageOrder[lc.Stage]
	targetOrder, okTgt := state.StageOrder[target]
	if !okCur || !okTgt {
		return Deny("stage change %s -> %s is outside the forward progression", lc.Stage, target)
	}
	if targetOrder != currentOrder+1 {
		return Deny("stage %s is not the immediate successor of %s", target, lc.Stage)
	}

	var fnd state.Foundation
	_ = state.Decode(ctx.State[state.DomainFoundation], &fnd)

	switch target {
	case state.StageProbation:
		if !fnd.Consent {
			return Deny("probation requires a consented genesis verdict")
		}
	case state.StageActive:
		if lc.CovenantCount < 3 {
			return Deny("active stage requires at least 3 covenants, have %d", lc.CovenantCount)
		}
		if lc.ActiveDays < 7 {
			return Deny("active stage requires at least 7 distinct active days, have %d", lc.ActiveDays)
		}
	case state.StageDegradable:
		if lc.ActiveDays < 30 {
			return Deny("degradable stage requires at least 30 distinct active days, have %d", lc.ActiveDays)
		}
		if !lc.BaselineCaptured {
			return Deny("degradable stage requires a captured probation baseline")
		}
	case state.StageCollapsed:
		// Evidence for institutional death is judged by the collapse rules.
	}
	return Allow()
}

// LawfulDegradationRule suppresses illegal standing degradation: no negative
// movement before the lifecycle reaches Degradable, and once there,
// degradation requires two independent negative evidence vectors plus a
// minimum measured drop from the probation baseline.
type LawfulDegradationRule struct{}

func (LawfulDegradationRule) ID() string { return RuleLawfulDegradation }

func (LawfulDegradationRule) Describe() string {
	return "standing may only degrade when the lifecycle stage makes degradation legal"
}

var bandRank = map[string]int{
	state.BandBreached:  0,
	state.BandDegraded:  1,
	state.BandStable:    2,
	state.BandAscending: 3,
}

var negativeStandingStates = map[string]bool{
	state.StandingStrained: true,
	state.StandingViolated: true,
}

const (
	minEvidenceVectors = 2
	minBaselineDrop    = 0.2
)

func (LawfulDegradationRule) Evaluate(ctx Context) Verdict {
	var current state.Standing
	if err := state.Decode(ctx.State[state.DomainStanding], &current); err != nil {
		return Deny("standing state unreadable: %v", err)
	}

	proposedBand, hasBand := ctx.Action.Payload["band"].(string)
	proposedState, hasState := ctx.Action.Payload["state"].(string)

	degrading := false
	if hasBand && bandRank[proposedBand] < bandRank[current.Band] {
		degrading = true
	}
	if hasState && negativeStandingStates[proposedState] && !negativeStandingStates[current.State] {
		degrading = true
	}
	if !degrading {
		return Allow()
	}

	var lc state.Lifecycle
	_ = state.Decode(ctx.State[state.DomainLifecycle], &lc)
	if !state.StageAtOrAfter(lc.Stage, state.StageDegradable) {
		return Deny("degradation is illegal at lifecycle stage %s", lc.Stage)
	}

	vectors := 0
	if current.BreachCount > 0 {
		vectors++
	}
	if current.InactiveStreak > 0 {
		vectors++
	}
	var phys state.Physiology
	_ = state.Decode(ctx.State[state.DomainPhysiology], &phys)
	if phys.Strain > 0.7 {
		vectors++
	}
	if vectors < minEvidenceVectors {
		return Deny("degradation requires %d independent negative evidence vectors, have %d", minEvidenceVectors, vectors)
	}

	proposedIndex := current.Index
	if v, ok := ctx.Action.Payload["index"].(float64); ok {
		proposedIndex = v
	}
	if lc.BaselineCaptured && lc.BaselineIndex-proposedIndex < minBaselineDrop {
		return Deny("degradation requires a drop of at least %.2f from baseline %.2f", minBaselineDrop, lc.BaselineIndex)
	}
	return Allow()
}
