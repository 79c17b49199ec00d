// Package state holds the named domains of institutional state behind a
// capability-gated store.
//
// Every domain always has a value: construction merges any loaded prior
// state over compiled-in defaults, so schema evolution never produces an
// absent domain. Direct writes require the single capability token granted
// at construction; everything else goes through the compliance gate.
package state

import (
	"encoding/json"
)

// Domain names.
const (
	DomainSession    = "session"
	DomainStanding   = "standing"
	DomainLifecycle  = "lifecycle"
	DomainAuthority  = "authority"
	DomainPhysiology = "physiology"
	DomainFoundation = "foundation"
	DomainMandates   = "mandates"
)

// DomainNames returns every declared domain, in a stable order.
func DomainNames() []string {
	return []string{
		DomainSession,
		DomainStanding,
		DomainLifecycle,
		DomainAuthority,
		DomainPhysiology,
		DomainFoundation,
		DomainMandates,
	}
}

// Lifecycle stages, in forward topological order. Suspended is an orthogonal
// crisis state reachable only through the response orchestrator.
const (
	StageGenesis    = "Genesis"
	StageProbation  = "Probation"
	StageActive     = "Active"
	StageDegradable = "Degradable"
	StageCollapsed  = "Collapsed"
	StageSuspended  = "Suspended"
)

// StageOrder maps each forward stage to its position. Suspended is absent:
// it is not part of the forward progression.
var StageOrder = map[string]int{
	StageGenesis:    0,
	StageProbation:  1,
	StageActive:     2,
	StageDegradable: 3,
	StageCollapsed:  4,
}

// StageAtOrAfter reports whether stage has reached target in forward order.
// Suspended is never at or after any forward stage.
func StageAtOrAfter(stage, target string) bool {
	s, okS := StageOrder[stage]
	t, okT := StageOrder[target]
	return okS && okT && s >= t
}

// Standing states, from pre-institutional to fully institutional.
const (
	StandingPreInduction  = "PreInduction"
	StandingInducted      = "Inducted"
	StandingCompliant     = "Compliant"
	StandingStrained      = "Strained"
	StandingViolated      = "Violated"
	StandingRecovery      = "Recovery"
	StandingReconstituted = "Reconstituted"
	StandingInstitutional = "Institutional"
)

// Standing bands derived from the weighted index.
const (
	BandAscending = "Ascending"
	BandStable    = "Stable"
	BandDegraded  = "Degraded"
	BandBreached  = "Breached"
)

// Covenant statuses.
const (
	CovenantPending  = "Pending"
	CovenantActive   = "Active"
	CovenantKept     = "Kept"
	CovenantBreached = "Breached"
)

// Session statuses.
const (
	SessionIdle = "Idle"
	SessionOpen = "Open"
)

// Session is the typed view of the session domain.
type Session struct {
	Status       string  `json:"status"`
	Intent       string  `json:"intent"`
	OpenedAt     string  `json:"openedAt"`
	ClosedCount  int     `json:"closedCount"`
	TotalMinutes float64 `json:"totalMinutes"`
}

// Standing is the typed view of the standing domain.
type Standing struct {
	State          string  `json:"state"`
	Index          float64 `json:"index"`
	Band           string  `json:"band"`
	KeptCount      int     `json:"keptCount"`
	BreachCount    int     `json:"breachCount"`
	InactiveStreak int     `json:"inactiveStreak"`
}

// Lifecycle is the typed view of the lifecycle domain.
type Lifecycle struct {
	Stage            string  `json:"stage"`
	PriorStage       string  `json:"priorStage"`
	ActiveDays       int     `json:"activeDays"`
	DegradedDays     int     `json:"degradedDays"`
	CovenantCount    int     `json:"covenantCount"`
	ContinuityIndex  float64 `json:"continuityIndex"`
	BaselineIndex    float64 `json:"baselineIndex"`
	BaselineCaptured bool    `json:"baselineCaptured"`
}

// Authority is the typed view of the authority domain.
type Authority struct {
	CanOpenSession       bool `json:"canOpenSession"`
	CanSignCovenant      bool `json:"canSignCovenant"`
	CanPetitionPromotion bool `json:"canPetitionPromotion"`
	MaxOpenCovenants     int  `json:"maxOpenCovenants"`
}

// Physiology is the typed view of the physiology domain.
type Physiology struct {
	Energy float64 `json:"energy"`
	Strain float64 `json:"strain"`
}

// Covenant is a signed commitment tracked by the foundation domain.
type Covenant struct {
	ID        string  `json:"id"`
	Terms     string  `json:"terms"`
	Status    string  `json:"status"`
	SignedAt  string  `json:"signedAt"`
	GraceDays float64 `json:"graceDays"`
}

// Foundation is the typed view of the foundation domain.
type Foundation struct {
	Why           string     `json:"why"`
	Consent       bool       `json:"consent"`
	EstablishedAt string     `json:"establishedAt"`
	Covenants     []Covenant `json:"covenants"`
}

// Directive is a single mandate consumed by the presentation layer.
type Directive struct {
	Code     string         `json:"code"`
	Severity string         `json:"severity"`
	Params   map[string]any `json:"params,omitempty"`
}

// Mandates is the typed view of the mandates domain.
type Mandates struct {
	Directives []Directive `json:"directives"`
}

// Defaults returns the compiled-in default value of every domain.
func Defaults() map[string]map[string]any {
	return map[string]map[string]any{
		DomainSession: ToPatch(Session{Status: SessionIdle}),
		DomainStanding: ToPatch(Standing{
			State: StandingPreInduction,
			Index: 0.5,
			Band:  BandStable,
		}),
		DomainLifecycle: ToPatch(Lifecycle{Stage: StageGenesis}),
		DomainAuthority: ToPatch(Authority{
			CanOpenSession:   false,
			CanSignCovenant:  false,
			MaxOpenCovenants: 0,
		}),
		DomainPhysiology: ToPatch(Physiology{Energy: 1.0}),
		DomainFoundation: ToPatch(Foundation{Covenants: []Covenant{}}),
		DomainMandates:   ToPatch(Mandates{Directives: []Directive{}}),
	}
}

// ToPatch converts a typed domain record into the map form the store and the
// rule engine operate on. Numbers come out as float64, matching JSON.
func ToPatch(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// Decode fills a typed domain record from its map form.
func Decode(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
