// Package invariant runs the post-cycle consistency battery over the latest
// snapshot and the ledger.
//
// Invariants differ from rules: rules gate proposed actions before mutation,
// invariants verify global consistency after it. A failed battery is a
// constitutional crisis and triggers the containment response.
package invariant

import (
	"fmt"
	"sync"

	"github.com/covenantworks/charter/pkg/state"
)

// Status of an invariant report.
type Status string

const (
	StatusNominal Status = "Nominal"
	StatusCrisis  Status = "ConstitutionalCrisis"
)

// Check identifiers.
const (
	CheckLedgerMonotonic   = "ledger.monotonic"
	CheckLifecycleCounters = "lifecycle.counters"
	CheckStandingAccord    = "standing.accord"
	CheckDomainsPresent    = "domains.present"
)

// CheckResult is the outcome of one invariant check.
type CheckResult struct {
	ID      string `json:"id"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Report is the outcome of one full battery run.
type Report struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Check returns the result for the given check ID, if present.
func (r Report) Check(id string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.ID == id {
			return c, true
		}
	}
	return CheckResult{}, false
}

// LedgerView is the read surface the engine needs from the ledger.
type LedgerView interface {
	Length() int
	Verify() (bool, string)
}

// Engine runs the fixed battery once per completed cycle. It keeps
// high-water observations between runs to detect regression.
type Engine struct {
	mu            sync.Mutex
	lastLedgerLen int
	lastLifecycle *state.Lifecycle
}

// NewEngine creates an engine with no prior observations.
func NewEngine() *Engine {
	return &Engine{}
}

// Run executes the battery and records this cycle's observations for the
// next run. Any failed check escalates the report status to crisis.
func (e *Engine) Run(led LedgerView, snap map[string]map[string]any) Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	checks := []CheckResult{
		e.checkLedger(led),
		e.checkLifecycleCounters(snap),
		checkStandingAccord(snap),
		checkDomainsPresent(snap),
	}

	status := StatusNominal
	for _, c := range checks {
		if !c.Passed {
			status = StatusCrisis
			break
		}
	}

	// Record observations for the next run.
	if n := led.Length(); n > e.lastLedgerLen {
		e.lastLedgerLen = n
	}
	var lc state.Lifecycle
	if err := state.Decode(snap[state.DomainLifecycle], &lc); err == nil {
		e.lastLifecycle = &lc
	}

	return Report{Status: status, Checks: checks}
}

func (e *Engine) checkLedger(led LedgerView) CheckResult {
	if n := led.Length(); n < e.lastLedgerLen {
		return CheckResult{
			ID:      CheckLedgerMonotonic,
			Message: fmt.Sprintf("ledger shrank from %d to %d entries", e.lastLedgerLen, n),
		}
	}
	if ok, reason := led.Verify(); !ok {
		return CheckResult{ID: CheckLedgerMonotonic, Message: reason}
	}
	return CheckResult{ID: CheckLedgerMonotonic, Passed: true}
}

func (e *Engine) checkLifecycleCounters(snap map[string]map[string]any) CheckResult {
	var cur state.Lifecycle
	if err := state.Decode(snap[state.DomainLifecycle], &cur); err != nil {
		return CheckResult{ID: CheckLifecycleCounters, Message: fmt.Sprintf("lifecycle unreadable: %v", err)}
	}
	prev := e.lastLifecycle
	if prev == nil || prev.Stage != cur.Stage {
		return CheckResult{ID: CheckLifecycleCounters, Passed: true}
	}
	if cur.ActiveDays < prev.ActiveDays {
		return CheckResult{
			ID:      CheckLifecycleCounters,
			Message: fmt.Sprintf("active days decreased from %d to %d within stage %s", prev.ActiveDays, cur.ActiveDays, cur.Stage),
		}
	}
	if cur.DegradedDays < prev.DegradedDays {
		return CheckResult{
			ID:      CheckLifecycleCounters,
			Message: fmt.Sprintf("degraded days decreased from %d to %d within stage %s", prev.DegradedDays, cur.DegradedDays, cur.Stage),
		}
	}
	return CheckResult{ID: CheckLifecycleCounters, Passed: true}
}

func checkStandingAccord(snap map[string]map[string]any) CheckResult {
	var st state.Standing
	var lc state.Lifecycle
	if err := state.Decode(snap[state.DomainStanding], &st); err != nil {
		return CheckResult{ID: CheckStandingAccord, Message: fmt.Sprintf("standing unreadable: %v", err)}
	}
	if err := state.Decode(snap[state.DomainLifecycle], &lc); err != nil {
		return CheckResult{ID: CheckStandingAccord, Message: fmt.Sprintf("lifecycle unreadable: %v", err)}
	}

	degraded := st.Band == state.BandDegraded || st.Band == state.BandBreached
	if !degraded {
		return CheckResult{ID: CheckStandingAccord, Passed: true}
	}
	// Suspended is a crisis state, not a forward stage; degraded standing
	// there is the orchestrator's doing and is lawful.
	if lc.Stage == state.StageSuspended || state.StageAtOrAfter(lc.Stage, state.StageDegradable) {
		return CheckResult{ID: CheckStandingAccord, Passed: true}
	}
	return CheckResult{
		ID:      CheckStandingAccord,
		Message: fmt.Sprintf("standing band %s is illegal at lifecycle stage %s", st.Band, lc.Stage),
	}
}

func checkDomainsPresent(snap map[string]map[string]any) CheckResult {
	for _, name := range state.DomainNames() {
		if _, ok := snap[name]; !ok {
			return CheckResult{ID: CheckDomainsPresent, Message: fmt.Sprintf("domain %q absent from snapshot", name)}
		}
	}
	return CheckResult{ID: CheckDomainsPresent, Passed: true}
}
