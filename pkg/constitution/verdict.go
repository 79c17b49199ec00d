// Package constitution defines the declarative principles of the institution
// and the executable rules that gate every proposed mutation.
//
// Rules are pure predicates over (action, state snapshot). They are
// registered once at construction and immutable afterwards. Evaluation never
// receives a mutable reference to live state.
package constitution

import "fmt"

// Effect is the outcome category of a rule evaluation.
type Effect int

const (
	// EffectAllow raises no objection to the action.
	EffectAllow Effect = iota
	// EffectAllowOverride approves the action unconditionally, discarding
	// any denial collected from other cited rules. Reserved for the
	// emergency-override rule.
	EffectAllowOverride
	// EffectDeny rejects the action with a reason.
	EffectDeny
)

// Verdict is the result of evaluating one rule against one action.
type Verdict struct {
	Effect Effect
	Reason string
}

// Allow raises no objection.
func Allow() Verdict { return Verdict{Effect: EffectAllow} }

// AllowOverride approves the action regardless of other verdicts.
func AllowOverride() Verdict { return Verdict{Effect: EffectAllowOverride} }

// Deny rejects the action with a reason.
func Deny(format string, args ...any) Verdict {
	return Verdict{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}
