package constitution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covenantworks/charter/pkg/state"
)

func defaultConstitution(t *testing.T) *Constitution {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RecoveryToken = "phoenix-9"
	c, err := Default(cfg)
	require.NoError(t, err)
	return c
}

func collapseSnapshot(t *testing.T, degradedDays, continuity, baseline float64) map[string]map[string]any {
	return snapshot(t, map[string]map[string]any{
		state.DomainLifecycle: {
			"stage":            state.StageDegradable,
			"degradedDays":     degradedDays,
			"continuityIndex":  continuity,
			"baselineIndex":    baseline,
			"baselineCaptured": true,
		},
	})
}

func TestCollapseRulesMinimumDuration(t *testing.T) {
	c := defaultConstitution(t)
	ctx := Context{State: collapseSnapshot(t, 5, 0.1, 0.8)}

	v, err := c.Evaluate(RuleMinDegradedDays, ctx)
	require.NoError(t, err)
	require.Equal(t, EffectDeny, v.Effect)
	require.Contains(t, v.Reason, "30")

	v, err = c.Evaluate(RuleContinuityCeiling, ctx)
	require.NoError(t, err)
	require.Equal(t, EffectAllow, v.Effect)
}

func TestCollapseRulesContinuityCeiling(t *testing.T) {
	c := defaultConstitution(t)

	// 35 degraded days but the institution still shows strong continuity.
	ctx := Context{State: collapseSnapshot(t, 35, 0.8, 0.8)}

	v, err := c.Evaluate(RuleMinDegradedDays, ctx)
	require.NoError(t, err)
	require.Equal(t, EffectAllow, v.Effect)

	v, err = c.Evaluate(RuleContinuityCeiling, ctx)
	require.NoError(t, err)
	require.Equal(t, EffectDeny, v.Effect)

	v, err = c.Evaluate(RuleBaselineDrop, ctx)
	require.NoError(t, err)
	require.Equal(t, EffectDeny, v.Effect)
}

func TestCollapseRulesAllSatisfied(t *testing.T) {
	c := defaultConstitution(t)
	ctx := Context{State: collapseSnapshot(t, 35, 0.1, 0.8)}

	for _, id := range []string{RuleMinDegradedDays, RuleContinuityCeiling, RuleBaselineDrop} {
		v, err := c.Evaluate(id, ctx)
		require.NoError(t, err)
		require.Equal(t, EffectAllow, v.Effect, "rule %s", id)
	}
}

func TestCELRuleFailsClosedOnMissingField(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)
	r, err := NewCELRule(env, "test.missing", "missing field", `input.state.nonexistent.field > 1.0`)
	require.NoError(t, err)

	v := r.Evaluate(Context{State: state.Defaults()})
	require.Equal(t, EffectDeny, v.Effect)
}

func TestCELRuleCompileErrorSurfaces(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)
	_, err = NewCELRule(env, "test.broken", "broken", `this is not CEL`)
	require.Error(t, err)
}

func TestParseRuleSetRejectsIncompleteRules(t *testing.T) {
	_, err := ParseRuleSet([]byte("rules:\n  - id: only-id\n"))
	require.Error(t, err)
}

func TestDefaultConstitutionIsSealedAndComplete(t *testing.T) {
	c := defaultConstitution(t)
	require.ErrorIs(t, c.Register(SessionTransitionRule{}), ErrSealed)

	ids := c.RuleIDs()
	for _, want := range []string{
		RuleProvenance, RuleEmergencyOverride, RuleSessionTransition,
		RulePromotionEvidence, RuleLawfulDegradation,
		RuleMinDegradedDays, RuleContinuityCeiling, RuleBaselineDrop,
	} {
		require.Contains(t, ids, want)
	}
	require.NotEmpty(t, c.Principles())
}
