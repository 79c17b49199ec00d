package constitution

import (
	_ "embed"
	"fmt"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

//go:embed rulesets/default.yaml
var defaultRuleSetYAML []byte

// RuleDef is one declarative CEL rule in a rule set file.
type RuleDef struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Expression  string `yaml:"expression"`
}

// RuleSet is a named collection of declarative CEL rules.
type RuleSet struct {
	Version string    `yaml:"version"`
	Name    string    `yaml:"name"`
	Rules   []RuleDef `yaml:"rules"`
}

// ParseRuleSet decodes a YAML rule set.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("rule set parse failed: %w", err)
	}
	for i, def := range rs.Rules {
		if def.ID == "" || def.Expression == "" {
			return nil, fmt.Errorf("rule set %q: rule %d missing id or expression", rs.Name, i)
		}
	}
	return &rs, nil
}

// RegisterRuleSet compiles every rule in the set and registers it.
func RegisterRuleSet(c *Constitution, env *cel.Env, rs *RuleSet) error {
	for _, def := range rs.Rules {
		rule, err := NewCELRule(env, def.ID, def.Description, def.Expression)
		if err != nil {
			return err
		}
		if err := c.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

// Config parameterizes the default constitution.
type Config struct {
	AdminActor    string
	RecoveryToken string
	ActorExact    []string
	ActorPrefixes []string
}

// DefaultConfig returns the standard identity configuration.
func DefaultConfig() Config {
	return Config{
		AdminActor:    "admin",
		ActorExact:    []string{"admin"},
		ActorPrefixes: []string{"engine/", "member/"},
	}
}

// Default builds, populates, and seals the canonical constitution: the
// reserved provenance and override rules, the domain rules, the embedded
// collapse rule set, and the founding principles.
func Default(cfg Config) (*Constitution, error) {
	env, err := NewCELEnv()
	if err != nil {
		return nil, err
	}

	c := New()

	rules := []Rule{
		NewProvenanceRule(cfg.ActorExact, cfg.ActorPrefixes),
		NewEmergencyOverrideRule(cfg.AdminActor, cfg.RecoveryToken),
		SessionTransitionRule{},
		PromotionEvidenceRule{},
		LawfulDegradationRule{},
	}
	for _, r := range rules {
		if err := c.Register(r); err != nil {
			return nil, err
		}
	}

	rs, err := ParseRuleSet(defaultRuleSetYAML)
	if err != nil {
		return nil, err
	}
	if err := RegisterRuleSet(c, env, rs); err != nil {
		return nil, err
	}

	principles := []Principle{
		{
			ID:     "sovereignty",
			Text:   "No domain changes except through a governed, audited decision.",
			Source: "founding charter",
			Level:  LevelSupreme,
		},
		{
			ID:     "continuity",
			Text:   "The institution may not be declared dead while its continuity endures.",
			Source: "founding charter",
			Level:  LevelSupreme,
		},
		{
			ID:        "lawful-degradation",
			Text:      "Standing degrades only on sustained, corroborated negative evidence.",
			Source:    "standing doctrine",
			Level:     LevelDerived,
			Threshold: minBaselineDrop,
		},
		{
			ID:     "provenance",
			Text:   "Every action is attributable to a recognized identity.",
			Source: "audit doctrine",
			Level:  LevelPolicy,
		},
	}
	for _, p := range principles {
		if err := c.RegisterPrinciple(p); err != nil {
			return nil, err
		}
	}

	c.Seal()
	return c, nil
}
