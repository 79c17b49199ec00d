package constitution

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELRule is a rule whose predicate is a CEL expression over a single
// "input" map carrying the action and the state snapshot. The expression is
// compiled once at construction.
type CELRule struct {
	id          string
	description string
	expression  string
	program     cel.Program
}

// NewCELEnv builds the shared evaluation environment.
func NewCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

// NewCELRule compiles expression in env. A true result raises no objection;
// false denies with the rule description as the reason.
func NewCELRule(env *cel.Env, id, description, expression string) (*CELRule, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: CEL compile error: %w", id, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: CEL program error: %w", id, err)
	}
	return &CELRule{
		id:          id,
		description: description,
		expression:  expression,
		program:     program,
	}, nil
}

func (r *CELRule) ID() string       { return r.id }
func (r *CELRule) Describe() string { return r.description }

// Expression returns the source expression, for diagnostics.
func (r *CELRule) Expression() string { return r.expression }

func (r *CELRule) Evaluate(ctx Context) Verdict {
	input := map[string]any{
		"action": map[string]any{
			"type":    ctx.Action.Type,
			"domain":  ctx.Action.Domain,
			"actor":   ctx.Action.Actor,
			"payload": ctx.Action.Payload,
		},
		"state": stateAsAny(ctx.State),
	}

	out, _, err := r.program.Eval(map[string]any{"input": input})
	if err != nil {
		// Fail closed: an unevaluable rule cannot approve anything.
		return Deny("rule %s evaluation error: %v", r.id, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return Deny("rule %s did not yield a boolean", r.id)
	}
	if !allowed {
		return Deny("%s", r.description)
	}
	return Allow()
}

func stateAsAny(s map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
