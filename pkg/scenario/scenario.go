// Package scenario runs YAML-declared event sequences against a kernel.
// The harness only calls Ingest and reads snapshots; it has no privileged
// access of any kind.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/gate"
	"github.com/covenantworks/charter/pkg/kernel"
)

// Step is one ingestion in a scenario.
type Step struct {
	Kind    string         `yaml:"kind"`
	Actor   string         `yaml:"actor"`
	Payload map[string]any `yaml:"payload"`
	// ExpectRejection marks steps that must be denied by the constitution.
	ExpectRejection bool `yaml:"expectRejection"`
}

// Scenario is a named, ordered event sequence.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Outcome summarizes a scenario run.
type Outcome struct {
	Accepted int
	Rejected int
	Crises   int
}

// Parse decodes a YAML scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if s.Name == "" {
		return nil, errors.New("scenario: missing name")
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q: no steps", s.Name)
	}
	return &s, nil
}

// Run ingests every step in order. A compliance rejection on a step marked
// ExpectRejection is counted and the run continues; any other divergence
// between expectation and outcome stops the run with an error naming the
// step.
func (s *Scenario) Run(ctx context.Context, k *kernel.Kernel) (*Outcome, error) {
	out := &Outcome{}
	for i, step := range s.Steps {
		res, err := k.Ingest(ctx, event.Kind(step.Kind), step.Payload, step.Actor)

		var cve *gate.ComplianceViolationError
		switch {
		case err == nil && step.ExpectRejection:
			return out, fmt.Errorf("scenario %q step %d (%s): expected rejection, got approval", s.Name, i, step.Kind)
		case err == nil:
			out.Accepted++
			if res.Crisis != nil {
				out.Crises++
			}
		case errors.As(err, &cve) && step.ExpectRejection:
			out.Rejected++
		default:
			return out, fmt.Errorf("scenario %q step %d (%s): %w", s.Name, i, step.Kind, err)
		}
	}
	return out, nil
}
