// Package engines contains the domain derivation stages of the cycle.
//
// Each engine computes a proposed patch for its domain from the accepted
// event, the full history, and domains finalized earlier in the same cycle,
// then submits the patch through the compliance gate citing only the rules
// relevant to that mutation. Engines read state but never hold the
// capability token; the gate performs every write.
package engines

import (
	"context"

	"github.com/covenantworks/charter/pkg/constitution"
	"github.com/covenantworks/charter/pkg/event"
	"github.com/covenantworks/charter/pkg/state"
)

// Cycle is the input to one engine pass: the accepted event plus the full
// ledger history up to and including it.
type Cycle struct {
	Event   event.Event
	History []event.Event
}

// Engine is one stage of the fixed-order pipeline.
type Engine interface {
	Name() string
	Run(ctx context.Context, cyc Cycle) error
}

// writeAction builds a domain-write action attributed to an engine identity.
func writeAction(engine, domain string, rules []string, payload map[string]any) constitution.Action {
	return constitution.Action{
		Type:    constitution.ActionDomainWrite,
		Domain:  domain,
		Actor:   "engine/" + engine,
		Rules:   rules,
		Payload: payload,
	}
}

// readDomain decodes the current value of a domain into its typed view.
func readDomain(store *state.Store, name string, out any) error {
	raw, err := store.Domain(name)
	if err != nil {
		return err
	}
	return state.Decode(raw, out)
}
