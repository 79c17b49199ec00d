// Package event defines the canonical event vocabulary of the kernel and the
// registry that normalizes raw input into typed, validated events.
//
// Events are the only way facts enter the institution. Every accepted event
// is appended to the ledger before any domain engine runs, and is immutable
// once created.
package event

import (
	"fmt"
	"time"
)

// Kind identifies the category of an event.
type Kind string

const (
	KindGenesisVerdict   Kind = "GENESIS_VERDICT_SUBMITTED"
	KindSessionOpened    Kind = "SESSION_OPENED"
	KindSessionClosed    Kind = "SESSION_CLOSED"
	KindCovenantSigned   Kind = "COVENANT_SIGNED"
	KindCovenantKept     Kind = "COVENANT_KEPT"
	KindCovenantBreached Kind = "COVENANT_BREACHED"
	KindDayClosed        Kind = "DAY_CLOSED"
	KindLifecyclePromote Kind = "LIFECYCLE_PROMOTE"
	KindRecoveryInvoked  Kind = "RECOVERY_INVOKED"
)

// Kinds returns every recognized event kind.
func Kinds() []Kind {
	return []Kind{
		KindGenesisVerdict,
		KindSessionOpened,
		KindSessionClosed,
		KindCovenantSigned,
		KindCovenantKept,
		KindCovenantBreached,
		KindDayClosed,
		KindLifecyclePromote,
		KindRecoveryInvoked,
	}
}

// Event is a canonical, validated record of a single fact.
// Immutable once created.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload"`
	ActorID   string         `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// ValidationError reports a malformed or unrecognized raw event.
type ValidationError struct {
	Kind   Kind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event validation failed for %q: %s", e.Kind, e.Detail)
}
