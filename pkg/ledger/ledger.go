// Package ledger implements the append-only, hash-chained record of every
// accepted event.
//
// Each entry is linked to its predecessor through a SHA-256 hash over the
// RFC 8785 canonical form of (index, data, prev_hash). The chain starts at a
// fixed genesis marker; Verify recomputes it end to end and is the mechanism
// used to detect accidental corruption. Entries are never mutated or removed.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/covenantworks/charter/pkg/canonicalize"
	"github.com/covenantworks/charter/pkg/event"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "genesis"

// ErrSealed is returned by Append after the ledger has been sealed.
var ErrSealed = errors.New("ledger is sealed")

// Entry wraps an accepted event with its position in the chain.
type Entry struct {
	Index     uint64      `json:"index"`
	Timestamp time.Time   `json:"timestamp"`
	Data      event.Event `json:"data"`
	PrevHash  string      `json:"prev_hash"`
	Hash      string      `json:"hash"`
}

// Ledger is an append-only, hash-chained log of events.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	sealed   bool
	clock    func() time.Time
}

// New creates an empty ledger with the genesis head.
func New() *Ledger {
	return &Ledger{
		entries:  make([]Entry, 0),
		headHash: GenesisHash,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Append adds an event to the ledger and returns the committed entry.
func (l *Ledger) Append(ev event.Event) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return Entry{}, ErrSealed
	}

	index := uint64(len(l.entries)) + 1
	hash, err := entryHash(index, ev, l.headHash)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger append: %w", err)
	}

	entry := Entry{
		Index:     index,
		Timestamp: l.clock().UTC(),
		Data:      ev,
		PrevHash:  l.headHash,
		Hash:      hash,
	}

	l.entries = append(l.entries, entry)
	l.headHash = hash
	return entry, nil
}

// Seal permanently closes the ledger to further appends.
func (l *Ledger) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

// Sealed reports whether the ledger has been sealed.
func (l *Ledger) Sealed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sealed
}

// History returns a defensive copy of the full chain. Callers can never
// mutate the authoritative log through it.
func (l *Ledger) History() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	for i := range out {
		out[i].Data.Payload = copyPayload(out[i].Data.Payload)
	}
	return out
}

// Length returns the number of committed entries.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Head returns the current head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Query returns every entry matching the predicate, without mutating state.
func (l *Ledger) Query(predicate func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if predicate(e) {
			e.Data.Payload = copyPayload(e.Data.Payload)
			out = append(out, e)
		}
	}
	return out
}

// Verify recomputes the hash chain from genesis. It returns false with a
// positional diagnostic on the first mismatch.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyEntries(l.entries)
}

func verifyEntries(entries []Entry) (bool, string) {
	prevHash := GenesisHash
	for i, e := range entries {
		if e.Index != uint64(i)+1 {
			return false, fmt.Sprintf("entry %d has index %d", i+1, e.Index)
		}
		if e.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", e.Index, prevHash, e.PrevHash)
		}
		computed, err := entryHash(e.Index, e.Data, e.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("hash recomputation failed at entry %d: %v", e.Index, err)
		}
		if computed != e.Hash {
			return false, fmt.Sprintf("hash mismatch at entry %d", e.Index)
		}
		prevHash = e.Hash
	}
	return true, "chain verified"
}

// entryHash computes sha256 over the canonical form of (index, data, prev).
func entryHash(index uint64, ev event.Event, prevHash string) (string, error) {
	hashInput := struct {
		Index    uint64      `json:"index"`
		Data     event.Event `json:"data"`
		PrevHash string      `json:"prev"`
	}{index, ev, prevHash}

	canonical, err := canonicalize.JCS(hashInput)
	if err != nil {
		return "", err
	}
	return "sha256:" + canonicalize.HashBytes(canonical), nil
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
