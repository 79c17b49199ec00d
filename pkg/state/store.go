package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTokenAlreadyGranted is returned by Grant after the first call.
var ErrTokenAlreadyGranted = errors.New("capability token already granted")

// SovereigntyBreachError reports a direct write attempt without the
// capability token.
type SovereigntyBreachError struct {
	Domain string
}

func (e *SovereigntyBreachError) Error() string {
	return fmt.Sprintf("sovereignty breach: unauthorized write to domain %q", e.Domain)
}

// handle is the private capability value. Only the store can mint one, so a
// zero Token can never pass the identity check in Update.
type handle struct{ _ byte }

// Token is the opaque capability required for direct domain writes. It is
// granted exactly once, to the kernel wiring that constructs the gate and
// the response orchestrator.
type Token struct {
	h *handle
}

// Store holds the domain map.
type Store struct {
	mu      sync.RWMutex
	domains map[string]map[string]any
	token   *handle
	granted bool
}

// NewStore builds a store from loaded prior state, merged over defaults.
// loaded may be nil (fresh institution). Unknown loaded domains are dropped;
// known domains are shallow-merged field by field over their defaults.
func NewStore(loaded map[string]map[string]any) *Store {
	domains := Defaults()
	for name, fields := range loaded {
		base, known := domains[name]
		if !known {
			continue
		}
		for k, v := range fields {
			base[k] = deepCopyValue(v)
		}
	}
	return &Store{
		domains: domains,
		token:   &handle{},
	}
}

// Grant releases the capability token. It succeeds exactly once.
func (s *Store) Grant() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.granted {
		return Token{}, ErrTokenAlreadyGranted
	}
	s.granted = true
	return Token{h: s.token}, nil
}

// Domain returns a defensive copy of one domain.
func (s *Store) Domain(name string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[name]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q", name)
	}
	return deepCopyDomain(d), nil
}

// Update applies a shallow field patch to one domain. It fails with a
// *SovereigntyBreachError unless tok is the token granted by this store,
// leaving the domain untouched.
func (s *Store) Update(name string, patch map[string]any, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.h == nil || tok.h != s.token {
		return &SovereigntyBreachError{Domain: name}
	}
	d, ok := s.domains[name]
	if !ok {
		return fmt.Errorf("unknown domain %q", name)
	}
	for k, v := range patch {
		d[k] = deepCopyValue(v)
	}
	return nil
}

// Snapshot returns a fully defensive deep copy of every domain.
func (s *Store) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.domains))
	for name, d := range s.domains {
		out[name] = deepCopyDomain(d)
	}
	return out
}

func deepCopyDomain(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}
