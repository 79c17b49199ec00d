package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/covenantworks/charter/pkg/canonicalize"
)

// Bundle is an exportable, independently verifiable slice of the chain.
type Bundle struct {
	BundleID   string    `json:"bundle_id"`
	CreatedAt  time.Time `json:"created_at"`
	StartIndex uint64    `json:"start_index"`
	EndIndex   uint64    `json:"end_index"`
	EntryCount int       `json:"entry_count"`
	Entries    []Entry   `json:"entries"`
	ChainHead  string    `json:"chain_head"`
	BundleHash string    `json:"bundle_hash"`
}

// Export packages the full chain for external audit.
func (l *Ledger) Export() (*Bundle, error) {
	entries := l.History()
	if len(entries) == 0 {
		return nil, fmt.Errorf("ledger export: no entries")
	}

	bundle := &Bundle{
		BundleID:   uuid.New().String(),
		CreatedAt:  l.clock().UTC(),
		StartIndex: entries[0].Index,
		EndIndex:   entries[len(entries)-1].Index,
		EntryCount: len(entries),
		Entries:    entries,
		ChainHead:  entries[len(entries)-1].Hash,
	}

	canonical, err := canonicalize.JCS(bundle.Entries)
	if err != nil {
		return nil, fmt.Errorf("ledger export: %w", err)
	}
	bundle.BundleHash = "sha256:" + canonicalize.HashBytes(canonical)
	return bundle, nil
}

// VerifyBundle checks a bundle's content hash and internal chain without any
// reference to the live ledger.
func VerifyBundle(bundle *Bundle) error {
	if bundle == nil || len(bundle.Entries) == 0 {
		return fmt.Errorf("bundle is empty")
	}

	canonical, err := canonicalize.JCS(bundle.Entries)
	if err != nil {
		return fmt.Errorf("bundle canonicalization: %w", err)
	}
	if computed := "sha256:" + canonicalize.HashBytes(canonical); computed != bundle.BundleHash {
		return fmt.Errorf("bundle hash mismatch")
	}

	if ok, reason := verifyEntries(bundle.Entries); !ok {
		return fmt.Errorf("bundle chain invalid: %s", reason)
	}
	if head := bundle.Entries[len(bundle.Entries)-1].Hash; head != bundle.ChainHead {
		return fmt.Errorf("bundle chain head mismatch")
	}
	return nil
}
