package ledger

import (
	"context"
	"sync"
)

// Compile-time check: MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger keeps claims in process memory. Used with the in-memory
// vector driver, where nothing survives a restart anyway.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

// Claim marks a document as taken.
func (l *MemoryLedger) Claim(_ context.Context, docID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[docID]; ok {
		return false, nil
	}
	l.seen[docID] = struct{}{}
	return true, nil
}

// Release removes a claim.
func (l *MemoryLedger) Release(_ context.Context, docID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, docID)
	return nil
}
