package ledger

import (
	"context"
	"fmt"

	"github.com/liquidgraph/kgraph/internal/db"
)

// Compile-time check: RedisLedger implements Ledger.
var _ Ledger = (*RedisLedger)(nil)

// RedisLedger persists claims as keys so dedup survives restarts.
type RedisLedger struct {
	kv        db.KVStore
	hash      db.HashStore
	keyPrefix string
}

// NewRedisLedger creates a ledger over the given store.
func NewRedisLedger(store db.Store, keyPrefix string) *RedisLedger {
	return &RedisLedger{kv: store, hash: store, keyPrefix: keyPrefix + "ingested:"}
}

// Claim atomically claims a document via SET NX.
func (l *RedisLedger) Claim(ctx context.Context, docID string) (bool, error) {
	stored, err := l.kv.SetNX(ctx, l.keyPrefix+docID, []byte("1"))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", docID, err)
	}
	return stored, nil
}

// Release removes a claim.
func (l *RedisLedger) Release(ctx context.Context, docID string) error {
	if err := l.hash.Del(ctx, l.keyPrefix+docID); err != nil {
		return fmt.Errorf("release %s: %w", docID, err)
	}
	return nil
}
