package vector

import (
	"context"
	"sync"

	lgrag "github.com/smallnest/langgraphgo/rag"
)

// Locked serializes access to a vector store that is not safe for
// concurrent use. The in-memory store appends to plain slices, so the
// background ingest worker and query handlers must not touch it at the
// same time. The redis-backed store does not need this.
type Locked struct {
	mu    sync.RWMutex
	inner lgrag.VectorStore
}

// NewLocked wraps inner with a read-write mutex.
func NewLocked(inner lgrag.VectorStore) *Locked {
	return &Locked{inner: inner}
}

func (l *Locked) Add(ctx context.Context, documents []lgrag.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Add(ctx, documents)
}

func (l *Locked) Update(ctx context.Context, documents []lgrag.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Update(ctx, documents)
}

func (l *Locked) Delete(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Delete(ctx, ids)
}

func (l *Locked) Search(ctx context.Context, queryEmbedding []float32, k int) ([]lgrag.DocumentSearchResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Search(ctx, queryEmbedding, k)
}

func (l *Locked) SearchWithFilter(ctx context.Context, queryEmbedding []float32, k int, filter map[string]any) ([]lgrag.DocumentSearchResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.SearchWithFilter(ctx, queryEmbedding, k, filter)
}

func (l *Locked) GetStats(ctx context.Context) (*lgrag.VectorStoreStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.GetStats(ctx)
}
