package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
	"github.com/liquidgraph/kgraph/internal/repository/ledger"
)

type fakeEngine struct {
	mu       sync.Mutex
	inserted []domain.Document
	gate     chan struct{}
	err      error
}

func (f *fakeEngine) Insert(_ context.Context, doc domain.Document) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, doc)
	return f.err
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newTestService(t *testing.T, eng *fakeEngine, cfg Config) *Service {
	t.Helper()
	svc, err := New(eng, ledger.NewMemoryLedger(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close(time.Second) })
	return svc
}

func TestEnqueue_RejectsShortText(t *testing.T) {
	svc := newTestService(t, &fakeEngine{}, Config{})

	_, err := svc.Enqueue(context.Background(), "   short  ", nil)
	if !errors.Is(err, domain.ErrDocumentTooShort) {
		t.Fatalf("err = %v, want ErrDocumentTooShort", err)
	}

	var tooShort *domain.TextTooShortError
	if !errors.As(err, &tooShort) {
		t.Fatalf("err = %v, want TextTooShortError", err)
	}
	if tooShort.Length != 5 {
		t.Errorf("reported length = %d, want 5 (trimmed)", tooShort.Length)
	}
}

func TestEnqueue_ReturnsBeforeExtractionFinishes(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	svc := newTestService(t, eng, Config{})

	start := time.Now()
	receipt, err := svc.Enqueue(context.Background(), "a perfectly reasonable document", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Errorf("Enqueue took %v, should not wait for extraction", took)
	}
	if receipt.ID == "" || receipt.DocID == "" {
		t.Errorf("receipt = %+v, want populated IDs", receipt)
	}
	if receipt.Duplicate {
		t.Error("first enqueue marked duplicate")
	}
	if eng.count() != 0 {
		t.Error("extraction ran synchronously")
	}

	close(eng.gate)
	waitFor(t, func() bool { return eng.count() == 1 })
	waitFor(t, func() bool { return svc.QueueDepth() == 0 })
}

func TestEnqueue_DuplicateContentAcceptedButNotRequeued(t *testing.T) {
	eng := &fakeEngine{}
	svc := newTestService(t, eng, Config{})
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, "the same document text both times", nil)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return eng.count() == 1 })

	second, err := svc.Enqueue(ctx, "the same document text both times", nil)
	if err != nil {
		t.Fatalf("duplicate enqueue errored: %v", err)
	}
	if !second.Duplicate {
		t.Error("second receipt not marked duplicate")
	}
	if second.DocID != first.DocID {
		t.Errorf("doc IDs differ: %s vs %s", first.DocID, second.DocID)
	}

	time.Sleep(50 * time.Millisecond)
	if eng.count() != 1 {
		t.Errorf("engine ran %d times, want 1", eng.count())
	}
}

func TestEnqueue_FailedExtractionReleasesClaim(t *testing.T) {
	eng := &fakeEngine{err: errors.New("llm unavailable")}
	svc := newTestService(t, eng, Config{})
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "a document that will fail extraction", nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return svc.QueueDepth() == 0 })

	// the claim is gone, so the same content can be retried
	eng.mu.Lock()
	eng.err = nil
	eng.mu.Unlock()

	receipt, err := svc.Enqueue(ctx, "a document that will fail extraction", nil)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Duplicate {
		t.Error("retry after failure treated as duplicate")
	}
	waitFor(t, func() bool { return eng.count() == 2 })
}

func TestEnqueue_QueueFull(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	svc := newTestService(t, eng, Config{QueueSize: 1})
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "the first document occupies the worker", nil); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Enqueue(ctx, "the second document finds no room", nil)
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	close(eng.gate)
	waitFor(t, func() bool { return svc.QueueDepth() == 0 })

	// room again once the worker drained
	if _, err := svc.Enqueue(ctx, "the third document fits after the drain", nil); err != nil {
		t.Fatalf("enqueue after drain: %v", err)
	}
}

func TestEnqueue_ConcurrentBoundIsExact(t *testing.T) {
	const queueSize = 4
	const workers = queueSize + 6

	eng := &fakeEngine{gate: make(chan struct{})}
	svc := newTestService(t, eng, Config{QueueSize: queueSize})

	// The worker blocks on the gate, so nothing drains while the
	// goroutines race for slots.
	var wg sync.WaitGroup
	var accepted, full atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Enqueue(context.Background(),
				fmt.Sprintf("concurrently ingested document number %d", i), nil)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrQueueFull):
				full.Add(1)
			default:
				t.Errorf("Enqueue: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := accepted.Load(); got != queueSize {
		t.Errorf("accepted = %d, want exactly %d", got, queueSize)
	}
	if got := full.Load(); got != workers-queueSize {
		t.Errorf("rejected = %d, want %d", got, workers-queueSize)
	}
	if d := svc.QueueDepth(); d > queueSize {
		t.Errorf("queue depth = %d, exceeds bound %d", d, queueSize)
	}

	close(eng.gate)
	waitFor(t, func() bool { return svc.QueueDepth() == 0 })
}

func TestEnqueue_MetadataDocIDWins(t *testing.T) {
	eng := &fakeEngine{}
	svc := newTestService(t, eng, Config{})

	receipt, err := svc.Enqueue(context.Background(),
		"a document with an explicit identity",
		map[string]any{"doc_id": "doc-explicit"})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.DocID != "doc-explicit" {
		t.Errorf("doc ID = %q, want doc-explicit", receipt.DocID)
	}
}
