package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
	"github.com/liquidgraph/kgraph/internal/metrics"
)

// Defaults applied when Config fields are zero.
const (
	DefaultQueueSize  = 64
	DefaultMinTextLen = 10
)

// Config holds ingestion limits.
type Config struct {
	QueueSize  int
	MinTextLen int
}

// Service accepts documents and extracts them in the background on a
// single worker. One worker keeps graph mutations strictly ordered;
// blocked submissions form the queue.
type Service struct {
	engine     Inserter
	ledger     Ledger
	pool       *ants.Pool
	logger     *zap.Logger
	queueSize  int
	minTextLen int
	depth      atomic.Int64
}

// New creates the ingestion service and its worker pool.
func New(engine Inserter, ledger Ledger, cfg Config, logger *zap.Logger) (*Service, error) {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	minTextLen := cfg.MinTextLen
	if minTextLen <= 0 {
		minTextLen = DefaultMinTextLen
	}

	pool, err := ants.NewPool(1, ants.WithMaxBlockingTasks(queueSize))
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}

	return &Service{
		engine:     engine,
		ledger:     ledger,
		pool:       pool,
		logger:     logger,
		queueSize:  queueSize,
		minTextLen: minTextLen,
	}, nil
}

// Enqueue validates the document, claims its ID and hands it to the
// background worker. It returns as soon as the document is queued; the
// receipt says whether the content was already known.
func (s *Service) Enqueue(ctx context.Context, text string, metadata map[string]any) (Receipt, error) {
	trimmed := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(trimmed); n < s.minTextLen {
		return Receipt{}, domain.NewTextTooShort(n, s.minTextLen)
	}

	doc := domain.NewDocument(text, metadata)

	claimed, err := s.ledger.Claim(ctx, doc.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("claim %s: %w", doc.ID, err)
	}
	if !claimed {
		metrics.IngestAcceptedTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("duplicate document skipped", zap.String("doc_id", doc.ID))
		return Receipt{
			ID:         uuid.NewString(),
			DocID:      doc.ID,
			Duplicate:  true,
			ReceivedAt: doc.ReceivedAt,
		}, nil
	}

	// Reserve a slot with a CAS loop so concurrent Enqueues cannot
	// overshoot the bound between the check and the increment.
	for {
		d := s.depth.Load()
		if d >= int64(s.queueSize) {
			s.releaseClaim(doc.ID)
			return Receipt{}, fmt.Errorf("ingest queue at capacity %d: %w", s.queueSize, domain.ErrQueueFull)
		}
		if s.depth.CompareAndSwap(d, d+1) {
			metrics.IngestQueueDepth.Set(float64(d + 1))
			break
		}
	}
	metrics.IngestAcceptedTotal.WithLabelValues("queued").Inc()

	// Submit blocks while the worker is busy, so it runs off the
	// request goroutine. The depth counter above bounds how many of
	// these can pile up.
	go s.submit(doc)

	return Receipt{
		ID:         uuid.NewString(),
		DocID:      doc.ID,
		ReceivedAt: doc.ReceivedAt,
	}, nil
}

func (s *Service) submit(doc domain.Document) {
	err := s.pool.Submit(func() { s.process(doc) })
	if err != nil {
		metrics.IngestQueueDepth.Set(float64(s.depth.Add(-1)))
		s.releaseClaim(doc.ID)
		s.logger.Error("ingest pool rejected document",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

func (s *Service) process(doc domain.Document) {
	defer func() {
		metrics.IngestQueueDepth.Set(float64(s.depth.Add(-1)))
	}()

	start := time.Now()
	err := s.engine.Insert(context.Background(), doc)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.IngestProcessedTotal.WithLabelValues("error").Inc()
		// release so a retry of the same content is not treated as
		// a duplicate of a failed run
		s.releaseClaim(doc.ID)
		s.logger.Error("document extraction failed",
			zap.String("doc_id", doc.ID),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}

	metrics.IngestProcessedTotal.WithLabelValues("ok").Inc()
	s.logger.Info("document extracted",
		zap.String("doc_id", doc.ID),
		zap.Duration("took", time.Since(start)))
}

func (s *Service) releaseClaim(docID string) {
	if err := s.ledger.Release(context.Background(), docID); err != nil {
		s.logger.Warn("release ingest claim",
			zap.String("doc_id", docID), zap.Error(err))
	}
}

// QueueDepth reports queued plus in-flight documents.
func (s *Service) QueueDepth() int {
	return int(s.depth.Load())
}

// Close waits for queued work to drain, up to timeout.
func (s *Service) Close(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for s.depth.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	remaining := time.Until(deadline)
	if remaining < 100*time.Millisecond {
		remaining = 100 * time.Millisecond
	}
	return s.pool.ReleaseTimeout(remaining)
}
