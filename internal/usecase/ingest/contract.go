package ingest

import (
	"context"
	"time"

	"github.com/liquidgraph/kgraph/internal/domain"
)

// Inserter runs chunking and graph extraction for one document.
type Inserter interface {
	Insert(ctx context.Context, doc domain.Document) error
}

// Ledger tracks which document IDs have already been accepted, so the
// same content is not extracted twice.
type Ledger interface {
	Claim(ctx context.Context, docID string) (bool, error)
	Release(ctx context.Context, docID string) error
}

// Receipt is returned to the caller as soon as a document is accepted.
// Extraction continues in the background.
type Receipt struct {
	ID         string
	DocID      string
	Duplicate  bool
	ReceivedAt time.Time
}
