// Package ledger tracks which documents have already been ingested so
// re-ingesting identical content is a no-op.
package ledger

import "context"

// Ledger records processed document IDs.
type Ledger interface {
	// Claim marks a document as taken for processing. Returns false when
	// the document was already claimed (duplicate ingest).
	Claim(ctx context.Context, docID string) (bool, error)
	// Release undoes a claim so a failed extraction can be retried.
	Release(ctx context.Context, docID string) error
}
