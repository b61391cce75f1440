// Package engine wires the knowledge-graph RAG pipeline: chunking,
// entity/relationship extraction, namespace vector storage and
// mode-dependent retrieval.
package engine

import (
	"context"

	"github.com/liquidgraph/kgraph/internal/domain"
)

// Engine is the contract the ingestion and query usecases run against.
type Engine interface {
	// Insert chunks, embeds and extracts a document into the graph.
	Insert(ctx context.Context, doc domain.Document) error
	// Query answers a question using the retrieval strategy the mode selects.
	Query(ctx context.Context, query string, mode domain.Mode) (domain.QueryResult, error)
	// Ready reports whether the engine can serve queries.
	Ready(ctx context.Context) error
	// Stats returns graph size counters.
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes the current graph contents.
type Stats struct {
	Entities      int64
	Relationships int64
	Chunks        int
}
