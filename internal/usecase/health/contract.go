package health

import (
	"context"

	"github.com/liquidgraph/kgraph/internal/engine"
)

// EngineChecker checks the query engine and reports graph sizes.
type EngineChecker interface {
	Ready(ctx context.Context) error
	Stats(ctx context.Context) (engine.Stats, error)
}

// DBPinger checks vector database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
