package query

import (
	"context"

	"github.com/liquidgraph/kgraph/internal/domain"
)

// Answerer retrieves context for a question and synthesizes an answer.
type Answerer interface {
	Query(ctx context.Context, query string, mode domain.Mode) (domain.QueryResult, error)
}
