package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
	"github.com/liquidgraph/kgraph/internal/metrics"
)

// Service validates query requests and runs them against the engine.
type Service struct {
	engine Answerer
	logger *zap.Logger
}

// New creates a query service.
func New(engine Answerer, logger *zap.Logger) *Service {
	return &Service{engine: engine, logger: logger}
}

// Ask answers a question in the requested mode. An empty mode string
// selects hybrid retrieval.
func (s *Service) Ask(ctx context.Context, text, modeStr string) (domain.QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.QueryResult{}, domain.ErrEmptyQuery
	}

	mode, err := domain.ParseMode(modeStr)
	if err != nil {
		return domain.QueryResult{}, err
	}

	result, err := s.engine.Query(ctx, text, mode)
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("query (%s): %w", mode, err)
	}

	metrics.QueryDuration.WithLabelValues(string(mode)).Observe(result.Duration.Seconds())
	s.logger.Info("query answered",
		zap.String("mode", string(mode)),
		zap.Int("sources", len(result.Sources)),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}
