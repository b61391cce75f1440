package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	lgrag "github.com/smallnest/langgraphgo/rag"
	lgengine "github.com/smallnest/langgraphgo/rag/engine"
	"github.com/smallnest/langgraphgo/rag/retriever"
	"github.com/smallnest/langgraphgo/rag/splitter"
	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
)

// answerSystemPrompt frames the synthesis step. The model must answer
// only from the retrieved context so an empty graph yields an honest
// "don't know" rather than a hallucination.
const answerSystemPrompt = `You are a knowledge assistant. Answer the question using ONLY the provided context fragments.
Cite facts from the context; do not invent information. If the context does not contain
enough information to answer, say so plainly.`

// Compile-time check: GraphEngine implements Engine.
var _ Engine = (*GraphEngine)(nil)

// Config holds GraphEngine tuning parameters.
type Config struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	EntityTypes  []string
	MaxDepth     int
}

// GraphEngine runs the full pipeline over a persistent knowledge graph
// and three vector namespaces (entities, relations, chunks).
type GraphEngine struct {
	llm       lgrag.LLMInterface
	embedder  lgrag.Embedder
	graph     *PersistentGraph
	chunks    lgrag.VectorStore
	entities  lgrag.VectorStore
	relations lgrag.VectorStore
	extractor *lgengine.GraphRAGEngine
	splitter  lgrag.TextSplitter
	topK      int
	logger    *zap.Logger
}

// NewGraphEngine assembles the engine.
func NewGraphEngine(
	cfg Config,
	llm lgrag.LLMInterface,
	embedder lgrag.Embedder,
	graph *PersistentGraph,
	chunks, entities, relations lgrag.VectorStore,
	logger *zap.Logger,
) (*GraphEngine, error) {
	extractor, err := lgengine.NewGraphRAGEngine(lgrag.GraphRAGConfig{
		EntityTypes: cfg.EntityTypes,
		MaxDepth:    cfg.MaxDepth,
	}, llm, embedder, graph)
	if err != nil {
		return nil, fmt.Errorf("create extraction engine: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	return &GraphEngine{
		llm:       llm,
		embedder:  embedder,
		graph:     graph,
		chunks:    chunks,
		entities:  entities,
		relations: relations,
		extractor: extractor,
		splitter: splitter.NewRecursiveCharacterTextSplitter(
			splitter.WithChunkSize(cfg.ChunkSize),
			splitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		topK:   topK,
		logger: logger,
	}, nil
}

// Insert chunks the document into the chunk namespace and runs
// entity/relationship extraction into the graph. Chunk IDs derive from
// the document ID, so re-inserting the same document overwrites rather
// than duplicates.
func (e *GraphEngine) Insert(ctx context.Context, doc domain.Document) error {
	text := doc.EnrichedText()

	pieces := e.splitter.SplitText(text)
	chunkDocs := make([]lgrag.Document, 0, len(pieces))
	for i, piece := range pieces {
		meta := map[string]any{"doc_id": doc.ID, "chunk": i}
		for k, v := range doc.Metadata {
			if _, taken := meta[k]; !taken {
				meta[k] = v
			}
		}
		chunkDocs = append(chunkDocs, lgrag.Document{
			ID:       fmt.Sprintf("%s:chunk:%d", doc.ID, i),
			Content:  piece,
			Metadata: meta,
		})
	}
	// delete-then-add: the in-memory store appends on Add, so stale
	// chunks from a previous insert of the same document must go first
	chunkIDs := make([]string, len(chunkDocs))
	for i, c := range chunkDocs {
		chunkIDs[i] = c.ID
	}
	if err := e.chunks.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", doc.ID, err)
	}
	if err := e.chunks.Add(ctx, chunkDocs); err != nil {
		return fmt.Errorf("store chunks for %s: %w", doc.ID, err)
	}

	if err := e.extractor.AddDocuments(ctx, []lgrag.Document{{
		ID:       doc.ID,
		Content:  text,
		Metadata: doc.Metadata,
	}}); err != nil {
		return fmt.Errorf("extract graph for %s: %w", doc.ID, err)
	}

	entities, relationships := e.graph.Counts()
	e.logger.Info("document inserted",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunkDocs)),
		zap.Int64("graph_entities", entities),
		zap.Int64("graph_relationships", relationships),
	)
	return nil
}

// Query retrieves with the mode's strategy and synthesizes an answer.
// An empty graph or no relevant matches produces the no-match answer,
// never an error.
func (e *GraphEngine) Query(ctx context.Context, query string, mode domain.Mode) (domain.QueryResult, error) {
	start := time.Now()

	results, err := e.retrieve(ctx, query, mode)
	if err != nil {
		return domain.QueryResult{}, err
	}

	if len(results) == 0 {
		return domain.QueryResult{
			Answer:   domain.NoMatchAnswer,
			Mode:     mode,
			Duration: time.Since(start),
		}, nil
	}

	answer, err := e.llm.GenerateWithSystem(ctx, answerSystemPrompt, buildPrompt(query, results))
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("synthesize answer: %w", err)
	}

	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.Source{
			ID:      r.Document.ID,
			Content: r.Document.Content,
			Score:   r.Score,
		})
	}

	return domain.QueryResult{
		Answer:   strings.TrimSpace(answer),
		Mode:     mode,
		Sources:  sources,
		Duration: time.Since(start),
	}, nil
}

// retrieve runs the mode's retriever combination.
//
// local: entity neighborhoods (entity vectors + graph traversal).
// global: relationship-level knowledge (relation vectors).
// hybrid: everything, chunk text weighted highest.
func (e *GraphEngine) retrieve(ctx context.Context, query string, mode domain.Mode) ([]lgrag.DocumentSearchResult, error) {
	cfg := lgrag.RetrievalConfig{K: e.topK, IncludeScores: true}

	var r lgrag.Retriever
	switch mode {
	case domain.ModeLocal:
		r = retriever.NewHybridRetriever([]lgrag.Retriever{
			retriever.NewVectorRetriever(e.entities, e.embedder, cfg),
			retriever.NewGraphRetriever(e.graph, e.embedder, cfg),
		}, []float64{0.6, 0.4}, cfg)
	case domain.ModeGlobal:
		r = retriever.NewVectorRetriever(e.relations, e.embedder, cfg)
	case domain.ModeHybrid:
		r = retriever.NewHybridRetriever([]lgrag.Retriever{
			retriever.NewVectorRetriever(e.entities, e.embedder, cfg),
			retriever.NewVectorRetriever(e.relations, e.embedder, cfg),
			retriever.NewVectorRetriever(e.chunks, e.embedder, cfg),
		}, []float64{0.3, 0.3, 0.4}, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	results, err := r.RetrieveWithConfig(ctx, query, &cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieve (%s): %w", mode, err)
	}
	return results, nil
}

// Ready verifies that the chunk store answers.
func (e *GraphEngine) Ready(ctx context.Context) error {
	if _, err := e.chunks.GetStats(ctx); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrEngineUnavailable)
	}
	return nil
}

// Stats reports graph and chunk store sizes.
func (e *GraphEngine) Stats(ctx context.Context) (Stats, error) {
	entities, relationships := e.graph.Counts()
	s := Stats{Entities: entities, Relationships: relationships}

	chunkStats, err := e.chunks.GetStats(ctx)
	if err != nil {
		return s, fmt.Errorf("chunk stats: %w", err)
	}
	s.Chunks = chunkStats.TotalDocuments
	return s, nil
}

// buildPrompt renders the retrieved fragments and the question.
func buildPrompt(query string, results []lgrag.DocumentSearchResult) string {
	var b strings.Builder
	b.WriteString("Context fragments:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(r.Document.Content))
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
