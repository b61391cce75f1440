// Package vector persists embedding vectors in Redis hashes behind FT
// indexes, one repository per namespace (entities, relations, chunks).
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	lgrag "github.com/smallnest/langgraphgo/rag"

	"github.com/liquidgraph/kgraph/internal/db"
)

// Redis hash values have no practical size limit, but oversized content
// bloats FT index memory; cap stored text the same way the ingestion
// chunker caps chunks.
const maxStoredContentLen = 30000

// Compile-time check: Repo implements the vector store contract.
var _ lgrag.VectorStore = (*Repo)(nil)

// Config holds per-namespace settings for a Repo.
type Config struct {
	Namespace string // logical namespace, e.g. "entities"
	KeyPrefix string // global key prefix, e.g. "kgraph:"
	Dimension int    // embedding dimension for the FT index
}

// Repo stores documents and their embeddings for one namespace.
type Repo struct {
	store     db.Store
	embedder  lgrag.Embedder
	namespace string
	keyPrefix string
	indexName string
	dimension int
}

// New creates a vector repository over the given store.
// The embedder fills in embeddings for documents that arrive without one.
func New(store db.Store, embedder lgrag.Embedder, cfg Config) (*Repo, error) {
	if cfg.Namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("dimension must be positive")
	}
	prefix := cfg.KeyPrefix + cfg.Namespace + ":"
	return &Repo{
		store:     store,
		embedder:  embedder,
		namespace: cfg.Namespace,
		keyPrefix: prefix,
		indexName: "idx:" + cfg.KeyPrefix + cfg.Namespace,
		dimension: cfg.Dimension,
	}, nil
}

// EnsureIndex creates the namespace FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName,
		Prefixes: []string{r.keyPrefix},
		Fields: []db.IndexField{
			{Name: "content", Type: db.IndexFieldText},
			{Name: "doc_id", Type: db.IndexFieldTag},
			{
				Name:           "vector",
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorHNSW,
				VectorDim:      r.dimension,
				VectorDistance: db.DistanceCosine,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return nil
}

// Add stores documents, embedding any that lack a vector.
func (r *Repo) Add(ctx context.Context, documents []lgrag.Document) error {
	if len(documents) == 0 {
		return nil
	}

	docs, err := r.fillEmbeddings(ctx, documents)
	if err != nil {
		return err
	}

	items := make([]db.HashSetItem, 0, len(docs))
	for _, doc := range docs {
		fields, err := r.docFields(doc)
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: r.key(doc.ID), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store %d documents in %s: %w", len(items), r.namespace, err)
	}
	return nil
}

// Update upserts documents. Redis hashes make update and add identical.
func (r *Repo) Update(ctx context.Context, documents []lgrag.Document) error {
	return r.Add(ctx, documents)
}

// Search performs KNN similarity search.
func (r *Repo) Search(ctx context.Context, queryEmbedding []float32, k int) ([]lgrag.DocumentSearchResult, error) {
	return r.SearchWithFilter(ctx, queryEmbedding, k, nil)
}

// SearchWithFilter performs KNN similarity search with a metadata
// pre-filter. Only indexed fields are filterable; currently that is
// doc_id.
func (r *Repo) SearchWithFilter(
	ctx context.Context, queryEmbedding []float32, k int, filter map[string]any,
) ([]lgrag.DocumentSearchResult, error) {
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	q := &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       queryEmbedding,
		K:            k,
		ReturnFields: []string{"content", "doc_id", "metadata", "created_at", "updated_at", "__vector_score"},
	}
	if len(filter) > 0 {
		q.TagFilters = make(map[string]string, len(filter))
		for key, val := range filter {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported filter value for %q: %T", key, val)
			}
			q.TagFilters[key] = s
		}
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.namespace, err)
	}

	results := make([]lgrag.DocumentSearchResult, 0, len(res.Entries))
	for _, entry := range res.Entries {
		results = append(results, lgrag.DocumentSearchResult{
			Document: r.entryToDocument(entry),
			Score:    entry.Score,
		})
	}
	return results, nil
}

// Delete removes documents by ID.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete %d documents from %s: %w", len(ids), r.namespace, err)
	}
	return nil
}

// GetStats returns document counts for the namespace.
func (r *Repo) GetStats(ctx context.Context) (*lgrag.VectorStoreStats, error) {
	count, err := r.store.SearchCount(ctx, r.indexName, "*")
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", r.namespace, err)
	}
	return &lgrag.VectorStoreStats{
		TotalDocuments: count,
		TotalVectors:   count,
		Dimension:      r.dimension,
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// Close is a no-op: the underlying store is shared and owned by main.
func (r *Repo) Close() error { return nil }

func (r *Repo) key(id string) string {
	return r.keyPrefix + id
}

func (r *Repo) fillEmbeddings(ctx context.Context, documents []lgrag.Document) ([]lgrag.Document, error) {
	var missing []int
	for i := range documents {
		if len(documents[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return documents, nil
	}
	if r.embedder == nil {
		return nil, errors.New("no embedder configured and document has no embedding")
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = documents[i].Content
	}
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d documents: %w", len(texts), err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	out := make([]lgrag.Document, len(documents))
	copy(out, documents)
	for j, i := range missing {
		out[i].Embedding = vectors[j]
	}
	return out, nil
}

func (r *Repo) docFields(doc lgrag.Document) (map[string]string, error) {
	if doc.ID == "" {
		return nil, errors.New("document ID is required")
	}
	if len(doc.Embedding) != r.dimension {
		return nil, fmt.Errorf("document %s: embedding dimension %d, index expects %d",
			doc.ID, len(doc.Embedding), r.dimension)
	}

	content := truncateContent(doc.Content, maxStoredContentLen)

	now := time.Now().UTC()
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	fields := map[string]string{
		"content":    content,
		"vector":     db.EncodeVector(doc.Embedding),
		"created_at": strconv.FormatInt(createdAt.UnixMilli(), 10),
		"updated_at": strconv.FormatInt(now.UnixMilli(), 10),
	}

	if docID, ok := doc.Metadata["doc_id"].(string); ok && docID != "" {
		fields["doc_id"] = docID
	}
	if len(doc.Metadata) > 0 {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: marshal metadata: %w", doc.ID, err)
		}
		fields["metadata"] = string(meta)
	}

	return fields, nil
}

// truncateContent caps content at max bytes, backing off to a rune
// boundary so the stored field stays valid UTF-8.
func truncateContent(content string, max int) string {
	if len(content) <= max {
		return content
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func (r *Repo) entryToDocument(entry db.SearchEntry) lgrag.Document {
	doc := lgrag.Document{
		ID:      strings.TrimPrefix(entry.Key, r.keyPrefix),
		Content: entry.Fields["content"],
	}
	if meta := entry.Fields["metadata"]; meta != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(meta), &m); err == nil {
			doc.Metadata = m
		}
	}
	if ts := entry.Fields["created_at"]; ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			doc.CreatedAt = time.UnixMilli(ms).UTC()
		}
	}
	if ts := entry.Fields["updated_at"]; ts != "" {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			doc.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return doc
}
