package vector

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	lgrag "github.com/smallnest/langgraphgo/rag"
	"github.com/smallnest/langgraphgo/rag/store"

	"github.com/liquidgraph/kgraph/internal/db"
)

// fakeStore is an in-memory db.Store for repository tests.
type fakeStore struct {
	hashes    map[string]map[string]string
	kv        map[string][]byte
	indexes   map[string]bool
	knnResult *db.SearchResult
	lastKNN   *db.KNNQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:  make(map[string]map[string]string),
		kv:      make(map[string][]byte),
		indexes: make(map[string]bool),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close()                     {}
func (f *fakeStore) WaitForReady(context.Context, time.Duration) error {
	return nil
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.hashes[key] = fields
	return nil
}

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	for _, item := range items {
		f.hashes[item.Key] = item.Fields
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = f.hashes[k]
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.hashes, key)
	return nil
}

func (f *fakeStore) DelMulti(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.kv[key] = value
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	if _, ok := f.kv[key]; ok {
		return false, nil
	}
	f.kv[key] = value
	return true, nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if f.indexes[def.Name] {
		return db.ErrIndexExists
	}
	f.indexes[def.Name] = true
	return nil
}

func (f *fakeStore) DropIndex(_ context.Context, name string) error {
	delete(f.indexes, name)
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, name string) (bool, error) {
	return f.indexes[name], nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.lastKNN = q
	if f.knnResult != nil {
		return f.knnResult, nil
	}
	return &db.SearchResult{}, nil
}

func (f *fakeStore) SearchCount(context.Context, string, string) (int, error) {
	return len(f.hashes), nil
}

func newTestRepo(t *testing.T, fs *fakeStore) *Repo {
	t.Helper()
	repo, err := New(fs, store.NewMockEmbedder(8), Config{
		Namespace: "chunks",
		KeyPrefix: "kgraph:",
		Dimension: 8,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return repo
}

func TestNew_Validation(t *testing.T) {
	fs := newFakeStore()
	if _, err := New(fs, nil, Config{KeyPrefix: "p:", Dimension: 8}); err == nil {
		t.Error("expected error for missing namespace")
	}
	if _, err := New(fs, nil, Config{Namespace: "chunks"}); err == nil {
		t.Error("expected error for missing dimension")
	}
}

func TestEnsureIndex_CreatesOnce(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !fs.indexes["idx:kgraph:chunks"] {
		t.Fatalf("index not created: %v", fs.indexes)
	}
	// Second call is a no-op.
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex (2nd): %v", err)
	}
}

func TestAdd_StoresHashFields(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	doc := lgrag.Document{
		ID:       "doc-1:chunk:0",
		Content:  "some chunk text",
		Metadata: map[string]any{"doc_id": "doc-1"},
	}
	if err := repo.Add(context.Background(), []lgrag.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	fields, ok := fs.hashes["kgraph:chunks:doc-1:chunk:0"]
	if !ok {
		t.Fatalf("hash not stored, keys: %v", fs.hashes)
	}
	if fields["content"] != "some chunk text" {
		t.Errorf("content = %q", fields["content"])
	}
	if fields["doc_id"] != "doc-1" {
		t.Errorf("doc_id = %q", fields["doc_id"])
	}
	if len(fields["vector"]) != 8*4 {
		t.Errorf("vector length = %d, want 32 bytes", len(fields["vector"]))
	}
	if fields["metadata"] == "" || !strings.Contains(fields["metadata"], "doc-1") {
		t.Errorf("metadata = %q", fields["metadata"])
	}
	if fields["created_at"] == "" || fields["updated_at"] == "" {
		t.Error("timestamps missing")
	}
}

func TestAdd_EmbedsMissingVectors(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	docs := []lgrag.Document{
		{ID: "a", Content: "first"},
		{ID: "b", Content: "second", Embedding: make([]float32, 8)},
	}
	if err := repo.Add(context.Background(), docs); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fs.hashes) != 2 {
		t.Fatalf("expected 2 hashes, got %d", len(fs.hashes))
	}
	// Input slice must not be mutated.
	if len(docs[0].Embedding) != 0 {
		t.Error("Add mutated the caller's document slice")
	}
}

func TestAdd_RejectsDimensionMismatch(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	doc := lgrag.Document{ID: "a", Content: "x", Embedding: make([]float32, 4)}
	if err := repo.Add(context.Background(), []lgrag.Document{doc}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestAdd_TruncatesLongContent(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	doc := lgrag.Document{ID: "big", Content: strings.Repeat("x", maxStoredContentLen+500)}
	if err := repo.Add(context.Background(), []lgrag.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := len(fs.hashes["kgraph:chunks:big"]["content"]); got != maxStoredContentLen {
		t.Errorf("stored content length = %d, want %d", got, maxStoredContentLen)
	}
}

func TestAdd_TruncationKeepsValidUTF8(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	// The 1-byte prefix shifts the 3-byte runes so the cap lands mid-rune.
	doc := lgrag.Document{ID: "cjk", Content: "x" + strings.Repeat("世", maxStoredContentLen/3+100)}
	if err := repo.Add(context.Background(), []lgrag.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stored := fs.hashes["kgraph:chunks:cjk"]["content"]
	if len(stored) > maxStoredContentLen {
		t.Errorf("stored content length = %d, want <= %d", len(stored), maxStoredContentLen)
	}
	if !utf8.ValidString(stored) {
		t.Error("stored content is not valid UTF-8")
	}
}

func TestSearch_MapsResults(t *testing.T) {
	fs := newFakeStore()
	fs.knnResult = &db.SearchResult{
		Total: 1,
		Entries: []db.SearchEntry{
			{
				Key:   "kgraph:chunks:doc-1:chunk:0",
				Score: 0.9,
				Fields: map[string]string{
					"content":  "retrieved text",
					"metadata": `{"doc_id":"doc-1"}`,
				},
			},
		},
	}
	repo := newTestRepo(t, fs)

	results, err := repo.Search(context.Background(), make([]float32, 8), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Document.ID != "doc-1:chunk:0" {
		t.Errorf("ID = %q, key prefix not stripped", r.Document.ID)
	}
	if r.Document.Content != "retrieved text" {
		t.Errorf("Content = %q", r.Document.Content)
	}
	if r.Score != 0.9 {
		t.Errorf("Score = %f", r.Score)
	}
	if r.Document.Metadata["doc_id"] != "doc-1" {
		t.Errorf("Metadata = %v", r.Document.Metadata)
	}
}

func TestSearchWithFilter_BuildsTagFilters(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	_, err := repo.SearchWithFilter(context.Background(), make([]float32, 8), 3,
		map[string]any{"doc_id": "doc-7"})
	if err != nil {
		t.Fatalf("SearchWithFilter: %v", err)
	}
	if fs.lastKNN == nil || fs.lastKNN.TagFilters["doc_id"] != "doc-7" {
		t.Errorf("tag filters not propagated: %+v", fs.lastKNN)
	}

	if _, err := repo.SearchWithFilter(context.Background(), make([]float32, 8), 3,
		map[string]any{"doc_id": 42}); err == nil {
		t.Error("expected error for non-string filter value")
	}
}

func TestSearch_EmptyStoreReturnsNoResults(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	results, err := repo.Search(context.Background(), make([]float32, 8), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestDelete_RemovesKeys(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	doc := lgrag.Document{ID: "gone", Content: "x"}
	if err := repo.Add(context.Background(), []lgrag.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := repo.Delete(context.Background(), []string{"gone"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fs.hashes["kgraph:chunks:gone"]; ok {
		t.Error("document not deleted")
	}
}

func TestGetStats(t *testing.T) {
	fs := newFakeStore()
	repo := newTestRepo(t, fs)

	docs := []lgrag.Document{{ID: "a", Content: "1"}, {ID: "b", Content: "2"}}
	if err := repo.Add(context.Background(), docs); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stats, err := repo.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("TotalDocuments = %d, want 2", stats.TotalDocuments)
	}
	if stats.Dimension != 8 {
		t.Errorf("Dimension = %d, want 8", stats.Dimension)
	}
}
