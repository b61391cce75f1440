package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	lgrag "github.com/smallnest/langgraphgo/rag"
	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/metrics"
)

// KnowledgeGraph is the graph surface the wrapper needs: the library's
// query contract plus the mutation and lifecycle methods its in-memory
// implementation carries but the published interface leaves out.
type KnowledgeGraph interface {
	lgrag.KnowledgeGraph
	GetRelationship(ctx context.Context, id string) (*lgrag.Relationship, error)
	DeleteEntity(ctx context.Context, id string) error
	DeleteRelationship(ctx context.Context, id string) error
	UpdateEntity(ctx context.Context, entity *lgrag.Entity) error
	UpdateRelationship(ctx context.Context, rel *lgrag.Relationship) error
	Close() error
}

// Compile-time check: PersistentGraph implements the full graph surface.
var _ KnowledgeGraph = (*PersistentGraph)(nil)

// PersistentGraph wraps an in-memory knowledge graph with two side
// effects on every mutation: an append to the workdir journal, and a
// mirror of the entity/relationship description into the matching
// vector namespace so local/global retrieval can search them.
type PersistentGraph struct {
	// mu guards inner, whose in-memory implementation has no locking
	// of its own. Ingestion mutates the graph while queries read it.
	mu        sync.RWMutex
	inner     KnowledgeGraph
	journal   *Journal
	entities  lgrag.VectorStore
	relations lgrag.VectorStore
	logger    *zap.Logger

	entityCount atomic.Int64
	relCount    atomic.Int64
}

// NewPersistentGraph wraps inner with journaling and vector mirroring.
func NewPersistentGraph(
	inner KnowledgeGraph,
	journal *Journal,
	entities, relations lgrag.VectorStore,
	logger *zap.Logger,
) *PersistentGraph {
	return &PersistentGraph{
		inner:     inner,
		journal:   journal,
		entities:  entities,
		relations: relations,
		logger:    logger,
	}
}

// Replay rebuilds the in-memory graph from the journal. When
// mirrorVectors is true the entity/relation vector stores are refilled
// too (needed for the in-memory vector driver, which loses them on
// restart; the redis driver keeps its vectors).
func (g *PersistentGraph) Replay(ctx context.Context, mirrorVectors bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var replayed int
	err := g.journal.Replay(func(rec journalRecord) error {
		switch rec.Op {
		case opEntity:
			if rec.Entity == nil {
				return nil
			}
			if err := g.inner.AddEntity(ctx, rec.Entity); err != nil {
				return fmt.Errorf("replay entity %s: %w", rec.Entity.ID, err)
			}
			g.entityCount.Add(1)
			if mirrorVectors {
				if err := g.mirrorEntity(ctx, rec.Entity); err != nil {
					return err
				}
			}
		case opRelationship:
			if rec.Relationship == nil {
				return nil
			}
			if err := g.inner.AddRelationship(ctx, rec.Relationship); err != nil {
				return fmt.Errorf("replay relationship %s: %w", rec.Relationship.ID, err)
			}
			g.relCount.Add(1)
			if mirrorVectors {
				if err := g.mirrorRelationship(ctx, rec.Relationship); err != nil {
					return err
				}
			}
		case opEntityDelete:
			if err := g.inner.DeleteEntity(ctx, rec.ID); err == nil {
				g.entityCount.Add(-1)
			}
			if mirrorVectors {
				_ = g.entities.Delete(ctx, entityVectorID(rec.ID))
			}
		case opRelationshipDelete:
			if err := g.inner.DeleteRelationship(ctx, rec.ID); err == nil {
				g.relCount.Add(-1)
			}
			if mirrorVectors {
				_ = g.relations.Delete(ctx, relationVectorID(rec.ID))
			}
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}

	metrics.GraphEntitiesTotal.Set(float64(g.entityCount.Load()))
	metrics.GraphRelationshipsTotal.Set(float64(g.relCount.Load()))
	g.logger.Info("graph journal replayed",
		zap.Int("records", replayed),
		zap.Int64("entities", g.entityCount.Load()),
		zap.Int64("relationships", g.relCount.Load()),
	)
	return nil
}

// Counts returns the current entity and relationship totals.
func (g *PersistentGraph) Counts() (entities, relationships int64) {
	return g.entityCount.Load(), g.relCount.Load()
}

// AddEntity stores the entity, journals it and mirrors its description
// into the entity vector namespace.
func (g *PersistentGraph) AddEntity(ctx context.Context, entity *lgrag.Entity) error {
	g.mu.Lock()
	err := g.inner.AddEntity(ctx, entity)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opEntity, Entity: entity}); err != nil {
		return err
	}
	g.entityCount.Add(1)
	metrics.GraphEntitiesTotal.Set(float64(g.entityCount.Load()))
	return g.mirrorEntity(ctx, entity)
}

// AddRelationship stores the relationship, journals it and mirrors its
// description into the relation vector namespace.
func (g *PersistentGraph) AddRelationship(ctx context.Context, rel *lgrag.Relationship) error {
	g.mu.Lock()
	err := g.inner.AddRelationship(ctx, rel)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opRelationship, Relationship: rel}); err != nil {
		return err
	}
	g.relCount.Add(1)
	metrics.GraphRelationshipsTotal.Set(float64(g.relCount.Load()))
	return g.mirrorRelationship(ctx, rel)
}

// Query delegates to the inner graph.
func (g *PersistentGraph) Query(ctx context.Context, query *lgrag.GraphQuery) (*lgrag.GraphQueryResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.Query(ctx, query)
}

// GetEntity delegates to the inner graph.
func (g *PersistentGraph) GetEntity(ctx context.Context, id string) (*lgrag.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.GetEntity(ctx, id)
}

// GetRelationship delegates to the inner graph.
func (g *PersistentGraph) GetRelationship(ctx context.Context, id string) (*lgrag.Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.GetRelationship(ctx, id)
}

// GetRelatedEntities delegates to the inner graph.
func (g *PersistentGraph) GetRelatedEntities(ctx context.Context, entityID string, maxDepth int) ([]*lgrag.Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.GetRelatedEntities(ctx, entityID, maxDepth)
}

// DeleteEntity removes the entity everywhere.
func (g *PersistentGraph) DeleteEntity(ctx context.Context, id string) error {
	g.mu.Lock()
	err := g.inner.DeleteEntity(ctx, id)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opEntityDelete, ID: id}); err != nil {
		return err
	}
	g.entityCount.Add(-1)
	metrics.GraphEntitiesTotal.Set(float64(g.entityCount.Load()))
	return g.entities.Delete(ctx, entityVectorID(id))
}

// DeleteRelationship removes the relationship everywhere.
func (g *PersistentGraph) DeleteRelationship(ctx context.Context, id string) error {
	g.mu.Lock()
	err := g.inner.DeleteRelationship(ctx, id)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opRelationshipDelete, ID: id}); err != nil {
		return err
	}
	g.relCount.Add(-1)
	metrics.GraphRelationshipsTotal.Set(float64(g.relCount.Load()))
	return g.relations.Delete(ctx, relationVectorID(id))
}

// UpdateEntity updates the entity and re-mirrors its vector.
func (g *PersistentGraph) UpdateEntity(ctx context.Context, entity *lgrag.Entity) error {
	g.mu.Lock()
	err := g.inner.UpdateEntity(ctx, entity)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opEntity, Entity: entity}); err != nil {
		return err
	}
	return g.mirrorEntity(ctx, entity)
}

// UpdateRelationship updates the relationship and re-mirrors its vector.
func (g *PersistentGraph) UpdateRelationship(ctx context.Context, rel *lgrag.Relationship) error {
	g.mu.Lock()
	err := g.inner.UpdateRelationship(ctx, rel)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := g.journal.Append(journalRecord{Op: opRelationship, Relationship: rel}); err != nil {
		return err
	}
	return g.mirrorRelationship(ctx, rel)
}

// Close closes the journal and the inner graph.
func (g *PersistentGraph) Close() error {
	if err := g.journal.Close(); err != nil {
		return err
	}
	return g.inner.Close()
}

func (g *PersistentGraph) mirrorEntity(ctx context.Context, entity *lgrag.Entity) error {
	doc := lgrag.Document{
		ID:      entityVectorID(entity.ID)[0],
		Content: entityText(entity),
		Metadata: map[string]any{
			"kind":        "entity",
			"entity_id":   entity.ID,
			"entity_type": entity.Type,
		},
	}
	// re-extraction of a known entity must replace its mirror, not
	// stack a second copy next to it
	if err := g.entities.Delete(ctx, []string{doc.ID}); err != nil {
		return fmt.Errorf("clear entity mirror %s: %w", entity.ID, err)
	}
	if err := g.entities.Add(ctx, []lgrag.Document{doc}); err != nil {
		return fmt.Errorf("mirror entity %s: %w", entity.ID, err)
	}
	return nil
}

func (g *PersistentGraph) mirrorRelationship(ctx context.Context, rel *lgrag.Relationship) error {
	doc := lgrag.Document{
		ID:      relationVectorID(rel.ID)[0],
		Content: relationshipText(rel),
		Metadata: map[string]any{
			"kind":      "relationship",
			"rel_id":    rel.ID,
			"rel_type":  rel.Type,
			"source_id": rel.Source,
			"target_id": rel.Target,
		},
	}
	if err := g.relations.Delete(ctx, []string{doc.ID}); err != nil {
		return fmt.Errorf("clear relationship mirror %s: %w", rel.ID, err)
	}
	if err := g.relations.Add(ctx, []lgrag.Document{doc}); err != nil {
		return fmt.Errorf("mirror relationship %s: %w", rel.ID, err)
	}
	return nil
}

func entityVectorID(id string) []string   { return []string{"ent-" + id} }
func relationVectorID(id string) []string { return []string{"rel-" + id} }

// entityText renders an entity as searchable prose.
func entityText(e *lgrag.Entity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Type != "" {
		b.WriteString(" (")
		b.WriteString(e.Type)
		b.WriteString(")")
	}
	if desc, ok := e.Properties["description"].(string); ok && desc != "" {
		b.WriteString(": ")
		b.WriteString(desc)
	}
	return b.String()
}

// relationshipText renders a relationship as searchable prose.
func relationshipText(r *lgrag.Relationship) string {
	var b strings.Builder
	b.WriteString(r.Source)
	b.WriteString(" ")
	b.WriteString(strings.ReplaceAll(strings.ToLower(r.Type), "_", " "))
	b.WriteString(" ")
	b.WriteString(r.Target)
	if desc, ok := r.Properties["description"].(string); ok && desc != "" {
		b.WriteString(": ")
		b.WriteString(desc)
	}
	return b.String()
}
