// Package memory implements the read-only Memory Retrieval layer
// (spec.md §4.7): three collections queryable by embedding-plus-metadata
// similarity, backed by chromem-go for both the embedded vector index
// and its own on-disk persistence. Grounded on
// quanticsoul4772-unified-thinking/internal/knowledge/vector_store.go's
// chromem-go wiring, generalized from a single knowledge graph to three
// named collections with a uniform query contract.
package memory

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// Collection names fixed by spec.md §4.7. The core never writes to
// these during an analysis; population is an out-of-band concern.
const (
	CollectionAnalysisMemory    = "analysis_memory"
	CollectionPersonalKnowledge = "personal_knowledge"
	CollectionTrustedSources    = "trusted_sources"
)

// Record is one retrieved item, uniform across collections.
type Record struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}

// Embedder produces a vector embedding for a string. Production wiring
// points this at a hosted embeddings API; tests use a deterministic
// stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the read-only query surface the Orchestrator injects
// into the Hypothesis Generator, Deep Research Agent, and (for
// attribution) the Narrative Builder.
type Retriever interface {
	// Query runs text against the named sources (a subset of the three
	// fixed collections; empty means all three) honoring filters, and
	// returns up to n records per source. spec.md §4.7:
	// query(text, filters, sources, n) -> {source -> [records]}.
	Query(ctx context.Context, text string, filters map[string]string, sources []string, n int) (map[string][]Record, error)
}

// Vault is the default Retriever: one chromem-go collection per fixed
// source name, persisted to disk when PersistPath is set.
type Vault struct {
	db       *chromem.DB
	embedder Embedder
}

// VaultConfig mirrors the teacher pack's VectorStoreConfig shape.
type VaultConfig struct {
	PersistPath string // empty = in-memory only
	Embedder    Embedder
}

func allCollections() []string {
	return []string{CollectionAnalysisMemory, CollectionPersonalKnowledge, CollectionTrustedSources}
}

// NewVault opens (or creates) the three fixed collections.
func NewVault(cfg VaultConfig) (*Vault, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent vault at %s: %w", cfg.PersistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}

	v := &Vault{db: db, embedder: cfg.Embedder}
	for _, name := range allCollections() {
		if v.db.GetCollection(name, nil) != nil {
			continue
		}
		if _, err := v.db.CreateCollection(name, nil, nil); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	return v, nil
}

// Ingest adds one record to a collection. Only used by out-of-band
// population tooling, never by the Orchestrator during an analysis.
func (v *Vault) Ingest(ctx context.Context, collection, id, content string, metadata map[string]string) error {
	if v.embedder == nil {
		return fmt.Errorf("vault has no embedder configured")
	}
	col := v.db.GetCollection(collection, nil)
	if col == nil {
		return fmt.Errorf("unknown collection %q", collection)
	}
	embedding, err := v.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", id, err)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
	})
}

func (v *Vault) Query(ctx context.Context, text string, filters map[string]string, sources []string, n int) (map[string][]Record, error) {
	if v.embedder == nil {
		return map[string][]Record{}, nil
	}
	if n <= 0 {
		n = 5
	}
	if len(sources) == 0 {
		sources = allCollections()
	}

	queryEmbedding, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	out := make(map[string][]Record, len(sources))
	for _, name := range sources {
		col := v.db.GetCollection(name, nil)
		if col == nil {
			continue // an unknown or not-yet-populated source yields no records, not an error
		}

		limit := n
		if count := col.Count(); count < limit {
			limit = count
		}
		if limit == 0 {
			out[name] = nil
			continue
		}

		results, err := col.QueryEmbedding(ctx, queryEmbedding, limit, filters, nil)
		if err != nil {
			return nil, fmt.Errorf("query collection %s: %w", name, err)
		}

		recs := make([]Record, 0, len(results))
		for _, r := range results {
			recs = append(recs, Record{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Similarity: r.Similarity})
		}
		out[name] = recs
	}
	return out, nil
}

// NullRetriever always returns empty results, for deployments or tests
// that run without a populated memory layer. The Orchestrator treats
// empty retrieval as "no prior context", never as an error.
type NullRetriever struct{}

func (NullRetriever) Query(ctx context.Context, text string, filters map[string]string, sources []string, n int) (map[string][]Record, error) {
	return map[string][]Record{}, nil
}
