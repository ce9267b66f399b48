package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_orchestrator/internal/core/models"
)

// hashEmbedder is a deterministic stub: identical strings embed
// identically, distinct strings embed distinctly. Good enough to
// exercise chromem-go's cosine search without a network call.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r)
	}
	return v, nil
}

func TestVault_IngestAndQuery_ReturnsFromNamedCollection(t *testing.T) {
	v, err := NewVault(VaultConfig{Embedder: hashEmbedder{}})
	require.NoError(t, err)

	require.NoError(t, v.Ingest(context.Background(), CollectionTrustedSources, "doc1", "margin expansion thesis", map[string]string{"ticker": "ACME"}))

	results, err := v.Query(context.Background(), "margin expansion thesis", nil, []string{CollectionTrustedSources}, 5)
	require.NoError(t, err)
	assert.Len(t, results[CollectionTrustedSources], 1)
	assert.Equal(t, "doc1", results[CollectionTrustedSources][0].ID)
}

func TestVault_Query_UnpopulatedSourceReturnsEmptyNotError(t *testing.T) {
	v, err := NewVault(VaultConfig{Embedder: hashEmbedder{}})
	require.NoError(t, err)

	results, err := v.Query(context.Background(), "anything", nil, []string{CollectionAnalysisMemory}, 5)
	require.NoError(t, err)
	assert.Empty(t, results[CollectionAnalysisMemory])
}

func TestNullRetriever_AlwaysEmpty(t *testing.T) {
	results, err := NullRetriever{}.Query(context.Background(), "x", nil, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestContradictionGraph_UnresolvedFindsOutstandingContradiction(t *testing.T) {
	items := []models.EvidenceItem{
		{ID: "e1", Contradicts: []string{"e2"}},
		{ID: "e2"},
		{ID: "e3"},
	}
	cg, err := NewContradictionGraph(items)
	require.NoError(t, err)

	unresolved, err := cg.Unresolved(map[string]bool{})
	require.NoError(t, err)
	assert.Contains(t, unresolved, "e1")
	assert.NotContains(t, unresolved, "e3")
}

func TestContradictionGraph_ResolvedIDsClearContradiction(t *testing.T) {
	items := []models.EvidenceItem{
		{ID: "e1", Contradicts: []string{"e2"}},
		{ID: "e2"},
	}
	cg, err := NewContradictionGraph(items)
	require.NoError(t, err)

	unresolved, err := cg.Unresolved(map[string]bool{"e1": true})
	require.NoError(t, err)
	assert.NotContains(t, unresolved, "e1")
}
