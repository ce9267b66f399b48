package memory

import (
	"fmt"

	"github.com/dominikbraun/graph"

	"equity_orchestrator/internal/core/models"
)

// ContradictionGraph is a directed graph of EvidenceItem ids joined by
// Contradicts edges, grounded on
// quanticsoul4772-unified-thinking/internal/modes/graph.go's
// graph.New(hashFn, graph.Directed()) wiring. The Orchestrator's
// refinement step (spec.md §4.6.2 step 5) walks it to find
// contradictions still unresolved in the current evidence bundle.
type ContradictionGraph struct {
	g graph.Graph[string, string]
}

func evidenceIDHash(id string) string { return id }

// NewContradictionGraph builds the graph from a flat set of evidence
// items; every Contradicts reference becomes a directed edge.
func NewContradictionGraph(items []models.EvidenceItem) (*ContradictionGraph, error) {
	g := graph.New(evidenceIDHash, graph.Directed())

	for _, it := range items {
		if err := g.AddVertex(it.ID); err != nil && err != graph.ErrVertexAlreadyExists {
			return nil, fmt.Errorf("add vertex %s: %w", it.ID, err)
		}
	}
	for _, it := range items {
		for _, c := range it.Contradicts {
			if err := g.AddVertex(c); err != nil && err != graph.ErrVertexAlreadyExists {
				return nil, fmt.Errorf("add vertex %s: %w", c, err)
			}
			if err := g.AddEdge(it.ID, c); err != nil && err != graph.ErrEdgeAlreadyExists {
				return nil, fmt.Errorf("add contradiction edge %s->%s: %w", it.ID, c, err)
			}
		}
	}
	return &ContradictionGraph{g: g}, nil
}

// Unresolved returns every evidence id that is not itself in
// resolvedIDs (ids the synthesis step has already reconciled) and
// still has at least one outgoing contradiction edge whose target is
// not in resolvedIDs either.
func (cg *ContradictionGraph) Unresolved(resolvedIDs map[string]bool) ([]string, error) {
	adjacency, err := cg.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("build adjacency map: %w", err)
	}

	var unresolved []string
	for id, edges := range adjacency {
		for target := range edges {
			if !resolvedIDs[id] && !resolvedIDs[target] {
				unresolved = append(unresolved, id)
				break
			}
		}
	}
	return unresolved, nil
}
