package orchestrator

import (
	"fmt"
	"sync"
)

// idAllocator assigns EvidenceItem ids in a deterministic, gap-free
// sequence from a single counter (spec.md §5: "EvidenceItem ids are
// assigned in a deterministic, gap-free sequence by a centralized
// allocator to guarantee reproducibility"), regardless of the
// completion order of the parallel Deep Research calls that proposed
// them.
type idAllocator struct {
	mu   sync.Mutex
	next int
}

// newIDAllocator seeds the counter from the count of evidence items
// already persisted, so a resumed Analysis continues the sequence
// rather than colliding with ids already on disk.
func newIDAllocator(alreadyAllocated int) *idAllocator {
	return &idAllocator{next: alreadyAllocated}
}

func (a *idAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return fmt.Sprintf("ev_%03d", a.next)
}
