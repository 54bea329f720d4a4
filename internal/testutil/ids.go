package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates UUID-shaped identifiers from a counter.
//
// The same test with a fresh SequenceIDs produces the same identifiers, which
// keeps golden dumps of migrated stores byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequenceIDs creates a generator whose first ID ends in 1.
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{}
}

// Next returns the next identifier, e.g. 00000000-0000-0000-0000-000000000001.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}

// Count returns how many identifiers have been generated.
func (g *SequenceIDs) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
