package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates deterministic UUID-shaped identifiers:
// 00000000-0000-0000-0000-000000000001, ...002, and so on.
//
// It stands in for the random UUID generator of orm.Context so that guid
// keys and save-batch ids are reproducible in tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDs creates a generator whose first id ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next identifier.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.seq)
}

// Issued returns how many identifiers have been generated.
func (g *SequentialIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedID returns the same identifier every time.
//
// If id is empty, Generate returns "test-id-default".
type FixedID string

// Generate returns the fixed identifier.
func (f FixedID) Generate() string {
	if f == "" {
		return "test-id-default"
	}
	return string(f)
}
