package sqlgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/entql/internal/schema"
)

// Compiler lowers trees and instances of one model to SQL.
//
// Query plans for trees without opaque parts are cached by fingerprint.
// A Compiler is safe for concurrent use.
type Compiler struct {
	model *schema.Model

	mu    sync.Mutex
	plans map[string]*Plan
	stats CacheStats
}

// CacheStats counts plan cache lookups.
type CacheStats struct {
	Hits   int
	Misses int
	Size   int
}

// NewCompiler creates a compiler for model.
func NewCompiler(model *schema.Model) *Compiler {
	return &Compiler{
		model: model,
		plans: make(map[string]*Plan),
	}
}

// Model returns the model the compiler lowers against.
func (c *Compiler) Model() *schema.Model { return c.model }

// CacheStats returns a snapshot of the plan cache counters.
func (c *Compiler) CacheStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.plans)
	return s
}

func (c *Compiler) cached(fp string) (*Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.plans[fp]
	if ok {
		c.stats.Hits++
		return p.clone(), true
	}
	c.stats.Misses++
	return nil, false
}

func (c *Compiler) store(fp string, p *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[fp] = p.clone()
}

// table returns the quoted table of entity e: the name of its entity set.
func (c *Compiler) table(e *schema.Entity) (string, error) {
	set, ok := c.model.SetFor(e)
	if !ok {
		return "", fmt.Errorf("entity %s has no entity set in context %s", e.Name, c.model.Name)
	}
	return quote(set.Name), nil
}

// quote renders an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
