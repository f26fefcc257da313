package orm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/tracker"
)

// IDGenerator produces guid key values and save-batch ids.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

// Option configures Open.
type Option func(*Context)

// WithIDGenerator replaces the random UUID generator used for guid keys.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Context) { c.ids = g }
}

// WithCreationMode selects how Open creates the model's tables. The
// default is sqlgen.IfNotExists.
func WithCreationMode(mode sqlgen.CreationMode) Option {
	return func(c *Context) { c.creation = mode }
}

// WithCompiler shares a compiler, and its plan cache, between contexts of
// the same model.
func WithCompiler(comp *sqlgen.Compiler) Option {
	return func(c *Context) { c.compiler = comp }
}

// Context is an entity context over one model and one database.
type Context struct {
	db       *store.DB
	model    *schema.Model
	compiler *sqlgen.Compiler
	tracker  *tracker.Tracker
	ids      IDGenerator
	creation sqlgen.CreationMode
	sets     map[string]*EntitySet
}

// Open creates a context and makes sure the model's tables exist.
func Open(ctx context.Context, db *store.DB, model *schema.Model, opts ...Option) (*Context, error) {
	if db == nil || model == nil {
		return nil, fmt.Errorf("orm: open requires a database and a model")
	}
	c := &Context{
		db:      db,
		model:   model,
		tracker: tracker.NewTracker(model),
		ids:     uuidGenerator{},
		sets:    make(map[string]*EntitySet),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.compiler == nil {
		c.compiler = sqlgen.NewCompiler(model)
	} else if c.compiler.Model() != model {
		return nil, fmt.Errorf("orm: compiler was built for context %s, not %s", c.compiler.Model().Name, model.Name)
	}

	for _, s := range model.Sets() {
		root, err := expr.NewEntitySet(s)
		if err != nil {
			return nil, err
		}
		c.sets[s.Name] = &EntitySet{c: c, set: s, root: root}
	}

	ddl := sqlgen.CreateTables(model, c.creation)
	err := db.Transaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, stmt := range ddl {
			if _, err := tx.ExecuteSQL(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orm: create tables: %w", err)
	}

	slog.Debug("context opened", "context", model.Name, "sets", len(c.sets), "creation", c.creation)
	return c, nil
}

// Model returns the context's model.
func (c *Context) Model() *schema.Model { return c.model }

// Compiler returns the context's SQL compiler.
func (c *Context) Compiler() *sqlgen.Compiler { return c.compiler }

// Tracker returns the change tracker.
func (c *Context) Tracker() *tracker.Tracker { return c.tracker }

// Set returns the named entity set.
func (c *Context) Set(name string) (*EntitySet, error) {
	s, ok := c.sets[name]
	if !ok {
		return nil, fmt.Errorf("orm: context %s has no entity set %q", c.model.Name, name)
	}
	return s, nil
}

// MustSet is like Set but panics when the set does not exist.
func (c *Context) MustSet(name string) *EntitySet {
	s, err := c.Set(name)
	if err != nil {
		panic(err)
	}
	return s
}

// HasChanges reports whether a save would write anything.
func (c *Context) HasChanges() bool { return c.tracker.HasChanges() }

// EntitySet is the context-bound view of one entity set.
type EntitySet struct {
	c    *Context
	set  *schema.EntitySet
	root *expr.EntitySetExpression
}

// Name returns the set (table) name.
func (s *EntitySet) Name() string { return s.set.Name }

// Element returns the entity type of the set's members.
func (s *EntitySet) Element() *schema.Entity { return s.set.Element() }

// Expression returns the root node of queries over the set.
func (s *EntitySet) Expression() *expr.EntitySetExpression { return s.root }

// New creates a detached instance of the set's element type.
func (s *EntitySet) New() *tracker.Instance {
	return tracker.New(s.set.Element())
}

// Add marks inst for insertion by the next save.
func (s *EntitySet) Add(inst *tracker.Instance) error {
	if err := s.member(inst); err != nil {
		return err
	}
	return s.c.tracker.Add(inst)
}

// Attach tracks inst as matching storage.
func (s *EntitySet) Attach(inst *tracker.Instance) error {
	if err := s.member(inst); err != nil {
		return err
	}
	return s.c.tracker.Attach(inst)
}

// Remove marks an attached instance for deletion by the next save.
func (s *EntitySet) Remove(inst *tracker.Instance) error {
	if err := s.member(inst); err != nil {
		return err
	}
	return s.c.tracker.Remove(inst)
}

// Query starts a query over the set.
func (s *EntitySet) Query() *Query {
	return &Query{c: s.c, node: s.root}
}

func (s *EntitySet) member(inst *tracker.Instance) error {
	if inst == nil {
		return fmt.Errorf("orm: nil instance")
	}
	if inst.Entity() != s.set.Element() {
		return fmt.Errorf("orm: %s instance does not belong to entity set %s", inst.Entity().Name, s.set.Name)
	}
	return nil
}
