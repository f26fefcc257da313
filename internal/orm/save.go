package orm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/tracker"
)

// SaveChanges writes every pending change in one transaction.
//
// All statements are lowered before the transaction starts, so an
// *sqlgen.EmptyEntityError fails the save with no I/O. Inserts run parents
// first, then updates, then deletes. When the transaction commits, Added
// instances receive their generated keys and become Unchanged, Modified
// become Unchanged, Removed become Detached. On failure the tracked
// states are left as they were.
func (c *Context) SaveChanges(ctx context.Context) error {
	if !c.tracker.HasChanges() {
		return nil
	}
	batch := batchID()
	start := time.Now()

	var added, modified, removed []*tracker.Instance
	for _, set := range c.model.Sets() {
		d := c.tracker.DirtySet(set)
		added = append(added, d.Added...)
		modified = append(modified, d.Modified...)
		removed = append(removed, d.Removed...)
	}

	ordered, err := insertOrder(added)
	if err != nil {
		return fmt.Errorf("save changes: %w", err)
	}
	if err := c.assignClientKeys(ordered); err != nil {
		return fmt.Errorf("save changes: %w", err)
	}
	stmts, err := c.lower(ordered, modified, removed)
	if err != nil {
		return fmt.Errorf("save changes: %w", err)
	}

	keys := make(map[*tracker.Instance]ir.IRValue)
	lookup := func(inst *tracker.Instance) (ir.IRValue, bool) {
		if k, ok := keys[inst]; ok {
			return k, true
		}
		k := inst.Key()
		return k, !ir.IsNull(k)
	}

	err = c.db.Transaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, stmt := range stmts {
			params, err := stmt.Resolve(lookup)
			if err != nil {
				return err
			}
			res, err := tx.ExecuteSQL(ctx, stmt.SQL, params...)
			if err != nil {
				return err
			}
			if stmt.Op == sqlgen.OpInsert && stmt.Instance.Entity().Key().Computed {
				keys[stmt.Instance] = ir.IRInt(res.LastInsertID)
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("save failed", "batch", batch, "context", c.model.Name, "error", err)
		return fmt.Errorf("save changes: %w", err)
	}

	c.tracker.Commit(keys)
	slog.Info("changes saved",
		"batch", batch,
		"context", c.model.Name,
		"added", len(added),
		"modified", len(modified),
		"removed", len(removed),
		"statements", len(stmts),
		"duration", time.Since(start),
	)
	return nil
}

// SaveChangesAsync runs SaveChanges in a goroutine. The channel receives
// exactly one value, nil on success, and is then closed.
func (c *Context) SaveChangesAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.SaveChanges(ctx)
	}()
	return done
}

// batchID returns a time-ordered id correlating the log lines of one save.
func batchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// assignClientKeys generates keys for Added instances with an unset guid
// key. Generated keys are kept even if the save fails, so a retry inserts
// the same rows.
func (c *Context) assignClientKeys(added []*tracker.Instance) error {
	for _, inst := range added {
		key := inst.Entity().Key()
		if key.Computed || key.DataType != schema.TypeGUID || !ir.IsNull(inst.Key()) {
			continue
		}
		if err := inst.Set(key.Name, c.ids.Generate()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) lower(added, modified, removed []*tracker.Instance) ([]*sqlgen.Statement, error) {
	var stmts []*sqlgen.Statement
	for _, inst := range added {
		s, err := c.compiler.Insert(inst)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	for _, inst := range modified {
		s, err := c.compiler.Update(inst)
		if err != nil {
			return nil, err
		}
		if s != nil {
			stmts = append(stmts, s)
		}
	}
	for _, inst := range removed {
		s, err := c.compiler.Delete(inst)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// insertOrder sorts Added instances so that every parent referenced by an
// Added child is inserted before it. Unrelated instances keep tracking
// order.
func insertOrder(added []*tracker.Instance) ([]*tracker.Instance, error) {
	pending := make(map[*tracker.Instance]bool, len(added))
	for _, inst := range added {
		pending[inst] = true
	}

	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[*tracker.Instance]int, len(added))
	out := make([]*tracker.Instance, 0, len(added))

	var visit func(inst *tracker.Instance) error
	visit = func(inst *tracker.Instance) error {
		switch mark[inst] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cannot order inserts: %s is part of a reference cycle", inst.Entity().Name)
		}
		mark[inst] = visiting
		for _, f := range inst.Entity().References() {
			if parent := inst.Ref(f.Name); parent != nil && pending[parent] {
				if err := visit(parent); err != nil {
					return err
				}
			}
		}
		mark[inst] = done
		out = append(out, inst)
		return nil
	}

	for _, inst := range added {
		if err := visit(inst); err != nil {
			return nil, err
		}
	}
	return out, nil
}
