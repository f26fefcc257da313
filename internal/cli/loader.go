package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/entql/internal/orm"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/store"
)

// loadSchema loads the CUE schema at path, which may be a directory
// holding a CUE package or a single .cue file.
func loadSchema(path string) (*schema.Loaded, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("schema not found: %s: %w", path, err)
		}
		return nil, err
	}
	return schema.LoadCUE(path)
}

// loadModel loads the schema at path and picks the named context.
func loadModel(path, contextName string) (*schema.Model, error) {
	loaded, err := loadSchema(path)
	if err != nil {
		return nil, err
	}
	return loaded.Context(contextName)
}

// session is an open database bound to one context.
type session struct {
	model    *schema.Model
	db       *store.DB
	orm      *orm.Context
	registry *prometheus.Registry
}

// openSession loads the model, opens the database at dbPath with the
// configured storage options and creates the context's tables.
func openSession(ctx context.Context, opts *RootOptions, schemaPath, dbPath string) (*session, error) {
	model, err := loadModel(schemaPath, opts.contextName())
	if err != nil {
		return nil, err
	}

	db, reg, err := openDB(opts, dbPath)
	if err != nil {
		return nil, err
	}

	c, err := orm.Open(ctx, db, model, orm.WithCreationMode(opts.Config.CreationMode()))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("context opened", "context", model.Name, "db", dbPath, "creation", opts.Config.CreationMode())
	return &session{model: model, db: db, orm: c, registry: reg}, nil
}

// openDB opens the database with the configured busy timeout. When the
// config enables metrics it also returns the registry they are kept in.
func openDB(opts *RootOptions, dbPath string) (*store.DB, *prometheus.Registry, error) {
	if dbPath == "" {
		dbPath = opts.Config.Database
	}
	storeOpts := []store.Option{store.WithBusyTimeout(opts.Config.BusyTimeout())}

	var reg *prometheus.Registry
	if opts.Config.Metrics {
		reg = prometheus.NewRegistry()
		storeOpts = append(storeOpts, store.WithMetrics(store.NewMetrics(reg)))
	}

	db, err := store.Open(dbPath, storeOpts...)
	if err != nil {
		return nil, nil, err
	}
	return db, reg, nil
}

func (s *session) Close() error {
	logMetrics(s.registry)
	return s.db.Close()
}

// logMetrics writes every gathered sample at Info. It is a no-op without
// a registry.
func logMetrics(reg *prometheus.Registry) {
	if reg == nil {
		return
	}
	families, err := reg.Gather()
	if err != nil {
		slog.Warn("gathering metrics failed", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				attrs = append(attrs, "count", h.GetSampleCount(), "sum", h.GetSampleSum())
			}
			slog.Info("metric", attrs...)
		}
	}
}

// failureCode maps err to the exit code of a command that got past flag
// parsing: missing files are command errors, everything else a failure.
func failureCode(err error) int {
	if errors.Is(err, os.ErrNotExist) {
		return ExitCommandError
	}
	return ExitFailure
}
