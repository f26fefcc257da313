package orm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/testutil"
)

type fixture struct {
	ctx     context.Context
	c       *Context
	db      *store.DB
	metrics *store.Metrics
}

func newFixture(t *testing.T, model *schema.Model, opts ...Option) *fixture {
	t.Helper()
	m := store.NewMetrics(prometheus.NewRegistry())
	db, err := store.Open(filepath.Join(t.TempDir(), "orm.db"), store.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	c, err := Open(ctx, db, model, opts...)
	require.NoError(t, err)
	return &fixture{ctx: ctx, c: c, db: db, metrics: m}
}

func newBlogFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, testutil.BlogModel(t))
}

// writes returns the number of INSERT, UPDATE and DELETE statements run.
func (f *fixture) writes(kind string) int {
	n := 0.0
	for _, status := range []string{"ok", "error"} {
		n += promtest.ToFloat64(f.metrics.StatementsTotal.WithLabelValues(kind, status))
	}
	return int(n)
}

func (f *fixture) allWrites() int {
	return f.writes("insert") + f.writes("update") + f.writes("delete")
}

// count runs a raw COUNT(*) against table.
func (f *fixture) count(t *testing.T, query string, params ...any) int64 {
	t.Helper()
	res, err := f.db.ExecuteSQL(f.ctx, query, params...)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	return res.Rows[0][0].(int64)
}
