package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/expr"
)

func TestCompileQuery_Golden(t *testing.T) {
	f := newBlogFixture(t)

	tests := []struct {
		name  string
		set   *expr.EntitySetExpression
		calls []expr.Call
	}{
		{
			name:  "filter_count",
			set:   f.blogs,
			calls: []expr.Call{expr.Filter(expr.Eq("Name", "Comment")), expr.Count()},
		},
		{
			name:  "to_array_default_order",
			set:   f.blogs,
			calls: []expr.Call{expr.ToArray()},
		},
		{
			name:  "order_skip_take",
			set:   f.posts,
			calls: []expr.Call{expr.OrderByDesc("CreatedAt"), expr.Skip(10), expr.Take(5), expr.ToArray()},
		},
		{
			name: "reference_path_projection",
			set:  f.posts,
			calls: []expr.Call{
				expr.Filter(expr.Eq("Blog.Name", "Comment")),
				expr.Project("Title", "Blog.Name"),
				expr.ToArray(),
			},
		},
		{
			name:  "any_subquery",
			set:   f.blogs,
			calls: []expr.Call{expr.Filter(expr.AnyOf("Posts", expr.Eq("Title", "Hello"))), expr.ToArray()},
		},
		{
			name:  "every_all",
			set:   f.blogs,
			calls: []expr.Call{expr.Every(expr.AllOf("Posts", expr.Like("Title", "A%")))},
		},
		{
			name: "some_or_not",
			set:  f.posts,
			calls: []expr.Call{
				expr.Some(expr.OrOf(expr.IsNull("Body"), expr.NotOf(expr.Eq("Title", "x")))),
			},
		},
		{
			name:  "filter_after_take",
			set:   f.blogs,
			calls: []expr.Call{expr.Take(3), expr.Filter(expr.Eq("Name", "x")), expr.Count()},
		},
		{
			name:  "order_after_take",
			set:   f.posts,
			calls: []expr.Call{expr.OrderBy("Title"), expr.Take(2), expr.OrderBy("Body"), expr.ToArray()},
		},
		{
			name:  "paged_count",
			set:   f.blogs,
			calls: []expr.Call{expr.Skip(1), expr.Count()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.compile(t, tt.set, tt.calls...)
			assert.False(t, p.InMemory())
			assertGolden(t, tt.name, render(p.SQL, p.Params))
		})
	}
}

func TestCompileQuery_Frames(t *testing.T) {
	f := newBlogFixture(t)

	count := f.compile(t, f.blogs, expr.Count())
	assert.Equal(t, expr.NodeCount, count.Frame)
	assert.Equal(t, ShapeScalar, count.Shape)
	assert.Equal(t, []Column{{Name: CountColumn}}, count.Columns)
	assert.Equal(t, `SELECT COUNT(*) AS "count" FROM "Blogs" AS t0`, count.SQL)

	single := f.compile(t, f.blogs, expr.Filter(expr.Eq("Name", "x")), expr.Single())
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 WHERE t0."Name" = ? ORDER BY t0."Id" ASC LIMIT 2`, single.SQL)
	assert.Equal(t, ShapeEntities, single.Shape)
	require.Len(t, single.Columns, 2)
	assert.Equal(t, "Id", single.Columns[0].Name)

	first := f.compile(t, f.blogs, expr.Take(5), expr.First())
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 ORDER BY t0."Id" ASC LIMIT 1`, first.SQL)

	every := f.compile(t, f.blogs, expr.Every(nil))
	assert.Equal(t, `SELECT 1 AS "result"`, every.SQL)

	some := f.compile(t, f.blogs, expr.Some(nil))
	assert.Equal(t, `SELECT EXISTS (SELECT 1 FROM "Blogs" AS t0) AS "result"`, some.SQL)

	each := f.compile(t, f.posts, expr.ForEach(func(expr.Record) error { return nil }))
	assert.Equal(t, expr.NodeForEach, each.Frame)
	assert.Equal(t, ShapeEntities, each.Shape)
}

func TestCompileQuery_Projection(t *testing.T) {
	f := newBlogFixture(t)
	p := f.compile(t, f.posts, expr.Project("Title", "Blog.Name"), expr.ToArray())

	assert.Equal(t, ShapeRecords, p.Shape)
	assert.Nil(t, p.Element)
	require.Len(t, p.Columns, 2)
	assert.Equal(t, "Blog.Name", p.Columns[1].Path)
	assert.Equal(t, "string", string(p.Columns[1].DataType()))
}

func TestCompileQuery_ResidualPredicate(t *testing.T) {
	f := newBlogFixture(t)
	long := expr.Where("long", func(r expr.Record) bool { return true })

	p := f.compile(t, f.blogs,
		expr.Filter(expr.AndOf(expr.Eq("Name", "x"), long)),
		expr.Take(1),
		expr.ToArray(),
	)
	assert.True(t, p.InMemory())
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 WHERE t0."Name" = ? ORDER BY t0."Id" ASC`, p.SQL)
	assert.Equal(t, []any{"x"}, p.Params)
	assert.Equal(t, []*expr.Func{long}, p.Residual)
	assert.Equal(t, 0, p.Offset)
	assert.Equal(t, 1, p.Limit)

	// Paging before the opaque filter stays in SQL.
	p = f.compile(t, f.blogs, expr.Skip(2), expr.Filter(long), expr.Count())
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 ORDER BY t0."Id" ASC LIMIT -1 OFFSET 2`, p.SQL)
	assert.Equal(t, -1, p.Limit)
	assert.Equal(t, expr.NodeCount, p.Frame)
}

func TestCompileQuery_OpaqueFramePredicate(t *testing.T) {
	f := newBlogFixture(t)
	odd := expr.Where("odd", func(r expr.Record) bool { return true })

	p := f.compile(t, f.blogs, expr.Some(expr.AndOf(expr.Eq("Name", "x"), odd)))
	assert.True(t, p.Match)
	assert.Equal(t, []*expr.Func{odd}, p.FrameResidual)
	assert.Equal(t, `SELECT t0."Id", t0."Name", (t0."Name" = ?) AS "__match" FROM "Blogs" AS t0 ORDER BY t0."Id" ASC`, p.SQL)
	assert.Equal(t, []any{"x"}, p.Params)

	p = f.compile(t, f.blogs, expr.Every(odd))
	assert.False(t, p.Match)
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 ORDER BY t0."Id" ASC`, p.SQL)
}

func TestCompileQuery_FilterAfterMemoryPaging(t *testing.T) {
	f := newBlogFixture(t)
	long := expr.Where("long", func(r expr.Record) bool { return true })

	n, err := expr.Build(f.blogs, expr.Filter(long), expr.Take(2), expr.Filter(expr.Eq("Name", "x")), expr.ToArray())
	require.NoError(t, err)
	_, err = f.c.CompileQuery(n)
	require.Error(t, err)
	assert.True(t, IsLoweringError(err))

	n, err = expr.Build(f.blogs, expr.Filter(long), expr.Skip(1), expr.OrderBy("Name"), expr.ToArray())
	require.NoError(t, err)
	_, err = f.c.CompileQuery(n)
	assert.True(t, IsLoweringError(err))
}

func TestCompileQuery_Cache(t *testing.T) {
	f := newBlogFixture(t)

	a := f.compile(t, f.blogs, expr.Filter(expr.Eq("Name", "a")), expr.Count())
	b := f.compile(t, f.blogs, expr.Filter(expr.Eq("Name", "a")), expr.Count())
	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Size: 1}, f.c.CacheStats())

	// Cached plans are copies.
	b.Params[0] = "mutated"
	c := f.compile(t, f.blogs, expr.Filter(expr.Eq("Name", "a")), expr.Count())
	assert.Equal(t, []any{"a"}, c.Params)

	f.compile(t, f.blogs, expr.Filter(expr.Eq("Name", "b")), expr.Count())
	assert.Equal(t, CacheStats{Hits: 2, Misses: 2, Size: 2}, f.c.CacheStats())

	// Opaque trees are never cached.
	opaque := expr.Where("any", func(expr.Record) bool { return true })
	f.compile(t, f.blogs, expr.Filter(opaque), expr.ToArray())
	assert.Equal(t, 2, f.c.CacheStats().Size)
}

func TestSelectByKeys(t *testing.T) {
	f := newBlogFixture(t)
	blog := f.blogs.Element()

	p, err := f.c.SelectByKeys(blog, []any{int64(3), int64(1)})
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."Id", t0."Name" FROM "Blogs" AS t0 WHERE t0."Id" IN (?, ?) ORDER BY t0."Id" ASC`, p.SQL)
	assert.Equal(t, []any{int64(3), int64(1)}, p.Params)
	assert.Equal(t, ShapeEntities, p.Shape)
	assert.Same(t, blog, p.Element)
	assert.False(t, p.InMemory())

	_, err = f.c.SelectByKeys(blog, nil)
	assert.ErrorContains(t, err, "no keys")
}

func TestCompileQuery_Nil(t *testing.T) {
	_, err := newBlogFixture(t).c.CompileQuery(nil)
	assert.Error(t, err)
}
