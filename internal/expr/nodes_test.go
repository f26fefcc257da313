package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/testutil"
)

func blogs(t *testing.T) (*EntitySetExpression, *EntitySetExpression) {
	t.Helper()
	m := testutil.BlogModel(t)
	b, err := NewEntitySet(testutil.Set(t, m, "Blogs"))
	require.NoError(t, err)
	p, err := NewEntitySet(testutil.Set(t, m, "BlogPosts"))
	require.NoError(t, err)
	return b, p
}

func TestNewEntitySet(t *testing.T) {
	b, _ := blogs(t)
	assert.Equal(t, NodeEntitySet, b.NodeType())
	assert.Equal(t, ResultCollection, b.ResultType())
	assert.False(t, b.IsTerminated())
	assert.Nil(t, b.Source())
	assert.Equal(t, "Blog", b.Element().Name)

	_, err := NewEntitySet(nil)
	assert.True(t, IsTypeMismatch(err))

	unresolved, err := schema.NewRegistry().DefineEntitySet("Ghosts", "Ghost")
	require.NoError(t, err)
	_, err = NewEntitySet(unresolved)
	assert.True(t, IsTypeMismatch(err))
}

func TestFilterThenCount(t *testing.T) {
	b, _ := blogs(t)

	f, err := NewFilter(b, Eq("Name", "Comment"))
	require.NoError(t, err)
	assert.Equal(t, NodeFilter, f.NodeType())
	assert.Equal(t, ResultCollection, f.ResultType())
	assert.False(t, f.IsTerminated())
	assert.Same(t, b, f.Source())

	c, err := NewCount(f)
	require.NoError(t, err)
	assert.Equal(t, NodeCount, c.NodeType())
	assert.Equal(t, ResultInteger, c.ResultType())
	assert.True(t, c.IsTerminated())

	var n Node = c
	_, isSource := n.(Source)
	assert.False(t, isSource, "frames must not be usable as sources")
	_, isFrame := n.(Frame)
	assert.True(t, isFrame)
}

func TestFrameResultTypes(t *testing.T) {
	b, _ := blogs(t)

	tests := []struct {
		name   string
		build  func() (Node, error)
		result ResultType
	}{
		{"count", func() (Node, error) { return NewCount(b) }, ResultInteger},
		{"single", func() (Node, error) { return NewSingle(b) }, ResultEntity},
		{"first", func() (Node, error) { return NewFirst(b) }, ResultEntity},
		{"to array", func() (Node, error) { return NewToArray(b) }, ResultCollection},
		{"for each", func() (Node, error) {
			return NewForEach(b, func(Record) error { return nil })
		}, ResultCollection},
		{"some", func() (Node, error) { return NewSome(b, nil) }, ResultBoolean},
		{"every", func() (Node, error) { return NewEvery(b, Ne("Name", "x")) }, ResultBoolean},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.result, n.ResultType())
			assert.True(t, n.IsTerminated())
			assert.True(t, n.NodeType().IsFrame())
		})
	}
}

func TestConstructors_NilSource(t *testing.T) {
	_, err := NewFilter(nil, Eq("Name", "x"))
	assert.True(t, IsTypeMismatch(err))
	_, err = NewCount(nil)
	assert.True(t, IsTypeMismatch(err))
	_, err = NewTake(nil, 1)
	assert.True(t, IsTypeMismatch(err))
}

func TestConstructors_AfterProjection(t *testing.T) {
	b, _ := blogs(t)
	proj, err := NewProjection(b, "Id", "Name")
	require.NoError(t, err)
	assert.Nil(t, proj.Element())
	assert.Equal(t, "Blogs", proj.EntitySet().Name)

	_, err = NewFilter(proj, Eq("Name", "x"))
	assert.True(t, IsTypeMismatch(err))
	_, err = NewOrder(proj, "Name", false)
	assert.True(t, IsTypeMismatch(err))
	_, err = NewFirst(proj)
	assert.True(t, IsTypeMismatch(err))
	_, err = NewSingle(proj)
	assert.True(t, IsTypeMismatch(err))
	_, err = NewSome(proj, Eq("Name", "x"))
	assert.True(t, IsTypeMismatch(err))
	_, err = NewProjection(proj, "Name")
	assert.True(t, IsTypeMismatch(err))

	// Collection operators that do not need entities still work.
	_, err = NewCount(proj)
	assert.NoError(t, err)
	_, err = NewTake(proj, 2)
	assert.NoError(t, err)
	_, err = NewSome(proj, nil)
	assert.NoError(t, err)
	_, err = NewToArray(proj)
	assert.NoError(t, err)
}

func TestNewFilter_TypeChecks(t *testing.T) {
	_, posts := blogs(t)
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := []Predicate{
		Eq("Title", "hello"),
		Gt("CreatedAt", when),
		IsNull("CreatedAt"),
		Eq("Blog", 1),
		IsNull("Blog"),
		Eq("Blog.Name", "Comment"),
		Like("Blog.Name", "Com%"),
		AndOf(Ne("Title", "x"), OrOf(Eq("Body", "y"), NotOf(Le("Id", 3)))),
		Where("long title", func(r Record) bool { return true }),
		AndOf(Eq("Title", "x"), Where("f", func(Record) bool { return true })),
	}
	for i, p := range valid {
		_, err := NewFilter(posts, p)
		assert.NoError(t, err, "predicate %d", i)
	}

	invalid := []struct {
		name string
		pred Predicate
		msg  string
	}{
		{"nil", nil, "predicate is nil"},
		{"unknown field", Eq("Subject", "x"), `no field "Subject"`},
		{"int vs string", Eq("Title", 5), "cannot compare string field with int"},
		{"string vs datetime", Gt("CreatedAt", "2024"), "cannot compare datetime field with string"},
		{"reference key type", Eq("Blog", "one"), "cannot compare int field with string"},
		{"collection path", Eq("Blog.Posts", 1), "is a collection"},
		{"through scalar", Eq("Title.Length", 1), "not a navigation"},
		{"null ordering", &Compare{Path: "Title", Op: OpLt, Value: ir.IRNull{}}, "NULL can only be compared"},
		{"like on int", &Compare{Path: "Id", Op: OpLike, Value: ir.IRString("1%")}, "LIKE needs a string field"},
		{"bad operator", &Compare{Path: "Id", Op: "~", Value: ir.IRInt(1)}, "unknown operator"},
		{"float literal", Eq("Id", 1.5), "floats are not supported"},
		{"nested opaque", OrOf(Eq("Title", "x"), Where("f", func(Record) bool { return true })), "top-level AND"},
		{"negated opaque", NotOf(Where("f", func(Record) bool { return true })), "top-level AND"},
		{"nil func", Where("f", nil), "has no function"},
		{"any on reference", AnyOf("Blog", nil), "not a collection navigation"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(posts, tt.pred)
			require.Error(t, err)
			assert.True(t, IsTypeMismatch(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewFilter_AnyAll(t *testing.T) {
	b, _ := blogs(t)

	_, err := NewFilter(b, AnyOf("Posts", Eq("Title", "x")))
	assert.NoError(t, err)
	_, err = NewFilter(b, AnyOf("Posts", nil))
	assert.NoError(t, err)
	_, err = NewFilter(b, AllOf("Posts", NotNull("CreatedAt")))
	assert.NoError(t, err)

	_, err = NewFilter(b, AllOf("Posts", nil))
	assert.ErrorContains(t, err, "All requires a predicate")
	_, err = NewFilter(b, AnyOf("Posts", Eq("Name", "x")))
	assert.ErrorContains(t, err, `BlogPost has no field "Name"`)
	_, err = NewFilter(b, AnyOf("Posts", Where("f", func(Record) bool { return true })))
	assert.ErrorContains(t, err, "top-level AND")
}

func TestNewProjection(t *testing.T) {
	_, posts := blogs(t)

	p, err := NewProjection(posts, "Title", "Blog.Name")
	require.NoError(t, err)
	paths := p.Paths()
	require.Len(t, paths, 2)
	assert.True(t, paths[0].IsLocal())
	assert.False(t, paths[1].IsLocal())
	assert.Equal(t, "Blog", paths[1].Via[0].Name)

	_, err = NewProjection(posts)
	assert.ErrorContains(t, err, "no paths")
	_, err = NewProjection(posts, "Title", "Title")
	assert.ErrorContains(t, err, "projected twice")

	opaque, err := NewFilter(posts, Where("f", func(Record) bool { return true }))
	require.NoError(t, err)
	_, err = NewProjection(opaque, "Title")
	assert.ErrorContains(t, err, "after an opaque predicate")
}

func TestSkipTake(t *testing.T) {
	b, _ := blogs(t)

	s, err := NewSkip(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.N())
	tk, err := NewTake(s, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, tk.N())
	assert.Equal(t, "Blog", tk.Element().Name)

	_, err = NewSkip(b, -1)
	assert.True(t, IsTypeMismatch(err))
	_, err = NewTake(b, -1)
	assert.True(t, IsTypeMismatch(err))
}

func TestNewForEach_NilCallback(t *testing.T) {
	b, _ := blogs(t)
	_, err := NewForEach(b, nil)
	assert.True(t, IsTypeMismatch(err))
}

func TestChain(t *testing.T) {
	b, _ := blogs(t)
	f, err := NewFilter(b, Eq("Name", "x"))
	require.NoError(t, err)
	o, err := NewOrder(f, "Name", true)
	require.NoError(t, err)
	c, err := NewCount(o)
	require.NoError(t, err)

	var types []NodeType
	for _, n := range Chain(c) {
		types = append(types, n.NodeType())
	}
	assert.Equal(t, []NodeType{NodeEntitySet, NodeFilter, NodeOrderBy, NodeCount}, types)
	assert.Equal(t, "EntitySet,Filter,OrderBy,Count",
		types[0].String()+","+types[1].String()+","+types[2].String()+","+types[3].String())
}

func TestSplitOpaque(t *testing.T) {
	f1 := Where("a", func(Record) bool { return true })
	f2 := Where("b", func(Record) bool { return true })
	cmp := Eq("Name", "x")

	rest, funcs := SplitOpaque(AndOf(cmp, f1, AndOf(f2)))
	assert.Same(t, cmp, rest)
	assert.Equal(t, []*Func{f1, f2}, funcs)

	rest, funcs = SplitOpaque(f1)
	assert.Nil(t, rest)
	assert.Len(t, funcs, 1)

	plain := AndOf(cmp, Eq("Id", 1))
	rest, funcs = SplitOpaque(plain)
	assert.Same(t, plain, rest)
	assert.Empty(t, funcs)
}

func TestValues(t *testing.T) {
	v := Values{"Name": ir.IRString("x")}
	assert.Equal(t, ir.IRString("x"), v.Value("Name"))
	assert.Equal(t, ir.IRNull{}, v.Value("Missing"))
}
