package sqlgen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/testutil"
)

type blogFixture struct {
	model *schema.Model
	c     *Compiler
	blogs *expr.EntitySetExpression
	posts *expr.EntitySetExpression
}

func newBlogFixture(t *testing.T) *blogFixture {
	t.Helper()
	m := testutil.BlogModel(t)
	b, err := expr.NewEntitySet(testutil.Set(t, m, "Blogs"))
	require.NoError(t, err)
	p, err := expr.NewEntitySet(testutil.Set(t, m, "BlogPosts"))
	require.NoError(t, err)
	return &blogFixture{model: m, c: NewCompiler(m), blogs: b, posts: p}
}

func (f *blogFixture) compile(t *testing.T, set *expr.EntitySetExpression, calls ...expr.Call) *Plan {
	t.Helper()
	n, err := expr.Build(set, calls...)
	require.NoError(t, err)
	p, err := f.c.CompileQuery(n)
	require.NoError(t, err)
	return p
}

// render formats a statement and its parameters for golden comparison.
func render(sql string, params []any) []byte {
	var b strings.Builder
	b.WriteString(sql)
	b.WriteString("\n")
	for i, p := range params {
		fmt.Fprintf(&b, "-- $%d = %#v\n", i+1, p)
	}
	return []byte(b.String())
}

func assertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
