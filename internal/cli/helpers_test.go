package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/config"
	"github.com/roach88/entql/internal/orm"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/testutil"
)

// writeSchema writes the blog schema to a temp dir and returns its path.
func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blog.cue")
	require.NoError(t, os.WriteFile(path, []byte(testutil.BlogCUE), 0o644))
	return path
}

// seedBlogDB creates a database holding three blogs: Comment (posts Hello
// and World), Cooking (post Soup) and Travel (no posts).
func seedBlogDB(t *testing.T, schemaPath string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "blog.db")

	model, err := loadModel(schemaPath, "")
	require.NoError(t, err)
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	c, err := orm.Open(ctx, db, model)
	require.NoError(t, err)
	blogs, posts := c.MustSet("Blogs"), c.MustSet("BlogPosts")

	seed := map[string][]string{
		"Comment": {"Hello", "World"},
		"Cooking": {"Soup"},
		"Travel":  nil,
	}
	for _, name := range []string{"Comment", "Cooking", "Travel"} {
		b := blogs.New().MustSet("Name", name)
		for _, title := range seed[name] {
			p := posts.New().MustSet("Title", title)
			require.NoError(t, p.SetRef("Blog", b))
		}
		require.NoError(t, blogs.Add(b))
	}
	require.NoError(t, c.SaveChanges(ctx))
	return dbPath
}

func newRootOpts(format string) *RootOptions {
	return &RootOptions{Format: format, Config: config.Default()}
}

// run executes cmd with args and returns stdout and the command error.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
