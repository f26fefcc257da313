package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Text(t *testing.T) {
	out, err := run(t, NewValidateCommand(newRootOpts("text")), writeSchema(t))
	require.NoError(t, err)

	assert.Contains(t, out, "\u2713 Schema valid: 2 entities, 1 contexts")
	assert.Contains(t, out, "BlogContext")
	assert.Contains(t, out, "Blogs (Blog) key=Id columns=Id,Name")
	assert.Contains(t, out, "BlogPosts (BlogPost) key=Id columns=Id,Title,Body,CreatedAt,Blog__Id references=Blog->Blog")
}

func TestValidate_JSON(t *testing.T) {
	out, err := run(t, NewValidateCommand(newRootOpts("json")), writeSchema(t))
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   ValidationResult
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Contexts, 1)
	require.Len(t, resp.Data.Contexts[0].Sets, 2)
	assert.Equal(t, []string{"Id", "Title", "Body", "CreatedAt", "Blog__Id"}, resp.Data.Contexts[0].Sets[1].Columns)
	assert.Len(t, resp.Data.Contexts[0].Fingerprint, 64)
}

func TestValidate_UnknownContext(t *testing.T) {
	opts := newRootOpts("text")
	opts.Context = "ShopContext"

	out, err := run(t, NewValidateCommand(opts), writeSchema(t))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `context "ShopContext" is not declared`)
}

func TestValidate_NonExistentPath(t *testing.T) {
	out, err := run(t, NewValidateCommand(newRootOpts("text")), "/nonexistent/schema")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestValidate_MetadataError(t *testing.T) {
	// BlogPost is never given an entity set, so Blog.Posts cannot resolve.
	path := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
entity: Blog: {
	Id: {dataType: "int", key: true, computed: true}
	Posts: {dataType: "Array", elementType: "BlogPost"}
}
entity: BlogPost: {
	Id: {dataType: "int", key: true, computed: true}
}
context: BlogContext: {
	Blogs: {elementType: "Blog"}
}
`), 0o644))

	out, err := run(t, NewValidateCommand(newRootOpts("json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMetadata, resp.Error.Code)
}

func TestValidate_SyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("entity: Blog: {\n"), 0o644))

	out, err := run(t, NewValidateCommand(newRootOpts("text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
