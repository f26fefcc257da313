package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entql/internal/config"
	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/orm"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(CountResult{Count: 3})
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   CountResult
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(3), resp.Data.Count)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeQuery, "query rejected", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeQuery, resp.Error.Code)
	assert.Equal(t, "query rejected", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(CountResult{Count: 7}))
	assert.Equal(t, "7\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeLoadFailed, "schema invalid", map[string]string{"file": "blog.cue"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E003]: schema invalid")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := &orm.CardinalityError{Frame: expr.NodeSingle, Rows: 2}
	err := formatter.Fail(ExitFailure, "query failed", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, buf.String(), "Error [E009]: query failed: ")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loaded %s", "blog.cue")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Loaded blog.cue")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestTable_String(t *testing.T) {
	table := Table{
		Columns: []string{"Id", "Name"},
		Rows: [][]any{
			{int64(1), "Comment"},
			{int64(10), nil},
		},
	}
	assert.Equal(t, "Id  Name\n1   Comment\n10  NULL", table.String())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config", fmt.Errorf("%w x.yaml: bad", config.ErrConfigInvalid), ErrCodeConfig},
		{"metadata", &schema.MetadataError{Entity: "Blog", Message: "no key"}, ErrCodeMetadata},
		{"load", &schema.LoadError{Message: "syntax"}, ErrCodeLoadFailed},
		{"chain", &expr.ChainError{}, ErrCodeQuery},
		{"lowering", &sqlgen.LoweringError{}, ErrCodeQuery},
		{"empty entity", fmt.Errorf("save changes: %w", &sqlgen.EmptyEntityError{Entity: "Blog"}), ErrCodeEmptyEntity},
		{"cardinality", &orm.CardinalityError{Frame: expr.NodeFirst}, ErrCodeCardinality},
		{"storage", &store.StorageError{Op: "exec", Err: errors.New("locked")}, ErrCodeStorage},
		{"not found", fmt.Errorf("schema: %w", os.ErrNotExist), ErrCodeNotFound},
		{"other", errors.New("boom"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.False(t, Reported(WrapExitError(ExitFailure, "x", errors.New("y"))))
}
