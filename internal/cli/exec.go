package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/entql/internal/store"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Database string
}

// ExecResult is the payload of a statement that returns no rows.
type ExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

func (r ExecResult) String() string {
	return fmt.Sprintf("%d row(s) affected, last insert id %d", r.RowsAffected, r.LastInsertID)
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <sql> [params...]",
		Short: "Run one SQL statement through the storage collaborator",
		Long: `Run one SQL statement in its own transaction, with the same pragmas,
busy timeout and metrics the query path uses. Parameters bind to ? in
order and are passed as text.

Example:
  entql exec --db blog.db 'SELECT "Name" FROM "Blogs" WHERE "Id" = ?' 1
  entql exec --db blog.db 'DELETE FROM "Posts"'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config)")

	return cmd
}

func runExec(opts *ExecOptions, query string, rawParams []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, reg, err := openDB(opts.RootOptions, opts.Database)
	if err != nil {
		return formatter.Fail(failureCode(err), "failed to open database", err)
	}
	defer func() {
		logMetrics(reg)
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	params := make([]any, len(rawParams))
	for i, p := range rawParams {
		params[i] = p
	}

	var res *store.Result
	err = db.Transaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var execErr error
		res, execErr = tx.ExecuteSQL(ctx, query, params...)
		return execErr
	})
	if err != nil {
		return formatter.Fail(ExitFailure, "statement failed", err)
	}
	formatter.VerboseLog("Executed against %s", db.Path())

	if res.Columns == nil {
		return formatter.Success(ExecResult{RowsAffected: res.RowsAffected, LastInsertID: res.LastInsertID})
	}
	table := Table{Columns: res.Columns, Rows: [][]any{}}
	for _, row := range res.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			cells[i] = v
		}
		table.Rows = append(table.Rows, cells)
	}
	return formatter.Success(table)
}
