package cli

import (
	"fmt"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/roach88/entql/internal/sqlgen"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Mode   string
	Output string
}

// DDLResult is the JSON payload of the ddl command.
type DDLResult struct {
	Context    string   `json:"context"`
	Mode       string   `json:"mode"`
	Statements []string `json:"statements,omitempty"`
	Output     string   `json:"output,omitempty"`
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl [schema]",
		Short: "Print the CREATE TABLE statements of a context",
		Long: `Print the SQLite DDL for every entity set of a context, in declaration
order. Reference navigations become foreign-key columns named
<Parent>__<Key> unless the schema overrides the column.

Example:
  entql ddl ./schema --context BlogContext
  entql ddl ./schema --mode drop-all-existing --output schema.sql`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "creation mode (if-not-exists|drop-all-existing); defaults to the config")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the DDL to this file instead of stdout")

	return cmd
}

func runDDL(opts *DDLOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	mode := opts.Config.CreationMode()
	if opts.Mode != "" {
		parsed, err := sqlgen.ParseCreationMode(opts.Mode)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --mode", err)
		}
		mode = parsed
	}

	path, err := opts.schemaPath(args)
	if err != nil {
		return err
	}
	model, err := loadModel(path, opts.contextName())
	if err != nil {
		return formatter.Fail(failureCode(err), "failed to load schema", err)
	}

	stmts := sqlgen.CreateTables(model, mode)
	script := renderScript(stmts)
	result := DDLResult{Context: model.Name, Mode: mode.String()}

	if opts.Output != "" {
		if err := atomic.WriteFile(opts.Output, strings.NewReader(script)); err != nil {
			return formatter.FailWith(ExitCommandError, ErrCodeWriteFailed, "failed to write "+opts.Output, err, nil)
		}
		formatter.VerboseLog("Wrote %d statement(s) to %s", len(stmts), opts.Output)
		result.Output = opts.Output
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "Wrote %d statement(s) to %s\n", len(stmts), opts.Output)
		return nil
	}

	if opts.Format == "json" {
		result.Statements = stmts
		return formatter.Success(result)
	}
	_, err = fmt.Fprint(formatter.Writer, script)
	return err
}

// renderScript joins statements into an executable SQL script.
func renderScript(stmts []string) string {
	var b strings.Builder
	for i, s := range stmts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s)
		b.WriteString(";\n")
	}
	return b.String()
}
