package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/orm"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/tracker"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Set      string
	Where    []string
	Any      []string
	All      []string
	OrderBy  []string
	Select   []string
	Skip     int
	Take     int
	Count    bool
	First    bool
	Single   bool
	Explain  bool
}

// CountResult is the payload of a --count query.
type CountResult struct {
	Count int64 `json:"count"`
}

func (r CountResult) String() string { return fmt.Sprint(r.Count) }

// ExplainResult is the payload of an --explain query.
type ExplainResult struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

func (r ExplainResult) String() string {
	if len(r.Params) == 0 {
		return r.SQL
	}
	return fmt.Sprintf("%s\n-- params: %v", r.SQL, r.Params)
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [schema]",
		Short: "Query an entity set",
		Long: `Build a query expression over an entity set, lower it to SQL and run
it against the database.

Conditions are <path><op><value> with = != < <= > >= or ~ (LIKE). Paths
may follow reference navigations (Blog.Name). --any and --all take
<collection>[:<condition>]. Ordering paths prefixed with - sort
descending.

Example:
  entql query ./schema --db blog.db --set Blogs --where Name=Comment --count
  entql query ./schema --db blog.db --set Posts --where Blog.Name~C% --order-by -Id --take 5
  entql query ./schema --db blog.db --set Blogs --any Posts:Title=Hello --select Name`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config)")
	cmd.Flags().StringVar(&opts.Set, "set", "", "entity set to query (required)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter condition (repeatable, ANDed)")
	cmd.Flags().StringArrayVar(&opts.Any, "any", nil, "keep rows with a child matching <collection>[:<condition>]")
	cmd.Flags().StringArrayVar(&opts.All, "all", nil, "keep rows whose children all match <collection>:<condition>")
	cmd.Flags().StringArrayVar(&opts.OrderBy, "order-by", nil, "ordering path, - prefix for descending (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "project these paths")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&opts.Take, "take", -1, "maximum rows to return (-1 for all)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matching rows")
	cmd.Flags().BoolVar(&opts.First, "first", false, "print the first matching row")
	cmd.Flags().BoolVar(&opts.Single, "single", false, "print the only matching row")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the lowered SQL instead of running it")
	_ = cmd.MarkFlagRequired("set")
	cmd.MarkFlagsMutuallyExclusive("count", "first", "single")

	return cmd
}

func runQuery(opts *QueryOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	path, err := opts.schemaPath(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, opts.RootOptions, path, opts.Database)
	if err != nil {
		return formatter.Fail(failureCode(err), "failed to open context", err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	formatter.VerboseLog("%s", sess.model)

	set, err := sess.orm.Set(opts.Set)
	if err != nil {
		return formatter.Fail(ExitCommandError, "unknown entity set", err)
	}

	q, err := buildQuery(set, opts)
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid query", err)
	}

	if opts.Explain {
		return explain(formatter, sess.orm, q, opts)
	}

	result, err := execQuery(ctx, q, set.Element(), opts)
	if err != nil {
		return formatter.Fail(ExitFailure, "query failed", err)
	}
	return formatter.Success(result)
}

// buildQuery chains the flag-driven operators onto set's query in the
// order where, any, all, order-by, skip, take, select.
func buildQuery(set *orm.EntitySet, opts *QueryOptions) (*orm.Query, error) {
	e := set.Element()
	q := set.Query()

	var preds []expr.Predicate
	for _, w := range opts.Where {
		p, err := parseCondition(e, w)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	for _, a := range opts.Any {
		nav, where, err := parseNavCondition(e, a)
		if err != nil {
			return nil, err
		}
		preds = append(preds, expr.AnyOf(nav, where))
	}
	for _, a := range opts.All {
		nav, where, err := parseNavCondition(e, a)
		if err != nil {
			return nil, err
		}
		if where == nil {
			return nil, fmt.Errorf("--all %q needs a condition", a)
		}
		preds = append(preds, expr.AllOf(nav, where))
	}
	switch len(preds) {
	case 0:
	case 1:
		q = q.Where(preds[0])
	default:
		q = q.Where(expr.AndOf(preds...))
	}

	for _, o := range opts.OrderBy {
		if desc, ok := strings.CutPrefix(o, "-"); ok {
			q = q.OrderByDesc(desc)
		} else {
			q = q.OrderBy(o)
		}
	}
	if opts.Skip > 0 {
		q = q.Skip(opts.Skip)
	}
	if opts.Take >= 0 {
		q = q.Take(opts.Take)
	}
	if len(opts.Select) > 0 {
		if opts.First || opts.Single {
			return nil, errors.New("--select cannot be combined with --first or --single")
		}
		q = q.Select(opts.Select...)
	}
	return q, q.Err()
}

func execQuery(ctx context.Context, q *orm.Query, e *schema.Entity, opts *QueryOptions) (any, error) {
	switch {
	case opts.Count:
		n, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		return CountResult{Count: n}, nil
	case opts.First, opts.Single:
		var inst *tracker.Instance
		var err error
		if opts.First {
			inst, err = q.First(ctx)
		} else {
			inst, err = q.Single(ctx)
		}
		if err != nil {
			return nil, err
		}
		return instanceTable(e, []*tracker.Instance{inst}), nil
	case len(opts.Select) > 0:
		records, err := q.Records(ctx)
		if err != nil {
			return nil, err
		}
		table := Table{Columns: opts.Select, Rows: [][]any{}}
		for _, r := range records {
			row := make([]any, len(opts.Select))
			for i, p := range opts.Select {
				row[i] = plain(r.Value(p))
			}
			table.Rows = append(table.Rows, row)
		}
		return table, nil
	default:
		insts, err := q.ToArray(ctx)
		if err != nil {
			return nil, err
		}
		return instanceTable(e, insts), nil
	}
}

// instanceTable lays instances out one row each, with a column per stored
// field. Reference columns show the referenced key.
func instanceTable(e *schema.Entity, insts []*tracker.Instance) Table {
	cols := e.Columns()
	table := Table{Columns: make([]string, len(cols)), Rows: [][]any{}}
	for i, f := range cols {
		table.Columns[i] = f.Name
	}
	for _, inst := range insts {
		row := make([]any, len(cols))
		for i, f := range cols {
			row[i] = plain(inst.Value(f.Name))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func explain(formatter *OutputFormatter, c *orm.Context, q *orm.Query, opts *QueryOptions) error {
	src, err := q.Expression()
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid query", err)
	}

	var n expr.Node
	switch {
	case opts.Count:
		n, err = expr.NewCount(src)
	case opts.First:
		n, err = expr.NewFirst(src)
	case opts.Single:
		n, err = expr.NewSingle(src)
	default:
		n, err = expr.NewToArray(src)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, "invalid query", err)
	}

	plan, err := c.Compiler().CompileQuery(n)
	if err != nil {
		return formatter.Fail(ExitFailure, "query is not lowerable", err)
	}
	params := plan.Params
	if params == nil {
		params = []any{}
	}
	return formatter.Success(ExplainResult{SQL: plan.SQL, Params: params})
}
