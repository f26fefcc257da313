package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// Result column names of scalar and in-memory plans.
const (
	CountColumn  = "count"
	ResultColumn = "result"
	MatchColumn  = "__match"
)

// Shape describes the rows a plan returns.
type Shape int

const (
	// ShapeEntities returns one row per entity, one column per stored field.
	ShapeEntities Shape = iota

	// ShapeRecords returns one row per projected record.
	ShapeRecords

	// ShapeScalar returns a single row with CountColumn or ResultColumn.
	ShapeScalar
)

// Column is one result column of a plan.
type Column struct {
	Name  string
	Field *schema.Field

	// Path is the projected path for ShapeRecords plans.
	Path string
}

// DataType returns the type of the column's values.
func (c Column) DataType() schema.DataType {
	if c.Field == nil {
		return schema.TypeInt
	}
	if c.Field.Kind == schema.KindReference {
		return c.Field.Target().Key().DataType
	}
	return c.Field.DataType
}

// Plan is a lowered query: one SELECT plus what the executor must finish
// in memory.
type Plan struct {
	SQL    string
	Params []any

	// Frame is the terminal operator; NodeToArray when the tree ends in a
	// source node.
	Frame   expr.NodeType
	Shape   Shape
	Element *schema.Entity
	Columns []Column

	// Residual holds opaque Filter predicates to apply to the fetched rows,
	// in chain order. FrameResidual holds the opaque part of a Some/Every
	// predicate. When Match is set each row carries MatchColumn after
	// Columns: the lowerable part of the Some/Every predicate.
	Residual      []*expr.Func
	FrameResidual []*expr.Func
	Match         bool

	// Offset and Limit are applied after Residual. Limit is -1 when
	// unlimited.
	Offset int
	Limit  int
}

// InMemory reports whether the executor must finish the frame in memory.
func (p *Plan) InMemory() bool {
	return len(p.Residual) > 0 || len(p.FrameResidual) > 0 || p.Match
}

func (p *Plan) clone() *Plan {
	c := *p
	c.Params = append([]any(nil), p.Params...)
	c.Columns = append([]Column(nil), p.Columns...)
	c.Residual = append([]*expr.Func(nil), p.Residual...)
	c.FrameResidual = append([]*expr.Func(nil), p.FrameResidual...)
	return &c
}

// CompileQuery lowers a tree to a Plan.
//
// MANDATORY: every row-returning statement is ordered, key last.
// MANDATORY: all values are parameterized, never interpolated.
func (c *Compiler) CompileQuery(n expr.Node) (*Plan, error) {
	if n == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}

	fp, cacheable := expr.Fingerprint(n)
	if cacheable {
		if p, ok := c.cached(fp); ok {
			return p, nil
		}
	}

	l := &lowering{c: c, limit: -1}
	p, err := l.lower(n)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.store(fp, p)
	}
	return p, nil
}

// scope is a FROM item predicates are compiled against.
type scope struct {
	alias     string
	element   *schema.Entity
	joins     []string
	joinAlias map[string]string
}

type orderTerm struct {
	sql    string
	desc   bool
	binary bool
}

// stage is one SELECT level. Wrapping a stage turns it into the derived
// table of the next.
type stage struct {
	scope
	from       string
	fromParams []any
	where      []string
	params     []any
	order      []orderTerm
	offset     int
	limit      int
	projection []expr.Path
}

func (s *stage) paged() bool { return s.offset > 0 || s.limit >= 0 }

type lowering struct {
	c *Compiler

	tables, joins, subs int

	residual []*expr.Func
	memPaged bool
	offset   int
	limit    int
}

func (l *lowering) lower(n expr.Node) (*Plan, error) {
	chain := expr.Chain(n)
	root, ok := chain[0].(*expr.EntitySetExpression)
	if !ok {
		return nil, fmt.Errorf("chain does not start at an entity set: %T", chain[0])
	}

	st, err := l.newStage(root.Element())
	if err != nil {
		return nil, err
	}

	var frame expr.Node
	for _, node := range chain[1:] {
		switch x := node.(type) {
		case *expr.FilterExpression:
			st, err = l.filter(st, x.Predicate())
		case *expr.OrderExpression:
			st, err = l.orderBy(st, x)
		case *expr.SkipExpression:
			if len(l.residual) > 0 {
				l.memPaged = true
				l.offset, l.limit = skip(l.offset, l.limit, x.N())
			} else {
				st.offset, st.limit = skip(st.offset, st.limit, x.N())
			}
		case *expr.TakeExpression:
			if len(l.residual) > 0 {
				l.memPaged = true
				l.offset, l.limit = take(l.offset, l.limit, x.N())
			} else {
				st.offset, st.limit = take(st.offset, st.limit, x.N())
			}
		case *expr.ProjectionExpression:
			st.projection = x.Paths()
		default:
			frame = node
		}
		if err != nil {
			return nil, err
		}
	}
	return l.finish(st, frame)
}

func skip(offset, limit, n int) (int, int) {
	offset += n
	if limit >= 0 {
		limit = max(limit-n, 0)
	}
	return offset, limit
}

func take(offset, limit, n int) (int, int) {
	if limit < 0 || n < limit {
		limit = n
	}
	return offset, limit
}

func (l *lowering) newStage(e *schema.Entity) (*stage, error) {
	table, err := l.c.table(e)
	if err != nil {
		return nil, err
	}
	alias := l.nextTable()
	return &stage{
		scope: newScope(alias, e),
		from:  table + " AS " + alias,
		limit: -1,
	}, nil
}

func newScope(alias string, e *schema.Entity) scope {
	return scope{alias: alias, element: e, joinAlias: make(map[string]string)}
}

func (l *lowering) nextTable() string {
	alias := fmt.Sprintf("t%d", l.tables)
	l.tables++
	return alias
}

// wrap turns st into the derived table of a new stage. Explicit order
// terms are carried through as __oN columns.
func (l *lowering) wrap(st *stage) *stage {
	list := l.entityList(st)
	for i, t := range st.order {
		list = append(list, fmt.Sprintf(`%s AS "__o%d"`, t.sql, i))
	}
	inner, params := l.rowsSQL(st, list, nil, true)

	alias := l.nextTable()
	next := &stage{
		scope:      newScope(alias, st.element),
		from:       "(" + inner + ") AS " + alias,
		fromParams: params,
		limit:      -1,
	}
	for i, t := range st.order {
		next.order = append(next.order, orderTerm{
			sql:    fmt.Sprintf(`%s."__o%d"`, alias, i),
			desc:   t.desc,
			binary: t.binary,
		})
	}
	return next
}

func (l *lowering) filter(st *stage, pred expr.Predicate) (*stage, error) {
	if l.memPaged {
		return nil, &LoweringError{Node: expr.NodeFilter, Message: "cannot filter after paging that follows an opaque predicate"}
	}
	rest, funcs := expr.SplitOpaque(pred)
	if rest != nil {
		if st.paged() {
			st = l.wrap(st)
		}
		for _, p := range conjuncts(rest) {
			sql, params, err := l.predicate(&st.scope, p)
			if err != nil {
				return nil, fmt.Errorf("compile filter: %w", err)
			}
			st.where = append(st.where, sql)
			st.params = append(st.params, params...)
		}
	}
	l.residual = append(l.residual, funcs...)
	return st, nil
}

func (l *lowering) orderBy(st *stage, o *expr.OrderExpression) (*stage, error) {
	if l.memPaged {
		return nil, &LoweringError{Node: expr.NodeOrderBy, Message: "cannot order after paging that follows an opaque predicate"}
	}
	if st.paged() {
		st = l.wrap(st)
	}
	col, err := l.columnRef(&st.scope, o.Path())
	if err != nil {
		return nil, err
	}
	st.order = append(st.order, orderTerm{sql: col, desc: o.Descending(), binary: isText(o.Path().DataType())})
	return st, nil
}

func conjuncts(p expr.Predicate) []expr.Predicate {
	and, ok := p.(*expr.And)
	if !ok {
		return []expr.Predicate{p}
	}
	var out []expr.Predicate
	for _, sub := range and.Predicates {
		out = append(out, conjuncts(sub)...)
	}
	return out
}

func isText(dt schema.DataType) bool {
	return dt == schema.TypeString || dt == schema.TypeGUID
}

// finish lowers the frame operator and assembles the statement.
func (l *lowering) finish(st *stage, frame expr.Node) (*Plan, error) {
	plan := &Plan{
		Frame:   expr.NodeToArray,
		Shape:   ShapeEntities,
		Element: st.element,
		Offset:  l.offset,
		Limit:   l.limit,
	}
	var framePred expr.Predicate
	if frame != nil {
		plan.Frame = frame.NodeType()
		switch x := frame.(type) {
		case *expr.SomeExpression:
			framePred = x.Predicate()
		case *expr.EveryExpression:
			framePred = x.Predicate()
		}
	}

	var predRest expr.Predicate
	var predFuncs []*expr.Func
	if framePred != nil {
		predRest, predFuncs = expr.SplitOpaque(framePred)
	}

	if len(l.residual) > 0 || len(predFuncs) > 0 {
		return l.finishInMemory(st, plan, predRest, predFuncs)
	}

	switch plan.Frame {
	case expr.NodeCount:
		plan.Shape = ShapeScalar
		plan.Columns = []Column{{Name: CountColumn}}
		if st.paged() {
			inner, params := l.rowsSQL(st, []string{l.keyColumn(st)}, nil, true)
			plan.SQL = `SELECT COUNT(*) AS "count" FROM (` + inner + `) AS c`
			plan.Params = params
		} else {
			plan.SQL, plan.Params = l.rowsSQL(st, []string{`COUNT(*) AS "count"`}, nil, false)
		}
		return plan, nil

	case expr.NodeSome, expr.NodeEvery:
		plan.Shape = ShapeScalar
		plan.Columns = []Column{{Name: ResultColumn}}
		every := plan.Frame == expr.NodeEvery
		if every && framePred == nil {
			plan.SQL = `SELECT 1 AS "result"`
			return plan, nil
		}
		if framePred != nil {
			if st.paged() {
				st = l.wrap(st)
			}
			sql, params, err := l.conjunction(&st.scope, predRest)
			if err != nil {
				return nil, fmt.Errorf("compile %s predicate: %w", plan.Frame, err)
			}
			if every {
				sql = "(" + sql + ") IS NOT TRUE"
			}
			st.where = append(st.where, sql)
			st.params = append(st.params, params...)
		}
		inner, params := l.rowsSQL(st, []string{"1"}, nil, false)
		if every {
			plan.SQL = "SELECT NOT EXISTS (" + inner + `) AS "result"`
		} else {
			plan.SQL = "SELECT EXISTS (" + inner + `) AS "result"`
		}
		plan.Params = params
		return plan, nil

	case expr.NodeFirst:
		st.offset, st.limit = take(st.offset, st.limit, 1)
	case expr.NodeSingle:
		// Two rows are enough to tell "one" from "more than one".
		st.offset, st.limit = take(st.offset, st.limit, 2)
	}

	var list []string
	if st.projection != nil {
		plan.Shape = ShapeRecords
		plan.Element = nil
		for _, p := range st.projection {
			col, err := l.columnRef(&st.scope, p)
			if err != nil {
				return nil, err
			}
			list = append(list, col+" AS "+quote(p.Raw))
			plan.Columns = append(plan.Columns, Column{Name: p.Raw, Field: p.Field, Path: p.Raw})
		}
	} else {
		list = l.entityList(st)
		plan.Columns = entityColumns(st.element)
	}
	plan.SQL, plan.Params = l.rowsSQL(st, list, nil, true)
	return plan, nil
}

// finishInMemory fetches entity rows; the executor applies the residual,
// the in-memory paging and the frame.
func (l *lowering) finishInMemory(st *stage, plan *Plan, predRest expr.Predicate, predFuncs []*expr.Func) (*Plan, error) {
	plan.Residual = l.residual
	plan.FrameResidual = predFuncs
	plan.Columns = entityColumns(st.element)

	list := l.entityList(st)
	var listParams []any
	if predRest != nil {
		sql, params, err := l.conjunction(&st.scope, predRest)
		if err != nil {
			return nil, fmt.Errorf("compile %s predicate: %w", plan.Frame, err)
		}
		list = append(list, "("+sql+`) AS "`+MatchColumn+`"`)
		listParams = params
		plan.Match = true
	}
	plan.SQL, plan.Params = l.rowsSQL(st, list, listParams, true)
	return plan, nil
}

// SelectByKeys lowers a lookup of the rows of e whose key is one of keys,
// ordered by key.
func (c *Compiler) SelectByKeys(e *schema.Entity, keys []any) (*Plan, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("select %s by key: no keys", e.Name)
	}
	l := &lowering{c: c, limit: -1}
	st, err := l.newStage(e)
	if err != nil {
		return nil, err
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	st.where = append(st.where, l.keyColumn(st)+" IN ("+marks+")")
	st.params = append(st.params, keys...)

	plan := &Plan{
		Frame:   expr.NodeToArray,
		Shape:   ShapeEntities,
		Element: e,
		Columns: entityColumns(e),
		Limit:   -1,
	}
	plan.SQL, plan.Params = l.rowsSQL(st, l.entityList(st), nil, true)
	return plan, nil
}

func entityColumns(e *schema.Entity) []Column {
	var cols []Column
	for _, f := range e.Columns() {
		cols = append(cols, Column{Name: f.Column, Field: f})
	}
	return cols
}

func (l *lowering) entityList(st *stage) []string {
	var list []string
	for _, f := range st.element.Columns() {
		list = append(list, st.alias+"."+quote(f.Column))
	}
	return list
}

func (l *lowering) keyColumn(st *stage) string {
	return st.alias + "." + quote(st.element.Key().Column)
}

// rowsSQL assembles SELECT list FROM ... WHERE ... ORDER BY ... LIMIT.
// Parameters follow text order: list, FROM (derived tables), WHERE.
func (l *lowering) rowsSQL(st *stage, list []string, listParams []any, ordered bool) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(list, ", "))
	b.WriteString(" FROM ")
	b.WriteString(st.from)
	for _, j := range st.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(st.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(st.where, " AND "))
	}
	if ordered || st.paged() {
		b.WriteString(" ORDER BY ")
		b.WriteString(l.orderSQL(st))
	}
	if st.limit >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", st.limit)
	}
	if st.offset > 0 {
		if st.limit < 0 {
			b.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&b, " OFFSET %d", st.offset)
	}

	params := make([]any, 0, len(listParams)+len(st.fromParams)+len(st.params))
	params = append(params, listParams...)
	params = append(params, st.fromParams...)
	params = append(params, st.params...)
	return b.String(), params
}

// orderSQL renders the explicit order terms followed by the key as the
// deterministic tiebreaker. Text terms use COLLATE BINARY.
func (l *lowering) orderSQL(st *stage) string {
	key := l.keyColumn(st)
	terms := append([]orderTerm(nil), st.order...)
	tiebreak := true
	for _, t := range terms {
		if t.sql == key {
			tiebreak = false
		}
	}
	if tiebreak {
		terms = append(terms, orderTerm{sql: key, binary: isText(st.element.Key().DataType)})
	}

	parts := make([]string, len(terms))
	for i, t := range terms {
		s := t.sql
		if t.binary {
			s += " COLLATE BINARY"
		}
		if t.desc {
			s += " DESC"
		} else {
			s += " ASC"
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}

// columnRef returns the qualified column for path, adding LEFT JOINs for
// each reference navigation it traverses.
func (l *lowering) columnRef(sc *scope, p expr.Path) (string, error) {
	alias := sc.alias
	key := ""
	for _, nav := range p.Via {
		key += "/" + nav.Name
		a, ok := sc.joinAlias[key]
		if !ok {
			target := nav.Target()
			table, err := l.c.table(target)
			if err != nil {
				return "", err
			}
			l.joins++
			a = fmt.Sprintf("j%d", l.joins)
			sc.joins = append(sc.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				table, a, a, quote(target.Key().Column), alias, quote(nav.Column)))
			sc.joinAlias[key] = a
		}
		alias = a
	}
	return alias + "." + quote(p.Field.Column), nil
}

// conjunction compiles p with its top-level AND operands joined flat.
func (l *lowering) conjunction(sc *scope, p expr.Predicate) (string, []any, error) {
	var parts []string
	var params []any
	for _, c := range conjuncts(p) {
		sql, ps, err := l.predicate(sc, c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// predicate compiles p to an SQL boolean expression.
// CRITICAL: values are NEVER interpolated; always ? placeholders.
func (l *lowering) predicate(sc *scope, p expr.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case *expr.Compare:
		return l.compare(sc, pred)
	case *expr.And:
		return l.junction(sc, pred.Predicates, " AND ", "1 = 1")
	case *expr.Or:
		return l.junction(sc, pred.Predicates, " OR ", "1 = 0")
	case *expr.Not:
		sql, params, err := l.predicate(sc, pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case *expr.Any:
		return l.exists(sc, pred.Nav, pred.Where, false)
	case *expr.All:
		return l.exists(sc, pred.Nav, pred.Where, true)
	case *expr.Func:
		return "", nil, fmt.Errorf("opaque predicate %q cannot be lowered", pred.Name)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (l *lowering) junction(sc *scope, ps []expr.Predicate, sep, empty string) (string, []any, error) {
	if len(ps) == 0 {
		return empty, nil, nil
	}
	var parts []string
	var params []any
	for _, sub := range ps {
		sql, p, err := l.predicate(sc, sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

func (l *lowering) compare(sc *scope, c *expr.Compare) (string, []any, error) {
	path, err := expr.ResolvePath(sc.element, c.Path)
	if err != nil {
		return "", nil, err
	}
	col, err := l.columnRef(sc, path)
	if err != nil {
		return "", nil, err
	}

	if ir.IsNull(c.Value) {
		if c.Op == expr.OpEq {
			return col + " IS NULL", nil, nil
		}
		return col + " IS NOT NULL", nil, nil
	}

	param, err := ir.ToParam(c.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("%s %s ?", col, c.Op), []any{param}, nil
}

// exists compiles Any / All over a collection navigation as a correlated
// subquery on the child's foreign-key column.
func (l *lowering) exists(sc *scope, nav string, where expr.Predicate, all bool) (string, []any, error) {
	f, ok := sc.element.Field(nav)
	if !ok || f.Kind != schema.KindCollection || f.Inverse() == nil {
		return "", nil, fmt.Errorf("%s.%s is not a collection navigation", sc.element.Name, nav)
	}
	target := f.Target()
	table, err := l.c.table(target)
	if err != nil {
		return "", nil, err
	}

	l.subs++
	sub := newScope(fmt.Sprintf("s%d", l.subs), target)
	conds := []string{fmt.Sprintf("%s.%s = %s.%s",
		sub.alias, quote(f.Inverse().Column), sc.alias, quote(sc.element.Key().Column))}

	var params []any
	if where != nil {
		sql, ps, err := l.conjunction(&sub, where)
		if err != nil {
			return "", nil, err
		}
		if all {
			sql = "(" + sql + ") IS NOT TRUE"
		}
		conds = append(conds, sql)
		params = ps
	}

	var b strings.Builder
	if all {
		b.WriteString("NOT ")
	}
	fmt.Fprintf(&b, "EXISTS (SELECT 1 FROM %s AS %s", table, sub.alias)
	for _, j := range sub.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(")")
	return b.String(), params, nil
}
