package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// parseCondition parses "<path><op><value>" against e. Operators are
// = != < <= > >= and ~ (LIKE). The value is converted to the type of the
// path; the literal null is accepted by = and != only.
func parseCondition(e *schema.Entity, s string) (expr.Predicate, error) {
	i := strings.IndexAny(s, "=!<>~")
	if i <= 0 {
		return nil, fmt.Errorf("condition %q: want <path><op><value>", s)
	}
	op := s[i : i+1]
	if i+1 < len(s) && s[i+1] == '=' && strings.Contains("!<>", op) {
		op = s[i : i+2]
	}
	if op == "!" {
		return nil, fmt.Errorf("condition %q: unknown operator !", s)
	}
	path := strings.TrimSpace(s[:i])
	raw := s[i+len(op):]

	p, err := expr.ResolvePath(e, path)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", s, err)
	}

	if raw == "null" {
		switch op {
		case "=":
			return expr.IsNull(path), nil
		case "!=":
			return expr.NotNull(path), nil
		}
		return nil, fmt.Errorf("condition %q: null only compares with = or !=", s)
	}
	if op == "~" {
		return expr.Like(path, raw), nil
	}

	v, err := parseValue(p.DataType(), raw)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", s, err)
	}
	switch op {
	case "=":
		return expr.Eq(path, v), nil
	case "!=":
		return expr.Ne(path, v), nil
	case "<":
		return expr.Lt(path, v), nil
	case "<=":
		return expr.Le(path, v), nil
	case ">":
		return expr.Gt(path, v), nil
	default:
		return expr.Ge(path, v), nil
	}
}

// parseNavCondition parses "<collection>[:<condition>]" for --any and
// --all. The condition is resolved against the collection's element.
func parseNavCondition(e *schema.Entity, s string) (nav string, where expr.Predicate, err error) {
	nav, cond, hasCond := strings.Cut(s, ":")
	f, ok := e.Field(nav)
	if !ok || f.Kind != schema.KindCollection {
		return "", nil, fmt.Errorf("%s has no collection %q", e.Name, nav)
	}
	if !hasCond {
		return nav, nil, nil
	}
	where, err = parseCondition(f.Target(), cond)
	if err != nil {
		return "", nil, err
	}
	return nav, where, nil
}

func parseValue(dt schema.DataType, raw string) (ir.IRValue, error) {
	switch dt {
	case schema.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", raw)
		}
		return ir.IRInt(n), nil
	case schema.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", raw)
		}
		return ir.IRBool(b), nil
	case schema.TypeDateTime:
		return ir.ParseTime(raw)
	default:
		return ir.IRString(raw), nil
	}
}

// plain converts an IR value for display and JSON output.
func plain(v ir.IRValue) any {
	p, err := ir.ToParam(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return p
}
