package sqlgen

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/entql/internal/ir"
	"github.com/roach88/entql/internal/schema"
)

// CreationMode selects how CreateTables treats existing tables.
type CreationMode int

const (
	// IfNotExists keeps existing tables and their rows.
	IfNotExists CreationMode = iota

	// DropAllExisting drops every table of the model before creating it.
	DropAllExisting
)

func (m CreationMode) String() string {
	switch m {
	case IfNotExists:
		return "if-not-exists"
	case DropAllExisting:
		return "drop-all-existing"
	}
	return fmt.Sprintf("CreationMode(%d)", int(m))
}

// ParseCreationMode parses the names printed by CreationMode.String.
func ParseCreationMode(s string) (CreationMode, error) {
	switch s {
	case "", "if-not-exists":
		return IfNotExists, nil
	case "drop-all-existing":
		return DropAllExisting, nil
	}
	return 0, fmt.Errorf("unknown creation mode %q (want if-not-exists or drop-all-existing)", s)
}

// ColumnType returns the SQLite column type storing dt. Datetimes are
// fixed-width UTC text (ir.TimeLayout), so text order is time order.
func ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.TypeInt, schema.TypeBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// CreateTables returns the DDL for every entity set of model, in
// declaration order. With DropAllExisting the DROP statements come first,
// in reverse order.
func CreateTables(model *schema.Model, mode CreationMode) []string {
	sets := model.Sets()
	var stmts []string
	if mode == DropAllExisting {
		for _, set := range slices.Backward(sets) {
			stmts = append(stmts, "DROP TABLE IF EXISTS "+quote(set.Name))
		}
	}

	create := "CREATE TABLE "
	if mode == IfNotExists {
		create = "CREATE TABLE IF NOT EXISTS "
	}
	for _, set := range sets {
		var cols []string
		for _, f := range set.Element().Columns() {
			cols = append(cols, "  "+columnDef(model, f))
		}
		stmts = append(stmts, create+quote(set.Name)+" (\n"+strings.Join(cols, ",\n")+"\n)")
	}
	return stmts
}

func columnDef(model *schema.Model, f *schema.Field) string {
	if f.Kind == schema.KindReference {
		target := f.Target()
		parent, _ := model.SetFor(target)
		return fmt.Sprintf("%s %s REFERENCES %s (%s) ON DELETE SET NULL",
			quote(f.Column), ColumnType(target.Key().DataType), quote(parent.Name), quote(target.Key().Column))
	}

	def := quote(f.Column) + " " + ColumnType(f.DataType)
	switch {
	case f.Key && f.Computed:
		def += " PRIMARY KEY AUTOINCREMENT"
	case f.Key:
		def += " PRIMARY KEY NOT NULL"
	case f.Required:
		def += " NOT NULL"
	}
	return def
}

// DecodeValue converts a value scanned from a column of type dt.
func DecodeValue(dt schema.DataType, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch dt {
	case schema.TypeInt:
		if n, ok := raw.(int64); ok {
			return ir.IRInt(n), nil
		}
	case schema.TypeBool:
		switch v := raw.(type) {
		case int64:
			return ir.IRBool(v != 0), nil
		case bool:
			return ir.IRBool(v), nil
		}
	case schema.TypeString, schema.TypeGUID:
		if s, ok := raw.(string); ok {
			return ir.IRString(s), nil
		}
	case schema.TypeDateTime:
		switch v := raw.(type) {
		case string:
			return ir.ParseTime(v)
		case time.Time:
			return ir.NewIRTime(v), nil
		}
	}
	return nil, fmt.Errorf("cannot decode %T as %s", raw, dt)
}
