package query

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
)

type op string

const (
	opEq      op = "="
	opNe      op = "<>"
	opGt      op = ">"
	opGte     op = ">="
	opLt      op = "<"
	opLte     op = "<="
	opIn      op = "IN"
	opIsNull  op = "IS NULL"
	opNotNull op = "IS NOT NULL"
)

// Cond is a single column predicate. Column may be the "pk" alias.
type Cond struct {
	Column string
	op     op
	values []any
}

func Eq(column string, v any) Cond  { return Cond{Column: column, op: opEq, values: []any{v}} }
func Ne(column string, v any) Cond  { return Cond{Column: column, op: opNe, values: []any{v}} }
func Gt(column string, v any) Cond  { return Cond{Column: column, op: opGt, values: []any{v}} }
func Gte(column string, v any) Cond { return Cond{Column: column, op: opGte, values: []any{v}} }
func Lt(column string, v any) Cond  { return Cond{Column: column, op: opLt, values: []any{v}} }
func Lte(column string, v any) Cond { return Cond{Column: column, op: opLte, values: []any{v}} }

// In matches any of values. An empty list matches nothing.
func In(column string, values ...any) Cond {
	return Cond{Column: column, op: opIn, values: values}
}

func IsNull(column string) Cond  { return Cond{Column: column, op: opIsNull} }
func NotNull(column string) Cond { return Cond{Column: column, op: opNotNull} }

// Value returns the single operand of an equality condition.
func (c Cond) Value() (any, bool) {
	if c.op != opEq || len(c.values) != 1 {
		return nil, false
	}
	return c.values[0], true
}

// TargetsPK reports whether the condition constrains the primary key of m.
func (c Cond) TargetsPK(m *schema.Model) bool {
	f, ok := m.Field(c.Column)
	return ok && f.PrimaryKey
}

func (c Cond) sql(m *schema.Model) (string, []any, error) {
	f, ok := m.Field(c.Column)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s.%s", common.ErrFieldDoesNotExist, m.Name, c.Column)
	}
	col := f.Column

	switch c.op {
	case opIsNull, opNotNull:
		return col + " " + string(c.op), nil, nil
	case opIn:
		if len(c.values) == 0 {
			return "1 = 0", nil, nil
		}
		return col + " IN (" + dbx.Placeholders(len(c.values)) + ")", c.values, nil
	default:
		if c.values[0] == nil {
			if c.op == opEq {
				return col + " IS NULL", nil, nil
			}
			if c.op == opNe {
				return col + " IS NOT NULL", nil, nil
			}
		}
		return col + " " + string(c.op) + " ?", c.values, nil
	}
}

func and(m *schema.Model, conds []Cond) (string, []any, error) {
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		s, a, err := c.sql(m)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, s)
		args = append(args, a...)
	}
	return strings.Join(parts, " AND "), args, nil
}
