// Package query builds and runs SQL for one entity type.
//
// A Set is immutable: every refinement returns a copy, so a base set can be
// shared and narrowed freely. Scopes decide how logically removed rows are
// treated; the zero scope (ScopeAll) sees every row.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
)

// Scope selects rows by removal state.
type Scope int

const (
	// ScopeAll ignores the removal column.
	ScopeAll Scope = iota
	// ScopeActive keeps rows whose removal timestamp is null.
	ScopeActive
	// ScopeRemoved keeps rows whose removal timestamp is set.
	ScopeRemoved
)

func (s Scope) String() string {
	switch s {
	case ScopeActive:
		return "active"
	case ScopeRemoved:
		return "removed"
	default:
		return "all"
	}
}

type Set struct {
	model   *schema.Model
	conn    dbx.DBTX
	dialect dbx.Dialect

	where   []Cond
	exclude [][]Cond
	scope   Scope
	order   []string
	limit   int
	offset  int
}

// New returns the unfiltered set of m.
func New(conn dbx.DBTX, dialect dbx.Dialect, m *schema.Model) *Set {
	return &Set{model: m, conn: conn, dialect: dialect}
}

func (s *Set) clone() *Set {
	c := *s
	c.where = append([]Cond(nil), s.where...)
	c.exclude = append([][]Cond(nil), s.exclude...)
	c.order = append([]string(nil), s.order...)
	return &c
}

func (s *Set) Model() *schema.Model { return s.model }
func (s *Set) Conn() dbx.DBTX       { return s.conn }
func (s *Set) Dialect() dbx.Dialect { return s.dialect }
func (s *Set) Scope() Scope         { return s.scope }
func (s *Set) Conds() []Cond        { return append([]Cond(nil), s.where...) }

// Sliced reports whether limit or offset is applied.
func (s *Set) Sliced() bool { return s.limit > 0 || s.offset > 0 }

// Scoped returns a copy with the removal scope replaced.
func (s *Set) Scoped(sc Scope) *Set {
	c := s.clone()
	c.scope = sc
	return c
}

// Using rebinds the set to another handle, typically an open transaction.
func (s *Set) Using(db dbx.DBTX) *Set {
	c := s.clone()
	c.conn = db
	return c
}

// Where narrows the set; conditions are ANDed.
func (s *Set) Where(conds ...Cond) *Set {
	c := s.clone()
	c.where = append(c.where, conds...)
	return c
}

// Exclude drops rows matching all of conds.
func (s *Set) Exclude(conds ...Cond) *Set {
	if len(conds) == 0 {
		return s
	}
	c := s.clone()
	c.exclude = append(c.exclude, conds)
	return c
}

// OrderBy sorts by columns; a leading "-" means descending.
func (s *Set) OrderBy(columns ...string) *Set {
	c := s.clone()
	c.order = append(c.order[:0], columns...)
	return c
}

func (s *Set) Limit(n int) *Set  { c := s.clone(); c.limit = n; return c }
func (s *Set) Offset(n int) *Set { c := s.clone(); c.offset = n; return c }

func (s *Set) whereSQL() (string, []any, error) {
	var (
		parts []string
		args  []any
	)

	if len(s.where) > 0 {
		w, a, err := and(s.model, s.where)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, w)
		args = append(args, a...)
	}
	for _, ex := range s.exclude {
		w, a, err := and(s.model, ex)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "NOT ("+w+")")
		args = append(args, a...)
	}

	if rm := s.model.RemovedAt; rm != nil {
		switch s.scope {
		case ScopeActive:
			parts = append(parts, rm.Column+" IS NULL")
		case ScopeRemoved:
			parts = append(parts, rm.Column+" IS NOT NULL")
		}
	} else if s.scope == ScopeRemoved {
		parts = append(parts, "1 = 0")
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (s *Set) tailSQL() (string, error) {
	var b strings.Builder
	if len(s.order) > 0 {
		cols := make([]string, 0, len(s.order))
		for _, o := range s.order {
			desc := strings.HasPrefix(o, "-")
			f, ok := s.model.Field(strings.TrimPrefix(o, "-"))
			if !ok {
				return "", fmt.Errorf("%w: order by %s.%s", common.ErrFieldDoesNotExist, s.model.Name, o)
			}
			if desc {
				cols = append(cols, f.Column+" DESC")
			} else {
				cols = append(cols, f.Column)
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(cols, ", "))
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.limit))
	}
	if s.offset > 0 {
		if s.limit <= 0 && s.dialect == dbx.SQLite {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(s.offset))
	}
	return b.String(), nil
}

// SelectSQL renders the SELECT for the set with rebound placeholders.
func (s *Set) SelectSQL() (string, []any, error) {
	return s.selectSQL(strings.Join(s.model.Columns(), ", "))
}

func (s *Set) selectSQL(what string) (string, []any, error) {
	where, args, err := s.whereSQL()
	if err != nil {
		return "", nil, err
	}
	tail, err := s.tailSQL()
	if err != nil {
		return "", nil, err
	}
	q := "SELECT " + what + " FROM " + s.model.Table + where + tail
	return s.dialect.Rebind(q), args, nil
}

// Load runs the SELECT and returns *T pointers as any.
func (s *Set) Load(ctx context.Context) ([]any, error) {
	q, args, err := s.SelectSQL()
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		rec := s.model.New()
		if err := rows.Scan(s.model.ScanDest(rec)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.model.Name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Get returns the single matching row.
func (s *Set) Get(ctx context.Context) (any, error) {
	recs, err := s.Limit(2).Load(ctx)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%s: %w", s.model.Name, common.ErrorNotFound)
	case 1:
		return recs[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", s.model.Name, common.ErrMultipleObjects)
	}
}

// First returns the first row in the set order.
func (s *Set) First(ctx context.Context) (any, error) {
	recs, err := s.Limit(1).Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", s.model.Name, common.ErrorNotFound)
	}
	return recs[0], nil
}

func (s *Set) Count(ctx context.Context) (int64, error) {
	q, args, err := s.OrderBy().Limit(0).Offset(0).selectSQL("COUNT(*)")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.conn.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *Set) Exists(ctx context.Context) (bool, error) {
	q, args, err := s.OrderBy().Limit(1).Offset(0).selectSQL("1")
	if err != nil {
		return false, err
	}
	var one int
	err = s.conn.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

// Values returns one column of every row.
func (s *Set) Values(ctx context.Context, column string) ([]any, error) {
	f, ok := s.model.Field(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", common.ErrFieldDoesNotExist, s.model.Name, column)
	}
	q, args, err := s.selectSQL(f.Column)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", s.model.Name, f.Column, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Update sets columns on every row of the set and returns rows affected.
// Unknown columns fail with common.ErrFieldDoesNotExist before any I/O.
func (s *Set) Update(ctx context.Context, values map[string]any) (int64, error) {
	if s.Sliced() {
		return 0, fmt.Errorf("%w: cannot use limit or offset with update", common.ErrPrecondition)
	}
	if len(values) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		f, ok := s.model.Field(k)
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s", common.ErrFieldDoesNotExist, s.model.Name, k)
		}
		sets = append(sets, f.Column+" = ?")
		args = append(args, values[k])
	}

	where, wargs, err := s.whereSQL()
	if err != nil {
		return 0, err
	}
	q := s.dialect.Rebind("UPDATE " + s.model.Table + " SET " + strings.Join(sets, ", ") + where)

	res, err := s.conn.ExecContext(ctx, q, append(args, wargs...)...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Delete issues a plain SQL DELETE for the set. No relations are followed
// and no signals are sent.
func (s *Set) Delete(ctx context.Context) (int64, error) {
	if s.Sliced() {
		return 0, fmt.Errorf("%w: cannot use limit or offset with delete", common.ErrPrecondition)
	}
	where, args, err := s.whereSQL()
	if err != nil {
		return 0, err
	}
	q := s.dialect.Rebind("DELETE FROM " + s.model.Table + where)

	res, err := s.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
