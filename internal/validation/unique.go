// Package validation checks uniqueness constraints with logically removed
// rows taken into account.
//
// A removed row still occupies its unique key in the table, so a plain
// "already exists" answer would confuse an operator who cannot see it.
// Unique reports such collisions separately, flagged as deleted.
package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
)

// Unique checks every UniqueTogether group of m against the stored rows,
// ignoring rec itself. It returns *common.ConflictError on the first
// collision, nil when rec fits.
//
// Groups with a nil value are skipped: a NULL never collides.
func Unique(ctx context.Context, conn dbx.DBTX, dialect dbx.Dialect, m *schema.Model, rec any) error {
	if !m.Owns(rec) {
		return fmt.Errorf("%w: %T is not a %s", common.ErrConfiguration, rec, m.Name)
	}

	for _, group := range m.UniqueTogether {
		conds, ok, err := groupConds(m, rec, group)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		set := query.New(conn, dialect, m).Where(conds...)
		if m.HasPK(rec) {
			set = set.Exclude(query.Eq(m.PK.Column, m.PKValue(rec)))
		}

		if err := check(ctx, set.Scoped(query.ScopeActive), m, group, false); err != nil {
			return err
		}
		if m.RemovedAt == nil {
			continue
		}
		if err := check(ctx, set.Scoped(query.ScopeRemoved), m, group, true); err != nil {
			return err
		}
	}
	return nil
}

func groupConds(m *schema.Model, rec any, group []string) ([]query.Cond, bool, error) {
	conds := make([]query.Cond, 0, len(group))
	for _, col := range group {
		f, ok := m.Field(col)
		if !ok {
			return nil, false, fmt.Errorf("%w: unique group of %s names %s", common.ErrFieldDoesNotExist, m.Name, col)
		}
		v := m.Scalar(rec, f)
		if v == nil {
			return nil, false, nil
		}
		conds = append(conds, query.Eq(f.Column, v))
	}
	return conds, true, nil
}

func check(ctx context.Context, set *query.Set, m *schema.Model, group []string, deleted bool) error {
	other, err := set.OrderBy(m.PK.Column).First(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("validate %s: %w", m.Name, err)
	}
	return &common.ConflictError{
		Model:   m.Name,
		Fields:  append([]string(nil), group...),
		PK:      m.PKValue(other),
		Deleted: deleted,
	}
}
