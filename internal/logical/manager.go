package logical

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/deletion"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/validation"
)

// Manager is the typed repository of entity type T.
type Manager[T any] struct {
	db    *DB
	model *schema.Model
}

// NewManager fails when T is not registered or has no removal column.
func NewManager[T any](db *DB) (*Manager[T], error) {
	m, err := db.registry.Lookup((*T)(nil))
	if err != nil {
		return nil, err
	}
	if m.RemovedAt == nil {
		return nil, fmt.Errorf("%w: %s has no %s column", common.ErrConfiguration, m.Name, schema.ColumnRemovedAt)
	}
	return &Manager[T]{db: db, model: m}, nil
}

func MustManager[T any](db *DB) *Manager[T] {
	m, err := NewManager[T](db)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Manager[T]) Model() *schema.Model { return m.model }

// Using returns the manager bound to db, e.g. one from DB.Atomic.
func (m *Manager[T]) Using(db *DB) *Manager[T] {
	return &Manager[T]{db: db, model: m.model}
}

func (m *Manager[T]) scoped(sc query.Scope) *QuerySet[T] {
	return &QuerySet[T]{db: m.db, set: query.New(m.db.conn, m.db.dialect, m.model).Scoped(sc)}
}

// All returns the active records.
func (m *Manager[T]) All() *QuerySet[T] { return m.scoped(query.ScopeActive) }

// Everything returns every record, removed ones included.
func (m *Manager[T]) Everything() *QuerySet[T] { return m.scoped(query.ScopeAll) }

// AllWithDeleted is Everything.
func (m *Manager[T]) AllWithDeleted() *QuerySet[T] { return m.Everything() }

// OnlyDeleted returns the logically deleted records.
func (m *Manager[T]) OnlyDeleted() *QuerySet[T] { return m.scoped(query.ScopeRemoved) }

// Filter narrows the active records, unless a condition names the primary
// key: a lookup by key sees removed records as Get does.
func (m *Manager[T]) Filter(conds ...query.Cond) *QuerySet[T] {
	for _, c := range conds {
		if c.TargetsPK(m.model) {
			return m.Everything().Filter(conds...)
		}
	}
	return m.All().Filter(conds...)
}

// Get returns the single record matching conds, removed or not.
func (m *Manager[T]) Get(ctx context.Context, conds ...query.Cond) (*T, error) {
	return m.Everything().Filter(conds...).Get(ctx)
}

// GetWithDeleted is Get.
func (m *Manager[T]) GetWithDeleted(ctx context.Context, conds ...query.Cond) (*T, error) {
	return m.Get(ctx, conds...)
}

// GetOrCreate returns the record matching conds or creates the one built
// by build. A removed match is returned as is. The bool reports creation.
func (m *Manager[T]) GetOrCreate(ctx context.Context, build func() *T, conds ...query.Cond) (*T, bool, error) {
	rec, err := m.Get(ctx, conds...)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, err
	}
	rec = build()
	if err := m.Create(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// IsActive reports whether rec is not logically deleted.
func (m *Manager[T]) IsActive(rec *T) bool {
	return m.model.Scalar(rec, m.model.RemovedAt) == nil
}

// Delete logically deletes rec and every record depending on it.
func (m *Manager[T]) Delete(ctx context.Context, rec *T) (deletion.Result, error) {
	c := deletion.NewLogicalCollector(m.db.CollectorOptions())
	if err := c.Collect(ctx, m.model, []any{rec}); err != nil {
		return deletion.Result{}, err
	}
	return c.Delete(ctx)
}

// Undelete restores rec and the records removed along with it.
func (m *Manager[T]) Undelete(ctx context.Context, rec *T) (deletion.Result, error) {
	c := deletion.NewLogicalCollector(m.db.CollectorOptions())
	if err := c.Collect(ctx, m.model, []any{rec}); err != nil {
		return deletion.Result{}, err
	}
	return c.Undelete(ctx)
}

// DeleteComplete physically deletes rec and its dependents.
func (m *Manager[T]) DeleteComplete(ctx context.Context, rec *T) (deletion.Result, error) {
	c := deletion.NewCollector(m.db.CollectorOptions())
	if err := c.Collect(ctx, m.model, []any{rec}); err != nil {
		return deletion.Result{}, err
	}
	return c.Delete(ctx)
}

// Validate checks the unique groups of T, removed rows included.
func (m *Manager[T]) Validate(ctx context.Context, rec *T) error {
	return validation.Unique(ctx, m.db.conn, m.db.dialect, m.model, rec)
}

// Create inserts rec. Zero creation and modification stamps are set to
// now; a zero key is left to the database and read back.
func (m *Manager[T]) Create(ctx context.Context, rec *T) error {
	now := m.db.now()
	for _, f := range []*schema.Field{m.model.CreatedAt, m.model.ModifiedAt} {
		if f == nil {
			continue
		}
		if t, ok := m.model.Value(rec, f).(time.Time); ok && t.IsZero() {
			if err := m.model.SetValue(rec, f, now); err != nil {
				return err
			}
		}
	}

	autoKey := !m.model.HasPK(rec)
	cols := make([]string, 0, len(m.model.Fields))
	args := make([]any, 0, len(m.model.Fields))
	for _, f := range m.model.Fields {
		if f.PrimaryKey && autoKey {
			continue
		}
		cols = append(cols, f.Column)
		args = append(args, m.model.Value(rec, f))
	}

	q := m.db.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		m.model.Table, strings.Join(cols, ", "), dbx.Placeholders(len(cols)), m.model.PK.Column))

	key := reflect.New(m.model.PK.Type())
	if err := m.db.conn.QueryRowContext(ctx, q, args...).Scan(key.Interface()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return m.model.SetValue(rec, m.model.PK, key.Elem().Interface())
}

// Save writes rec back by key, stamping the modification time first.
// With fields, only those columns are written; the modification column
// is always added. The creation stamp is never written.
func (m *Manager[T]) Save(ctx context.Context, rec *T, fields ...string) error {
	if !m.model.HasPK(rec) {
		return fmt.Errorf("%w: %s object can't be saved because its %s attribute is not set",
			common.ErrPrecondition, m.model.Name, m.model.PK.Column)
	}

	var targets []*schema.Field
	if len(fields) == 0 {
		targets = m.model.Fields
	} else {
		for _, name := range fields {
			f, ok := m.model.Field(name)
			if !ok {
				return fmt.Errorf("%w: %s.%s", common.ErrFieldDoesNotExist, m.model.Name, name)
			}
			targets = append(targets, f)
		}
		if m.model.ModifiedAt != nil {
			targets = append(targets, m.model.ModifiedAt)
		}
	}

	var previous any
	if f := m.model.ModifiedAt; f != nil {
		previous = m.model.Value(rec, f)
		if err := m.model.SetValue(rec, f, m.db.now()); err != nil {
			return err
		}
	}

	values := make(map[string]any, len(targets))
	for _, f := range targets {
		if f.PrimaryKey || f == m.model.CreatedAt {
			continue
		}
		values[f.Column] = m.model.Value(rec, f)
	}

	set := query.New(m.db.conn, m.db.dialect, m.model).Where(query.Eq(m.model.PK.Column, m.model.PKValue(rec)))
	n, err := set.Update(ctx, values)
	if err == nil && n == 0 {
		err = fmt.Errorf("%s: %w", m.model.Name, common.ErrorNotFound)
	}
	if err != nil {
		if f := m.model.ModifiedAt; f != nil {
			_ = m.model.SetValue(rec, f, previous)
		}
		return err
	}
	return nil
}

// Refresh reloads rec from storage by key, removed or not.
func (m *Manager[T]) Refresh(ctx context.Context, rec *T) error {
	got, err := m.Get(ctx, query.Eq(m.model.PK.Column, m.model.PKValue(rec)))
	if err != nil {
		return err
	}
	*rec = *got
	return nil
}

