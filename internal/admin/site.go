// Package admin is the operator surface over soft-deleted data: listing by
// state, restoring selections, erasing them for good, and keeping an audit
// trail of every such action.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/dmitrijs2005/logicaldelete/internal/auth"
	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/deletion"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"github.com/dmitrijs2005/logicaldelete/internal/logical"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/google/uuid"
)

// NoItemsSelected is reported when an action runs on an empty selection.
const NoItemsSelected = "Items must be selected in order to perform actions on them. No items have been changed."

// ActiveFilter maps the list filter parameter to a scope: "1" lists the
// removed records, anything else the active ones.
func ActiveFilter(value string) query.Scope {
	if value == "1" {
		return query.ScopeRemoved
	}
	return query.ScopeActive
}

// Report summarises an executed action.
type Report struct {
	Model string
	// Count is the number of selected records acted upon.
	Count int
	// Counts is every changed row, dependents included, per entity type.
	Counts  map[string]int64
	Message string
	// ManifestKey is where the erasure manifest went, if anywhere.
	ManifestKey string
}

// Confirmation is what an operator reviews before an erasure runs.
type Confirmation struct {
	Model     string
	Templates []string
	Keys      []any
	Counts    map[string]int64
}

// Outcome of DeleteCompletely: exactly one field is set.
type Outcome struct {
	Confirmation *Confirmation
	Report       *Report
}

type Site struct {
	db      *logical.DB
	archive Archive
	logger  logging.Logger
}

type SiteOption func(*Site)

// WithArchive uploads an erasure manifest after every confirmed erasure.
func WithArchive(a Archive) SiteOption { return func(s *Site) { s.archive = a } }

func NewSite(db *logical.DB, opts ...SiteOption) *Site {
	s := &Site{db: db, logger: db.Logger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Model resolves an entity type by name or table.
func (s *Site) Model(name string) (*schema.Model, error) {
	reg := s.db.Registry()
	if m, ok := reg.ByName(name); ok {
		return m, nil
	}
	if m, ok := reg.ByTable(name); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown model %q", common.ErrPrecondition, name)
}

// Queryset is the source of admin lists: every record, removed or not.
func (s *Site) Queryset(name string) (*query.Set, error) {
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	return query.New(s.db.Conn(), s.db.Dialect(), m), nil
}

// List returns the records of name matching the active filter value.
func (s *Site) List(ctx context.Context, op *auth.Claims, name, active string) ([]any, error) {
	if !op.CanRestore() {
		return nil, common.ErrPermissionDenied
	}
	set, err := s.Queryset(name)
	if err != nil {
		return nil, err
	}
	return set.Scoped(ActiveFilter(active)).OrderBy(set.Model().PK.Column).Load(ctx)
}

// RestoreSelected undeletes the selected records and everything removed
// along with them. Staff only.
func (s *Site) RestoreSelected(ctx context.Context, op *auth.Claims, name string, keys []any) (*Report, error) {
	if !op.CanRestore() {
		return nil, common.ErrPermissionDenied
	}
	if len(keys) == 0 {
		return &Report{Model: name, Message: NoItemsSelected}, nil
	}
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	if keys, err = normalizeKeys(m, keys); err != nil {
		return nil, err
	}

	var (
		recs []any
		res  deletion.Result
	)
	err = s.db.Atomic(ctx, func(ctx context.Context, tx *logical.DB) error {
		recs, err = query.New(tx.Conn(), tx.Dialect(), m).Scoped(query.ScopeRemoved).LoadBatch(ctx, m.PK.Column, keys)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		if err := s.logAction(ctx, tx, op, m, recs, ActionRestore, "Restored"); err != nil {
			return err
		}

		c := deletion.NewLogicalCollector(tx.CollectorOptions())
		if err := c.Collect(ctx, m, recs); err != nil {
			return err
		}
		res, err = c.Undelete(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", m.Name, err)
	}

	s.logger.Info(ctx, "records restored", "operator", op.UserID, "model", m.Name, "selected", len(recs), "total", res.Total)
	return &Report{
		Model:   m.Name,
		Count:   len(recs),
		Counts:  res.Counts,
		Message: fmt.Sprintf("Successfully restored %d %s.", len(recs), m.Name),
	}, nil
}

// DeleteSelected logically deletes the selected records. Staff only.
func (s *Site) DeleteSelected(ctx context.Context, op *auth.Claims, name string, keys []any) (*Report, error) {
	if !op.CanRestore() {
		return nil, common.ErrPermissionDenied
	}
	if len(keys) == 0 {
		return &Report{Model: name, Message: NoItemsSelected}, nil
	}
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	if keys, err = normalizeKeys(m, keys); err != nil {
		return nil, err
	}

	var (
		recs []any
		res  deletion.Result
	)
	err = s.db.Atomic(ctx, func(ctx context.Context, tx *logical.DB) error {
		recs, err = query.New(tx.Conn(), tx.Dialect(), m).Scoped(query.ScopeActive).LoadBatch(ctx, m.PK.Column, keys)
		if err != nil || len(recs) == 0 {
			return err
		}
		if err := s.LogDeletion(ctx, tx, op, m, recs); err != nil {
			return err
		}
		c := deletion.NewLogicalCollector(tx.CollectorOptions())
		if err := c.Collect(ctx, m, recs); err != nil {
			return err
		}
		res, err = c.Delete(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", m.Name, err)
	}

	return &Report{
		Model:   m.Name,
		Count:   len(recs),
		Counts:  res.Counts,
		Message: fmt.Sprintf("Successfully deleted %d %s.", len(recs), m.Name),
	}, nil
}

// LogDeletion writes one logical deletion entry per record on db's connection.
func (s *Site) LogDeletion(ctx context.Context, db *logical.DB, op *auth.Claims, m *schema.Model, recs []any) error {
	return s.logAction(ctx, db, op, m, recs, ActionLogicalDeletion, "Deleted")
}

// DeleteCompletely physically erases the selected records and their
// dependents. Superuser only. Without confirmed it only reports what
// would be erased.
func (s *Site) DeleteCompletely(ctx context.Context, op *auth.Claims, name string, keys []any, confirmed bool) (*Outcome, error) {
	if !op.CanErase() {
		return nil, common.ErrPermissionDenied
	}
	if len(keys) == 0 {
		return &Outcome{Report: &Report{Model: name, Message: NoItemsSelected}}, nil
	}
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	if keys, err = normalizeKeys(m, keys); err != nil {
		return nil, err
	}

	if !confirmed {
		recs, err := query.New(s.db.Conn(), s.db.Dialect(), m).LoadBatch(ctx, m.PK.Column, keys)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("%s: %w", m.Name, common.ErrorNotFound)
		}
		c := deletion.NewCollector(s.db.CollectorOptions())
		if err := c.Collect(ctx, m, recs); err != nil {
			return nil, err
		}
		counts, err := c.Preview(ctx)
		if err != nil {
			return nil, err
		}
		return &Outcome{Confirmation: &Confirmation{
			Model:     m.Name,
			Templates: confirmationTemplates(m),
			Keys:      keysOf(m, recs),
			Counts:    counts,
		}}, nil
	}

	var (
		recs []any
		res  deletion.Result
	)
	err = s.db.Atomic(ctx, func(ctx context.Context, tx *logical.DB) error {
		recs, err = query.New(tx.Conn(), tx.Dialect(), m).LoadBatch(ctx, m.PK.Column, keys)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("%s: %w", m.Name, common.ErrorNotFound)
		}
		c := deletion.NewCollector(tx.CollectorOptions())
		if err := c.Collect(ctx, m, recs); err != nil {
			return err
		}
		if err := s.logAction(ctx, tx, op, m, recs, ActionDeletion, "Deleted completely"); err != nil {
			return err
		}
		res, err = c.Delete(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s completely: %w", m.Name, err)
	}

	report := &Report{
		Model:   m.Name,
		Count:   len(recs),
		Counts:  res.Counts,
		Message: fmt.Sprintf("Successfully deleted %d %s.", len(recs), m.Name),
	}
	s.logger.Info(ctx, "records erased", "operator", op.UserID, "model", m.Name, "selected", len(recs), "total", res.Total)

	if s.archive != nil {
		manifest := &Manifest{
			ID:         uuid.New(),
			OperatorID: op.UserID,
			Model:      m.Name,
			Table:      m.Table,
			Keys:       keyStrings(m, recs),
			Counts:     res.Counts,
			ErasedAt:   s.db.Now(),
		}
		key, err := s.archive.Store(ctx, manifest)
		if err != nil {
			// the erasure is committed; the manifest is best effort
			s.logger.Error(ctx, "erasure manifest upload failed", "model", m.Name, "error", err)
		}
		report.ManifestKey = key
	}
	return &Outcome{Report: report}, nil
}

// AuditLog lists the admin_log entries about name.
func (s *Site) AuditLog(ctx context.Context, op *auth.Claims, name string) ([]*LogEntry, error) {
	if !op.CanRestore() {
		return nil, common.ErrPermissionDenied
	}
	m, err := s.Model(name)
	if err != nil {
		return nil, err
	}
	return NewAuditRepository(s.db.Conn(), s.db.Dialect()).ListByModel(ctx, m.Table)
}

func (s *Site) logAction(ctx context.Context, db *logical.DB, op *auth.Claims, m *schema.Model, recs []any, flag ActionFlag, msg string) error {
	repo := NewAuditRepository(db.Conn(), db.Dialect())
	now := db.Now()
	for _, r := range recs {
		e := &LogEntry{
			ActionTime:    now,
			OperatorID:    op.UserID,
			Model:         m.Table,
			ObjectID:      fmt.Sprint(m.PKValue(r)),
			ObjectRepr:    repr(m, r),
			ActionFlag:    flag,
			ChangeMessage: msg,
		}
		if err := repo.Create(ctx, e); err != nil {
			return fmt.Errorf("audit %s: %w", flag, err)
		}
	}
	return nil
}

func confirmationTemplates(m *schema.Model) []string {
	return []string{
		fmt.Sprintf("admin/%s/delete_selected_complete_confirmation.html", m.Table),
		"admin/delete_selected_complete_confirmation.html",
	}
}

func repr(m *schema.Model, rec any) string {
	if s, ok := rec.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%s object (%v)", m.Name, m.PKValue(rec))
}

func keysOf(m *schema.Model, recs []any) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = m.PKValue(r)
	}
	return out
}

func keyStrings(m *schema.Model, recs []any) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(m.PKValue(r))
	}
	sort.Strings(out)
	return out
}

// normalizeKeys converts transport values (JSON numbers, strings) to the
// primary key type of m.
func normalizeKeys(m *schema.Model, keys []any) ([]any, error) {
	t := m.PK.Type()
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		v, err := convertKey(t, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s key %v: %w", common.ErrPrecondition, m.Name, k, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func convertKey(t reflect.Type, k any) (any, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(fmt.Sprint(k)).Convert(t).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch v := k.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("not an integer")
			}
			if v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, fmt.Errorf("out of range for %s", t)
			}
			n = int64(v)
		case json.Number:
			i, err := v.Int64()
			if err != nil {
				return nil, err
			}
			n = i
		case string:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, err
			}
			n = i
		default:
			rv := reflect.ValueOf(k)
			if !rv.IsValid() || !rv.CanInt() {
				return nil, fmt.Errorf("unsupported key type %T", k)
			}
			n = rv.Int()
		}
		if reflect.Zero(t).OverflowInt(n) {
			return nil, fmt.Errorf("out of range for %s", t)
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		switch v := k.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("not an integer")
			}
			if v < 0 || v >= math.MaxUint64 {
				return nil, fmt.Errorf("out of range for %s", t)
			}
			n = uint64(v)
		case json.Number:
			u, err := strconv.ParseUint(v.String(), 10, 64)
			if err != nil {
				return nil, err
			}
			n = u
		case string:
			u, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, err
			}
			n = u
		default:
			rv := reflect.ValueOf(k)
			switch {
			case rv.IsValid() && rv.CanUint():
				n = rv.Uint()
			case rv.IsValid() && rv.CanInt() && rv.Int() >= 0:
				n = uint64(rv.Int())
			default:
				return nil, fmt.Errorf("unsupported key type %T", k)
			}
		}
		if reflect.Zero(t).OverflowUint(n) {
			return nil, fmt.Errorf("out of range for %s", t)
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	}
	rv := reflect.ValueOf(k)
	if rv.IsValid() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("unsupported key type %T", k)
}
