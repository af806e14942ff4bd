package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
)

// Relation is a reverse foreign key: rows of Model reference Target
// through Field.
type Relation struct {
	Model  *Model
	Field  *Field
	Target *Model
}

// OnDelete is the behavior declared on the referencing field.
func (r *Relation) OnDelete() OnDelete { return r.Field.FK.OnDelete }

// TargetField is the referenced column on Target.
func (r *Relation) TargetField() *Field {
	return r.Target.MustField(r.Field.FK.Column)
}

// Option tweaks a model at registration.
type Option func(*Model)

// Table overrides the table name.
func Table(name string) Option { return func(m *Model) { m.Table = name } }

// Name overrides the entity type name.
func Name(name string) Option { return func(m *Model) { m.Name = name } }

// AutoCreated marks the model as a many-to-many junction.
func AutoCreated() Option { return func(m *Model) { m.AutoCreated = true } }

// UniqueTogether declares a group of columns that must be unique together.
func UniqueTogether(columns ...string) Option {
	return func(m *Model) { m.UniqueTogether = append(m.UniqueTogether, columns) }
}

// Registry holds every entity type of one database. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	models  []*Model
	byType  map[reflect.Type]*Model
	byTable map[string]*Model
	byName  map[string]*Model
	related map[*Model][]*Relation
}

func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Model),
		byTable: make(map[string]*Model),
		byName:  make(map[string]*Model),
	}
}

// Register parses v (a struct or a pointer to one) and adds it.
func (r *Registry) Register(v any, opts ...Option) (*Model, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", common.ErrConfiguration, v)
	}

	m := &Model{
		Name:     t.Name(),
		Table:    defaultTable(t),
		typ:      t,
		byColumn: make(map[string]*Field),
	}
	if err := parseFields(m, t, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	for _, o := range opts {
		o(m)
	}
	if m.PK == nil {
		return nil, fmt.Errorf("%w: %s has no primary key", common.ErrConfiguration, m.Name)
	}
	for _, group := range m.UniqueTogether {
		for _, c := range group {
			if _, ok := m.byColumn[c]; !ok {
				return nil, fmt.Errorf("%w: unique together on %s: unknown column %q", common.ErrConfiguration, m.Name, c)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byType[t]; dup {
		return nil, fmt.Errorf("%w: %s registered twice", common.ErrConfiguration, m.Name)
	}
	if _, dup := r.byTable[m.Table]; dup {
		return nil, fmt.Errorf("%w: table %s registered twice", common.ErrConfiguration, m.Table)
	}
	if _, dup := r.byName[m.Name]; dup {
		return nil, fmt.Errorf("%w: model name %s registered twice", common.ErrConfiguration, m.Name)
	}

	r.models = append(r.models, m)
	r.byType[t] = m
	r.byTable[m.Table] = m
	r.byName[m.Name] = m
	r.related = nil

	return m, nil
}

// MustRegister is Register that panics on error. Meant for package init.
func (r *Registry) MustRegister(v any, opts ...Option) *Model {
	m, err := r.Register(v, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup finds the model of v's type (struct, pointer, or slice of either).
func (r *Registry) Lookup(v any) (*Model, error) {
	t := reflect.TypeOf(v)
	for t != nil && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	r.mu.RLock()
	m, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a registered entity type", common.ErrConfiguration, t)
	}
	return m, nil
}

// ByName finds a model by entity type name.
func (r *Registry) ByName(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// ByTable finds a model by table name.
func (r *Registry) ByTable(table string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// Models returns the models in registration order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Model(nil), r.models...)
}

// Validate checks that every foreign key points at a registered column and
// that set-null relations sit on nullable fields.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		for _, f := range m.Fields {
			if f.FK == nil {
				continue
			}
			target, ok := r.byTable[f.FK.Table]
			if !ok {
				return fmt.Errorf("%w: %s.%s references unknown table %s", common.ErrConfiguration, m.Name, f.Column, f.FK.Table)
			}
			if _, ok := target.Field(f.FK.Column); !ok {
				return fmt.Errorf("%w: %s.%s references unknown column %s.%s", common.ErrConfiguration, m.Name, f.Column, f.FK.Table, f.FK.Column)
			}
			if f.FK.OnDelete == SetNull && !f.Nullable {
				return fmt.Errorf("%w: %s.%s is setnull but not nullable", common.ErrConfiguration, m.Name, f.Column)
			}
		}
	}
	return nil
}

// Related returns the reverse relations pointing at m: one per foreign key
// on any registered model that references m's table.
func (r *Registry) Related(m *Model) []*Relation {
	r.mu.RLock()
	if r.related != nil {
		rel := r.related[m]
		r.mu.RUnlock()
		return rel
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.related == nil {
		r.related = make(map[*Model][]*Relation, len(r.models))
		for _, child := range r.models {
			for _, f := range child.Fields {
				if f.FK == nil {
					continue
				}
				target, ok := r.byTable[f.FK.Table]
				if !ok {
					continue
				}
				r.related[target] = append(r.related[target], &Relation{Model: child, Field: f, Target: target})
			}
		}
	}
	return r.related[m]
}

func parseFields(m *Model, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup("db")
		if tag == "-" {
			continue
		}

		idx := append(append([]int(nil), index...), i)

		if sf.Anonymous && !hasTag && sf.Type.Kind() == reflect.Struct {
			if err := parseFields(m, sf.Type, idx); err != nil {
				return err
			}
			continue
		}
		if !hasTag || !sf.IsExported() {
			continue
		}

		f, err := parseTag(tag)
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		f.Name = sf.Name
		f.index = idx
		f.typ = sf.Type
		if isNullable(sf.Type) {
			f.Nullable = true
		}

		if _, dup := m.byColumn[f.Column]; dup {
			return fmt.Errorf("%w: duplicate column %q", common.ErrConfiguration, f.Column)
		}
		if f.PrimaryKey {
			if m.PK != nil {
				return fmt.Errorf("%w: more than one primary key", common.ErrConfiguration)
			}
			m.PK = f
		}
		switch f.Column {
		case ColumnCreatedAt:
			m.CreatedAt = f
		case ColumnModifiedAt:
			m.ModifiedAt = f
		case ColumnRemovedAt:
			m.RemovedAt = f
		}

		m.Fields = append(m.Fields, f)
		m.byColumn[f.Column] = f
	}
	return nil
}

// parseTag reads `column[,primary][,null][,fk:table.column][,ondelete:mode]`.
func parseTag(tag string) (*Field, error) {
	parts := strings.Split(tag, ",")
	f := &Field{Column: strings.TrimSpace(parts[0])}
	if f.Column == "" {
		return nil, fmt.Errorf("%w: empty column name", common.ErrConfiguration)
	}

	onDelete := Cascade
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		key, val, _ := strings.Cut(p, ":")
		switch key {
		case "primary", "pk":
			f.PrimaryKey = true
		case "null":
			f.Nullable = true
		case "fk":
			table, col, ok := strings.Cut(val, ".")
			if !ok || table == "" || col == "" {
				return nil, fmt.Errorf("%w: bad fk %q, want table.column", common.ErrConfiguration, val)
			}
			f.FK = &ForeignKey{Table: table, Column: col}
		case "ondelete":
			od, err := parseOnDelete(val)
			if err != nil {
				return nil, err
			}
			onDelete = od
		case "":
		default:
			return nil, fmt.Errorf("%w: unknown tag option %q", common.ErrConfiguration, p)
		}
	}
	if f.FK != nil {
		f.FK.OnDelete = onDelete
	}
	return f, nil
}

func isNullable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return true
	}
	return t.PkgPath() == "database/sql" && strings.HasPrefix(t.Name(), "Null")
}

type tableNamer interface{ TableName() string }

func defaultTable(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(tableNamer); ok {
		return tn.TableName()
	}
	return plural(snake(t.Name()))
}

func snake(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func plural(s string) string {
	switch {
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
