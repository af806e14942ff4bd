// Package schema describes entity types for the ORM layer.
//
// Entity types are plain structs registered with a Registry. Columns come
// from `db` struct tags:
//
//	type Entry struct {
//	    ID     int64  `db:"id,primary"`
//	    UserID int64  `db:"user_id,fk:users.id,ondelete:cascade"`
//	    Title  string `db:"title"`
//	    logical.Model
//	}
//
// Untagged anonymous structs are flattened into the parent. The registry
// turns foreign keys into reverse relations, which is the graph the
// deletion collectors walk.
package schema

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
)

// Well-known column roles.
const (
	ColumnCreatedAt  = "created_at"
	ColumnModifiedAt = "modified_at"
	ColumnRemovedAt  = "removed_at"

	// PKAlias may be used in conditions instead of the primary key column.
	PKAlias = "pk"
)

// OnDelete is what happens to referencing rows when the referenced row goes away.
type OnDelete int

const (
	Cascade OnDelete = iota
	SetNull
	Restrict
	DoNothing
)

func (o OnDelete) String() string {
	switch o {
	case Cascade:
		return "cascade"
	case SetNull:
		return "setnull"
	case Restrict:
		return "restrict"
	case DoNothing:
		return "nothing"
	}
	return fmt.Sprintf("OnDelete(%d)", int(o))
}

func parseOnDelete(s string) (OnDelete, error) {
	switch strings.ToLower(s) {
	case "cascade":
		return Cascade, nil
	case "setnull", "set_null":
		return SetNull, nil
	case "restrict", "protect":
		return Restrict, nil
	case "nothing", "do_nothing", "donothing":
		return DoNothing, nil
	}
	return 0, fmt.Errorf("%w: unknown ondelete %q", common.ErrConfiguration, s)
}

// ForeignKey points a column at <Table>.<Column>.
type ForeignKey struct {
	Table    string
	Column   string
	OnDelete OnDelete
}

// Field is one mapped column.
type Field struct {
	Name       string
	Column     string
	PrimaryKey bool
	Nullable   bool
	FK         *ForeignKey

	index []int
	typ   reflect.Type
}

// Type is the Go type of the struct field.
func (f *Field) Type() reflect.Type { return f.typ }

// Model is a registered entity type.
type Model struct {
	Name  string
	Table string

	Fields []*Field
	PK     *Field

	// Role columns, nil when the table lacks them.
	CreatedAt  *Field
	ModifiedAt *Field
	RemovedAt  *Field

	// AutoCreated marks junction rows of a many-to-many association.
	// They never emit lifecycle signals.
	AutoCreated bool

	UniqueTogether [][]string

	typ      reflect.Type
	byColumn map[string]*Field
}

func (m *Model) String() string { return m.Name }

// Type is the struct type backing the model.
func (m *Model) Type() reflect.Type { return m.typ }

// Field resolves a column name, or the "pk" alias.
func (m *Model) Field(column string) (*Field, bool) {
	if column == PKAlias {
		return m.PK, true
	}
	f, ok := m.byColumn[column]
	return f, ok
}

// MustField is Field for columns known to exist; it panics otherwise.
func (m *Model) MustField(column string) *Field {
	f, ok := m.Field(column)
	if !ok {
		panic(fmt.Sprintf("schema: %s has no column %q", m.Name, column))
	}
	return f
}

// Columns lists column names in declaration order.
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// New allocates a zero instance and returns the pointer.
func (m *Model) New() any {
	return reflect.New(m.typ).Interface()
}

// NewSlice allocates an empty []*T for the model.
func (m *Model) NewSlice() reflect.Value {
	return reflect.MakeSlice(reflect.SliceOf(reflect.PointerTo(m.typ)), 0, 0)
}

func (m *Model) elem(rec any) (reflect.Value, error) {
	v := reflect.ValueOf(rec)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != m.typ {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a *%s", common.ErrConfiguration, rec, m.typ.Name())
	}
	return v.Elem(), nil
}

// Owns reports whether rec is a pointer to this model's struct.
func (m *Model) Owns(rec any) bool {
	_, err := m.elem(rec)
	return err == nil
}

// Value reads field f of rec.
func (m *Model) Value(rec any, f *Field) any {
	v, err := m.elem(rec)
	if err != nil {
		panic(err)
	}
	return v.FieldByIndex(f.index).Interface()
}

// Scalar is Value with pointers dereferenced; a nil pointer yields nil.
func (m *Model) Scalar(rec any, f *Field) any {
	v, err := m.elem(rec)
	if err != nil {
		panic(err)
	}
	fv := v.FieldByIndex(f.index)
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		fv = fv.Elem()
	}
	return fv.Interface()
}

// PKValue reads the primary key of rec.
func (m *Model) PKValue(rec any) any {
	return m.Value(rec, m.PK)
}

// HasPK reports whether rec carries a non-zero primary key.
func (m *Model) HasPK(rec any) bool {
	v, err := m.elem(rec)
	if err != nil {
		return false
	}
	return !v.FieldByIndex(m.PK.index).IsZero()
}

// SetValue assigns v to field f of rec. nil clears the field.
func (m *Model) SetValue(rec any, f *Field, v any) error {
	e, err := m.elem(rec)
	if err != nil {
		return err
	}
	if err := assign(e.FieldByIndex(f.index), v); err != nil {
		return fmt.Errorf("%s.%s: %w", m.Name, f.Column, err)
	}
	return nil
}

// ScanDest returns pointers to every mapped field of rec, in Fields order.
func (m *Model) ScanDest(rec any) []any {
	e, err := m.elem(rec)
	if err != nil {
		panic(err)
	}
	dest := make([]any, len(m.Fields))
	for i, f := range m.Fields {
		dest[i] = e.FieldByIndex(f.index).Addr().Interface()
	}
	return dest
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(v)
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.Kind() != reflect.Pointer {
			src = src.Elem()
		}
	}

	if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
		return sc.Scan(src.Interface())
	}

	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.Pointer && src.Type().AssignableTo(dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src)
		dst.Set(p)
	case isNumeric(src.Kind()) && isNumeric(dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
