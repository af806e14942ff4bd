package schema

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stamps struct {
	CreatedAt  time.Time  `db:"created_at"`
	ModifiedAt time.Time  `db:"modified_at"`
	RemovedAt  *time.Time `db:"removed_at"`
}

type author struct {
	ID   int64  `db:"id,primary"`
	Name string `db:"name"`
	stamps
}

func (author) TableName() string { return "authors" }

type book struct {
	ID       int64  `db:"id,primary"`
	AuthorID int64  `db:"author_id,fk:authors.id,ondelete:cascade"`
	EditorID *int64 `db:"editor_id,fk:authors.id,ondelete:setnull"`
	Title    string `db:"title"`
	Notes    string `db:"-"`
	internal string
	stamps
}

type BookShelfEntry struct {
	ID     int64         `db:"id,primary"`
	BookID int64         `db:"book_id,fk:books.id"`
	Pos    sql.NullInt64 `db:"pos"`
}

func newTestRegistry(t *testing.T) (*Registry, *Model, *Model, *Model) {
	t.Helper()
	r := NewRegistry()
	a, err := r.Register(&author{})
	require.NoError(t, err)
	b, err := r.Register(book{}, Name("Book"), UniqueTogether("author_id", "title"))
	require.NoError(t, err)
	e, err := r.Register(&BookShelfEntry{}, AutoCreated())
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	return r, a, b, e
}

func TestRegister_ParsesTags(t *testing.T) {
	_, a, b, e := newTestRegistry(t)

	assert.Equal(t, "authors", a.Table)
	assert.Equal(t, "author", a.Name)
	assert.Equal(t, []string{"id", "name", "created_at", "modified_at", "removed_at"}, a.Columns())
	require.NotNil(t, a.RemovedAt)
	assert.True(t, a.RemovedAt.Nullable)

	assert.Equal(t, "books", b.Table)
	assert.Equal(t, "Book", b.Name)
	assert.Equal(t, "id", b.PK.Column)
	assert.Equal(t, [][]string{{"author_id", "title"}}, b.UniqueTogether)

	editor := b.MustField("editor_id")
	assert.True(t, editor.Nullable)
	assert.Equal(t, SetNull, editor.FK.OnDelete)
	assert.Equal(t, Cascade, b.MustField("author_id").FK.OnDelete)
	_, hasNotes := b.Field("Notes")
	assert.False(t, hasNotes)

	assert.Equal(t, "book_shelf_entries", e.Table)
	assert.True(t, e.AutoCreated)
	assert.Nil(t, e.RemovedAt)
	assert.True(t, e.MustField("pos").Nullable)

	pk, ok := a.Field(PKAlias)
	require.True(t, ok)
	assert.Same(t, a.PK, pk)
}

func TestRegistry_Related(t *testing.T) {
	r, a, b, e := newTestRegistry(t)

	rel := r.Related(a)
	require.Len(t, rel, 2)
	assert.Same(t, b, rel[0].Model)
	assert.Equal(t, "author_id", rel[0].Field.Column)
	assert.Equal(t, "editor_id", rel[1].Field.Column)
	assert.Same(t, a.PK, rel[0].TargetField())

	rel = r.Related(b)
	require.Len(t, rel, 1)
	assert.Same(t, e, rel[0].Model)
	assert.Equal(t, Cascade, rel[0].OnDelete())

	assert.Empty(t, r.Related(e))
}

func TestRegistry_LookupAndErrors(t *testing.T) {
	r, a, _, _ := newTestRegistry(t)

	m, err := r.Lookup(&author{})
	require.NoError(t, err)
	assert.Same(t, a, m)

	m, err = r.Lookup([]*author{})
	require.NoError(t, err)
	assert.Same(t, a, m)

	_, err = r.Lookup(struct{}{})
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = r.Register(&author{})
	require.ErrorIs(t, err, common.ErrConfiguration, "duplicate registration")

	byName, ok := r.ByName("Book")
	require.True(t, ok)
	assert.Equal(t, "books", byName.Table)
	_, ok = r.ByTable("nope")
	assert.False(t, ok)
}

func TestRegister_InvalidModels(t *testing.T) {
	type noPK struct {
		Name string `db:"name"`
	}
	type twoPK struct {
		A int64 `db:"a,primary"`
		B int64 `db:"b,primary"`
	}
	type badFK struct {
		ID int64 `db:"id,primary"`
		X  int64 `db:"x,fk:nodot"`
	}
	type badOnDelete struct {
		ID int64 `db:"id,primary"`
		X  int64 `db:"x,fk:a.id,ondelete:explode"`
	}
	type badOption struct {
		ID int64 `db:"id,primary,shiny"`
	}

	for _, v := range []any{noPK{}, twoPK{}, badFK{}, badOnDelete{}, badOption{}, 42} {
		_, err := NewRegistry().Register(v)
		require.ErrorIs(t, err, common.ErrConfiguration, "%T", v)
	}

	_, err := NewRegistry().Register(&author{}, UniqueTogether("missing"))
	require.ErrorIs(t, err, common.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	type orphan struct {
		ID      int64 `db:"id,primary"`
		OwnerID int64 `db:"owner_id,fk:owners.id"`
	}
	r := NewRegistry()
	r.MustRegister(&orphan{})
	require.ErrorIs(t, r.Validate(), common.ErrConfiguration)

	type strictChild struct {
		ID       int64 `db:"id,primary"`
		AuthorID int64 `db:"author_id,fk:authors.id,ondelete:setnull"`
	}
	r = NewRegistry()
	r.MustRegister(&author{})
	r.MustRegister(&strictChild{})
	require.ErrorIs(t, r.Validate(), common.ErrConfiguration, "setnull on non-nullable column")
}

func TestModel_ValueAccess(t *testing.T) {
	_, a, b, e := newTestRegistry(t)

	rec := &book{ID: 3, AuthorID: 1}
	assert.Equal(t, int64(3), b.PKValue(rec))
	assert.True(t, b.HasPK(rec))
	assert.False(t, b.HasPK(&book{}))
	assert.False(t, b.Owns(&author{}))

	now := time.Now()
	require.NoError(t, b.SetValue(rec, b.RemovedAt, now))
	require.NotNil(t, rec.RemovedAt)
	assert.True(t, rec.RemovedAt.Equal(now))

	require.NoError(t, b.SetValue(rec, b.RemovedAt, nil))
	assert.Nil(t, rec.RemovedAt)

	require.NoError(t, b.SetValue(rec, b.MustField("editor_id"), int64(9)))
	require.NotNil(t, rec.EditorID)
	assert.Equal(t, int64(9), *rec.EditorID)

	require.NoError(t, b.SetValue(rec, b.MustField("editor_id"), nil))
	assert.Nil(t, rec.EditorID)

	require.NoError(t, b.SetValue(rec, b.PK, int32(12)))
	assert.Equal(t, int64(12), rec.ID)

	require.Error(t, b.SetValue(rec, b.MustField("title"), 5))

	shelf := &BookShelfEntry{}
	require.NoError(t, e.SetValue(shelf, e.MustField("pos"), int64(4)))
	assert.Equal(t, sql.NullInt64{Int64: 4, Valid: true}, shelf.Pos)

	dest := a.ScanDest(&author{})
	assert.Len(t, dest, len(a.Fields))
	_, ok := dest[0].(*int64)
	assert.True(t, ok)

	fresh := a.New()
	_, ok = fresh.(*author)
	assert.True(t, ok)
}

func TestSnakeAndPlural(t *testing.T) {
	assert.Equal(t, "refresh_token", snake("RefreshToken"))
	assert.Equal(t, "http_server", snake("HTTPServer"))
	assert.Equal(t, "entries", plural("entry"))
	assert.Equal(t, "keys", plural("key"))
	assert.Equal(t, "boxes", plural("box"))
	assert.Equal(t, "users", plural("user"))
}
