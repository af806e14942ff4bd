package query

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID        int64      `db:"id,primary"`
	OwnerID   int64      `db:"owner_id"`
	Title     string     `db:"title"`
	RemovedAt *time.Time `db:"removed_at"`
}

type link struct {
	ID     int64 `db:"id,primary"`
	NoteID int64 `db:"note_id"`
}

func testModels(t *testing.T) (*schema.Model, *schema.Model) {
	t.Helper()
	r := schema.NewRegistry()
	n, err := r.Register(&note{})
	require.NoError(t, err)
	l, err := r.Register(&link{})
	require.NoError(t, err)
	return n, l
}

func newSetWithMock(t *testing.T, d dbx.Dialect) (*Set, *Set, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	n, l := testModels(t)
	return New(db, d, n), New(db, d, l), mock
}

func TestSelectSQL_Shapes(t *testing.T) {
	n, _ := testModels(t)
	base := New(nil, dbx.SQLite, n)

	tests := []struct {
		name string
		set  *Set
		want string
		args []any
	}{
		{"all", base, "SELECT id, owner_id, title, removed_at FROM notes", nil},
		{"active", base.Scoped(ScopeActive), "SELECT id, owner_id, title, removed_at FROM notes WHERE removed_at IS NULL", nil},
		{"removed", base.Scoped(ScopeRemoved), "SELECT id, owner_id, title, removed_at FROM notes WHERE removed_at IS NOT NULL", nil},
		{
			"filter exclude order slice",
			base.Scoped(ScopeActive).Where(Eq("owner_id", 1), Gt("pk", 3)).Exclude(Eq("title", "x")).OrderBy("-id", "title").Limit(5).Offset(10),
			"SELECT id, owner_id, title, removed_at FROM notes WHERE owner_id = ? AND id > ? AND NOT (title = ?) AND removed_at IS NULL ORDER BY id DESC, title LIMIT 5 OFFSET 10",
			[]any{1, 3, "x"},
		},
		{"in", base.Where(In("id", 1, 2, 3)), "SELECT id, owner_id, title, removed_at FROM notes WHERE id IN (?, ?, ?)", []any{1, 2, 3}},
		{"empty in", base.Where(In("id")), "SELECT id, owner_id, title, removed_at FROM notes WHERE 1 = 0", nil},
		{"nil eq", base.Where(Eq("title", nil)), "SELECT id, owner_id, title, removed_at FROM notes WHERE title IS NULL", nil},
		{"offset only", base.Offset(2), "SELECT id, owner_id, title, removed_at FROM notes LIMIT -1 OFFSET 2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := tt.set.SelectSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestSelectSQL_PostgresAndErrors(t *testing.T) {
	n, l := testModels(t)

	q, _, err := New(nil, dbx.Postgres, n).Scoped(ScopeActive).Where(Eq("owner_id", 1), NotNull("title")).Offset(3).SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, owner_id, title, removed_at FROM notes WHERE owner_id = $1 AND title IS NOT NULL AND removed_at IS NULL OFFSET 3", q)

	_, _, err = New(nil, dbx.SQLite, n).Where(Eq("nope", 1)).SelectSQL()
	require.ErrorIs(t, err, common.ErrFieldDoesNotExist)

	_, _, err = New(nil, dbx.SQLite, n).OrderBy("-nope").SelectSQL()
	require.ErrorIs(t, err, common.ErrFieldDoesNotExist)

	// models without a removal column: active is everything, removed is nothing
	q, _, err = New(nil, dbx.SQLite, l).Scoped(ScopeActive).SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, note_id FROM links", q)

	q, _, err = New(nil, dbx.SQLite, l).Scoped(ScopeRemoved).SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, note_id FROM links WHERE 1 = 0", q)
}

func TestSet_IsImmutable(t *testing.T) {
	n, _ := testModels(t)
	base := New(nil, dbx.SQLite, n)
	_ = base.Where(Eq("owner_id", 1)).Scoped(ScopeRemoved).Limit(3)

	q, _, err := base.SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, owner_id, title, removed_at FROM notes", q)
	assert.Equal(t, ScopeAll, base.Scope())
	assert.False(t, base.Sliced())
}

func TestLoadAndGet(t *testing.T) {
	set, _, mock := newSetWithMock(t, dbx.SQLite)
	ctx := context.Background()
	removed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "owner_id", "title", "removed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title, removed_at FROM notes WHERE owner_id = ? ORDER BY id")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(7), "a", nil).
			AddRow(int64(2), int64(7), "b", removed))

	recs, err := set.Where(Eq("owner_id", 7)).OrderBy("id").Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	first := recs[0].(*note)
	assert.Equal(t, "a", first.Title)
	assert.Nil(t, first.RemovedAt)
	second := recs[1].(*note)
	require.NotNil(t, second.RemovedAt)
	assert.True(t, removed.Equal(*second.RemovedAt))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title, removed_at FROM notes WHERE id = ? LIMIT 2")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = set.Where(Eq("pk", 9)).Get(ctx)
	require.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, title, removed_at FROM notes WHERE owner_id = ? LIMIT 2")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), int64(7), "a", nil).AddRow(int64(2), int64(7), "b", nil))
	_, err = set.Where(Eq("owner_id", 7)).Get(ctx)
	require.ErrorIs(t, err, common.ErrMultipleObjects)

	mock.ExpectQuery("SELECT .* FROM notes").WillReturnError(errors.New("conn reset"))
	_, err = set.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn reset")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountExistsValues(t *testing.T) {
	set, _, mock := newSetWithMock(t, dbx.SQLite)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notes WHERE removed_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(4)))
	n, err := set.Scoped(ScopeActive).OrderBy("title").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM notes WHERE title = ? AND removed_at IS NOT NULL LIMIT 1")).
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	ok, err := set.Scoped(ScopeRemoved).Where(Eq("title", "x")).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM notes LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err = set.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM notes WHERE owner_id IN (?, ?)")).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))
	vals, err := set.ValuesBatch(ctx, "id", "owner_id", []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(10), int64(11)}, vals)

	_, err = set.Values(ctx, "nope")
	require.ErrorIs(t, err, common.ErrFieldDoesNotExist)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDelete(t *testing.T) {
	set, links, mock := newSetWithMock(t, dbx.Postgres)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notes SET removed_at = $1, title = $2 WHERE owner_id = $3 AND removed_at IS NULL")).
		WithArgs(now, "t", 5).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := set.Scoped(ScopeActive).Where(Eq("owner_id", 5)).Update(ctx, map[string]any{"title": "t", "removed_at": now})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// unknown column: fails before touching the database
	_, err = links.Update(ctx, map[string]any{"removed_at": now})
	require.ErrorIs(t, err, common.ErrFieldDoesNotExist)

	_, err = set.Limit(1).Update(ctx, map[string]any{"title": "t"})
	require.ErrorIs(t, err, common.ErrPrecondition)
	_, err = set.Offset(1).Delete(ctx)
	require.ErrorIs(t, err, common.ErrPrecondition)

	n, err = set.Update(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM links WHERE note_id = $1")).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = links.Where(Eq("note_id", 4)).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectExec("DELETE FROM links").WillReturnError(sql.ErrConnDone)
	_, err = links.Delete(ctx)
	require.ErrorIs(t, err, sql.ErrConnDone)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatches(t *testing.T) {
	set, _, mock := newSetWithMock(t, dbx.SQLite)
	ctx := context.Background()

	pks := make([]any, 0, 150)
	for i := 1; i <= 150; i++ {
		pks = append(pks, int64(i))
	}

	chunks := Chunks(pks, BatchSize)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 50)
	assert.Empty(t, Chunks(nil, 10))

	mock.ExpectExec(`UPDATE notes SET title = \? WHERE id IN \(\?(, \?){99}\)`).
		WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec(`UPDATE notes SET title = \? WHERE id IN \(\?(, \?){49}\)`).
		WillReturnResult(sqlmock.NewResult(0, 50))
	n, err := set.UpdateBatch(ctx, pks, map[string]any{"title": "z"})
	require.NoError(t, err)
	assert.Equal(t, int64(150), n)

	mock.ExpectExec(`DELETE FROM notes WHERE id IN \(\?(, \?){99}\)`).
		WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec(`DELETE FROM notes WHERE id IN`).
		WillReturnError(errors.New("disk full"))
	n, err = set.DeleteBatch(ctx, pks)
	require.Error(t, err)
	assert.Equal(t, int64(100), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
