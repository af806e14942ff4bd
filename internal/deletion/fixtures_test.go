package deletion

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
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

type post struct {
	ID       int64  `db:"id,primary"`
	AuthorID int64  `db:"author_id,fk:authors.id,ondelete:cascade"`
	EditorID *int64 `db:"editor_id,fk:authors.id,ondelete:setnull"`
	Title    string `db:"title"`
	stamps
}

type comment struct {
	ID     int64  `db:"id,primary"`
	PostID int64  `db:"post_id,fk:posts.id,ondelete:cascade"`
	Body   string `db:"body"`
	stamps
}

type postTag struct {
	ID     int64  `db:"id,primary"`
	PostID int64  `db:"post_id,fk:posts.id,ondelete:cascade"`
	Tag    string `db:"tag"`
}

type session struct {
	ID       int64  `db:"id,primary"`
	AuthorID int64  `db:"author_id,fk:authors.id,ondelete:cascade"`
	Token    string `db:"token"`
}

type invoice struct {
	ID       int64 `db:"id,primary"`
	AuthorID int64 `db:"author_id,fk:authors.id,ondelete:restrict"`
	stamps
}

const fixtureDDL = `
CREATE TABLE authors (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	removed_at DATETIME NULL
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	author_id INTEGER NOT NULL REFERENCES authors(id),
	editor_id INTEGER NULL REFERENCES authors(id),
	title TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	removed_at DATETIME NULL
);
CREATE TABLE comments (
	id INTEGER PRIMARY KEY,
	post_id INTEGER NOT NULL REFERENCES posts(id),
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	removed_at DATETIME NULL
);
CREATE TABLE post_tags (
	id INTEGER PRIMARY KEY,
	post_id INTEGER NOT NULL REFERENCES posts(id),
	tag TEXT NOT NULL
);
CREATE TABLE sessions (
	id INTEGER PRIMARY KEY,
	author_id INTEGER NOT NULL REFERENCES authors(id),
	token TEXT NOT NULL
);
CREATE TABLE invoices (
	id INTEGER PRIMARY KEY,
	author_id INTEGER NOT NULL REFERENCES authors(id),
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	removed_at DATETIME NULL
);`

var (
	created = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	clock1  = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock2  = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
)

type fixture struct {
	db  *sql.DB
	reg *schema.Registry
	sig *signals.Dispatcher

	authors, posts, comments, postTags, sessions, invoices *schema.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "deletion.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(fixtureDDL)
	require.NoError(t, err)

	f := &fixture{db: db, reg: schema.NewRegistry(), sig: signals.NewDispatcher()}
	f.authors = f.reg.MustRegister(&author{}, schema.Name("Author"), schema.Table("authors"))
	f.posts = f.reg.MustRegister(&post{}, schema.Name("Post"), schema.Table("posts"))
	f.comments = f.reg.MustRegister(&comment{}, schema.Name("Comment"), schema.Table("comments"))
	f.postTags = f.reg.MustRegister(&postTag{}, schema.Name("PostTag"), schema.Table("post_tags"), schema.AutoCreated())
	f.sessions = f.reg.MustRegister(&session{}, schema.Name("Session"), schema.Table("sessions"))
	f.invoices = f.reg.MustRegister(&invoice{}, schema.Name("Invoice"), schema.Table("invoices"))
	require.NoError(t, f.reg.Validate())

	return f
}

func (f *fixture) opts(now time.Time) Options {
	return Options{
		Registry: f.reg,
		Conn:     f.db,
		Dialect:  dbx.SQLite,
		Signals:  f.sig,
		Now:      func() time.Time { return now },
	}
}

// seed builds two authors. The first one owns posts 10 and 11; post 10 has
// comments and tags; author 2 owns post 20, edited by author 1.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	exec := func(q string, args ...any) {
		t.Helper()
		_, err := f.db.Exec(q, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO authors (id, name, created_at, modified_at) VALUES (1, 'ann', ?, ?), (2, 'bob', ?, ?)`, created, created, created, created)
	exec(`INSERT INTO posts (id, author_id, editor_id, title, created_at, modified_at) VALUES
		(10, 1, NULL, 'first', ?, ?), (11, 1, NULL, 'second', ?, ?), (20, 2, 1, 'bobs', ?, ?)`,
		created, created, created, created, created, created)
	exec(`INSERT INTO comments (id, post_id, body, created_at, modified_at) VALUES
		(100, 10, 'c1', ?, ?), (101, 10, 'c2', ?, ?), (200, 20, 'c3', ?, ?)`,
		created, created, created, created, created, created)
	exec(`INSERT INTO post_tags (id, post_id, tag) VALUES (1, 10, 'go'), (2, 20, 'sql')`)
	exec(`INSERT INTO sessions (id, author_id, token) VALUES (1, 1, 't1'), (2, 2, 't2')`)
}

func (f *fixture) load(t *testing.T, m *schema.Model, id int64) any {
	t.Helper()
	rows, err := f.db.Query("SELECT "+joinColumns(m)+" FROM "+m.Table+" WHERE id = ?", id)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next(), "%s %d not found", m.Name, id)
	rec := m.New()
	require.NoError(t, rows.Scan(m.ScanDest(rec)...))
	return rec
}

func (f *fixture) removedAt(t *testing.T, table string, id int64) sql.NullTime {
	t.Helper()
	var v sql.NullTime
	require.NoError(t, f.db.QueryRow("SELECT removed_at FROM "+table+" WHERE id = ?", id).Scan(&v))
	return v
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func joinColumns(m *schema.Model) string {
	out := ""
	for i, c := range m.Columns() {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func must(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}

var bg = context.Background()
