package logical

import (
	"context"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/deletion"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"github.com/dmitrijs2005/logicaldelete/internal/metrics"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
)

// DB binds a connection to the registry and the collaborators every
// manager shares. A DB is immutable; Bind returns a copy.
type DB struct {
	conn     dbx.DBTX
	dialect  dbx.Dialect
	registry *schema.Registry
	signals  *signals.Dispatcher
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	alias    string
}

type Option func(*DB)

func WithSignals(d *signals.Dispatcher) Option { return func(db *DB) { db.signals = d } }
func WithLogger(l logging.Logger) Option       { return func(db *DB) { db.logger = l } }
func WithMetrics(m *metrics.Metrics) Option    { return func(db *DB) { db.metrics = m } }

// WithClock replaces time.Now for every timestamp the managers write.
func WithClock(now func() time.Time) Option { return func(db *DB) { db.now = now } }

// WithAlias names the connection in signal events.
func WithAlias(alias string) Option { return func(db *DB) { db.alias = alias } }

func New(conn dbx.DBTX, dialect dbx.Dialect, reg *schema.Registry, opts ...Option) *DB {
	db := &DB{
		conn:     conn,
		dialect:  dialect,
		registry: reg,
		logger:   logging.Nop{},
		now:      time.Now,
		alias:    common.DefaultAlias,
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

func (db *DB) Conn() dbx.DBTX               { return db.conn }
func (db *DB) Dialect() dbx.Dialect         { return db.dialect }
func (db *DB) Registry() *schema.Registry   { return db.registry }
func (db *DB) Signals() *signals.Dispatcher { return db.signals }
func (db *DB) Logger() logging.Logger       { return db.logger }
func (db *DB) Alias() string                { return db.alias }
func (db *DB) Now() time.Time               { return db.now() }

// Bind returns a copy of db running on conn, typically a transaction.
// Collector runs of the copy join that transaction instead of opening one.
func (db *DB) Bind(conn dbx.DBTX) *DB {
	c := *db
	c.conn = conn
	return &c
}

// Atomic runs fn inside one transaction with a DB bound to it.
func (db *DB) Atomic(ctx context.Context, fn func(ctx context.Context, db *DB) error) error {
	return dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, db.Bind(tx))
	})
}

// CollectorOptions configures a collector running on db.
func (db *DB) CollectorOptions() deletion.Options {
	return deletion.Options{
		Registry: db.registry,
		Conn:     db.conn,
		Dialect:  db.dialect,
		Using:    db.alias,
		Signals:  db.signals,
		Logger:   db.logger,
		Metrics:  db.metrics,
		Now:      db.now,
	}
}
