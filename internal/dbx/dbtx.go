// Package dbx provides tiny DB abstractions shared by the ORM layer:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// and a helper that runs functions inside one atomic unit.
package dbx

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the subset of database/sql used by query sets and collectors.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner is implemented by handles able to open a transaction (*sql.DB, *sql.Conn).
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ErrNoTransactions is returned by WithTx when conn can neither begin a
// transaction nor is one.
var ErrNoTransactions = errors.New("dbx: handle does not support transactions")

// InTx reports whether conn is already an open transaction.
func InTx(conn DBTX) bool {
	_, ok := conn.(*sql.Tx)
	return ok
}

// WithTx runs fn inside an atomic unit and commits on success or rolls back
// on error/panic. Panics are rethrown.
//
// When conn already is a *sql.Tx the function joins it: fn runs on the
// outer transaction and commit/rollback stay with its owner.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, conn DBTX, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	if outer, ok := conn.(*sql.Tx); ok {
		return fn(ctx, outer)
	}

	b, ok := conn.(Beginner)
	if !ok {
		return ErrNoTransactions
	}

	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
