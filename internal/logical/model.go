// Package logical is the entry point applications use for soft deletion.
//
// Entity types embed Model and are read and written through a typed
// Manager bound to a DB. Ordinary lookups see active rows only; the
// unfiltered and removed-only views are explicit:
//
//	entries := logical.MustManager[vault.Entry](db)
//	live, _ := entries.All().Filter(query.Eq("user_id", uid)).List(ctx)
//	bin, _ := entries.OnlyDeleted().List(ctx)
//	_, err := entries.Delete(ctx, entry) // entry and its dependents
package logical

import "time"

// Model carries the lifecycle columns of a participating record.
// RemovedAt is the only source of truth for the deleted state.
type Model struct {
	CreatedAt  time.Time  `db:"created_at"`
	ModifiedAt time.Time  `db:"modified_at"`
	RemovedAt  *time.Time `db:"removed_at"`
}

// IsActive reports whether the record is not logically deleted.
func (m Model) IsActive() bool { return m.RemovedAt == nil }
