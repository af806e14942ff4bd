package logical

import (
	"context"

	"github.com/dmitrijs2005/logicaldelete/internal/deletion"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
)

// QuerySet is a typed, immutable view over query.Set.
type QuerySet[T any] struct {
	db  *DB
	set *query.Set
}

// Set exposes the untyped query set, e.g. for a collector.
func (qs *QuerySet[T]) Set() *query.Set { return qs.set }

func (qs *QuerySet[T]) Scope() query.Scope { return qs.set.Scope() }

func (qs *QuerySet[T]) with(set *query.Set) *QuerySet[T] {
	return &QuerySet[T]{db: qs.db, set: set}
}

func (qs *QuerySet[T]) Filter(conds ...query.Cond) *QuerySet[T]  { return qs.with(qs.set.Where(conds...)) }
func (qs *QuerySet[T]) Exclude(conds ...query.Cond) *QuerySet[T] { return qs.with(qs.set.Exclude(conds...)) }

// OrderBy sorts by columns; a leading "-" sorts descending.
func (qs *QuerySet[T]) OrderBy(columns ...string) *QuerySet[T] {
	return qs.with(qs.set.OrderBy(columns...))
}

func (qs *QuerySet[T]) Limit(n int) *QuerySet[T]  { return qs.with(qs.set.Limit(n)) }
func (qs *QuerySet[T]) Offset(n int) *QuerySet[T] { return qs.with(qs.set.Offset(n)) }

func (qs *QuerySet[T]) List(ctx context.Context) ([]*T, error) {
	recs, err := qs.set.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(recs))
	for i, r := range recs {
		out[i] = r.(*T)
	}
	return out, nil
}

func (qs *QuerySet[T]) First(ctx context.Context) (*T, error) {
	rec, err := qs.set.First(ctx)
	if err != nil {
		return nil, err
	}
	return rec.(*T), nil
}

func (qs *QuerySet[T]) Get(ctx context.Context) (*T, error) {
	rec, err := qs.set.Get(ctx)
	if err != nil {
		return nil, err
	}
	return rec.(*T), nil
}

func (qs *QuerySet[T]) Count(ctx context.Context) (int64, error) { return qs.set.Count(ctx) }
func (qs *QuerySet[T]) Exists(ctx context.Context) (bool, error) { return qs.set.Exists(ctx) }

// Update sets columns on every matched row. No relations are followed.
func (qs *QuerySet[T]) Update(ctx context.Context, values map[string]any) (int64, error) {
	return qs.set.Update(ctx, values)
}

// Delete logically deletes every matched record and its dependents in one
// transaction.
func (qs *QuerySet[T]) Delete(ctx context.Context) (deletion.Result, error) {
	c := deletion.NewLogicalCollector(qs.db.CollectorOptions())
	if err := c.CollectSet(ctx, qs.set); err != nil {
		return deletion.Result{}, err
	}
	return c.Delete(ctx)
}

// Undelete restores every matched record. Start from OnlyDeleted or
// Everything: the active scope matches nothing to restore.
func (qs *QuerySet[T]) Undelete(ctx context.Context) (deletion.Result, error) {
	c := deletion.NewLogicalCollector(qs.db.CollectorOptions())
	if err := c.CollectSet(ctx, qs.set); err != nil {
		return deletion.Result{}, err
	}
	return c.Undelete(ctx)
}

// DeleteComplete physically deletes every matched record and its dependents.
func (qs *QuerySet[T]) DeleteComplete(ctx context.Context) (deletion.Result, error) {
	c := deletion.NewCollector(qs.db.CollectorOptions())
	if err := c.CollectSet(ctx, qs.set); err != nil {
		return deletion.Result{}, err
	}
	return c.Delete(ctx)
}

// Remove issues a raw DELETE for the matched rows: no collection, no
// signals, no cascade beyond what the database enforces.
func (qs *QuerySet[T]) Remove(ctx context.Context) (int64, error) {
	return qs.set.Delete(ctx)
}
