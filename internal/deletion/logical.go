package deletion

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
)

// LogicalCollector reuses Collector discovery and replaces the terminal
// DELETE with an UPDATE of the removal column.
//
// Records already in the target state are left alone, and so is everything
// collected below them: deleting a removed record keeps its original
// timestamp and emits nothing, and so does restoring an active one.
// Undelete does not run setnull field updates.
type LogicalCollector struct {
	*Collector
}

func NewLogicalCollector(opts Options) *LogicalCollector {
	return &LogicalCollector{Collector: NewCollector(opts)}
}

// Collect adds root records; their type must carry a removal column.
func (c *LogicalCollector) Collect(ctx context.Context, m *schema.Model, recs []any) error {
	if err := requireRemovable(m); err != nil {
		return err
	}
	return c.Collector.Collect(ctx, m, recs)
}

// CollectSet adds every record of set as a root.
func (c *LogicalCollector) CollectSet(ctx context.Context, set *query.Set) error {
	if err := requireRemovable(set.Model()); err != nil {
		return err
	}
	return c.Collector.CollectSet(ctx, set)
}

// Delete stamps the removal column of the collected batch with Options.Now.
func (c *LogicalCollector) Delete(ctx context.Context) (Result, error) {
	if err := c.checkCollected(); err != nil {
		return Result{}, err
	}
	return c.execute(ctx, logicalChange{
		dialect: c.opts.Dialect,
		logger:  c.opts.Logger,
		value:   c.opts.Now(),
		from:    query.ScopeActive,
		act:     signals.ActionSoftDelete,
	})
}

// Undelete clears the removal column of the collected batch.
func (c *LogicalCollector) Undelete(ctx context.Context) (Result, error) {
	if err := c.checkCollected(); err != nil {
		return Result{}, err
	}
	return c.execute(ctx, logicalChange{
		dialect: c.opts.Dialect,
		logger:  c.opts.Logger,
		value:   nil,
		from:    query.ScopeRemoved,
		act:     signals.ActionRestore,
	})
}

// checkCollected: every non fast-path type in the batch must be removable.
// Leaf types without the column are skipped.
func (c *LogicalCollector) checkCollected() error {
	for _, m := range c.models {
		if m.RemovedAt == nil && !c.hasDependents(m) {
			continue
		}
		if err := requireRemovable(m); err != nil {
			return err
		}
	}
	return nil
}

func requireRemovable(m *schema.Model) error {
	if m.RemovedAt == nil {
		return fmt.Errorf("%w: %s has no %s column and cannot be logically deleted",
			common.ErrConfiguration, m.Name, schema.ColumnRemovedAt)
	}
	return nil
}

type logicalChange struct {
	dialect dbx.Dialect
	logger  logging.Logger
	// value is a time.Time when deleting, nil when restoring.
	value any
	// from is the scope of rows that hold the source state.
	from query.Scope
	act  signals.Action
}

func (l logicalChange) action() signals.Action { return l.act }

func (l logicalChange) affected(ctx context.Context, tx dbx.DBTX, m *schema.Model, recs []any) ([]any, error) {
	if len(recs) == 0 || m.RemovedAt == nil {
		return nil, nil
	}
	keys, err := query.New(tx, l.dialect, m).Scoped(l.from).KeysIn(ctx, keysOf(m, recs))
	if err != nil {
		return nil, err
	}
	pending := make(map[any]struct{}, len(keys))
	for _, k := range keys {
		pending[k] = struct{}{}
	}

	out := make([]any, 0, len(keys))
	for _, r := range recs {
		if _, ok := pending[m.PKValue(r)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l logicalChange) values() map[string]any {
	return map[string]any{schema.ColumnRemovedAt: l.value}
}

// fast narrows set to rows in the source state on top of the caller's scope.
func (l logicalChange) fast(ctx context.Context, set *query.Set) (int64, error) {
	m := set.Model()
	if m.RemovedAt == nil {
		l.logger.Debug(ctx, "fast path skipped, no removal column", "model", m.Name)
		return 0, nil
	}
	cond := query.IsNull(m.RemovedAt.Column)
	if l.from == query.ScopeRemoved {
		cond = query.NotNull(m.RemovedAt.Column)
	}
	return set.Where(cond).Update(ctx, l.values())
}

func (l logicalChange) nullifies() bool { return l.from == query.ScopeActive }

func (l logicalChange) apply(ctx context.Context, tx dbx.DBTX, m *schema.Model, pks []any) (int64, error) {
	return query.New(tx, l.dialect, m).Scoped(l.from).UpdateBatch(ctx, pks, l.values())
}

func (l logicalChange) propagate(m *schema.Model, rec any) error {
	return m.SetValue(rec, m.RemovedAt, l.value)
}
