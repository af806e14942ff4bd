// Package deletion collects the dependency graph of records about to change
// state and applies the change inside one atomic unit.
//
// Discovery is shared: Collector walks reverse foreign keys from the root
// records, cascading, queuing set-null field updates, refusing on restrict
// and routing leaf relations without receivers into fast batch statements.
// What happens to the collected batch is a strategy: Collector.Delete
// removes rows, LogicalCollector stamps or clears the removal column.
package deletion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"github.com/dmitrijs2005/logicaldelete/internal/metrics"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
)

// Options wires a collector to its database.
type Options struct {
	Registry *schema.Registry
	Conn     dbx.DBTX
	Dialect  dbx.Dialect
	// Using names the connection in signal events.
	Using   string
	Signals *signals.Dispatcher
	Logger  logging.Logger
	Metrics *metrics.Metrics
	// Now stamps logical deletions. Defaults to time.Now.
	Now func() time.Time
}

// Result counts the rows changed per entity type.
type Result struct {
	Total  int64
	Counts map[string]int64
}

func (r *Result) add(model string, n int64) {
	if n == 0 {
		return
	}
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[model] += n
	r.Total += n
}

type fieldUpdate struct {
	rel       *schema.Relation
	value     any
	instances []any
}

// fastSet is a batch statement target. Sets reached through a relation keep
// the parent values they were built from so a run can drop the ones whose
// parent does not change.
type fastSet struct {
	set  *query.Set
	via  *schema.Relation
	keys []any
}

// Collector is single use: collect, then apply once.
type Collector struct {
	opts Options

	models  []*schema.Model
	data    map[*schema.Model][]any
	seen    map[*schema.Model]map[any]struct{}
	deps    map[*schema.Model]map[*schema.Model]struct{}
	fast    []fastSet
	updated []*schema.Model
	updates map[*schema.Model][]*fieldUpdate

	// roots and links record how each instance was reached, keyed by pk.
	roots map[*schema.Model]map[any]struct{}
	links map[*schema.Model]map[any][]*schema.Relation
	// kept indexes the referenced values of instances a run changes.
	kept map[*schema.Model]map[*schema.Field]map[any]struct{}
}

func NewCollector(opts Options) *Collector {
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	if opts.Using == "" {
		opts.Using = common.DefaultAlias
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		opts:    opts,
		data:    make(map[*schema.Model][]any),
		seen:    make(map[*schema.Model]map[any]struct{}),
		deps:    make(map[*schema.Model]map[*schema.Model]struct{}),
		updates: make(map[*schema.Model][]*fieldUpdate),
		roots:   make(map[*schema.Model]map[any]struct{}),
		links:   make(map[*schema.Model]map[any][]*schema.Relation),
	}
}

// Collect adds root records of model m and everything depending on them.
func (c *Collector) Collect(ctx context.Context, m *schema.Model, recs []any) error {
	for _, r := range recs {
		if !m.Owns(r) {
			return fmt.Errorf("%w: %T is not a %s", common.ErrConfiguration, r, m.Name)
		}
		if !m.HasPK(r) {
			return fmt.Errorf("%w: %s object can't be deleted because its %s attribute is not set",
				common.ErrPrecondition, m.Name, m.PK.Column)
		}
	}
	return c.collect(ctx, m, recs, nil)
}

// CollectSet adds every record of set as a root. A set whose model has no
// dependents and no receivers is queued as a single fast statement.
func (c *Collector) CollectSet(ctx context.Context, set *query.Set) error {
	if set.Sliced() {
		return fmt.Errorf("%w: cannot use limit or offset with delete", common.ErrPrecondition)
	}
	m := set.Model()
	if c.canFastDelete(m) {
		c.fast = append(c.fast, fastSet{set: set})
		return nil
	}
	recs, err := set.Using(c.opts.Conn).Load(ctx)
	if err != nil {
		return fmt.Errorf("collect %s: %w", m.Name, err)
	}
	return c.collect(ctx, m, recs, nil)
}

// Instances returns the collected records of m in collection order.
func (c *Collector) Instances(m *schema.Model) []any {
	return append([]any(nil), c.data[m]...)
}

// Models returns the collected entity types.
func (c *Collector) Models() []*schema.Model {
	return append([]*schema.Model(nil), c.models...)
}

// Preview counts what the batch would touch, per entity type, without
// mutating anything. Fast-path sets are counted with one query each.
func (c *Collector) Preview(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(c.models))
	for _, m := range c.models {
		out[m.Name] += int64(len(c.data[m]))
	}
	for _, fs := range c.fast {
		n, err := fs.set.Using(c.opts.Conn).Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("preview %s: %w", fs.set.Model().Name, err)
		}
		if n > 0 {
			out[fs.set.Model().Name] += n
		}
	}
	return out, nil
}

func (c *Collector) add(m *schema.Model, recs []any, via *schema.Relation) []any {
	if len(recs) == 0 {
		return nil
	}

	seen, ok := c.seen[m]
	if !ok {
		seen = make(map[any]struct{})
		c.seen[m] = seen
		c.models = append(c.models, m)
	}

	var added []any
	for _, r := range recs {
		k := m.PKValue(r)
		c.link(m, k, via)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		added = append(added, r)
	}
	c.data[m] = append(c.data[m], added...)

	// parents wait for their children
	if via != nil && via.Target != m && len(added) > 0 {
		if c.deps[via.Target] == nil {
			c.deps[via.Target] = make(map[*schema.Model]struct{})
		}
		c.deps[via.Target][m] = struct{}{}
	}
	return added
}

func (c *Collector) link(m *schema.Model, k any, via *schema.Relation) {
	if via == nil {
		if c.roots[m] == nil {
			c.roots[m] = make(map[any]struct{})
		}
		c.roots[m][k] = struct{}{}
		return
	}
	if c.links[m] == nil {
		c.links[m] = make(map[any][]*schema.Relation)
	}
	for _, rel := range c.links[m][k] {
		if rel.Field == via.Field {
			return
		}
	}
	c.links[m][k] = append(c.links[m][k], via)
}

func (c *Collector) collect(ctx context.Context, m *schema.Model, recs []any, via *schema.Relation) error {
	added := c.add(m, recs, via)
	if len(added) == 0 {
		return nil
	}

	for _, rel := range c.opts.Registry.Related(m) {
		od := rel.OnDelete()
		if od == schema.DoNothing {
			continue
		}

		keys := distinct(m, rel.TargetField(), added)
		if len(keys) == 0 {
			continue
		}
		child := query.New(c.opts.Conn, c.opts.Dialect, rel.Model)

		if od == schema.Cascade && c.canFastDelete(rel.Model) {
			for _, chunk := range query.Chunks(keys, query.BatchSize) {
				c.fast = append(c.fast, fastSet{set: child.Where(query.In(rel.Field.Column, chunk...)), via: rel, keys: chunk})
			}
			continue
		}

		subs, err := child.LoadBatch(ctx, rel.Field.Column, keys)
		if err != nil {
			return fmt.Errorf("collect %s via %s.%s: %w", rel.Model.Name, rel.Model.Table, rel.Field.Column, err)
		}
		if len(subs) == 0 {
			continue
		}

		switch od {
		case schema.Cascade:
			if err := c.collect(ctx, rel.Model, subs, rel); err != nil {
				return err
			}
		case schema.SetNull:
			if !rel.Field.Nullable {
				return fmt.Errorf("%w: %s.%s is setnull but not nullable", common.ErrConfiguration, rel.Model.Name, rel.Field.Column)
			}
			c.addFieldUpdate(rel, nil, subs)
		case schema.Restrict:
			return &common.ProtectedError{Model: m.Name, Related: rel.Model.Name, Field: rel.Field.Column, Count: len(subs)}
		}
	}
	return nil
}

// canFastDelete: no receivers to notify and nothing further down the graph.
func (c *Collector) canFastDelete(m *schema.Model) bool {
	if !m.AutoCreated && c.opts.Signals.HasReceivers(m) {
		return false
	}
	return !c.hasDependents(m)
}

// hasDependents reports whether any relation into m does more than nothing.
func (c *Collector) hasDependents(m *schema.Model) bool {
	for _, rel := range c.opts.Registry.Related(m) {
		if rel.OnDelete() != schema.DoNothing {
			return true
		}
	}
	return false
}

func (c *Collector) addFieldUpdate(rel *schema.Relation, value any, recs []any) {
	m := rel.Model
	if _, ok := c.updates[m]; !ok {
		c.updated = append(c.updated, m)
	}
	for _, u := range c.updates[m] {
		if u.rel.Field == rel.Field && u.value == value {
			u.instances = append(u.instances, recs...)
			return
		}
	}
	c.updates[m] = append(c.updates[m], &fieldUpdate{rel: rel, value: value, instances: recs})
}

// prune narrows affected to the instances reachable from an affected root
// through affected parents. An instance that keeps its state stops the walk
// below it, so a repeated run leaves dependents changed since alone.
func (c *Collector) prune(affected map[*schema.Model][]any) {
	c.kept = make(map[*schema.Model]map[*schema.Field]map[any]struct{})
	kept := make(map[*schema.Model]map[any]struct{}, len(affected))

	// cycles can reach a model again after it was visited
	for changed := true; changed; {
		changed = false
		for _, m := range c.models {
			for _, rec := range affected[m] {
				k := m.PKValue(rec)
				if _, ok := kept[m][k]; ok {
					continue
				}
				if _, root := c.roots[m][k]; !root && !c.reached(m, k, rec) {
					continue
				}
				if kept[m] == nil {
					kept[m] = make(map[any]struct{})
				}
				kept[m][k] = struct{}{}
				c.keep(m, rec)
				changed = true
			}
		}
	}

	for _, m := range c.models {
		out := make([]any, 0, len(kept[m]))
		for _, rec := range affected[m] {
			if _, ok := kept[m][m.PKValue(rec)]; ok {
				out = append(out, rec)
			}
		}
		affected[m] = out
	}
}

func (c *Collector) reached(m *schema.Model, k any, rec any) bool {
	for _, rel := range c.links[m][k] {
		if c.keptParent(rel, m.Scalar(rec, rel.Field)) {
			return true
		}
	}
	return false
}

func (c *Collector) keep(m *schema.Model, rec any) {
	for _, rel := range c.opts.Registry.Related(m) {
		f := rel.TargetField()
		v := m.Scalar(rec, f)
		if v == nil {
			continue
		}
		if c.kept[m] == nil {
			c.kept[m] = make(map[*schema.Field]map[any]struct{})
		}
		if c.kept[m][f] == nil {
			c.kept[m][f] = make(map[any]struct{})
		}
		c.kept[m][f][v] = struct{}{}
	}
}

func (c *Collector) keptParent(rel *schema.Relation, v any) bool {
	if v == nil {
		return false
	}
	_, ok := c.kept[rel.Target][rel.TargetField()][v]
	return ok
}

// fastTarget returns the statement target of fs restricted to changing
// parents, or false when none of them changes.
func (c *Collector) fastTarget(fs fastSet) (*query.Set, bool) {
	if fs.via == nil {
		return fs.set, true
	}
	keys := make([]any, 0, len(fs.keys))
	for _, k := range fs.keys {
		if c.keptParent(fs.via, k) {
			keys = append(keys, k)
		}
	}
	switch len(keys) {
	case 0:
		return nil, false
	case len(fs.keys):
		return fs.set, true
	}
	return query.New(c.opts.Conn, c.opts.Dialect, fs.via.Model).Where(query.In(fs.via.Field.Column, keys...)), true
}

// nulled returns the instances of u whose referenced parent changes.
func (c *Collector) nulled(u *fieldUpdate) []any {
	var out []any
	for _, rec := range u.instances {
		if c.keptParent(u.rel, u.rel.Model.Scalar(rec, u.rel.Field)) {
			out = append(out, rec)
		}
	}
	return out
}

// sort orders instances by key and models so that children come before
// the parents they reference. Cyclic graphs keep collection order.
func (c *Collector) sort() {
	for m, recs := range c.data {
		sort.SliceStable(recs, func(i, j int) bool {
			return lessKey(m.PKValue(recs[i]), m.PKValue(recs[j]))
		})
	}

	sorted := make([]*schema.Model, 0, len(c.models))
	done := make(map[*schema.Model]bool, len(c.models))
	for len(sorted) < len(c.models) {
		progressed := false
		for _, m := range c.models {
			if done[m] {
				continue
			}
			ready := true
			for dep := range c.deps[m] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, m)
				done[m] = true
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
	c.models = sorted
}

func distinct(m *schema.Model, f *schema.Field, recs []any) []any {
	seen := make(map[any]struct{}, len(recs))
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		v := m.Scalar(r, f)
		if v == nil {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func keysOf(m *schema.Model, recs []any) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = m.PKValue(r)
	}
	return out
}

func lessKey(a, b any) bool {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return x < y
		}
	case int:
		if y, ok := b.(int); ok {
			return x < y
		}
	case int32:
		if y, ok := b.(int32); ok {
			return x < y
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
