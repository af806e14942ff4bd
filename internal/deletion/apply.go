package deletion

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/query"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
	"github.com/google/uuid"
)

// strategy is the terminal step of a collector run.
type strategy interface {
	action() signals.Action
	// affected narrows collected instances to those that will change.
	affected(ctx context.Context, tx dbx.DBTX, m *schema.Model, recs []any) ([]any, error)
	fast(ctx context.Context, set *query.Set) (int64, error)
	// nullifies reports whether setnull field updates run.
	nullifies() bool
	apply(ctx context.Context, tx dbx.DBTX, m *schema.Model, pks []any) (int64, error)
	// propagate mirrors the change on an in-memory instance after commit.
	propagate(m *schema.Model, rec any) error
}

// Delete physically removes the collected batch.
func (c *Collector) Delete(ctx context.Context) (Result, error) {
	return c.execute(ctx, hardDelete{dialect: c.opts.Dialect})
}

func (c *Collector) execute(ctx context.Context, s strategy) (res Result, err error) {
	started := time.Now()
	action := s.action()
	defer func() { c.opts.Metrics.Observe(string(action), started, err) }()

	c.sort()
	op := uuid.New()
	log := c.opts.Logger.With("action", string(action), "operation_id", op.String())

	affected := make(map[*schema.Model][]any, len(c.models))
	var nulled []*fieldUpdate

	err = dbx.WithTx(ctx, c.opts.Conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, m := range c.models {
			recs, err := s.affected(ctx, tx, m, c.data[m])
			if err != nil {
				return fmt.Errorf("%s %s: %w", action, m.Name, err)
			}
			affected[m] = recs
		}
		c.prune(affected)

		if err := c.publish(ctx, tx, signals.PreChange, action, op, affected); err != nil {
			return err
		}

		for _, fs := range c.fast {
			set, ok := c.fastTarget(fs)
			if !ok {
				continue
			}
			n, err := s.fast(ctx, set.Using(tx))
			if err != nil {
				return fmt.Errorf("%s %s: %w", action, set.Model().Name, err)
			}
			res.add(set.Model().Name, n)
		}

		if s.nullifies() {
			for _, m := range c.updated {
				for _, u := range c.updates[m] {
					recs := c.nulled(u)
					if len(recs) == 0 {
						continue
					}
					col := u.rel.Field.Column
					set := query.New(tx, c.opts.Dialect, m)
					if _, err := set.UpdateBatch(ctx, keysOf(m, recs), map[string]any{col: u.value}); err != nil {
						return fmt.Errorf("update %s.%s: %w", m.Name, col, err)
					}
					nulled = append(nulled, &fieldUpdate{rel: u.rel, value: u.value, instances: recs})
				}
			}
		}

		for _, m := range c.models {
			slices.Reverse(affected[m])
		}

		for _, m := range c.models {
			recs := affected[m]
			if len(recs) == 0 {
				continue
			}
			n, err := s.apply(ctx, tx, m, keysOf(m, recs))
			if err != nil {
				return fmt.Errorf("%s %s: %w", action, m.Name, err)
			}
			res.add(m.Name, n)
		}

		return c.publish(ctx, tx, signals.PostChange, action, op, affected)
	})
	if err != nil {
		log.Warn(ctx, "collector run rolled back", "error", err)
		return Result{}, err
	}

	for _, u := range nulled {
		for _, rec := range u.instances {
			if err := u.rel.Model.SetValue(rec, u.rel.Field, u.value); err != nil {
				return res, err
			}
		}
	}
	for m, recs := range affected {
		for _, rec := range recs {
			if err := s.propagate(m, rec); err != nil {
				return res, err
			}
		}
	}

	for model, n := range res.Counts {
		c.opts.Metrics.Affected(model, string(action), n)
	}
	log.Debug(ctx, "collector run committed", "models", len(c.models), "fast_sets", len(c.fast), "total", res.Total)

	return res, nil
}

func (c *Collector) publish(ctx context.Context, tx dbx.DBTX, sig signals.Signal, action signals.Action, op uuid.UUID, affected map[*schema.Model][]any) error {
	if c.opts.Signals == nil {
		return nil
	}
	for _, m := range c.models {
		if m.AutoCreated {
			continue
		}
		recs := affected[m]
		events := make([]signals.Event, len(recs))
		for i, rec := range recs {
			events[i] = signals.Event{
				Signal:      sig,
				Action:      action,
				Model:       m,
				Instance:    rec,
				Using:       c.opts.Using,
				Conn:        tx,
				OperationID: op,
			}
		}
		if err := c.opts.Signals.Publish(ctx, events...); err != nil {
			return err
		}
	}
	return nil
}

type hardDelete struct {
	dialect dbx.Dialect
}

func (hardDelete) action() signals.Action { return signals.ActionHardDelete }

func (hardDelete) affected(_ context.Context, _ dbx.DBTX, _ *schema.Model, recs []any) ([]any, error) {
	return append([]any(nil), recs...), nil
}

func (hardDelete) fast(ctx context.Context, set *query.Set) (int64, error) {
	return set.Delete(ctx)
}

func (h hardDelete) apply(ctx context.Context, tx dbx.DBTX, m *schema.Model, pks []any) (int64, error) {
	return query.New(tx, h.dialect, m).DeleteBatch(ctx, pks)
}

func (hardDelete) nullifies() bool { return true }

func (hardDelete) propagate(*schema.Model, any) error { return nil }
