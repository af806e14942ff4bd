// Package signals is a synchronous, ordered lifecycle notification bus.
//
// Collectors publish one event per affected instance right before and
// right after the storage mutation of a batch. Receivers run on the
// caller's goroutine, inside the caller's transaction; a receiver error
// aborts the whole operation.
package signals

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/google/uuid"
)

// Signal identifies the moment of a state change.
type Signal int

const (
	PreChange Signal = iota
	PostChange
)

func (s Signal) String() string {
	if s == PreChange {
		return "pre_change"
	}
	return "post_change"
}

// Action is the kind of state change.
type Action string

const (
	ActionSoftDelete Action = "soft_delete"
	ActionRestore    Action = "restore"
	ActionHardDelete Action = "hard_delete"
)

// Event describes a single instance passing through a state change.
type Event struct {
	Signal   Signal
	Action   Action
	Model    *schema.Model
	Instance any
	// Using names the connection the operation runs on.
	Using string
	// Conn is the transaction the operation runs in.
	Conn dbx.DBTX
	// OperationID is shared by every event of one collector run.
	OperationID uuid.UUID
}

// Receiver handles one event.
type Receiver func(ctx context.Context, ev Event) error

type subscription struct {
	id     uuid.UUID
	sender *schema.Model
	fn     Receiver
}

// Dispatcher keeps receivers per signal in connection order.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[Signal][]subscription
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[Signal][]subscription)}
}

// ConnectOption narrows a subscription.
type ConnectOption func(*subscription)

// Sender restricts the receiver to events about model m.
func Sender(m *schema.Model) ConnectOption {
	return func(s *subscription) { s.sender = m }
}

// Connect registers fn for sig and returns a function removing it.
func (d *Dispatcher) Connect(sig Signal, fn Receiver, opts ...ConnectOption) (disconnect func()) {
	sub := subscription{id: uuid.New(), fn: fn}
	for _, o := range opts {
		o(&sub)
	}

	d.mu.Lock()
	d.subs[sig] = append(d.subs[sig], sub)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		list := d.subs[sig]
		for i, s := range list {
			if s.id == sub.id {
				d.subs[sig] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// HasReceivers reports whether any receiver would get events about m.
// A nil dispatcher has none.
func (d *Dispatcher) HasReceivers(m *schema.Model) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, list := range d.subs {
		for _, s := range list {
			if s.sender == nil || s.sender == m {
				return true
			}
		}
	}
	return false
}

// Publish delivers events in order. The first receiver error stops delivery
// and is returned.
func (d *Dispatcher) Publish(ctx context.Context, events ...Event) error {
	if d == nil || len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		d.mu.RLock()
		list := append([]subscription(nil), d.subs[ev.Signal]...)
		d.mu.RUnlock()

		for _, s := range list {
			if s.sender != nil && s.sender != ev.Model {
				continue
			}
			if err := s.fn(ctx, ev); err != nil {
				return fmt.Errorf("%s receiver for %s: %w", ev.Signal, ev.Model, err)
			}
		}
	}
	return nil
}
