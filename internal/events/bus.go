package events

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"medportal/pkg/logger"
)

// Handler reacts to a published event. Returned errors are logged by the bus
// and never reach the publisher.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a plain function to Handler. Function values have no
// identity in Go, so every Subscribe with a HandlerFunc creates a new entry
// that must be released through its Subscription.
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Subscription is one handler's interest in one event name. It belongs to
// whoever called Subscribe; the bus never releases it on its own.
type Subscription struct {
	bus     *Bus
	name    EventName
	handler Handler
	active  atomic.Bool
	once    sync.Once
}

func (s *Subscription) Name() EventName {
	return s.name
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Unsubscribe removes this entry from the bus. Safe to call more than once
// and from inside a handler. Publishes that start after it returns, and later
// handlers of a publish running on the same goroutine, skip the entry. A
// publish already dispatching to this entry on another goroutine may still
// complete its call; handlers that must stay silent after release keep their
// own closed flag.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		if s.bus != nil {
			s.bus.remove(s.name, func(other *Subscription) bool { return other == s })
		}
	})
}

// Bus is an in-process publish/subscribe registry keyed by event name.
//
// Delivery is live only: an event published while nobody is subscribed to its
// name is dropped. Consumers load current state when they start and then
// subscribe, and must not assume delivery implies anything about the store.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventName][]*Subscription
	log  *logger.Logger
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[EventName][]*Subscription),
		log:  logger.OrNop(log).Named("events"),
	}
}

// Subscribe appends handler to the ordered list for name. Registering the same
// comparable handler twice returns the existing subscription instead of
// adding a second entry. Names outside the known set, and nil handlers, get
// an inactive subscription that never fires.
func (b *Bus) Subscribe(name EventName, handler Handler) *Subscription {
	if !name.Valid() || handler == nil {
		b.log.Warn("subscription rejected", zap.String("event", string(name)), zap.Bool("nil_handler", handler == nil))
		return &Subscription{name: name, handler: handler}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subs[name] {
		if sameHandler(existing.handler, handler) {
			return existing
		}
	}

	sub := &Subscription{bus: b, name: name, handler: handler}
	sub.active.Store(true)
	b.subs[name] = append(b.subs[name], sub)
	return sub
}

// Unsubscribe removes every entry for name registered with handler. Unknown
// handlers are ignored.
func (b *Bus) Unsubscribe(name EventName, handler Handler) {
	for _, sub := range b.remove(name, func(s *Subscription) bool { return sameHandler(s.handler, handler) }) {
		sub.Unsubscribe()
	}
}

// Publish delivers ev to every handler subscribed to its name, in
// registration order, on the calling goroutine. Handlers see a snapshot of the
// list taken on entry, so they may subscribe or unsubscribe freely; entries
// released before their turn are skipped. Handler errors and panics are
// logged and delivery moves on to the next handler.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev == nil {
		return
	}
	name := ev.Name()
	if !name.Valid() {
		b.log.With(ctx).Error("unknown event published", zap.String("event", string(name)))
		return
	}

	b.mu.RLock()
	snapshot := make([]*Subscription, len(b.subs[name]))
	copy(snapshot, b.subs[name])
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		b.log.With(ctx).Debug("event dropped, no subscribers", zap.String("event", string(name)))
		return
	}

	for i, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		if err := b.invoke(ctx, sub, ev); err != nil {
			b.log.With(ctx).Error("event handler failed",
				zap.String("event", string(name)),
				zap.Int("position", i),
				zap.Error(err),
			)
		}
	}
}

// SubscriberCount returns how many entries are registered for name.
func (b *Bus) SubscriberCount(name EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) invoke(ctx context.Context, sub *Subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler.Handle(ctx, ev)
}

// remove drops the matching entries for name and returns them.
func (b *Bus) remove(name EventName, match func(*Subscription) bool) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[name]
	kept := make([]*Subscription, 0, len(current))
	var removed []*Subscription
	for _, sub := range current {
		if match(sub) {
			removed = append(removed, sub)
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == 0 {
		delete(b.subs, name)
	} else {
		b.subs[name] = kept
	}
	return removed
}

// sameHandler compares handler identity. Handlers whose dynamic type cannot
// be compared (function adapters, structs holding slices or maps) never
// match anything.
func sameHandler(a, b Handler) (same bool) {
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
