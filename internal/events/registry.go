// Package events keeps the ordered listener lists for native event streams.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinywideclouds/go-mobilemessaging-bridge/pkg/bridge"
)

// Listener receives one event payload.
type Listener func(payload any)

// SubscriptionID identifies one subscription; it is what Unsubscribe takes.
type SubscriptionID uint64

type entry struct {
	id       SubscriptionID
	listener Listener
}

// table is never mutated once published.
type table map[bridge.Event][]entry

// Registry maps event names to listeners in registration order. Fire reads an
// immutable snapshot without locking; writers copy the affected list and swap
// the whole table.
type Registry struct {
	mu     sync.Mutex
	nextID SubscriptionID
	tables atomic.Pointer[table]
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger.With("component", "EventRegistry")}
	empty := table{}
	r.tables.Store(&empty)
	return r
}

// Subscribe appends listener to event's list. first is true when the list was
// empty before, which is when the caller opens the native channel.
func (r *Registry) Subscribe(event bridge.Event, listener Listener) (id SubscriptionID, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id = r.nextID

	cur := *r.tables.Load()
	next := make(table, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	list := make([]entry, 0, len(cur[event])+1)
	list = append(list, cur[event]...)
	next[event] = append(list, entry{id: id, listener: listener})
	r.tables.Store(&next)

	if !event.Known() {
		r.logger.Debug("Subscribed to event with no native counterpart", "event", event)
	}
	return id, len(cur[event]) == 0
}

// Unsubscribe removes the subscription. Unknown ids are a no-op. last is true
// when the removal emptied event's list.
func (r *Registry) Unsubscribe(event bridge.Event, id SubscriptionID) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.tables.Load()
	list := cur[event]
	idx := -1
	for i, e := range list {
		if e.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, false
	}

	next := make(table, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	if len(list) == 1 {
		delete(next, event)
	} else {
		trimmed := make([]entry, 0, len(list)-1)
		trimmed = append(trimmed, list[:idx]...)
		trimmed = append(trimmed, list[idx+1:]...)
		next[event] = trimmed
	}
	r.tables.Store(&next)
	return true, len(list) == 1
}

// Fire calls every listener of event, in registration order, with payload and
// reports how many were called. A listener added or removed during the firing
// does not affect it.
func (r *Registry) Fire(event bridge.Event, payload any) int {
	list := (*r.tables.Load())[event]
	for _, e := range list {
		r.call(event, e, payload)
	}
	return len(list)
}

// Count reports how many listeners event has.
func (r *Registry) Count(event bridge.Event) int {
	return len((*r.tables.Load())[event])
}

// Events lists the events that have at least one listener.
func (r *Registry) Events() []bridge.Event {
	cur := *r.tables.Load()
	out := make([]bridge.Event, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	return out
}

func (r *Registry) call(event bridge.Event, e entry, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Event listener panicked", "event", event, "subscription", e.id, "panic", rec)
		}
	}()
	e.listener(payload)
}
