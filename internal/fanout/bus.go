package fanout

import (
	"sync"

	"binlog-router/internal/model"
)

// Canonical notification names. Every other name is a dynamic routing key.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReconnecting = "reconnecting"
	EventRecovering   = "recovering"
	EventError        = "error"
	EventChange       = "change"
	EventInsert       = "insert"
	EventUpdate       = "update"
	EventDelete       = "delete"
	EventTruncate     = "truncate"
)

var canonical = map[string]struct{}{
	EventConnected:    {},
	EventDisconnected: {},
	EventReconnecting: {},
	EventRecovering:   {},
	EventError:        {},
	EventChange:       {},
	EventInsert:       {},
	EventUpdate:       {},
	EventDelete:       {},
	EventTruncate:     {},
}

// IsCanonical reports whether name belongs to the fixed notification set.
func IsCanonical(name string) bool {
	_, ok := canonical[name]
	return ok
}

// Event is a single notification. Args holds the string arguments in call order;
// Err is only set on error notifications.
type Event struct {
	Name string
	Args []string
	Err  error
}

// Listener receives notifications synchronously on the emitting goroutine.
type Listener func(Event)

// Subscription identifies a registered listener.
type Subscription struct {
	name string
	id   uint64
	fn   Listener
}

// Name returns the event name the subscription listens on.
func (s *Subscription) Name() string { return s.name }

// Bus is a string-keyed publish/subscribe registry.
//
// The dynamic latch is set the first time a listener subscribes to a non-canonical name
// and is never cleared, even after that listener unsubscribes.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]*Subscription
	nextID    uint64
	dynamic   bool
	tap       func(Event, bool)
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]*Subscription)}
}

// SetTap installs an observer called for every emitted notification, with dynamic set for
// notifications produced by the dynamic fan-out.
func (b *Bus) SetTap(fn func(ev Event, dynamic bool)) {
	b.mu.Lock()
	b.tap = fn
	b.mu.Unlock()
}

func (b *Bus) Subscribe(name string, fn Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{name: name, id: b.nextID, fn: fn}
	b.listeners[name] = append(b.listeners[name], sub)
	if !IsCanonical(name) {
		b.dynamic = true
	}
	return sub
}

// Unsubscribe removes sub. It reports false when sub was not registered.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[sub.name]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		out := make([]*Subscription, 0, len(subs)-1)
		out = append(out, subs[:i]...)
		out = append(out, subs[i+1:]...)
		if len(out) == 0 {
			delete(b.listeners, sub.name)
		} else {
			b.listeners[sub.name] = out
		}
		return true
	}
	return false
}

// Dynamic reports whether a non-canonical subscription was ever observed.
func (b *Bus) Dynamic() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dynamic
}

func (b *Bus) listenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Emit delivers ev to every listener of ev.Name in subscription order.
func (b *Bus) Emit(ev Event) {
	b.emit(ev, false)
}

func (b *Bus) emit(ev Event, dynamic bool) {
	b.mu.RLock()
	subs := b.listeners[ev.Name]
	tap := b.tap
	b.mu.RUnlock()

	if tap != nil {
		tap(ev, dynamic)
	}
	// Subscribe only appends and Unsubscribe copies, so the snapshot stays valid unlocked.
	for _, s := range subs {
		s.fn(ev)
	}
}

// Publish emits the canonical notifications for change and, once the dynamic latch is
// set, the five dynamically named ones.
func (b *Bus) Publish(change model.Change) {
	schema, table, op := change.Schema, change.Table, string(change.Operation)

	b.Emit(Event{Name: op, Args: []string{schema, table}})
	b.Emit(Event{Name: EventChange, Args: []string{schema, table, op}})

	if !b.Dynamic() {
		return
	}
	b.emit(Event{Name: schema, Args: []string{table, op}}, true)
	b.emit(Event{Name: table, Args: []string{op}}, true)
	b.emit(Event{Name: schema + "." + table, Args: []string{op}}, true)
	b.emit(Event{Name: table + "." + op}, true)
	b.emit(Event{Name: schema + "." + table + "." + op}, true)
}
