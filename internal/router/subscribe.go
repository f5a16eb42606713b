package router

import (
	"binlog-router/internal/fanout"
	"binlog-router/internal/model"
)

// TableHandler receives single-operation notifications.
//
// Typed handlers skip notifications whose arity does not match their canonical shape,
// which happens when a schema or table is itself named like a canonical event.
type TableHandler func(schema, table string)

// On subscribes fn to an arbitrary notification name. Subscribing to a name outside the
// canonical set permanently enables the dynamic fan-out, for this and every later change.
func (r *Router) On(name string, fn fanout.Listener) *fanout.Subscription {
	sub := r.bus.Subscribe(name, fn)
	if r.metrics != nil && r.bus.Dynamic() {
		r.metrics.DynamicRouting.Set(1)
	}
	return sub
}

// Off removes a subscription. The dynamic fan-out stays enabled.
func (r *Router) Off(sub *fanout.Subscription) bool {
	return r.bus.Unsubscribe(sub)
}

// DynamicRouting reports whether dynamic fan-out notifications are being emitted.
func (r *Router) DynamicRouting() bool {
	return r.bus.Dynamic()
}

func (r *Router) OnInsert(fn TableHandler) *fanout.Subscription {
	return r.onTable(fanout.EventInsert, fn)
}

func (r *Router) OnUpdate(fn TableHandler) *fanout.Subscription {
	return r.onTable(fanout.EventUpdate, fn)
}

func (r *Router) OnDelete(fn TableHandler) *fanout.Subscription {
	return r.onTable(fanout.EventDelete, fn)
}

func (r *Router) OnTruncate(fn TableHandler) *fanout.Subscription {
	return r.onTable(fanout.EventTruncate, fn)
}

// OnChange receives every change, whatever its operation.
func (r *Router) OnChange(fn func(model.Change)) *fanout.Subscription {
	return r.bus.Subscribe(fanout.EventChange, func(ev fanout.Event) {
		if len(ev.Args) != 3 {
			return
		}
		fn(model.Change{Schema: ev.Args[0], Table: ev.Args[1], Operation: model.Operation(ev.Args[2])})
	})
}

// OnError receives routing errors (*model.Error) and reader errors, unwrapped.
func (r *Router) OnError(fn func(error)) *fanout.Subscription {
	return r.bus.Subscribe(fanout.EventError, func(ev fanout.Event) {
		if ev.Err == nil {
			return
		}
		fn(ev.Err)
	})
}

func (r *Router) OnConnected(fn func()) *fanout.Subscription {
	return r.onSignal(fanout.EventConnected, fn)
}

func (r *Router) OnDisconnected(fn func()) *fanout.Subscription {
	return r.onSignal(fanout.EventDisconnected, fn)
}

func (r *Router) OnReconnecting(fn func()) *fanout.Subscription {
	return r.onSignal(fanout.EventReconnecting, fn)
}

func (r *Router) OnRecovering(fn func()) *fanout.Subscription {
	return r.onSignal(fanout.EventRecovering, fn)
}

func (r *Router) onTable(name string, fn TableHandler) *fanout.Subscription {
	return r.bus.Subscribe(name, func(ev fanout.Event) {
		if len(ev.Args) != 2 {
			return
		}
		fn(ev.Args[0], ev.Args[1])
	})
}

func (r *Router) onSignal(name string, fn func()) *fanout.Subscription {
	return r.bus.Subscribe(name, func(fanout.Event) {
		fn()
	})
}
