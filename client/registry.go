package client

import (
	"log/slog"
	"sync"

	"github.com/mbocsi/goreverb/proto"
)

// ErrorSink receives errors returned by event handlers. The default sink
// logs them through slog.
type ErrorSink func(channel, event string, err error)

func logSink(channel, event string, err error) {
	slog.Error("Event handler failed", "channel", channel, "event", event, "error", err)
}

// Registry owns every channel the client knows about plus the global
// handler table. Channels stay registered until Drop or Clear; subscription state
// lives on the channel itself.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    []string

	global *handlerTable
	send   func(proto.Message) error
	sink   ErrorSink
}

func NewRegistry(send func(proto.Message) error, sink ErrorSink) *Registry {
	if sink == nil {
		sink = logSink
	}
	return &Registry{
		channels: make(map[string]*Channel),
		global:   newHandlerTable(),
		send:     send,
		sink:     sink,
	}
}

// GetOrCreate returns the channel with the given name, creating it when it
// does not exist yet. The second return reports whether it already existed.
func (r *Registry) GetOrCreate(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[name]; ok {
		return ch, true
	}
	ch := newChannel(name, r.send)
	r.channels[name] = ch
	r.order = append(r.order, name)
	return ch, false
}

func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Drop removes a channel from the registry. Unknown names are a no-op.
func (r *Registry) Drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[name]; !ok {
		return
	}
	delete(r.channels, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns the channel names in creation order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Channels returns the registered channels in creation order.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.channels[name])
	}
	return out
}

// Clear drops every channel. Used when the client disconnects for good.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string]*Channel)
	r.order = nil
}

// MarkAllUnsubscribed flips every channel to unsubscribed and clears
// presence rosters, keeping the channels registered for re-subscription.
func (r *Registry) MarkAllUnsubscribed() {
	for _, ch := range r.Channels() {
		ch.markUnsubscribed()
	}
}

// BindGlobal registers a handler that fires for dispatched events with the
// given name ("*" for every event), with or without a channel.
func (r *Registry) BindGlobal(event string, h Handler) string {
	return r.global.bind(event, h)
}

func (r *Registry) UnbindGlobal(event string, ids ...string) {
	r.global.unbind(event, ids...)
}

// Dispatch routes an inbound envelope. Internal subscription bookkeeping
// runs first so handlers observe the updated state, then channel handlers,
// then global handlers, each in registration order with exact matches
// before wildcards.
func (r *Registry) Dispatch(m proto.Message) {
	ch, _ := r.Get(m.Channel)

	if ch != nil {
		switch m.Event {
		case proto.EventSubscriptionSucceeded:
			ch.setSubscribed(true)
			if ch.Kind() == Presence {
				var data proto.SubscriptionSucceededData
				if err := proto.DataInto(m.Data, &data); err != nil {
					r.sink(m.Channel, m.Event, wrapError(KindProtocol, err, "bad subscription_succeeded payload on %q", m.Channel))
				} else {
					ch.initRoster(data.Roster())
				}
			}
		case proto.EventMemberAdded:
			var member proto.MemberData
			if err := proto.DataInto(m.Data, &member); err != nil {
				r.sink(m.Channel, m.Event, wrapError(KindProtocol, err, "bad member_added payload on %q", m.Channel))
			} else {
				ch.addMember(member)
			}
		case proto.EventMemberRemoved:
			var member proto.MemberData
			if err := proto.DataInto(m.Data, &member); err != nil {
				r.sink(m.Channel, m.Event, wrapError(KindProtocol, err, "bad member_removed payload on %q", m.Channel))
			} else {
				ch.removeMember(member.UserID)
			}
		}

		r.invoke(ch.table, m)
	}
	r.invoke(r.global, m)
}

// DispatchError delivers a synthetic "error" event to the global handlers.
func (r *Registry) DispatchError(err error, channel string) {
	r.invoke(r.global, proto.Message{Event: "error", Channel: channel, Data: err})
}

// invoke runs every matching handler. A handler error or panic is reported
// to the sink and never stops the remaining handlers.
func (r *Registry) invoke(t *handlerTable, m proto.Message) {
	for _, b := range t.snapshot(m.Event) {
		r.call(b, m)
	}
}

func (r *Registry) call(b binding, m proto.Message) {
	defer func() {
		if p := recover(); p != nil {
			r.sink(m.Channel, m.Event, newError(KindUnknown, "handler panic: %v", p))
		}
	}()
	if err := b.fn(m.Event, m.Data, m.Channel); err != nil {
		r.sink(m.Channel, m.Event, err)
	}
}
