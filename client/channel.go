package client

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mbocsi/goreverb/proto"
)

// ChannelKind is derived from the channel name prefix.
type ChannelKind int

const (
	Public ChannelKind = iota
	Private
	Presence
)

func (k ChannelKind) String() string {
	switch k {
	case Private:
		return "private"
	case Presence:
		return "presence"
	default:
		return "public"
	}
}

// KindOfChannel derives the channel kind from its name prefix.
func KindOfChannel(name string) ChannelKind {
	switch {
	case strings.HasPrefix(name, "presence-"):
		return Presence
	case strings.HasPrefix(name, "private-"):
		return Private
	default:
		return Public
	}
}

// Handler receives dispatched events. channel is empty for events delivered
// through the global handler table without a channel.
type Handler func(event string, data any, channel string) error

type binding struct {
	id string
	fn Handler
}

// handlerTable maps event names to ordered handler bindings. The "*" key is
// the wildcard bucket, invoked after exact matches.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[string][]binding
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: make(map[string][]binding)}
}

func (t *handlerTable) bind(event string, h Handler) string {
	id := uuid.NewString()
	t.mu.Lock()
	t.handlers[event] = append(t.handlers[event], binding{id: id, fn: h})
	t.mu.Unlock()
	return id
}

// unbind removes the given bindings for an event, or every binding for the
// event when no ids are given.
func (t *handlerTable) unbind(event string, ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(ids) == 0 {
		delete(t.handlers, event)
		return
	}

	kept := t.handlers[event][:0]
	for _, b := range t.handlers[event] {
		drop := false
		for _, id := range ids {
			if b.id == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		delete(t.handlers, event)
	} else {
		t.handlers[event] = kept
	}
}

// snapshot returns exact-match bindings followed by wildcard bindings, each
// in registration order.
func (t *handlerTable) snapshot(event string) []binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	exact := t.handlers[event]
	wild := t.handlers["*"]
	out := make([]binding, 0, len(exact)+len(wild))
	out = append(out, exact...)
	out = append(out, wild...)
	return out
}

// Channel tracks subscription state, event handlers and, for presence
// channels, the member roster.
type Channel struct {
	name string
	kind ChannelKind

	table *handlerTable
	send  func(proto.Message) error

	mu         sync.RWMutex
	subscribed bool
	members    map[string]any
	me         *proto.MemberData
}

func newChannel(name string, send func(proto.Message) error) *Channel {
	return &Channel{
		name:  name,
		kind:  KindOfChannel(name),
		table: newHandlerTable(),
		send:  send,
	}
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Kind() ChannelKind {
	return c.kind
}

func (c *Channel) IsSubscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

// Bind registers a handler for an event ("*" for every event on this
// channel) and returns a binding id for Unbind.
func (c *Channel) Bind(event string, h Handler) string {
	return c.table.bind(event, h)
}

// Unbind removes specific bindings, or all bindings for the event when no
// ids are given.
func (c *Channel) Unbind(event string, ids ...string) {
	c.table.unbind(event, ids...)
}

// Members returns a copy of the presence roster. Nil for non-presence
// channels.
func (c *Channel) Members() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.members == nil {
		return nil
	}
	out := make(map[string]any, len(c.members))
	for id, info := range c.members {
		out[id] = info
	}
	return out
}

// Me returns the local member record on a presence channel, nil otherwise.
func (c *Channel) Me() *proto.MemberData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.me == nil {
		return nil
	}
	me := *c.me
	return &me
}

// Trigger sends a client event on this channel. Client events are only
// permitted on private and presence channels that are currently subscribed;
// the event name is prefixed with "client-" when not already.
func (c *Channel) Trigger(event string, data any) error {
	if c.kind == Public {
		return newError(KindPrecondition, "client events are not allowed on public channel %q", c.name)
	}
	if !c.IsSubscribed() {
		return newError(KindPrecondition, "cannot trigger %q on unsubscribed channel %q", event, c.name)
	}
	if !strings.HasPrefix(event, proto.ClientEventPrefix) {
		event = proto.ClientEventPrefix + event
	}
	return c.send(proto.ClientEvent(c.name, event, data))
}

func (c *Channel) setSubscribed(v bool) {
	c.mu.Lock()
	c.subscribed = v
	c.mu.Unlock()
}

func (c *Channel) setMe(member *proto.MemberData) {
	c.mu.Lock()
	c.me = member
	c.mu.Unlock()
}

// initRoster seeds the presence roster from the subscription_succeeded hash
// and makes sure the local member is part of it.
func (c *Channel) initRoster(hash map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.members = make(map[string]any, len(hash))
	for id, info := range hash {
		c.members[id] = info
	}
	if c.me != nil {
		if _, ok := c.members[c.me.UserID]; !ok {
			c.members[c.me.UserID] = c.me.UserInfo
		}
	}
}

func (c *Channel) addMember(m proto.MemberData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members == nil {
		c.members = make(map[string]any)
	}
	c.members[m.UserID] = m.UserInfo
}

// removeMember deletes a roster entry. Unknown user ids are a no-op.
func (c *Channel) removeMember(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, userID)
}

// markUnsubscribed clears the subscription flag and the roster. The local
// member record is retained so a later re-subscription can sign again.
func (c *Channel) markUnsubscribed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = false
	c.members = nil
}
