package client

import (
	"testing"

	"github.com/mbocsi/goreverb/proto"
)

func TestKindOfChannel(t *testing.T) {
	tests := []struct {
		name string
		want ChannelKind
	}{
		{"orders", Public},
		{"private-user.1", Private},
		{"presence-chat.1", Presence},
		{"privateish", Public},
	}
	for _, tt := range tests {
		if got := KindOfChannel(tt.name); got != tt.want {
			t.Errorf("KindOfChannel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHandlerTableSnapshotOrder(t *testing.T) {
	table := newHandlerTable()

	var order []int
	mk := func(n int) Handler {
		return func(event string, data any, channel string) error {
			order = append(order, n)
			return nil
		}
	}
	table.bind("msg", mk(1))
	table.bind("*", mk(3))
	table.bind("msg", mk(2))

	for _, b := range table.snapshot("msg") {
		b.fn("msg", nil, "")
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("invocation order = %v, want [1 2 3]", order)
	}
}

func TestHandlerTableUnbindByID(t *testing.T) {
	table := newHandlerTable()
	noop := func(event string, data any, channel string) error { return nil }

	id1 := table.bind("msg", noop)
	table.bind("msg", noop)

	table.unbind("msg", id1)
	if got := len(table.snapshot("msg")); got != 1 {
		t.Errorf("bindings after unbind = %d, want 1", got)
	}

	table.unbind("msg")
	if got := len(table.snapshot("msg")); got != 0 {
		t.Errorf("bindings after unbind all = %d, want 0", got)
	}
}

func TestTriggerOnPublicChannel(t *testing.T) {
	var sent []proto.Message
	ch := newChannel("orders", func(m proto.Message) error {
		sent = append(sent, m)
		return nil
	})
	ch.setSubscribed(true)

	err := ch.Trigger("chat", map[string]any{"text": "hi"})
	if err == nil {
		t.Fatal("Trigger() on public channel should fail")
	}
	if KindOf(err) != KindPrecondition {
		t.Errorf("kind = %v, want %v", KindOf(err), KindPrecondition)
	}
	if len(sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sent))
	}
}

func TestTriggerOnUnsubscribedChannel(t *testing.T) {
	ch := newChannel("private-room.1", func(proto.Message) error { return nil })

	err := ch.Trigger("chat", nil)
	if KindOf(err) != KindPrecondition {
		t.Errorf("kind = %v, want %v", KindOf(err), KindPrecondition)
	}
}

func TestTriggerPrefixesClientEvents(t *testing.T) {
	var sent []proto.Message
	ch := newChannel("private-room.1", func(m proto.Message) error {
		sent = append(sent, m)
		return nil
	})
	ch.setSubscribed(true)

	if err := ch.Trigger("chat", nil); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if err := ch.Trigger("client-typing", nil); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	if sent[0].Event != "client-chat" {
		t.Errorf("event = %q, want client-chat", sent[0].Event)
	}
	if sent[1].Event != "client-typing" {
		t.Errorf("event = %q, want client-typing", sent[1].Event)
	}
	if sent[0].Channel != "private-room.1" {
		t.Errorf("channel = %q, want private-room.1", sent[0].Channel)
	}
}

func TestPresenceRosterLifecycle(t *testing.T) {
	ch := newChannel("presence-chat.1", func(proto.Message) error { return nil })
	ch.setMe(&proto.MemberData{UserID: "u1", UserInfo: map[string]any{"name": "alice"}})

	ch.initRoster(map[string]any{"u1": map[string]any{"name": "alice"}})
	ch.addMember(proto.MemberData{UserID: "u2", UserInfo: map[string]any{"name": "bob"}})
	ch.removeMember("u1")

	members := ch.Members()
	if len(members) != 1 {
		t.Fatalf("members = %v, want exactly u2", members)
	}
	info, ok := members["u2"].(map[string]any)
	if !ok || info["name"] != "bob" {
		t.Errorf("u2 info = %#v, want name=bob", members["u2"])
	}

	// Removing an unknown member is a no-op.
	ch.removeMember("nobody")
	if len(ch.Members()) != 1 {
		t.Error("removing unknown member changed the roster")
	}
}

func TestInitRosterIncludesSelf(t *testing.T) {
	ch := newChannel("presence-chat.1", func(proto.Message) error { return nil })
	ch.setMe(&proto.MemberData{UserID: "u9", UserInfo: map[string]any{"name": "me"}})

	ch.initRoster(map[string]any{"u1": map[string]any{"name": "alice"}})

	members := ch.Members()
	if _, ok := members["u9"]; !ok {
		t.Errorf("roster %v does not contain the local member", members)
	}
}

func TestMarkUnsubscribedClearsRoster(t *testing.T) {
	ch := newChannel("presence-chat.1", func(proto.Message) error { return nil })
	ch.setMe(&proto.MemberData{UserID: "u1"})
	ch.setSubscribed(true)
	ch.initRoster(map[string]any{"u1": nil})

	ch.markUnsubscribed()

	if ch.IsSubscribed() {
		t.Error("channel still subscribed")
	}
	if ch.Members() != nil {
		t.Error("roster not cleared")
	}
	if ch.Me() == nil {
		t.Error("local member should survive for re-subscription")
	}
}
