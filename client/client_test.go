package client

import (
	"context"
	"testing"
	"time"

	"github.com/mbocsi/goreverb/proto"
)

func newTestClient(t *testing.T, cfg Config, factory *fakeFactory) *Client {
	t.Helper()
	c, err := NewClient(cfg, WithTransport(factory.next), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func connectedClient(t *testing.T, cfg Config) (*Client, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	transport.push(t, established("1.2"))
	factory := newFakeFactory(transport)

	c := newTestClient(t, cfg, factory)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c, transport
}

func dataMap(t *testing.T, m proto.Message) map[string]any {
	t.Helper()
	data, ok := m.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %#v, want object", m.Data)
	}
	return data
}

func TestSubscribePublicChannel(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(context.Background(), "orders", nil)
		done <- err
	}()

	m := transport.sent(t)
	if m.Event != proto.EventSubscribe {
		t.Fatalf("event = %q, want %q", m.Event, proto.EventSubscribe)
	}
	data := dataMap(t, m)
	if data["channel"] != "orders" {
		t.Errorf("channel = %v, want orders", data["channel"])
	}
	if _, present := data["auth"]; present {
		t.Error("public subscribe must not carry auth")
	}

	transport.push(t, proto.Message{Event: proto.EventSubscriptionSucceeded, Channel: "orders", Data: map[string]any{}})

	if err := <-done; err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ch, ok := c.Channel("orders")
	if !ok || !ch.IsSubscribed() {
		t.Error("channel not registered as subscribed")
	}
}

func TestSubscribePrivateChannelSignsRequest(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	go c.Subscribe(context.Background(), "private-room.7", nil)

	m := transport.sent(t)
	data := dataMap(t, m)

	want := "abc:" + hmacHex(t, "s3cret", "1.2:private-room.7")
	if data["auth"] != want {
		t.Errorf("auth = %v, want %v", data["auth"], want)
	}
}

func TestSubscribePresenceChannelSendsChannelData(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	member := &proto.MemberData{UserID: "u1", UserInfo: map[string]any{"name": "alice"}}
	go c.Subscribe(context.Background(), "presence-chat.1", member)

	m := transport.sent(t)
	data := dataMap(t, m)

	wantData := `{"user_id":"u1","user_info":{"name":"alice"}}`
	if data["channel_data"] != wantData {
		t.Errorf("channel_data = %v, want %v", data["channel_data"], wantData)
	}
	want := "abc:" + hmacHex(t, "s3cret", "1.2:presence-chat.1:"+wantData)
	if data["auth"] != want {
		t.Errorf("auth = %v, want %v", data["auth"], want)
	}
}

func TestSubscribePresenceWithoutMember(t *testing.T) {
	c, _ := connectedClient(t, testConfig())

	_, err := c.Subscribe(context.Background(), "presence-chat.1", nil)
	if KindOf(err) != KindConfiguration {
		t.Errorf("kind = %v, want %v", KindOf(err), KindConfiguration)
	}
	if _, ok := c.Channel("presence-chat.1"); ok {
		t.Error("failed presence subscribe should not leave the channel registered")
	}
}

func TestSubscribeTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.SubscriptionTimeout = 50 * time.Millisecond
	c, transport := connectedClient(t, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(context.Background(), "orders", nil)
		done <- err
	}()
	transport.sent(t)

	err := <-done
	if KindOf(err) != KindTimeout {
		t.Errorf("kind = %v, want %v", KindOf(err), KindTimeout)
	}
	if _, ok := c.Channel("orders"); !ok {
		t.Error("timed out channel should stay registered for retry")
	}
}

func TestSubscribeRejectedByServer(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(context.Background(), "private-room.7", nil)
		done <- err
	}()
	transport.sent(t)

	transport.push(t, proto.Message{
		Event: proto.EventError,
		Data:  map[string]any{"code": 4009, "message": "auth signature invalid", "channel": "private-room.7"},
	})

	err := <-done
	if KindOf(err) != KindAuthentication {
		t.Errorf("kind = %v, want %v", KindOf(err), KindAuthentication)
	}

	if !c.IsConnected() {
		t.Error("a server error must not terminate the connection")
	}
}

func TestUnsubscribe(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	go c.Subscribe(context.Background(), "orders", nil)
	transport.sent(t)
	transport.push(t, proto.Message{Event: proto.EventSubscriptionSucceeded, Channel: "orders", Data: map[string]any{}})

	// Let the confirmation drain before unsubscribing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if ch, ok := c.Channel("orders"); ok && ch.IsSubscribed() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never confirmed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Unsubscribe("orders"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	m := transport.sent(t)
	if m.Event != proto.EventUnsubscribe {
		t.Errorf("event = %q, want %q", m.Event, proto.EventUnsubscribe)
	}
	if _, ok := c.Channel("orders"); ok {
		t.Error("channel still registered after unsubscribe")
	}

	if err := c.Unsubscribe("never-registered"); err != nil {
		t.Errorf("Unsubscribe() of unknown channel = %v, want nil", err)
	}
}

func TestEventDispatchToChannelHandlers(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	go c.Subscribe(context.Background(), "orders", nil)
	transport.sent(t)
	transport.push(t, proto.Message{Event: proto.EventSubscriptionSucceeded, Channel: "orders", Data: map[string]any{}})

	ch, _ := c.Channel("orders")
	got := make(chan any, 1)
	ch.Bind("order.created", func(event string, data any, channel string) error {
		got <- data
		return nil
	})

	transport.push(t, proto.Message{
		Event:   "order.created",
		Channel: "orders",
		Data:    map[string]any{"id": float64(44)},
	})

	select {
	case data := <-got:
		obj, ok := data.(map[string]any)
		if !ok || obj["id"] != float64(44) {
			t.Errorf("data = %#v, want id=44", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the handler")
	}
}

func TestResubscribeAfterReconnect(t *testing.T) {
	first := newFakeTransport()
	first.push(t, established("1.2"))
	factory := newFakeFactory(first)

	cfg := testConfig()
	cfg.ReconnectEnabled = true

	c := newTestClient(t, cfg, factory)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	<-factory.created

	go c.Subscribe(context.Background(), "orders", nil)
	first.sent(t)
	first.push(t, proto.Message{Event: proto.EventSubscriptionSucceeded, Channel: "orders", Data: map[string]any{}})

	first.Close()

	second := <-factory.created
	second.push(t, established("3.4"))

	m := second.sent(t)
	if m.Event != proto.EventSubscribe {
		t.Fatalf("event = %q, want a fresh subscribe", m.Event)
	}
	if dataMap(t, m)["channel"] != "orders" {
		t.Errorf("resubscribe channel = %v, want orders", dataMap(t, m)["channel"])
	}
}

func TestDisconnectRejectsPendingWaiters(t *testing.T) {
	c, transport := connectedClient(t, testConfig())

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(context.Background(), "orders", nil)
		done <- err
	}()
	transport.sent(t)

	c.Disconnect()

	err := <-done
	if KindOf(err) != KindConnection {
		t.Errorf("kind = %v, want %v", KindOf(err), KindConnection)
	}
	if len(c.Channels()) != 0 {
		t.Error("registry should be empty after disconnect")
	}
}

func TestOnDisconnectFires(t *testing.T) {
	first := newFakeTransport()
	first.push(t, established("1.2"))
	factory := newFakeFactory(first)

	cfg := testConfig()
	cfg.ReconnectEnabled = true

	c := newTestClient(t, cfg, factory)

	notified := make(chan error, 1)
	c.OnDisconnect(func(err error) {
		notified <- err
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	<-factory.created

	first.Close()

	select {
	case err := <-notified:
		if err == nil {
			t.Error("connection loss should carry an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler never fired")
	}
}
