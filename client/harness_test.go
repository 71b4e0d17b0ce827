package client

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbocsi/goreverb/proto"
)

// fakeTransport is an in-memory transport driven by tests. Frames pushed
// with push() arrive at Recv; frames the client sends are readable from out.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}

	closeOnce sync.Once
	open      atomic.Bool
	dialErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Connect(url string) error {
	if t.dialErr != nil {
		return t.dialErr
	}
	t.open.Store(true)
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	if !t.open.Load() {
		return newError(KindConnection, "transport is not connected")
	}
	t.out <- data
	return nil
}

func (t *fakeTransport) Recv() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.closed:
		return nil, newError(KindConnection, "connection closed")
	}
}

func (t *fakeTransport) Close() error {
	t.open.Store(false)
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	return t.open.Load()
}

// push delivers a server-side envelope to the client.
func (t *fakeTransport) push(tb testing.TB, m proto.Message) {
	tb.Helper()
	data, err := proto.Encode(m)
	if err != nil {
		tb.Fatalf("encode fixture: %v", err)
	}
	t.in <- data
}

// sent waits for the next frame the client wrote and decodes it.
func (t *fakeTransport) sent(tb testing.TB) proto.Message {
	tb.Helper()
	select {
	case data := <-t.out:
		m, err := proto.Decode(data)
		if err != nil {
			tb.Fatalf("decode sent frame: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for a sent frame")
		return proto.Message{}
	}
}

// fakeFactory hands out pre-built transports one per connection attempt.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	created    chan *fakeTransport
}

func newFakeFactory(transports ...*fakeTransport) *fakeFactory {
	f := &fakeFactory{transports: transports, created: make(chan *fakeTransport, 16)}
	return f
}

func (f *fakeFactory) next() Transport {
	f.mu.Lock()
	defer f.mu.Unlock()

	var t *fakeTransport
	if len(f.transports) > 0 {
		t = f.transports[0]
		f.transports = f.transports[1:]
	} else {
		t = newFakeTransport()
	}
	f.created <- t
	return t
}

func established(socketID string) proto.Message {
	return proto.Message{
		Event: proto.EventConnectionEstablished,
		Data:  map[string]any{"socket_id": socketID, "activity_timeout": 30},
	}
}

func testConfig() Config {
	return Config{
		AppKey:              "abc",
		AppSecret:           "s3cret",
		Host:                "reverb.test",
		Port:                6001,
		Scheme:              "ws",
		ReconnectEnabled:    false,
		ReconnectDelayMin:   time.Millisecond,
		ReconnectDelayMax:   5 * time.Millisecond,
		ReconnectMultiplier: 2.0,
		PingInterval:        time.Minute,
		SubscriptionTimeout: 2 * time.Second,
	}
}
