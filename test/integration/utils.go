package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/mbocsi/goreverb/client"
	"github.com/mbocsi/goreverb/proto"
)

const (
	testAppKey    = "test-key"
	testAppSecret = "test-secret"
	testSocketID  = "100.200"
)

// fakeReverb is an in-process server speaking enough of the Pusher protocol
// to exercise the client end to end: handshake, authenticated subscribe,
// ping/pong and client event relay.
type fakeReverb struct {
	t   *testing.T
	srv *httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn

	// Client events relayed through the server.
	received chan proto.Message
	// One entry per pusher:pong the client sent.
	pongs chan struct{}
	// Presence roster returned on presence subscribes.
	roster map[string]any
}

func startFakeReverb(t *testing.T) *fakeReverb {
	t.Helper()
	f := &fakeReverb{t: t, received: make(chan proto.Message, 16), pongs: make(chan struct{}, 16)}

	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		f.send(proto.Message{
			Event: proto.EventConnectionEstablished,
			Data:  map[string]any{"socket_id": testSocketID, "activity_timeout": 30},
		})
		f.serve(conn)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReverb) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := proto.Decode(data)
		if err != nil {
			f.t.Errorf("server received malformed envelope: %v", err)
			continue
		}

		switch m.Event {
		case proto.EventSubscribe:
			f.handleSubscribe(m)
		case proto.EventUnsubscribe:
			// Nothing to confirm.
		case proto.EventPing:
			f.send(proto.Pong())
		case proto.EventPong:
			select {
			case f.pongs <- struct{}{}:
			default:
			}
		default:
			if strings.HasPrefix(m.Event, proto.ClientEventPrefix) {
				f.received <- m
			}
		}
	}
}

func (f *fakeReverb) handleSubscribe(m proto.Message) {
	data, _ := m.Data.(map[string]any)
	channel, _ := data["channel"].(string)
	auth, _ := data["auth"].(string)
	channelData, _ := data["channel_data"].(string)

	if strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-") {
		message := testSocketID + ":" + channel
		if strings.HasPrefix(channel, "presence-") {
			message += ":" + channelData
		}
		if auth != sign(message) {
			f.send(proto.Message{
				Event: proto.EventError,
				Data:  map[string]any{"code": 4009, "message": "auth signature invalid", "channel": channel},
			})
			return
		}
	}

	payload := map[string]any{}
	if strings.HasPrefix(channel, "presence-") {
		f.mu.Lock()
		roster := f.roster
		f.mu.Unlock()
		payload["presence"] = map[string]any{"count": len(roster), "hash": roster}
	}
	f.send(proto.Message{Event: proto.EventSubscriptionSucceeded, Channel: channel, Data: payload})
}

// push delivers a server-originated event to the connected client.
func (f *fakeReverb) push(m proto.Message) {
	f.send(m)
}

func (f *fakeReverb) send(m proto.Message) {
	data, err := proto.Encode(m)
	if err != nil {
		f.t.Errorf("server encode: %v", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		f.t.Error("server has no connection")
		return
	}
	if err := f.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		f.t.Logf("server write failed: %v", err)
	}
}

func (f *fakeReverb) config(t *testing.T) client.Config {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	cfg := client.DefaultConfig()
	cfg.AppKey = testAppKey
	cfg.AppSecret = testAppSecret
	cfg.Host = u.Hostname()
	cfg.Port = port
	cfg.Scheme = "ws"
	cfg.ReconnectEnabled = false
	return cfg
}

func sign(message string) string {
	mac := hmac.New(sha256.New, []byte(testAppSecret))
	mac.Write([]byte(message))
	return fmt.Sprintf("%s:%s", testAppKey, hex.EncodeToString(mac.Sum(nil)))
}

// newQuietClient builds a client against the fake server with logging
// suppressed.
func newQuietClient(t *testing.T, f *fakeReverb) *client.Client {
	t.Helper()
	return newClientWithConfig(t, f.config(t))
}

func newClientWithConfig(t *testing.T, cfg client.Config) *client.Client {
	t.Helper()
	c, err := client.NewClient(cfg,
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}
