package client

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// WebSocketTransport is the default transport, backed by gorilla/websocket.
// The open flag tracks whether the peer is still believed reachable; it
// flips on any read or write failure so the connection controller can treat
// half-open sockets as lost.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	open    atomic.Bool
}

func NewWebSocketTransport() Transport {
	return &WebSocketTransport{}
}

func (t *WebSocketTransport) Connect(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return wrapError(KindConnection, err, "failed to connect to %s", url)
	}

	t.conn = conn
	t.open.Store(true)

	closeHandler := conn.CloseHandler()
	conn.SetCloseHandler(func(code int, text string) error {
		t.open.Store(false)
		return closeHandler(code, text)
	})
	return nil
}

func (t *WebSocketTransport) Send(data []byte) error {
	if t.conn == nil {
		return newError(KindConnection, "transport is not connected")
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		t.open.Store(false)
		return wrapError(KindConnection, err, "failed to send message")
	}
	return nil
}

func (t *WebSocketTransport) Recv() ([]byte, error) {
	if t.conn == nil {
		return nil, newError(KindConnection, "transport is not connected")
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		t.open.Store(false)
		if isCleanClose(err) {
			return nil, wrapError(KindConnection, err, "connection closed")
		}
		return nil, wrapError(KindConnection, err, "connection lost")
	}
	return data, nil
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	t.open.Store(false)

	t.writeMu.Lock()
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *WebSocketTransport) IsOpen() bool {
	return t.open.Load()
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
