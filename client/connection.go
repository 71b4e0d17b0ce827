package client

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/goreverb/proto"
)

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const handshakeTimeout = 10 * time.Second

// session is one live transport. Each reconnection gets a fresh session so
// the loss path runs at most once per transport.
type session struct {
	transport Transport
	recvDone  chan struct{}
	lostOnce  sync.Once
}

// connection drives the transport lifecycle: dialing, the
// connection_established handshake, the receive and keepalive loops, and
// reconnection with backoff. Inbound envelopes and lifecycle transitions
// are reported through the callbacks: onMessage and onDown run on the
// receive goroutine, onEstablished on the goroutine that completed the
// handshake, and onClosed on whichever goroutine ends the connection.
type connection struct {
	cfg     Config
	factory TransportFactory
	logger  *slog.Logger

	onMessage     func(proto.Message)
	onEstablished func(socketID string, reconnected bool)
	onDown        func(err error)
	onClosed      func(err error)

	mu       sync.Mutex
	sess     *session
	socketID string

	state    atomic.Int32
	closing  atomic.Bool
	lastSeen atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
}

func newConnection(cfg Config, factory TransportFactory, logger *slog.Logger) *connection {
	if factory == nil {
		factory = NewWebSocketTransport
	}
	return &connection{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (c *connection) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether the handshake completed and the transport
// still believes the peer is reachable, so a half-open socket reads as
// disconnected.
func (c *connection) IsConnected() bool {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	return c.State() == StateConnected && sess != nil && sess.transport.IsOpen()
}

func (c *connection) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Connect dials and completes the handshake, retrying with backoff when
// enabled. It returns once a socket id is assigned or the attempts are
// exhausted.
func (c *connection) Connect() error {
	if c.State() != StateDisconnected {
		return newError(KindPrecondition, "already %s", c.State())
	}
	c.closing.Store(false)
	return c.connectWithRetry(false)
}

func (c *connection) connectWithRetry(reconnecting bool) error {
	c.state.Store(int32(StateConnecting))

	attempt := 0
	for {
		err := c.establish(reconnecting)
		if err == nil {
			return nil
		}
		if c.closing.Load() {
			c.state.Store(int32(StateDisconnected))
			return newError(KindConnection, "connection closed while connecting")
		}
		if !c.cfg.ReconnectEnabled {
			c.state.Store(int32(StateDisconnected))
			return err
		}
		if c.cfg.ReconnectMaxAttempts > 0 && attempt+1 >= c.cfg.ReconnectMaxAttempts {
			c.state.Store(int32(StateDisconnected))
			return wrapError(KindConnection, err, "reconnection attempts exhausted after %d tries", attempt+1)
		}

		delay := jittered(reconnectDelay(c.cfg, attempt))
		c.logger.Warn("Connection attempt failed",
			"attempt", attempt+1, "retry_in", delay, "error", err)
		attempt++

		select {
		case <-time.After(delay):
		case <-c.done:
			c.state.Store(int32(StateDisconnected))
			return newError(KindConnection, "connection closed while connecting")
		}
	}
}

// reconnectDelay returns the capped exponential delay for the given attempt,
// before jitter.
func reconnectDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.ReconnectDelayMin) * math.Pow(cfg.ReconnectMultiplier, float64(attempt))
	if max := float64(cfg.ReconnectDelayMax); d > max {
		d = max
	}
	return time.Duration(d)
}

func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (1 + rand.Float64()*0.25))
}

// establish dials the transport and waits for pusher:connection_established,
// which must be the first envelope and must arrive within the handshake
// deadline.
func (c *connection) establish(reconnecting bool) error {
	t := c.factory()
	if err := t.Connect(c.cfg.URL()); err != nil {
		return err
	}

	type recvResult struct {
		data []byte
		err  error
	}
	first := make(chan recvResult, 1)
	go func() {
		data, err := t.Recv()
		first <- recvResult{data, err}
	}()

	var data []byte
	select {
	case r := <-first:
		if r.err != nil {
			t.Close()
			return wrapError(KindConnection, r.err, "connection closed during handshake")
		}
		data = r.data
	case <-time.After(handshakeTimeout):
		t.Close()
		return newError(KindTimeout, "no connection_established within %s", handshakeTimeout)
	}

	m, err := proto.Decode(data)
	if err != nil {
		t.Close()
		return wrapError(KindProtocol, err, "malformed handshake envelope")
	}
	if m.Event != proto.EventConnectionEstablished {
		t.Close()
		if m.Event == proto.EventError {
			var ed proto.ErrorData
			if derr := proto.DataInto(m.Data, &ed); derr == nil && ed.Message != "" {
				return newError(KindConnection, "server refused connection: %s (code %d)", ed.Message, ed.Code)
			}
		}
		return newError(KindProtocol, "expected %s as first envelope, got %q",
			proto.EventConnectionEstablished, m.Event)
	}

	var est proto.ConnectionEstablishedData
	if err := proto.DataInto(m.Data, &est); err != nil || est.SocketID == "" {
		t.Close()
		return newError(KindProtocol, "connection_established carried no socket id")
	}

	sess := &session{transport: t, recvDone: make(chan struct{})}

	c.mu.Lock()
	c.sess = sess
	c.socketID = est.SocketID
	c.mu.Unlock()

	c.lastSeen.Store(time.Now().UnixNano())
	c.state.Store(int32(StateConnected))

	c.logger.Info("Connection established",
		"socket_id", est.SocketID, "activity_timeout", est.ActivityTimeout, "reconnected", reconnecting)

	go c.receiveLoop(sess)
	go c.keepaliveLoop(sess)

	if c.onEstablished != nil {
		c.onEstablished(est.SocketID, reconnecting)
	}
	return nil
}

// Send encodes and writes an envelope on the current transport.
func (c *connection) Send(m proto.Message) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if c.State() != StateConnected || sess == nil {
		return newError(KindConnection, "cannot send %q: not connected", m.Event)
	}

	data, err := proto.Encode(m)
	if err != nil {
		return wrapError(KindProtocol, err, "cannot encode %q", m.Event)
	}
	c.logger.Debug("Sending envelope", "event", m.Event, "channel", m.Channel)
	return sess.transport.Send(data)
}

func (c *connection) receiveLoop(sess *session) {
	defer close(sess.recvDone)

	for {
		data, err := sess.transport.Recv()
		if err != nil {
			c.handleConnectionLost(sess, err)
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())

		m, err := proto.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping malformed envelope", "error", err)
			continue
		}

		switch m.Event {
		case proto.EventPing:
			if err := c.Send(proto.Pong()); err != nil {
				c.logger.Warn("Failed to answer ping", "error", err)
			}
		case proto.EventPong:
			// Activity already recorded.
		default:
			c.logger.Debug("Received envelope", "event", m.Event, "channel", m.Channel)
			if c.onMessage != nil {
				c.onMessage(m)
			}
		}
	}
}

// keepaliveLoop pings the server when the connection goes quiet and force
// closes the transport when the silence doubles the ping interval, so a
// half-open socket surfaces as a read error in the receive loop.
func (c *connection) keepaliveLoop(sess *session) {
	interval := c.cfg.PingInterval
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-sess.recvDone:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, c.lastSeen.Load()))
			if idle >= 2*interval {
				c.logger.Warn("No activity, closing stale connection", "idle", idle)
				sess.transport.Close()
				return
			}
			if idle >= interval {
				if err := c.Send(proto.Ping()); err != nil {
					c.logger.Warn("Keepalive ping failed", "error", err)
				}
			}
		}
	}
}

// handleConnectionLost runs the loss path at most once per session. An
// explicit Disconnect lands here too, via the receive loop observing the
// closed transport.
func (c *connection) handleConnectionLost(sess *session, err error) {
	sess.lostOnce.Do(func() {
		c.mu.Lock()
		if c.sess == sess {
			c.sess = nil
			c.socketID = ""
		}
		c.mu.Unlock()
		sess.transport.Close()

		if c.closing.Load() {
			c.state.Store(int32(StateDisconnected))
			c.finish(nil)
			return
		}

		c.logger.Warn("Connection lost", "error", err)
		c.state.Store(int32(StateConnecting))
		if c.onDown != nil {
			c.onDown(err)
		}

		if !c.cfg.ReconnectEnabled {
			c.state.Store(int32(StateDisconnected))
			c.finish(err)
			return
		}

		go func() {
			if rerr := c.connectWithRetry(true); rerr != nil {
				c.finish(rerr)
			}
		}()
	})
}

func (c *connection) finish(err error) {
	c.doneOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed(err)
		}
		close(c.done)
	})
}

// Disconnect closes the transport and waits for the receive loop to drain,
// so no handler fires after it returns.
func (c *connection) Disconnect() {
	c.closing.Store(true)

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess != nil {
		sess.transport.Close()
		<-sess.recvDone
	} else {
		c.state.Store(int32(StateDisconnected))
		c.finish(nil)
	}
}

// Wait blocks until the connection is terminally closed, by Disconnect or
// by reconnection giving up.
func (c *connection) Wait() {
	<-c.done
}
