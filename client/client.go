package client

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/goreverb/proto"
)

// Client is the public facade over the connection controller, the channel
// registry and the admission signer. One Client maps to one socket.
type Client struct {
	cfg    Config
	auth   *Authenticator
	conn   *connection
	reg    *Registry
	logger *slog.Logger

	waitersMu sync.Mutex
	waiters   map[string]chan error

	handlersMu         sync.Mutex
	disconnectHandlers []func(err error)
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithTransport overrides the transport factory, used by tests and by
// deployments that need custom dial behavior.
func WithTransport(factory TransportFactory) Option {
	return func(c *Client) {
		c.conn.factory = factory
	}
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.conn.logger = logger
	}
}

// WithErrorSink replaces the default handler error sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(c *Client) {
		c.reg.sink = sink
	}
}

// NewClient validates the config and builds a disconnected client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		auth:    NewAuthenticator(cfg.AppKey, cfg.AppSecret),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})),
		waiters: make(map[string]chan error),
	}
	c.conn = newConnection(cfg, nil, c.logger)
	c.reg = NewRegistry(c.conn.Send, nil)

	for _, opt := range opts {
		opt(c)
	}

	c.conn.onMessage = c.handleMessage
	c.conn.onEstablished = c.handleEstablished
	c.conn.onDown = c.handleDown
	c.conn.onClosed = c.handleClosed
	return c, nil
}

// Connect dials the server and blocks until the handshake completes or the
// configured attempts are exhausted.
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// Disconnect closes the connection cleanly and drops every channel. No
// handler fires after it returns.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.rejectWaiters(newError(KindConnection, "client disconnected"))
	c.reg.Clear()
}

// Listen blocks until the client is terminally disconnected.
func (c *Client) Listen() {
	c.conn.Wait()
}

func (c *Client) SocketID() string {
	return c.conn.SocketID()
}

// IsConnected reports whether the connection is established and the
// transport is still open.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

func (c *Client) State() ConnState {
	return c.conn.State()
}

// Channel returns a registered channel without subscribing it.
func (c *Client) Channel(name string) (*Channel, bool) {
	return c.reg.Get(name)
}

// Channels returns every registered channel in creation order.
func (c *Client) Channels() []*Channel {
	return c.reg.Channels()
}

// Bind registers a global handler invoked for inbound events with the given
// name, on any channel or none. Use "*" to match all events.
func (c *Client) Bind(event string, h Handler) string {
	return c.reg.BindGlobal(event, h)
}

// Unbind removes global bindings, or all bindings for the event when no ids
// are given.
func (c *Client) Unbind(event string, ids ...string) {
	c.reg.UnbindGlobal(event, ids...)
}

// OnDisconnect registers a callback fired whenever the connection is lost
// or closed.
func (c *Client) OnDisconnect(fn func(err error)) {
	c.handlersMu.Lock()
	c.disconnectHandlers = append(c.disconnectHandlers, fn)
	c.handlersMu.Unlock()
}

// Subscribe registers the channel and, when connected, sends the subscribe
// request and waits for the server to confirm it. member is required for
// presence channels and ignored otherwise. Subscribing before connecting
// registers the channel; the request is sent once the handshake completes.
// Subscribing an already subscribed channel is a no-op.
func (c *Client) Subscribe(ctx context.Context, name string, member *proto.MemberData) (*Channel, error) {
	ch, _ := c.reg.GetOrCreate(name)

	if ch.Kind() == Presence {
		if member == nil || member.UserID == "" {
			c.reg.Drop(name)
			return nil, newError(KindConfiguration, "presence channel %q requires member data with a user_id", name)
		}
		ch.setMe(member)
	}

	if ch.IsSubscribed() {
		return ch, nil
	}

	if !c.IsConnected() {
		c.logger.Debug("Deferring subscription until connected", "channel", name)
		return ch, nil
	}

	wait := c.addWaiter(name)
	if err := c.sendSubscribe(ch); err != nil {
		c.removeWaiter(name)
		return nil, err
	}

	timer := time.NewTimer(c.cfg.SubscriptionTimeout)
	defer timer.Stop()

	select {
	case err := <-wait:
		if err != nil {
			return nil, err
		}
		return ch, nil
	case <-timer.C:
		c.removeWaiter(name)
		return nil, newError(KindTimeout, "no subscription confirmation for %q within %s", name, c.cfg.SubscriptionTimeout)
	case <-ctx.Done():
		c.removeWaiter(name)
		return nil, wrapError(KindTimeout, ctx.Err(), "subscription to %q abandoned", name)
	}
}

// Unsubscribe drops the channel locally and, when connected, tells the
// server. Unknown channels are a no-op.
func (c *Client) Unsubscribe(name string) error {
	ch, ok := c.reg.Get(name)
	if !ok {
		return nil
	}

	ch.markUnsubscribed()
	c.reg.Drop(name)
	c.resolveWaiter(name, newError(KindSubscription, "channel %q was unsubscribed", name))

	if c.IsConnected() {
		return c.conn.Send(proto.Unsubscribe(name))
	}
	return nil
}

// sendSubscribe signs as required by the channel kind and sends the
// subscribe envelope.
func (c *Client) sendSubscribe(ch *Channel) error {
	var auth, channelData string
	var err error

	switch ch.Kind() {
	case Private:
		auth, err = c.auth.SignPrivate(c.SocketID(), ch.Name())
	case Presence:
		me := ch.Me()
		if me == nil {
			return newError(KindConfiguration, "presence channel %q has no member data", ch.Name())
		}
		auth, channelData, err = c.auth.SignPresence(c.SocketID(), ch.Name(), *me)
	}
	if err != nil {
		return err
	}
	return c.conn.Send(proto.Subscribe(ch.Name(), auth, channelData))
}

func (c *Client) handleMessage(m proto.Message) {
	c.reg.Dispatch(m)

	switch m.Event {
	case proto.EventSubscriptionSucceeded:
		c.resolveWaiter(m.Channel, nil)
	case proto.EventError:
		c.handleProtoError(m)
	}
}

// handleProtoError classifies a pusher:error. An error carrying a channel
// with a pending subscribe waiter fails that subscription; every error with
// a parseable payload is also delivered to global "error" handlers. The
// connection stays up.
func (c *Client) handleProtoError(m proto.Message) {
	var ed proto.ErrorData
	if err := proto.DataInto(m.Data, &ed); err != nil {
		c.logger.Warn("Unparseable pusher:error payload", "error", err)
		return
	}

	channel := ed.Channel
	if channel == "" {
		channel = m.Channel
	}

	kind := KindProtocol
	if channel != "" {
		kind = KindSubscription
		if strings.Contains(strings.ToLower(ed.Message), "auth") {
			kind = KindAuthentication
		}
	}

	err := newError(kind, "server error %d: %s", ed.Code, ed.Message)
	c.logger.Warn("Server reported error",
		"code", ed.Code, "message", ed.Message, "channel", channel)

	if channel != "" {
		c.resolveWaiter(channel, err)
	}
	c.reg.DispatchError(err, channel)
}

// handleEstablished re-issues subscribe requests for every registered but
// unsubscribed channel, in creation order. Confirmations arrive through the
// normal dispatch path.
func (c *Client) handleEstablished(socketID string, reconnected bool) {
	for _, ch := range c.reg.Channels() {
		if ch.IsSubscribed() {
			continue
		}
		if err := c.sendSubscribe(ch); err != nil {
			c.logger.Warn("Failed to resubscribe", "channel", ch.Name(), "error", err)
			c.reg.DispatchError(err, ch.Name())
		}
	}
}

func (c *Client) handleDown(err error) {
	c.reg.MarkAllUnsubscribed()
	c.rejectWaiters(wrapError(KindConnection, err, "connection lost"))
	c.fireDisconnect(err)
}

func (c *Client) handleClosed(err error) {
	c.rejectWaiters(newError(KindConnection, "client disconnected"))
	if err == nil {
		c.fireDisconnect(nil)
	}
}

func (c *Client) fireDisconnect(err error) {
	c.handlersMu.Lock()
	handlers := make([]func(error), len(c.disconnectHandlers))
	copy(handlers, c.disconnectHandlers)
	c.handlersMu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}

func (c *Client) addWaiter(name string) chan error {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	ch := make(chan error, 1)
	c.waiters[name] = ch
	return ch
}

func (c *Client) removeWaiter(name string) {
	c.waitersMu.Lock()
	delete(c.waiters, name)
	c.waitersMu.Unlock()
}

func (c *Client) resolveWaiter(name string, err error) {
	c.waitersMu.Lock()
	ch, ok := c.waiters[name]
	if ok {
		delete(c.waiters, name)
	}
	c.waitersMu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *Client) rejectWaiters(err error) {
	c.waitersMu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]chan error)
	c.waitersMu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// Connected connects a client, runs fn, and always disconnects afterwards.
func Connected(ctx context.Context, cfg Config, fn func(c *Client) error, opts ...Option) error {
	c, err := NewClient(cfg, opts...)
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()
	return fn(c)
}
