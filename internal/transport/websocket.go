package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campushub/campus-sync/pkg/metrics"
)

// TokenSource provides the session credential gating the connection.
// An empty token means no valid session.
type TokenSource interface {
	Token() string
}

// Frame is the wire envelope for named events in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type subscription struct {
	id      int
	handler Handler
}

// Options configures a websocket transport client.
type Options struct {
	URL              string
	Tokens           TokenSource
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
	Reconnect        bool
	HandshakeTimeout time.Duration
}

// WebsocketClient implements Client over a single gorilla/websocket
// connection. Lock order: dispatchMu before mu.
type WebsocketClient struct {
	url       string
	tokens    TokenSource
	log       zerolog.Logger
	metrics   *metrics.Metrics
	reconnect bool
	dialer    *websocket.Dialer

	// dispatchMu serializes handler invocation against Disconnect so
	// no handler runs once Disconnect has returned.
	dispatchMu sync.Mutex
	closed     bool

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	gen       int
	handlers  map[string][]subscription
	nextID    int

	writeMu sync.Mutex
}

func NewWebsocketClient(opts Options) *WebsocketClient {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &WebsocketClient{
		url:       opts.URL,
		tokens:    opts.Tokens,
		log:       opts.Logger.With().Str("component", "transport").Logger(),
		metrics:   opts.Metrics,
		reconnect: opts.Reconnect,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		handlers: make(map[string][]subscription),
	}
}

// Connect dials the push channel. No-op when already connected or when
// no session credential is available. Dial failures are logged only;
// the caller stays in pull-only mode.
func (c *WebsocketClient) Connect(ctx context.Context) {
	c.dispatchMu.Lock()
	if c.closed {
		c.dispatchMu.Unlock()
		return
	}
	c.dispatchMu.Unlock()

	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		c.log.Debug().Msg("no session credential, skipping transport connect")
		return
	}

	if err := c.dial(ctx, token); err != nil {
		c.log.Warn().Err(err).Msg("transport connect failed, continuing in pull-only mode")
	}
}

func (c *WebsocketClient) dial(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Token "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.connected {
		// Torn down mid-dial, or lost the race against a concurrent
		// dial.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("transport connected")
	go c.readPump(ctx, conn, gen)
	return nil
}

// Disconnect releases the channel and clears every subscription. After
// it returns no handler will run, even for frames already received.
func (c *WebsocketClient) Disconnect() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.handlers = make(map[string][]subscription)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.log.Info().Msg("transport disconnected")
	}
}

func (c *WebsocketClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *WebsocketClient) On(event string, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.handlers[event] = append(c.handlers[event], subscription{id: c.nextID, handler: h})
	return c.nextID
}

func (c *WebsocketClient) Off(event string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			c.handlers[event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit writes a named event, dropping it when disconnected.
func (c *WebsocketClient) Emit(event string, payload any) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		c.log.Debug().Str("event", event).Msg("transport disconnected, dropping outbound event")
		if c.metrics != nil {
			c.metrics.EmitsDropped.Inc()
		}
		return
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(outFrame{Event: event, Data: payload})
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("transport write failed")
	}
}

func (c *WebsocketClient) readPump(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.dropConnection(gen)
			if c.shouldReconnect() {
				c.log.Warn().Err(err).Msg("transport read failed, reconnecting")
				c.reconnectLoop(ctx)
			} else if !c.isClosed() {
				c.log.Warn().Err(err).Msg("transport read failed")
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *WebsocketClient) dispatch(frame Frame) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if c.closed {
		return
	}

	c.mu.RLock()
	subs := make([]subscription, len(c.handlers[frame.Event]))
	copy(subs, c.handlers[frame.Event])
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(frame.Data)
	}
}

// dropConnection clears connection state if gen is still the live
// generation, so a stale pump cannot tear down a fresh connection.
func (c *WebsocketClient) dropConnection(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

func (c *WebsocketClient) reconnectLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if c.isClosed() {
			return
		}

		token := ""
		if c.tokens != nil {
			token = c.tokens.Token()
		}
		if token == "" {
			return
		}

		if c.metrics != nil {
			c.metrics.Reconnects.Inc()
		}
		if err := c.dial(ctx, token); err != nil {
			c.log.Debug().Err(err).Msg("transport reconnect attempt failed")
			continue
		}
		return
	}
}

func (c *WebsocketClient) shouldReconnect() bool {
	return c.reconnect && !c.isClosed()
}

func (c *WebsocketClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
