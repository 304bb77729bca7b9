// Package wsconn provides a WebSocket client with reconnection on top of
// coder/websocket.
package wsconn

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sugawarayuuta/sonnet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/multichain-arb/internal/apperror"
)

const meterName = "wsconn"

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	ReadTimeout    time.Duration // 0 = no per-read deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions. err carries the cause of a
// disconnect, if any.
type StateHandler func(state State, err error)

type clientMetrics struct {
	messages   metric.Int64Counter
	reconnects metric.Int64Counter
	attrs      metric.MeasurementOption
}

// Client is a WebSocket client that reconnects with exponential backoff
// after the connection drops.
type Client struct {
	cfg Config

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	stateMu sync.RWMutex
	state   State

	handlersMu sync.RWMutex
	onMessage  MessageHandler
	onState    StateHandler

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	metrics *clientMetrics
}

// New creates a client. It does not dial.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err), apperror.WithContext("websocket url"))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("websocket url scheme %q", u.Scheme)))
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	c := &Client{
		cfg:   cfg,
		state: StateDisconnected,
		done:  make(chan struct{}),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{
		attrs: metric.WithAttributes(attribute.String("conn", c.cfg.Name)),
	}

	c.metrics.messages, err = meter.Int64Counter(
		"wsconn_messages_total",
		metric.WithDescription("Inbound websocket messages"),
	)
	if err != nil {
		return err
	}

	c.metrics.reconnects, err = meter.Int64Counter(
		"wsconn_reconnects_total",
		metric.WithDescription("Reconnection attempts"),
	)
	return err
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = h
	c.handlersMu.Unlock()
}

// OnStateChange registers the state transition handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlersMu.Lock()
	c.onState = h
	c.handlersMu.Unlock()
}

// Connect dials once. On failure the client is left disconnected and no
// reconnection is scheduled.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}

	c.setState(StateConnecting, nil)
	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected, err)
		return err
	}
	return nil
}

// ConnectWithRetry dials until it succeeds, ctx is done, or MaxReconnects
// attempts have failed.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	backoff := c.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if apperror.HasCode(err, apperror.CodeWebSocketClosed) {
			return err
		}
		if c.cfg.MaxReconnects > 0 && attempt >= c.cfg.MaxReconnects {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
		case <-time.After(backoff):
		}
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err), apperror.WithContext(c.cfg.Name))
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	// connection goroutines outlive the dial context
	connCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(connCtx, conn)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(connCtx, conn)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.cfg.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.cfg.ReadTimeout)
		}
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			c.dropConnection(conn, err)
			return
		}

		c.metrics.messages.Add(ctx, 1, c.metrics.attrs)

		c.handlersMu.RLock()
		h := c.onMessage
		c.handlersMu.RUnlock()
		if h != nil {
			h(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.PongTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.dropConnection(conn, err)
				return
			}
		}
	}
}

// dropConnection tears down conn if it is still current and schedules a
// reconnect.
func (c *Client) dropConnection(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	_ = conn.CloseNow()

	if c.closed.Load() {
		return
	}
	c.setState(StateDisconnected, cause)
	go c.reconnect(cause)
}

func (c *Client) reconnect(cause error) {
	backoff := c.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		if c.cfg.MaxReconnects > 0 && attempt > c.cfg.MaxReconnects {
			c.setState(StateDisconnected, cause)
			return
		}
		c.setState(StateReconnecting, cause)

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.metrics.reconnects.Add(context.Background(), 1, c.metrics.attrs)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.MaxBackoff)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}
		if apperror.HasCode(err, apperror.CodeWebSocketClosed) {
			return
		}
		cause = err
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Client) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return d
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name+": not connected"))
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err), apperror.WithContext(c.cfg.Name))
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err), apperror.WithContext("marshal"))
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether a connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close closes the connection and stops reconnection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()

		if conn != nil {
			// peer may already be gone; nothing useful to report
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) setState(s State, err error) {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return
	}
	c.state = s
	c.stateMu.Unlock()

	c.handlersMu.RLock()
	h := c.onState
	c.handlersMu.RUnlock()
	if h != nil {
		h(s, err)
	}
}
