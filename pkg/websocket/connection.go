// Package websocket provides a push-channel connection with an explicit
// connect/disconnect lifecycle and fixed-delay reconnection
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hedgedesk/internal/core"
	apperrors "hedgedesk/pkg/errors"
	"hedgedesk/pkg/reactive"
	"hedgedesk/pkg/telemetry"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultReconnectDelay = 5 * time.Second

// MessageHandler handles one inbound frame. Frames are delivered one at a
// time in arrival order.
type MessageHandler func(message []byte)

// Config describes one endpoint
type Config struct {
	// Name labels logs and metrics, e.g. "market" or "payoff"
	Name           string
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	PingWait       time.Duration
	PongWait       time.Duration
	// ShutdownWait bounds how long Disconnect waits for the read goroutine
	ShutdownWait time.Duration
}

// Option customizes a Connection
type Option func(*Connection)

// WithDialer replaces the gorilla dialer
func WithDialer(d Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

// WithClock replaces the wall clock used for reconnect delays and heartbeats
func WithClock(clk clock.Clock) Option {
	return func(c *Connection) { c.clock = clk }
}

// Connection is a resilient push channel.
//
// State changes are published synchronously; listeners must not call
// Connect or Disconnect from the callback.
type Connection struct {
	cfg     Config
	handler MessageHandler
	logger  core.ILogger
	dialer  Dialer
	clock   clock.Clock
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder

	// notifyMu serializes transitions so listeners observe them in order
	notifyMu sync.Mutex
	states   *reactive.Value[core.ConnectionState]

	mu     sync.Mutex
	state  core.ConnectionState
	gen    uint64
	conn   Conn
	timer  *clock.Timer
	cancel context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewConnection creates a connection in the Disconnected state. It never dials.
func NewConnection(cfg Config, handler MessageHandler, logger core.ILogger, opts ...Option) *Connection {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PingWait <= 0 {
		cfg.PingWait = 10 * time.Second
	}
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = 5 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "stream"
	}

	c := &Connection{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithFields(map[string]interface{}{"component": "stream", "endpoint": cfg.Name}),
		dialer:  GorillaDialer{},
		clock:   clock.New(),
		tracer:  telemetry.GetTracer("stream-connection"),
		metrics: telemetry.GetGlobalMetrics(),
		states:  reactive.NewValue(core.StateDisconnected),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the endpoint label
func (c *Connection) Name() string {
	return c.cfg.Name
}

// State returns the current connection state
func (c *Connection) State() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every state transition
func (c *Connection) OnStateChange(fn func(core.ConnectionState)) (cancel func()) {
	return c.states.Subscribe(fn)
}

// Connect starts connecting unless already Connected, Connecting or Reconnecting.
func (c *Connection) Connect() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.state != core.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = core.StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("Connecting", "url", c.cfg.URL)
	c.states.Set(core.StateConnecting)

	go c.run(ctx, gen)
}

// Disconnect closes the channel, cancels any pending reconnect and moves to
// Disconnected. It waits briefly for the read goroutine to exit.
func (c *Connection) Disconnect() {
	c.notifyMu.Lock()

	c.mu.Lock()
	if c.state == core.StateDisconnected {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return
	}
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = core.StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	c.metrics.SetStreamConnected(c.cfg.Name, false)
	c.logger.Info("Disconnected")
	c.states.Set(core.StateDisconnected)
	c.notifyMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownWait):
		c.logger.Warn("Stream goroutines did not exit within timeout")
	}
}

// Send writes message as JSON. It fails with ErrNotConnected unless the
// connection is Connected; nothing is queued.
func (c *Connection) Send(message interface{}) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != core.StateConnected || conn == nil {
		c.metrics.RecordSendFailure(context.Background(), c.cfg.Name)
		c.logger.Warn("Dropping outbound message", "state", state.String(), "error", apperrors.ErrNotConnected)
		return fmt.Errorf("%s: %w", c.cfg.Name, apperrors.ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(message); err != nil {
		c.metrics.RecordSendFailure(context.Background(), c.cfg.Name)
		c.logger.Error("Write failed", "error", err)
		return fmt.Errorf("%s write: %w", c.cfg.Name, err)
	}
	return nil
}

func (c *Connection) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Error("Connect failed", "url", c.cfg.URL, "error", err)
		c.scheduleReconnect(gen)
		return
	}

	if !c.attach(gen, conn) {
		_ = conn.Close()
		return
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.heartbeat(hbCtx, conn)
	}

	err = c.readLoop(gen, conn)
	hbCancel()

	c.mu.Lock()
	if c.gen == gen && c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if err != nil {
		c.logger.Warn("Connection lost", "error", err)
	}
	c.scheduleReconnect(gen)
}

func (c *Connection) dial(ctx context.Context) (Conn, error) {
	ctx, span := c.tracer.Start(ctx, "Stream Connect",
		trace.WithAttributes(
			attribute.String("stream.endpoint", c.cfg.Name),
			attribute.String("stream.url", c.cfg.URL),
		),
	)
	defer span.End()

	conn, err := c.dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if c.cfg.PongWait > 0 {
		pongWait := c.cfg.PongWait
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return conn, nil
}

// attach installs conn and moves to Connected if gen is still current
func (c *Connection) attach(gen uint64, conn Conn) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.state = core.StateConnected
	c.mu.Unlock()

	c.metrics.SetStreamConnected(c.cfg.Name, true)
	c.logger.Info("Connected", "url", c.cfg.URL)
	c.states.Set(core.StateConnected)
	return true
}

func (c *Connection) readLoop(gen uint64, conn Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.current(gen) {
				return err
			}
			return nil
		}
		if !c.current(gen) {
			return nil
		}
		if c.handler != nil {
			c.handler(message)
		}
	}
}

func (c *Connection) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// scheduleReconnect moves to Reconnecting and arms the fixed-delay timer
func (c *Connection) scheduleReconnect(gen uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state == core.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = core.StateReconnecting
	c.timer = c.clock.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.reconnect(gen)
	})
	c.mu.Unlock()

	c.metrics.SetStreamConnected(c.cfg.Name, false)
	c.metrics.RecordReconnect(context.Background(), c.cfg.Name)
	c.logger.Info("Reconnecting", "delay", c.cfg.ReconnectDelay.String())
	c.states.Set(core.StateReconnecting)
}

func (c *Connection) reconnect(gen uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state != core.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.gen++
	next := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.timer = nil
	c.state = core.StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.states.Set(core.StateConnecting)
	go c.run(ctx, next)
}

func (c *Connection) heartbeat(ctx context.Context, conn Conn) {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.cfg.PingWait))
			c.writeMu.Unlock()
			if err != nil {
				// closing the socket ends the read loop, which schedules the reconnect
				c.logger.Warn("Ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}
