package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/telemetry"
)

var (
	// ErrNotConnected is returned when emitting without an open connection.
	ErrNotConnected = errors.New("transport not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
	// ErrRequestTimeout is returned when a one-shot request gets no response in time.
	ErrRequestTimeout = errors.New("transport request timed out")
)

// Defaults for Options fields left zero.
const (
	DefaultHandshakeTimeout  = 20 * time.Second
	DefaultRequestTimeout    = 15 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultReconnectDelayMax = 5 * time.Second
)

// Options configures a Client.
type Options struct {
	URL               string
	Token             string
	HandshakeTimeout  time.Duration
	RequestTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	// Dialer overrides the gorilla dialer, mainly for tests.
	Dialer Dialer
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = DefaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ReconnectDelayMax <= 0 {
		o.ReconnectDelayMax = DefaultReconnectDelayMax
	}
	if o.Dialer == nil {
		o.Dialer = gorillaDialer{dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}}
	}
	return o
}

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of an event.
type Handler func(data json.RawMessage)

type listener struct {
	id uint64
	fn Handler
}

// Client is the long-lived connection manager to the chat backend. It is
// safe for concurrent use; handlers run on the read goroutine.
type Client struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	dialMu sync.Mutex

	mu     sync.Mutex
	conn   Conn
	info   ConnInfo
	closed bool
	userID string
	room   *models.JoinRoomRequest

	writeMu sync.Mutex

	lmu       sync.RWMutex
	listeners map[string][]listener
	nextID    uint64

	chatActive atomic.Bool
}

// NewClient builds a disconnected client.
func NewClient(opts Options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string][]listener),
	}
}

// Connect opens the connection, retrying with the reconnection policy. It
// is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dialWithRetry(ctx)
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, info := c.conn, c.info
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.disconnected(info, "client closed")
		err = conn.Close()
	}
	c.cancel()
	return err
}

// Identify announces the user on this connection and after every reconnect.
func (c *Client) Identify(userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	return c.Emit(EmitIdentify, userID)
}

// Emit sends one event.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	observability.IncWSEvent("out", event)
	return nil
}

// On registers fn for event. The returned func removes it and is safe to
// call more than once.
func (c *Client) On(event string, fn Handler) func() {
	c.lmu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[event] = append(c.listeners[event], listener{id: id, fn: fn})
	c.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.lmu.Lock()
			defer c.lmu.Unlock()
			list := c.listeners[event]
			for i, l := range list {
				if l.id == id {
					c.listeners[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(c.listeners[event]) == 0 {
				delete(c.listeners, event)
			}
		})
	}
}

func (c *Client) listenerCount(event string) int {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	return len(c.listeners[event])
}

// SetChatActive toggles suppression of new_message_notification while the
// chat view is open.
func (c *Client) SetChatActive(active bool) {
	c.chatActive.Store(active)
}

// Reply is the response matched by Request.
type Reply struct {
	Event string
	Data  json.RawMessage
}

// Request emits payload and waits for the first event in responses that
// match accepts. match may be nil to accept any. The temporary listeners
// are gone when Request returns.
func (c *Client) Request(ctx context.Context, emit string, payload any, responses []string, match func(event string, data json.RawMessage) bool) (Reply, error) {
	ctx, span := telemetry.StartSpan(ctx, "ws.request", attribute.String("ws.event", emit))
	defer span.End()

	replies := make(chan Reply, 1)
	unsubs := make([]func(), 0, len(responses))
	for _, event := range responses {
		event := event
		unsubs = append(unsubs, c.On(event, func(data json.RawMessage) {
			if match != nil && !match(event, data) {
				return
			}
			select {
			case replies <- Reply{Event: event, Data: data}:
			default:
			}
		}))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	if err := c.Emit(emit, payload); err != nil {
		span.RecordError(err)
		return Reply{}, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		observability.IncRequestTimeout(emit)
		log.Printf("ws request timed out event=%s timeout=%s", emit, c.opts.RequestTimeout)
		return Reply{}, fmt.Errorf("%w: %s", ErrRequestTimeout, emit)
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (c *Client) dialWithRetry(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.ReconnectDelay
	policy.MaxInterval = c.opts.ReconnectDelayMax
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return backoff.Permanent(ErrClosed)
		}
		return c.dial(ctx, attempt)
	}
	notify := func(err error, wait time.Duration) {
		observability.IncReconnect("failure")
		log.Printf("ws dial failed attempt=%d retry_in=%s: %v", attempt, wait, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.ReconnectAttempts)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("connect %s: %w", c.opts.URL, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context, attempt int) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	dialCtx, span := telemetry.StartSpan(dialCtx, "ws.dial", attribute.Int("ws.attempt", attempt))
	defer span.End()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, err := c.opts.Dialer.Dial(dialCtx, c.opts.URL, header)
	if err != nil {
		span.RecordError(err)
		observability.IncWSEvent("in", observability.EventWSError)
		observability.PublishLifecycle(ctx, observability.EventWSError, observability.ConnectionEvent{
			URL:     c.opts.URL,
			Attempt: attempt,
			Reason:  err.Error(),
		}, telemetry.TraceID(dialCtx))
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return backoff.Permanent(ErrClosed)
	}
	c.conn = conn
	c.info = ConnInfo{
		ConnID:      newConnID(),
		UserID:      c.userID,
		URL:         c.opts.URL,
		Attempt:     attempt,
		ConnectedAt: time.Now(),
	}
	info := c.info
	c.mu.Unlock()

	observability.IncWSActive()
	observability.IncWSEvent("in", observability.EventWSConnect)
	observability.PublishLifecycle(ctx, observability.EventWSConnect, observability.ConnectionEvent{
		ConnID:  info.ConnID,
		UserID:  info.UserID,
		URL:     info.URL,
		Attempt: attempt,
	}, telemetry.TraceID(dialCtx))
	log.Printf("ws connected conn_id=%s url=%s attempt=%d", info.ConnID, info.URL, attempt)

	go c.readLoop(conn, info)
	return nil
}

func (c *Client) readLoop(conn Conn, info ConnInfo) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, info, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("ws frame decode failed conn_id=%s: %v", info.ConnID, err)
			continue
		}
		observability.IncWSEvent("in", env.Event)
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	if event == EventNewMessageNotification && c.chatActive.Load() {
		return
	}
	if event == EventError {
		log.Printf("ws server error: %s", string(data))
	}

	c.lmu.RLock()
	list := make([]listener, len(c.listeners[event]))
	copy(list, c.listeners[event])
	c.lmu.RUnlock()

	for _, l := range list {
		c.invoke(event, l.fn, data)
	}
}

func (c *Client) invoke(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws handler panic event=%s: %v", event, r)
		}
	}()
	fn(data)
}

func (c *Client) connectionLost(conn Conn, info ConnInfo, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	c.mu.Unlock()
	_ = conn.Close()

	reason := err.Error()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		observability.IncWSEvent("in", observability.EventWSError)
		log.Printf("ws read failed conn_id=%s: %v", info.ConnID, err)
	}
	c.disconnected(info, reason)
	if closed {
		return
	}
	go c.reconnect()
}

func (c *Client) disconnected(info ConnInfo, reason string) {
	observability.DecWSActive()
	observability.IncWSEvent("in", observability.EventWSDisconnect)
	observability.PublishLifecycle(c.ctx, observability.EventWSDisconnect, observability.ConnectionEvent{
		ConnID:     info.ConnID,
		UserID:     info.UserID,
		URL:        info.URL,
		DurationMs: time.Since(info.ConnectedAt).Milliseconds(),
		Reason:     reason,
	}, "")
}

func (c *Client) reconnect() {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if err := c.dialWithRetry(c.ctx); err != nil {
		log.Printf("ws reconnect gave up: %v", err)
		return
	}
	observability.IncReconnect("success")

	c.mu.Lock()
	userID := c.userID
	var room *models.JoinRoomRequest
	if c.room != nil {
		r := *c.room
		room = &r
	}
	c.mu.Unlock()

	if userID != "" {
		if err := c.Emit(EmitIdentify, userID); err != nil {
			log.Printf("ws re-identify failed: %v", err)
		}
	}
	if room != nil {
		if err := c.Emit(EmitJoinRoom, room); err != nil {
			log.Printf("ws rejoin failed room_id=%s: %v", roomOf(room), err)
		}
	}
}
