package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/debug"
	"github.com/kleeedolinux/hostel-realtime/notify"
	"github.com/kleeedolinux/hostel-realtime/socket/transport"
)

// Transport is the reconnecting connection the Client layers on.
// *transport.Manager implements it.
type Transport interface {
	Open(ctx context.Context, h transport.Handler) error
	Send(data []byte) error
	Close() error
}

// StatusReporter renders the connection indicator. *notify.Surface implements it.
type StatusReporter interface {
	ShowStatus(text string, level notify.Level)
}

// Client is the realtime update client: it tracks connection state, re-emits
// server events to local listeners, queues sends made while disconnected and
// probes connection health.
type Client struct {
	id       string
	conn     Transport
	registry *Registry
	log      *slog.Logger
	status   StatusReporter
	metrics  *Metrics
	now      func() time.Time

	maxReconnectAttempts int
	healthInterval       time.Duration
	queueCapacity        int
	queuePolicy          OverflowPolicy

	// sendMu serializes transport writes and queue flushes so messages leave
	// in order. It is taken before mu, never while holding it.
	sendMu sync.Mutex

	mu               sync.Mutex
	state            State
	reconnectCounter int
	failureReported  bool
	queue            *outboundQueue
	closed           bool

	health    *healthChecker
	closeOnce sync.Once
	closeErr  error
}

type ClientOption func(*Client)

func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithMaxReconnectAttempts sets how many consecutive connection errors are
// reported as "reconnecting" before the client enters StateFailed.
func WithMaxReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxReconnectAttempts = attempts
	}
}

// WithHealthInterval sets the liveness probe interval. Zero disables probing.
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.healthInterval = d
	}
}

// WithQueue bounds the outbound queue. A capacity of 0 leaves it unbounded.
func WithQueue(capacity int, policy OverflowPolicy) ClientOption {
	return func(c *Client) {
		c.queueCapacity = capacity
		c.queuePolicy = policy
	}
}

func WithStatusReporter(r StatusReporter) ClientOption {
	return func(c *Client) {
		c.status = r
	}
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		id:                   generateID(),
		conn:                 t,
		log:                  debug.Discard(),
		now:                  time.Now,
		maxReconnectAttempts: 5,
		healthInterval:       30 * time.Second,
		queueCapacity:        1000,
		queuePolicy:          DropOldest,
		state:                StateDisconnected,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxReconnectAttempts <= 0 {
		c.maxReconnectAttempts = 1
	}
	c.log = c.log.With("client_id", c.id)
	c.registry = NewRegistry(c.log)
	c.registry.onFailure = func(event Event, _ error) { c.metrics.listenerFailure(event) }
	c.queue = newOutboundQueue(c.queueCapacity, c.queuePolicy)
	c.metrics.setState(c.state)

	c.health = newHealthChecker(c.healthInterval, c.probe)
	c.health.start()

	return c
}

func (c *Client) ID() string {
	return c.id
}

// Connect opens the transport. Connection results are observed through state
// changes and the connected/connection_failed events. ctx bounds the first
// connection attempt only; reconnection continues until Close. Connecting from
// StateFailed clears the failure so a new one is reported again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.failureReported = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.log.Info("connecting to realtime updates")

	if err := c.conn.Open(ctx, clientHandler{c}); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.setStateLocked(prev)
		}
		c.mu.Unlock()
		return fmt.Errorf("open transport: %w", err)
	}
	return nil
}

// Send transmits immediately when connected and queues otherwise. It fails only
// when the client is closed, the payload cannot be encoded, or the queue policy
// rejects the message.
func (c *Client) Send(event Event, payload interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	closed, connected := c.closed, c.state == StateConnected
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}

	if connected {
		err := c.transmit(event, payload)
		if err == nil {
			return nil
		}
		if isEncodeError(err) {
			return err
		}
		c.log.Warn("send failed, queueing", "event", string(event), "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(event, payload)
}

func (c *Client) enqueueLocked(event Event, payload interface{}) error {
	now := c.now()
	msg := OutboundMessage{
		ID:       newMessageID(now),
		Event:    event,
		Payload:  payload,
		QueuedAt: now,
	}

	dropped, err := c.queue.push(msg)
	if err != nil {
		c.log.Warn("outbound queue full, message rejected", "event", string(event), "capacity", c.queueCapacity)
		return err
	}
	if dropped != nil {
		c.metrics.drop()
		c.log.Warn("outbound queue full, message dropped",
			"dropped_id", dropped.ID, "dropped_event", string(dropped.Event), "policy", c.queuePolicy.String())
	}

	c.metrics.setQueueDepth(c.queue.len())
	c.log.Debug("message queued - not connected", "id", msg.ID, "event", string(event), "depth", c.queue.len())
	return nil
}

type encodeError struct{ err error }

func (e *encodeError) Error() string { return e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

func isEncodeError(err error) bool {
	var e *encodeError
	return errors.As(err, &e)
}

// transmit writes one frame. Callers hold sendMu.
func (c *Client) transmit(event Event, payload interface{}) error {
	data, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return &encodeError{err: fmt.Errorf("%w: %v", ErrInvalidMessage, err)}
	}
	if err := c.conn.Send(data); err != nil {
		return err
	}
	c.metrics.messageSent(event)
	return nil
}

// flush drains the queue in FIFO order. The first failed entry and all
// entries after it stay queued for the next connect. Callers hold sendMu.
func (c *Client) flush() {
	c.mu.Lock()
	items := c.queue.drain()
	c.mu.Unlock()
	if len(items) == 0 {
		return
	}

	for i, msg := range items {
		if err := c.transmit(msg.Event, msg.Payload); err != nil {
			if isEncodeError(err) {
				c.log.Error("dropping unencodable queued message", "id", msg.ID, "error", err)
				continue
			}
			c.mu.Lock()
			if !c.closed {
				c.queue.pushFront(items[i:])
			}
			c.mu.Unlock()
			c.log.Warn("queue flush interrupted", "sent", i, "remaining", len(items)-i, "error", err)
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.setQueueDepth(c.queue.len())
	c.log.Debug("message queue flushed", "messages", len(items), "remaining", c.queue.len())
}

func (c *Client) probe() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	skip := c.closed || c.state != StateConnected
	c.mu.Unlock()
	if skip {
		return
	}
	if err := c.transmit(EventPing, pingPayload{Timestamp: c.now().UTC()}); err != nil {
		c.log.Warn("health check probe failed", "error", err)
	}
}

type pingPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// On registers fn for event and returns its registration ID.
func (c *Client) On(event Event, fn Listener) ListenerID {
	return c.registry.On(event, fn)
}

// Off removes a registration made with On.
func (c *Client) Off(event Event, id ListenerID) bool {
	return c.registry.Off(event, id)
}

// Dispatch delivers data to the local listeners of event.
func (c *Client) Dispatch(event Event, data interface{}) {
	c.registry.Dispatch(event, data)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ReconnectAttempts returns consecutive connection errors since the last success.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectCounter
}

func (c *Client) MaxReconnectAttempts() int {
	return c.maxReconnectAttempts
}

func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// QueuedMessages returns a copy of the pending outbound messages in send order.
func (c *Client) QueuedMessages() []OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.snapshot()
}

// Close stops the health check, closes the transport and drops listeners and
// queued messages. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.health.stop()

		c.mu.Lock()
		c.closed = true
		c.setStateLocked(StateDisconnected)
		discarded := c.queue.drain()
		c.metrics.setQueueDepth(0)
		c.mu.Unlock()

		if len(discarded) > 0 {
			c.log.Warn("discarding queued messages on close", "messages", len(discarded))
		}

		c.closeErr = c.conn.Close()
		c.registry.Reset()
		c.log.Info("realtime client closed")
	})
	return c.closeErr
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("state change", "from", c.state.String(), "to", s.String())
	c.state = s
	c.metrics.setState(s)
}

func (c *Client) reportStatus(text string, level notify.Level) {
	if c.status == nil {
		c.log.Debug("connection status", "status", text, "level", string(level))
		return
	}
	c.status.ShowStatus(text, level)
}

// clientHandler receives transport callbacks without exposing them on Client.
type clientHandler struct {
	c *Client
}

func (h clientHandler) OnOpen() {
	c := h.c

	c.sendMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.sendMu.Unlock()
		return
	}
	c.setStateLocked(StateConnected)
	c.reconnectCounter = 0
	c.failureReported = false
	c.metrics.resetCounter()
	c.mu.Unlock()
	c.flush()
	c.sendMu.Unlock()

	c.log.Info("connected to realtime updates")
	c.reportStatus("Connected", notify.LevelSuccess)
	c.registry.Dispatch(EventConnected, nil)
}

func (h clientHandler) OnClose(reason string) {
	c := h.c

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.log.Info("disconnected from realtime updates", "reason", reason)
	c.reportStatus("Disconnected", notify.LevelError)
	c.registry.Dispatch(EventDisconnected, reason)
}

func (h clientHandler) OnConnectError(err error) {
	c := h.c

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnectCounter++
	attempt := c.reconnectCounter
	limit := c.maxReconnectAttempts
	c.metrics.connectionError(attempt)

	var fail bool
	if attempt >= limit {
		c.setStateLocked(StateFailed)
		fail = !c.failureReported
		c.failureReported = true
	}
	c.mu.Unlock()

	c.log.Error("connection error", "attempt", attempt, "max", limit, "error", err)

	switch {
	case attempt < limit:
		c.reportStatus(fmt.Sprintf("Reconnecting... (%d/%d)", attempt, limit), notify.LevelWarning)
	case fail:
		c.reportStatus("Connection failed", notify.LevelError)
		c.registry.Dispatch(EventConnectionFailed, err)
	}
}

func (h clientHandler) OnReconnectAttempt(attempt int) {
	c := h.c

	c.mu.Lock()
	if !c.closed && c.state == StateDisconnected {
		c.setStateLocked(StateConnecting)
	}
	c.mu.Unlock()

	c.log.Debug("reconnect attempt", "attempt", attempt)
}

func (h clientHandler) OnReconnect(attempt int) {
	c := h.c

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnectCounter = 0
	c.mu.Unlock()

	c.log.Info("reconnected", "attempts", attempt)
	c.reportStatus("Reconnected", notify.LevelSuccess)
	c.registry.Dispatch(EventReconnected, attempt)
}

func (h clientHandler) OnMessage(data []byte) {
	c := h.c

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
		c.log.Warn("dropping malformed frame", "error", err, "size", len(data))
		return
	}
	c.metrics.messageReceived(msg.Event, msg.Event == EventPong || c.registry.Listeners(msg.Event) > 0)

	if msg.Event == EventPong {
		var pong pingPayload
		_ = DecodeData(msg.Data, &pong)
		c.log.Debug("connection health check OK", "timestamp", pong.Timestamp)
		return
	}
	if msg.Event.reserved() {
		c.log.Debug("ignoring server frame with reserved event name", "event", string(msg.Event))
		return
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.registry.Dispatch(msg.Event, msg.Data)
}
