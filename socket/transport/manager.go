package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kleeedolinux/hostel-realtime/debug"
)

// Config controls dialing and automatic reconnection.
type Config struct {
	// Timeout bounds each connection attempt across all dialers.
	Timeout time.Duration
	// Reconnection enables retries after a failed dial or a dropped connection.
	Reconnection         bool
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	// ReconnectionAttempts caps consecutive retries; 0 retries forever.
	ReconnectionAttempts int
	// RememberUpgrade starts the next attempt with the dialer that last succeeded.
	RememberUpgrade bool
}

func DefaultConfig() Config {
	return Config{
		Timeout:              20 * time.Second,
		Reconnection:         true,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		RememberUpgrade:      true,
	}
}

// Manager owns a single logical connection built from an ordered list of dialers.
type Manager struct {
	cfg     Config
	dialers []Dialer
	log     *slog.Logger

	newBackOff func() backoff.BackOff

	mu        sync.Mutex
	conn      Conn
	preferred int
	running   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type ManagerOption func(*Manager)

func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithBackOff replaces the exponential policy derived from Config.
func WithBackOff(fn func() backoff.BackOff) ManagerOption {
	return func(m *Manager) {
		m.newBackOff = fn
	}
}

func NewManager(cfg Config, dialers []Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:     cfg,
		dialers: dialers,
		log:     debug.Discard(),
	}
	m.newBackOff = m.exponentialBackOff

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) exponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if m.cfg.ReconnectionDelay > 0 {
		b.InitialInterval = m.cfg.ReconnectionDelay
	}
	if m.cfg.ReconnectionDelayMax > 0 {
		b.MaxInterval = m.cfg.ReconnectionDelayMax
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// Open starts the connection loop in the background. Results are reported to h.
// ctx bounds only the first connection attempt; the loop itself runs until the
// server disconnects, retries are exhausted or Close is called. Calling Open
// while a loop is running is a no-op.
func (m *Manager) Open(ctx context.Context, h Handler) error {
	if len(m.dialers) == 0 {
		return ErrNoTransports
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})

	go m.run(runCtx, ctx, h, m.done)
	return nil
}

// Done is closed when the current connection loop exits.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.done
}

func (m *Manager) run(ctx, openCtx context.Context, h Handler, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	firstCtx, cancelFirst := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(openCtx, cancelFirst)
	defer func() {
		stopWatch()
		cancelFirst()
	}()

	bo := m.newBackOff()
	attempt := 0
	first := true

	for {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				m.log.Error("backoff exhausted", "attempt", attempt)
				return
			}
			m.log.Debug("reconnect scheduled", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			h.OnReconnectAttempt(attempt)
		}

		dialCtx := ctx
		if first {
			dialCtx = firstCtx
		}
		conn, err := m.dial(dialCtx)
		abandoned := first && openCtx.Err() != nil
		first = false
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if abandoned {
				m.log.Info("connect abandoned", "error", openCtx.Err())
				h.OnClose(ReasonClientDisconnect)
				return
			}
			m.log.Warn("connect failed", "attempt", attempt, "error", err)
			h.OnConnectError(err)

			if !m.cfg.Reconnection {
				return
			}
			attempt++
			if m.cfg.ReconnectionAttempts > 0 && attempt > m.cfg.ReconnectionAttempts {
				m.log.Error("giving up reconnecting", "attempts", m.cfg.ReconnectionAttempts)
				return
			}
			continue
		}

		if !m.setConn(conn) {
			_ = conn.Close()
			return
		}

		h.OnOpen()
		if attempt > 0 {
			h.OnReconnect(attempt)
		}
		attempt = 0
		bo.Reset()

		reason := m.readLoop(conn, h)
		m.clearConn(conn)

		if ctx.Err() != nil || m.isClosed() {
			return
		}

		m.log.Info("connection lost", "reason", reason)
		h.OnClose(reason)

		if !m.cfg.Reconnection || reason == ReasonServerDisconnect {
			return
		}
		attempt = 1
	}
}

// dial tries every dialer once, starting from the preferred one.
func (m *Manager) dial(ctx context.Context) (Conn, error) {
	dialCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	m.mu.Lock()
	start := m.preferred
	m.mu.Unlock()

	var errs []error
	for i := 0; i < len(m.dialers); i++ {
		idx := (start + i) % len(m.dialers)
		d := m.dialers[idx]

		conn, err := d.Dial(dialCtx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			if dialCtx.Err() != nil {
				break
			}
			continue
		}

		if m.cfg.RememberUpgrade {
			m.mu.Lock()
			m.preferred = idx
			m.mu.Unlock()
		}
		m.log.Debug("connected", "transport", d.Name())
		return conn, nil
	}

	return nil, errors.Join(errs...)
}

func (m *Manager) readLoop(conn Conn, h Handler) string {
	for {
		data, err := conn.Receive()
		if err != nil {
			return closeReason(err)
		}
		h.OnMessage(data)
	}
}

func (m *Manager) setConn(conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) clearConn(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	_ = conn.Close()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Connected reports whether a connection is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Transport returns the name of the dialer currently preferred.
func (m *Manager) Transport() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dialers) == 0 {
		return ""
	}
	return m.dialers[m.preferred].Name()
}

func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

// Close stops the connection loop and closes the current connection. It does not
// wait for the loop to exit, so it is safe to call from a Handler callback.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
