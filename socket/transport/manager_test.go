package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in     chan []byte
	errc   chan error
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		errc:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case err := <-c.errc:
		return nil, err
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	name  string
	dials atomic.Int32

	mu    sync.Mutex
	err   error
	conns chan *fakeConn
}

func newFakeDialer(name string, err error) *fakeDialer {
	return &fakeDialer{name: name, err: err, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Name() string { return d.name }

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(time.Second):
		t.Fatalf("%s: no connection dialed", d.name)
		return nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnOpen() { r.add("open") }
func (r *recorder) OnClose(reason string) { r.add("close:%s", reason) }
func (r *recorder) OnConnectError(error) { r.add("error") }
func (r *recorder) OnReconnectAttempt(n int) { r.add("attempt:%d", n) }
func (r *recorder) OnReconnect(n int) { r.add("reconnect:%d", n) }
func (r *recorder) OnMessage(data []byte) { r.add("msg:%s", data) }

func (r *recorder) waitFor(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got := r.get()
		return len(got) >= len(want)
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, r.get()[:len(want)])
}

func testManager(cfg Config, dialers ...Dialer) *Manager {
	return NewManager(cfg, dialers, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))
}

func waitDone(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("connection loop did not exit")
	}
}

func TestManager_OpenAndReceive(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, nil)
	m := testManager(DefaultConfig(), ws)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	require.NoError(t, m.Open(context.Background(), rec), "second open is a no-op")

	conn := ws.next(t)
	conn.in <- []byte(`{"event":"pong"}`)

	rec.waitFor(t, "open", `msg:{"event":"pong"}`)
	assert.True(t, m.Connected())
	assert.Equal(t, int32(1), ws.dials.Load())

	require.NoError(t, m.Send([]byte("hello")))
	conn.mu.Lock()
	assert.Equal(t, [][]byte{[]byte("hello")}, conn.sent)
	conn.mu.Unlock()
}

func TestManager_FallbackAndRememberUpgrade(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, errors.New("websocket: bad handshake"))
	lp := newFakeDialer(NameLongPolling, nil)
	m := testManager(DefaultConfig(), ws, lp)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))

	conn := lp.next(t)
	rec.waitFor(t, "open")
	assert.Equal(t, NameLongPolling, m.Transport())

	conn.errc <- io.ErrUnexpectedEOF
	lp.next(t)

	rec.waitFor(t, "open", "close:"+ReasonTransportError, "attempt:1", "open", "reconnect:1")
	assert.Equal(t, int32(1), ws.dials.Load(), "reconnect starts with the remembered transport")
}

func TestManager_WithoutRememberUpgrade(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, errors.New("websocket: bad handshake"))
	lp := newFakeDialer(NameLongPolling, nil)
	cfg := DefaultConfig()
	cfg.RememberUpgrade = false
	m := testManager(cfg, ws, lp)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	conn := lp.next(t)
	conn.errc <- io.ErrUnexpectedEOF
	lp.next(t)

	assert.Equal(t, int32(2), ws.dials.Load())
}

func TestManager_ConnectErrorsThenSuccess(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, errors.New("connection refused"))
	m := testManager(DefaultConfig(), ws)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))

	rec.waitFor(t, "error", "attempt:1", "error")
	ws.setErr(nil)
	ws.next(t)

	require.Eventually(t, func() bool {
		got := rec.get()
		return len(got) >= 2 && got[len(got)-2] == "open"
	}, time.Second, time.Millisecond)
	got := rec.get()
	assert.Regexp(t, `^reconnect:\d+$`, got[len(got)-1])
}

func TestManager_AttemptsLimit(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, errors.New("connection refused"))
	cfg := DefaultConfig()
	cfg.ReconnectionAttempts = 2
	m := testManager(cfg, ws)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	waitDone(t, m)

	assert.Equal(t, []string{"error", "attempt:1", "error", "attempt:2", "error"}, rec.get())
	assert.Equal(t, int32(3), ws.dials.Load())
}

func TestManager_ReconnectionDisabled(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, errors.New("connection refused"))
	cfg := DefaultConfig()
	cfg.Reconnection = false
	m := testManager(cfg, ws)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	waitDone(t, m)

	assert.Equal(t, []string{"error"}, rec.get())
}

func TestManager_ServerDisconnectStops(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, nil)
	m := testManager(DefaultConfig(), ws)
	defer m.Close()

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	conn := ws.next(t)
	conn.errc <- fmt.Errorf("%w: going away", ErrServerClosed)

	waitDone(t, m)
	assert.Equal(t, []string{"open", "close:" + ReasonServerDisconnect}, rec.get())
	assert.Equal(t, int32(1), ws.dials.Load())

	require.NoError(t, m.Open(context.Background(), rec), "loop can be reopened")
	ws.next(t)
}

func TestManager_Close(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, nil)
	m := testManager(DefaultConfig(), ws)

	rec := &recorder{}
	require.NoError(t, m.Open(context.Background(), rec))
	ws.next(t)
	rec.waitFor(t, "open")

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	waitDone(t, m)

	assert.Equal(t, []string{"open"}, rec.get(), "no close callback after Close")
	assert.False(t, m.Connected())
	assert.ErrorIs(t, m.Send([]byte("x")), ErrNotConnected)
	assert.ErrorIs(t, m.Open(context.Background(), rec), ErrClosed)
}

type blockingDialer struct{}

func (blockingDialer) Name() string { return NameWebSocket }

func (blockingDialer) Dial(ctx context.Context) (Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestManager_ContextBoundsFirstDial(t *testing.T) {
	m := testManager(DefaultConfig(), blockingDialer{})
	defer m.Close()

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Open(ctx, rec))
	cancel()

	waitDone(t, m)
	assert.Equal(t, []string{"close:" + ReasonClientDisconnect}, rec.get())
}

func TestManager_OutlivesOpenContext(t *testing.T) {
	ws := newFakeDialer(NameWebSocket, nil)
	m := testManager(DefaultConfig(), ws)
	defer m.Close()

	rec := &recorder{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	require.NoError(t, m.Open(ctx, rec))
	conn := ws.next(t)
	rec.waitFor(t, "open")
	cancel()

	conn.errc <- io.EOF
	ws.next(t)
	rec.waitFor(t, "open", "close:"+ReasonTransportError, "attempt:1", "open", "reconnect:1")
	assert.True(t, m.Connected())
}

func TestManager_TransportWithoutDialers(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	assert.Empty(t, m.Transport())
}

func TestManager_NoDialers(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	assert.ErrorIs(t, m.Open(context.Background(), &recorder{}), ErrNoTransports)
}

func TestCloseReason(t *testing.T) {
	assert.Equal(t, ReasonServerDisconnect, closeReason(fmt.Errorf("x: %w", ErrServerClosed)))
	assert.Equal(t, ReasonTransportClose, closeReason(ErrClosed))
	assert.Equal(t, ReasonTransportError, closeReason(io.EOF))
}
