package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/debug"

	"github.com/gorilla/websocket"
)

type WebSocketDialer struct {
	url              string
	dialer           *websocket.Dialer
	headers          http.Header
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration
	readLimit        int64
	compression      bool
}

type WebSocketOption func(*WebSocketDialer)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.headers = headers
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.handshakeTimeout = timeout
	}
}

// WithReadTimeout bounds the silence tolerated on an open connection. Zero disables it.
func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.writeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.compression = enabled
	}
}

func NewWebSocketDialer(url string, opts ...WebSocketOption) *WebSocketDialer {
	d := &WebSocketDialer{
		url:              url,
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		handshakeTimeout: 10 * time.Second,
		readTimeout:      90 * time.Second,
		writeTimeout:     10 * time.Second,
		readLimit:        1 << 20,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *WebSocketDialer) Name() string {
	return NameWebSocket
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	debug.Printf("WebSocketDialer: Connecting to %s", d.url)

	dialer := *d.dialer
	dialer.HandshakeTimeout = d.handshakeTimeout
	dialer.EnableCompression = d.compression

	conn, resp, err := dialer.DialContext(ctx, d.url, d.headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		debug.Printf("WebSocketDialer: Connection failed: %v", err)
		return nil, fmt.Errorf("websocket dial %s: %w", d.url, err)
	}

	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}

	debug.Printf("WebSocketDialer: Connected successfully")
	return &wsConn{
		conn:         conn,
		readTimeout:  d.readTimeout,
		writeTimeout: d.writeTimeout,
	}, nil
}

type wsConn struct {
	wmu          sync.Mutex
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Send(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			debug.Printf("wsConn: Error setting write deadline: %v", err)
			return err
		}
	}

	debug.Printf("wsConn: Sending data: %s", string(data))
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		debug.Printf("wsConn: Send error: %v", err)
	}
	return err
}

func (c *wsConn) Receive() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		debug.Printf("wsConn: Read error: %v", err)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrServerClosed, err)
		}
		return nil, err
	}

	debug.Printf("wsConn: Received data: %s", string(message))
	return message, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		debug.Printf("wsConn: Closing connection")

		c.wmu.Lock()
		err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.wmu.Unlock()
		if err != nil {
			debug.Printf("wsConn: Error sending close message: %v", err)
		}

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
