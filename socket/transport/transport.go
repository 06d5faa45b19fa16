// Package transport provides the reconnecting connection layer under the realtime
// client: a Manager that dials one of several transports in preference order,
// reconnects with exponential backoff and reports lifecycle events to a Handler.
package transport

import (
	"context"
	"errors"
	"net"
)

const (
	NameWebSocket   = "websocket"
	NameLongPolling = "polling"
)

// Close reasons reported through Handler.OnClose.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("transport closed")
	ErrServerClosed = errors.New("closed by server")
	ErrNoTransports = errors.New("no transports configured")
)

// Conn is one established connection. Receive blocks until a frame arrives or the
// connection fails.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens connections of a single transport kind.
type Dialer interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Handler receives lifecycle events and frames. Calls are made serially from a
// single goroutine.
type Handler interface {
	OnOpen()
	OnClose(reason string)
	OnConnectError(err error)
	OnReconnectAttempt(attempt int)
	OnReconnect(attempt int)
	OnMessage(data []byte)
}

// closeReason classifies a receive error into one of the Reason constants.
func closeReason(err error) string {
	if errors.Is(err, ErrServerClosed) {
		return ReasonServerDisconnect
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return ReasonTransportClose
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}
	return ReasonTransportError
}
