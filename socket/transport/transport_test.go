package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleeedolinux/hostel-realtime/socket/sockettest"
	"github.com/kleeedolinux/hostel-realtime/socket/transport"
)

type handler struct {
	mu       sync.Mutex
	opens    int
	closes   []string
	errors   int
	messages []string
}

func (h *handler) OnOpen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
}

func (h *handler) OnClose(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes = append(h.closes, reason)
}

func (h *handler) OnConnectError(error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

func (h *handler) OnReconnectAttempt(int) {}
func (h *handler) OnReconnect(int)        {}

func (h *handler) OnMessage(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, string(data))
}

func (h *handler) snapshot() (opens int, closes []string, errors int, messages []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens, append([]string(nil), h.closes...), h.errors, append([]string(nil), h.messages...)
}

func (h *handler) openCount() int {
	opens, _, _, _ := h.snapshot()
	return opens
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(5 * time.Millisecond)
}

func dialers(srv *sockettest.Server, name string) []transport.Dialer {
	ws := transport.NewWebSocketDialer(srv.WSURL)
	lp := transport.NewLongPollingDialer(srv.URL, transport.WithPollInterval(5*time.Millisecond))
	switch name {
	case transport.NameWebSocket:
		return []transport.Dialer{ws}
	case transport.NameLongPolling:
		return []transport.Dialer{lp}
	}
	return []transport.Dialer{ws, lp}
}

func TestTransports_RoundTrip(t *testing.T) {
	for _, name := range []string{transport.NameWebSocket, transport.NameLongPolling} {
		t.Run(name, func(t *testing.T) {
			srv := sockettest.Start(t)
			m := transport.NewManager(transport.DefaultConfig(), dialers(srv, name), transport.WithBackOff(fastBackOff))
			defer m.Close()

			h := &handler{}
			require.NoError(t, m.Open(context.Background(), h))
			require.Eventually(t, func() bool { return h.openCount() == 1 && srv.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, name, srv.Peers()[0].Transport())

			require.NoError(t, m.Send([]byte(`{"event":"ping","data":{"timestamp":"2026-10-19T00:00:00Z"}}`)))
			require.Eventually(t, func() bool {
				_, _, _, messages := h.snapshot()
				return len(messages) == 2
			}, 2*time.Second, 5*time.Millisecond)

			_, _, _, messages := h.snapshot()
			var pong struct {
				Event string `json:"event"`
				Data  struct {
					Timestamp string `json:"timestamp"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(messages[1]), &pong))
			assert.Equal(t, "pong", pong.Event)
			assert.NotEmpty(t, pong.Data.Timestamp)
		})
	}
}

func TestTransports_ReconnectAfterDrop(t *testing.T) {
	for _, name := range []string{transport.NameWebSocket, transport.NameLongPolling} {
		t.Run(name, func(t *testing.T) {
			srv := sockettest.Start(t)
			m := transport.NewManager(transport.DefaultConfig(), dialers(srv, name), transport.WithBackOff(fastBackOff))
			defer m.Close()

			h := &handler{}
			require.NoError(t, m.Open(context.Background(), h))
			require.Eventually(t, func() bool { return h.openCount() == 1 }, 2*time.Second, 5*time.Millisecond)

			srv.DropAll()

			require.Eventually(t, func() bool { return h.openCount() == 2 && srv.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
			_, closes, _, _ := h.snapshot()
			assert.Equal(t, []string{transport.ReasonTransportError}, closes)
			assert.Equal(t, 2, srv.Connects())
		})
	}
}

func TestTransports_ServerDisconnect(t *testing.T) {
	for _, name := range []string{transport.NameWebSocket, transport.NameLongPolling} {
		t.Run(name, func(t *testing.T) {
			srv := sockettest.Start(t)
			m := transport.NewManager(transport.DefaultConfig(), dialers(srv, name), transport.WithBackOff(fastBackOff))
			defer m.Close()

			h := &handler{}
			require.NoError(t, m.Open(context.Background(), h))
			require.Eventually(t, func() bool { return h.openCount() == 1 }, 2*time.Second, 5*time.Millisecond)

			srv.Disconnect()

			select {
			case <-m.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("loop kept running after server disconnect")
			}
			_, closes, _, _ := h.snapshot()
			assert.Equal(t, []string{transport.ReasonServerDisconnect}, closes)
			assert.Equal(t, 1, srv.Connects())
		})
	}
}

func TestTransports_FallbackToPolling(t *testing.T) {
	srv := sockettest.Start(t)
	ws := transport.NewWebSocketDialer(srv.URL + "/not-a-websocket")
	lp := transport.NewLongPollingDialer(srv.URL, transport.WithPollInterval(5*time.Millisecond))
	m := transport.NewManager(transport.DefaultConfig(), []transport.Dialer{ws, lp}, transport.WithBackOff(fastBackOff))
	defer m.Close()

	h := &handler{}
	require.NoError(t, m.Open(context.Background(), h))
	require.Eventually(t, func() bool { return h.openCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, transport.NameLongPolling, m.Transport())
	assert.Equal(t, transport.NameLongPolling, srv.Peers()[0].Transport())
}

func TestTransports_RefusedThenAccepted(t *testing.T) {
	srv := sockettest.Start(t)
	srv.Refuse(true)

	m := transport.NewManager(transport.DefaultConfig(), dialers(srv, ""), transport.WithBackOff(fastBackOff))
	defer m.Close()

	h := &handler{}
	require.NoError(t, m.Open(context.Background(), h))
	require.Eventually(t, func() bool {
		_, _, errs, _ := h.snapshot()
		return errs >= 2
	}, 2*time.Second, 5*time.Millisecond)

	srv.Refuse(false)
	require.Eventually(t, func() bool { return h.openCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestLongPolling_ConnectError(t *testing.T) {
	lp := transport.NewLongPollingDialer("http://127.0.0.1:1", transport.WithRequestTimeout(time.Second))
	_, err := lp.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "long-polling connect")
}

func ExampleNewManager() {
	m := transport.NewManager(transport.DefaultConfig(), []transport.Dialer{
		transport.NewWebSocketDialer("ws://localhost:3000/socket"),
		transport.NewLongPollingDialer("http://localhost:3000/socket"),
	})
	fmt.Println(m.Transport())
	// Output: websocket
}
