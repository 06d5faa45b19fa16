package sockettest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kleeedolinux/hostel-realtime/socket"
)

var errPeerClosed = errors.New("peer closed")

// Peer is one connected client as seen by the Server.
type Peer struct {
	id        string
	transport string
	conn      peerConn
}

func (p *Peer) ID() string {
	return p.id
}

// Transport returns the name of the transport the peer connected with.
func (p *Peer) Transport() string {
	return p.transport
}

// Emit sends an event frame to the peer.
func (p *Peer) Emit(event socket.Event, data interface{}) error {
	b, err := json.Marshal(socket.Message{Event: event, Data: data})
	if err != nil {
		return err
	}
	return p.conn.write(b)
}

type peerConn interface {
	write(data []byte) error
	// close ends the connection. A graceful close tells the client the server
	// hung up; otherwise the connection just goes away.
	close(graceful bool) error
}

type wsPeerConn struct {
	conn         *websocket.Conn
	sendCh       chan []byte
	closeCh      chan struct{}
	writeWg      sync.WaitGroup
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSPeerConn(conn *websocket.Conn, bufferSize int) *wsPeerConn {
	c := &wsPeerConn{
		conn:         conn,
		sendCh:       make(chan []byte, bufferSize),
		closeCh:      make(chan struct{}),
		writeTimeout: 10 * time.Second,
	}

	c.writeWg.Add(1)
	go c.writePump()

	return c
}

func (c *wsPeerConn) writePump() {
	defer c.writeWg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case message := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}

func (c *wsPeerConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errPeerClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *wsPeerConn) close(graceful bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Let queued frames go out before a graceful close.
	if graceful {
		deadline := time.Now().Add(time.Second)
		for len(c.sendCh) > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	close(c.closeCh)
	c.writeWg.Wait()

	if graceful {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
			time.Now().Add(time.Second),
		)
	}
	return c.conn.Close()
}

type pollSession struct {
	mu           sync.Mutex
	pending      []json.RawMessage
	closed       bool
	lastActivity time.Time
}

func newPollSession() *pollSession {
	return &pollSession{lastActivity: time.Now()}
}

func (s *pollSession) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errPeerClosed
	}
	s.pending = append(s.pending, json.RawMessage(data))
	return nil
}

// close marks the session closed so the next poll answers 410 Gone. Abrupt
// drops are handled by the Server forgetting the session instead.
func (s *pollSession) close(bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *pollSession) handlePoll(w http.ResponseWriter) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "Session closed", http.StatusGone)
		return
	}
	s.lastActivity = time.Now()
	messages := s.pending
	s.pending = nil
	s.mu.Unlock()

	if messages == nil {
		messages = []json.RawMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messages)
}

func (s *pollSession) readSend(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "Session closed", http.StatusGone)
		return nil, false
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}
