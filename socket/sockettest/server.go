// Package sockettest provides an in-process realtime server for tests. It speaks
// the client's JSON frame protocol over websocket and HTTP long-polling.
package sockettest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kleeedolinux/hostel-realtime/debug"
	"github.com/kleeedolinux/hostel-realtime/socket"
)

// Frame is an event received from a peer.
type Frame struct {
	PeerID string
	Event  socket.Event
	Data   json.RawMessage
}

// HandlerFunc reacts to an event sent by a peer.
type HandlerFunc func(p *Peer, data json.RawMessage)

type Server struct {
	// URL is the http base URL and WSURL the websocket URL once started with Start.
	URL   string
	WSURL string

	log        *slog.Logger
	upgrader   websocket.Upgrader
	bufferSize int

	mu       sync.RWMutex
	peers    map[string]*Peer
	sessions map[string]*pollSession
	handlers map[socket.Event][]HandlerFunc
	frames   []Frame
	refuse   bool
	connects int
	stats    interface{}

	rooms *roomManager
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithBufferSize(size int) Option {
	return func(s *Server) {
		s.bufferSize = size
	}
}

// NewServer returns a server that behaves like the hostel updates namespace:
// it greets peers, answers ping and handles the room and broadcast requests.
func NewServer(opts ...Option) *Server {
	s := &Server{
		log: debug.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		bufferSize: 100,
		peers:      make(map[string]*Peer),
		sessions:   make(map[string]*pollSession),
		handlers:   make(map[socket.Event][]HandlerFunc),
		rooms:      newRoomManager(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.handleHostelEvents()

	return s
}

// Start serves a new Server on a loopback address until tb finishes.
func Start(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	s := NewServer(opts...)
	hs := httptest.NewServer(s)
	s.URL = hs.URL
	s.WSURL = "ws" + strings.TrimPrefix(hs.URL, "http")

	tb.Cleanup(func() {
		s.DropAll()
		hs.Close()
	})
	return s
}

// Handle registers fn for event. Handlers run in the peer's read goroutine in
// registration order.
func (s *Server) Handle(event socket.Event, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	switch strings.TrimPrefix(r.URL.Path, "/socket") {
	case "/connect":
		s.handleConnect(w)
	case "/poll":
		s.handlePoll(w, sessionID)
	case "/send":
		s.handleSend(w, r, sessionID)
	case "/disconnect":
		s.handleDisconnect(w, sessionID)
	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (s *Server) accepting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.refuse
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.accepting() {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &Peer{id: uuid.NewString(), transport: "websocket", conn: newWSPeerConn(conn, s.bufferSize)}
	s.addPeer(p)
	s.welcome(p)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			debug.Printf("sockettest: peer %s read error: %v", p.id, err)
			s.removePeer(p.id)
			_ = p.conn.close(false)
			return
		}
		s.receive(p, data)
	}
}

func (s *Server) handleConnect(w http.ResponseWriter) {
	if !s.accepting() {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	session := newPollSession()
	p := &Peer{id: uuid.NewString(), transport: "polling", conn: session}

	s.mu.Lock()
	s.sessions[p.id] = session
	s.mu.Unlock()
	s.addPeer(p)
	s.welcome(p)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": p.id})
}

func (s *Server) session(id string) (*pollSession, *Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil, false
	}
	return session, s.peers[id], true
}

func (s *Server) handlePoll(w http.ResponseWriter, sessionID string) {
	session, _, ok := s.session(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	session.handlePoll(w)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, p, ok := s.session(sessionID)
	if !ok || p == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	data, ok := session.readSend(w, r)
	if !ok {
		return
	}
	s.receive(p, data)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.removePeer(sessionID)

	w.WriteHeader(http.StatusOK)
}

func (s *Server) addPeer(p *Peer) {
	s.mu.Lock()
	s.peers[p.id] = p
	s.connects++
	s.mu.Unlock()

	s.log.Debug("peer connected", "peer", p.id, "transport", p.transport)
}

func (s *Server) removePeer(id string) *Peer {
	s.mu.Lock()
	p, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()

	s.rooms.leaveAll(id)
	if ok {
		s.log.Debug("peer disconnected", "peer", id)
	}
	return p
}

func (s *Server) receive(p *Peer, data []byte) {
	var msg struct {
		Event socket.Event    `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("invalid frame", "peer", p.id, "error", err)
		return
	}

	s.mu.Lock()
	s.frames = append(s.frames, Frame{PeerID: p.id, Event: msg.Event, Data: msg.Data})
	handlers := s.handlers[msg.Event]
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(p, msg.Data)
	}
}

// Received returns every frame received so far, ping included.
func (s *Server) Received() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Frame(nil), s.frames...)
}

// ReceivedEvents returns the received event names, skipping health-check pings.
func (s *Server) ReceivedEvents() []socket.Event {
	var events []socket.Event
	for _, f := range s.Received() {
		if f.Event != socket.EventPing {
			events = append(events, f.Event)
		}
	}
	return events
}

func (s *Server) Peers() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

// Count returns the number of connected peers.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Connects returns how many connections were accepted in total.
func (s *Server) Connects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connects
}

// Broadcast emits event to every connected peer.
func (s *Server) Broadcast(event socket.Event, data interface{}) {
	for _, p := range s.Peers() {
		if err := p.Emit(event, data); err != nil {
			s.log.Warn("broadcast failed", "peer", p.id, "error", err)
		}
	}
}

func (s *Server) BroadcastToRoom(room string, event socket.Event, data interface{}) {
	for _, p := range s.rooms.members(room) {
		if err := p.Emit(event, data); err != nil {
			s.log.Warn("room broadcast failed", "peer", p.id, "room", room, "error", err)
		}
	}
}

func (s *Server) Join(peerID, room string) {
	s.mu.RLock()
	p, ok := s.peers[peerID]
	s.mu.RUnlock()

	if ok {
		s.rooms.join(room, p)
	}
}

func (s *Server) Leave(peerID, room string) {
	s.rooms.leave(room, peerID)
}

func (s *Server) RoomsOf(peerID string) []string {
	return s.rooms.roomsOf(peerID)
}

// InRoom returns the IDs of the peers in room.
func (s *Server) InRoom(room string) []string {
	var ids []string
	for _, p := range s.rooms.members(room) {
		ids = append(ids, p.id)
	}
	return ids
}

// Refuse makes the server reject new connections with 503 until called with false.
func (s *Server) Refuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// DropAll cuts every connection without a goodbye, as a crashed server or a
// broken network would. Clients see a transport error and reconnect.
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*Peer)
	s.sessions = make(map[string]*pollSession)
	s.mu.Unlock()

	for id, p := range peers {
		s.rooms.leaveAll(id)
		_ = p.conn.close(false)
	}
}

// Disconnect closes every connection gracefully. Clients see a server
// disconnect and do not reconnect on their own.
func (s *Server) Disconnect() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*Peer)
	s.mu.Unlock()

	for id, p := range peers {
		s.rooms.leaveAll(id)
		_ = p.conn.close(true)
	}
}
