package sockettest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kleeedolinux/hostel-realtime/socket"
)

// HostelRoom is the room a peer joins with join_hostel_room.
func HostelRoom(hostelID string) string {
	return "hostel_" + hostelID
}

// SetDashboardStats sets the stats sent in reply to request_dashboard_update.
func (s *Server) SetDashboardStats(stats interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *Server) welcome(p *Peer) {
	_ = p.Emit("connected", map[string]string{
		"message":    "Connected to real-time updates",
		"session_id": p.id,
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Server) handleHostelEvents() {
	s.Handle(socket.EventPing, func(p *Peer, _ json.RawMessage) {
		_ = p.Emit(socket.EventPong, map[string]string{"timestamp": timestamp()})
	})

	s.Handle("join_hostel_room", func(p *Peer, data json.RawMessage) {
		id := hostelID(data)
		if id == "" {
			return
		}
		s.Join(p.ID(), HostelRoom(id))
		_ = p.Emit("joined_room", map[string]string{"hostel_id": id})
	})

	s.Handle("leave_hostel_room", func(p *Peer, data json.RawMessage) {
		id := hostelID(data)
		if id == "" {
			return
		}
		s.Leave(p.ID(), HostelRoom(id))
		_ = p.Emit("left_room", map[string]string{"hostel_id": id})
	})

	s.Handle("request_dashboard_update", func(p *Peer, data json.RawMessage) {
		s.mu.RLock()
		stats := s.stats
		s.mu.RUnlock()

		var hostel interface{}
		if id := hostelID(data); id != "" {
			hostel = id
		}
		_ = p.Emit("dashboard_stats_updated", map[string]interface{}{
			"stats":     stats,
			"hostel_id": hostel,
			"timestamp": timestamp(),
		})
	})

	s.Handle("subscribe_to_notifications", func(p *Peer, data json.RawMessage) {
		var req struct {
			Types []string `json:"types"`
		}
		_ = json.Unmarshal(data, &req)
		if req.Types == nil {
			req.Types = []string{}
		}
		for _, t := range req.Types {
			s.Join(p.ID(), "notifications_"+t)
		}
		_ = p.Emit("subscribed", map[string][]string{"types": req.Types})
	})

	s.Handle("get_online_users", func(p *Peer, _ json.RawMessage) {
		_ = p.Emit("online_users", map[string]interface{}{
			"count":   s.Count(),
			"message": "Online user count retrieved",
		})
	})

	s.Handle("broadcast_message", func(p *Peer, data json.RawMessage) {
		var req struct {
			Message string `json:"message"`
			Target  string `json:"target"`
		}
		_ = json.Unmarshal(data, &req)
		if req.Message == "" {
			_ = p.Emit(socket.EventError, map[string]string{"message": "Message is required"})
			return
		}
		if req.Target == "" {
			req.Target = "all"
		}

		msg := map[string]string{
			"message":   req.Message,
			"sender":    "System",
			"timestamp": timestamp(),
			"type":      "broadcast",
		}
		switch {
		case req.Target == "all":
			s.Broadcast("system_broadcast", msg)
		case req.Target == "owners", req.Target == "managers", strings.HasPrefix(req.Target, "hostel_"):
			s.BroadcastToRoom(req.Target, "system_broadcast", msg)
		default:
			_ = p.Emit(socket.EventError, map[string]string{"message": "Invalid broadcast target: " + req.Target})
			return
		}
		_ = p.Emit("broadcast_sent", map[string]string{
			"message": "Message broadcasted successfully",
			"target":  req.Target,
		})
	})
}

// hostelID accepts the id as a JSON string or number.
func hostelID(data json.RawMessage) string {
	var req struct {
		HostelID json.RawMessage `json:"hostel_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return ""
	}
	id := strings.Trim(string(req.HostelID), `"`)
	if id == "null" {
		return ""
	}
	return id
}
