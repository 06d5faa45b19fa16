// Package hostel binds the realtime client to the hostel-management
// application: its server events, notifications, page refreshes and requests.
package hostel

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kleeedolinux/hostel-realtime/socket"
)

// Server events.
const (
	EventDashboardStatsUpdated socket.Event = "dashboard_stats_updated"

	// EventDashboardUpdate is dispatched locally for every dashboard_stats_updated.
	EventDashboardUpdate socket.Event = "dashboard_update"

	EventFeeAdded       socket.Event = "fee_added"
	EventFeePaid        socket.Event = "fee_paid"
	EventFeeUpdated     socket.Event = "fee_updated"
	EventFeeDeleted     socket.Event = "fee_deleted"
	EventFeesBatchAdded socket.Event = "fees_batch_added"
	EventFeesUpdated    socket.Event = "fees_updated"

	EventStudentAdded         socket.Event = "student_added"
	EventStudentUpdated       socket.Event = "student_updated"
	EventStudentDeleted       socket.Event = "student_deleted"
	EventStudentRoomTransfer  socket.Event = "student_room_transfer"
	EventStudentsBulkTransfer socket.Event = "students_bulk_transfer"

	EventRoomAdded         socket.Event = "room_added"
	EventRoomStatusChanged socket.Event = "room_status_changed"
	EventRoomDeleted       socket.Event = "room_deleted"
	EventRoomsBulkUpdated  socket.Event = "rooms_bulk_updated"

	EventNewComplaint     socket.Event = "new_complaint"
	EventComplaintUpdated socket.Event = "complaint_updated"
	EventComplaintDeleted socket.Event = "complaint_deleted"

	EventSystemNotification socket.Event = "system_notification"
	EventSystemBroadcast    socket.Event = "system_broadcast"
	EventSystemAlert        socket.Event = "system_alert"
	EventUserActivity       socket.Event = "user_activity"
	EventMaintenanceAlert   socket.Event = "maintenance_alert"
	EventFinancialAlert     socket.Event = "financial_alert"

	EventJoinedRoom    socket.Event = "joined_room"
	EventLeftRoom      socket.Event = "left_room"
	EventSubscribed    socket.Event = "subscribed"
	EventBroadcastSent socket.Event = "broadcast_sent"
	EventOnlineUsers   socket.Event = "online_users"
)

// Client requests.
const (
	EventJoinHostelRoom           socket.Event = "join_hostel_room"
	EventLeaveHostelRoom          socket.Event = "leave_hostel_room"
	EventRequestDashboardUpdate   socket.Event = "request_dashboard_update"
	EventSubscribeToNotifications socket.Event = "subscribe_to_notifications"
	EventBroadcastMessage         socket.Event = "broadcast_message"
	EventGetOnlineUsers           socket.Event = "get_online_users"
)

// Text holds a JSON string or number in textual form. The server is not
// consistent about amounts, counts, ids and room numbers. Any other JSON value
// leaves it empty.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = ""
	switch {
	case len(b) == 0:
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = Text(n.String())
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Num is the text of a numeric field, "0" when the field was missing.
func (t Text) Num() string {
	if t == "" {
		return "0"
	}
	return string(t)
}

type FeeEvent struct {
	ID          Text   `json:"id"`
	StudentName string `json:"student_name"`
	Amount      Text   `json:"amount"`
	Count       Text   `json:"count"`
}

type StudentEvent struct {
	ID            Text   `json:"id"`
	Name          string `json:"name"`
	StudentName   string `json:"student_name"`
	OldRoomNumber Text   `json:"old_room_number"`
	NewRoomNumber Text   `json:"new_room_number"`
	Count         Text   `json:"count"`
}

type RoomEvent struct {
	ID         Text   `json:"id"`
	RoomNumber Text   `json:"room_number"`
	Status     string `json:"status"`
	NewStatus  string `json:"new_status"`
	Count      Text   `json:"count"`
}

type ComplaintEvent struct {
	ID      Text   `json:"id"`
	Message string `json:"message"`
}

// SystemMessage is the payload of system notifications, broadcasts, alerts and
// financial alerts.
type SystemMessage struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

type MaintenanceAlert struct {
	Message           string `json:"message"`
	Priority          string `json:"priority"`
	RequiresAttention bool   `json:"requires_attention"`
}

type UserActivity struct {
	UserID    Text   `json:"user_id"`
	Activity  string `json:"activity"`
	Timestamp string `json:"timestamp"`
}

type DashboardStats struct {
	Stats     json.RawMessage `json:"stats"`
	HostelID  Text            `json:"hostel_id"`
	Timestamp string          `json:"timestamp"`
}

type RoomAck struct {
	HostelID Text `json:"hostel_id"`
}

type Subscribed struct {
	Types []string `json:"types"`
}

type BroadcastSent struct {
	Message string `json:"message"`
	Target  string `json:"target"`
}

type OnlineUsers struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type ServerError struct {
	Message string `json:"message"`
}

// HostelRoom names the server room for a hostel, the form BroadcastMessage
// accepts as a target.
func HostelRoom(hostelID string) string {
	if strings.HasPrefix(hostelID, "hostel_") {
		return hostelID
	}
	return "hostel_" + hostelID
}
