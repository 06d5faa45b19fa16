package hostel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kleeedolinux/hostel-realtime/notify"
	"github.com/kleeedolinux/hostel-realtime/socket"
)

type renderFunc func(data interface{}) (notify.Notification, error)

var renderers = map[socket.Event]renderFunc{
	EventFeeAdded: fee(func(e FeeEvent) notify.Notification {
		return info(fmt.Sprintf("New fee added: $%s for %s", e.Amount.Num(), e.StudentName))
	}),
	EventFeePaid: fee(func(e FeeEvent) notify.Notification {
		return success(fmt.Sprintf("Fee payment received: $%s from %s", e.Amount.Num(), e.StudentName))
	}),
	EventFeeUpdated: fee(func(e FeeEvent) notify.Notification {
		return info(fmt.Sprintf("Fee updated for %s: $%s", e.StudentName, e.Amount.Num()))
	}),
	EventFeeDeleted: fee(func(e FeeEvent) notify.Notification {
		return info(fmt.Sprintf("Fee deleted: $%s for %s", e.Amount.Num(), e.StudentName))
	}),
	EventFeesBatchAdded: fee(func(e FeeEvent) notify.Notification {
		return success(fmt.Sprintf("Batch fees added: $%s each for %s students", e.Amount.Num(), e.Count.Num()))
	}),
	EventFeesUpdated: fee(func(e FeeEvent) notify.Notification {
		return info(fmt.Sprintf("%s overdue fees were updated", e.Count.Num()))
	}),

	EventStudentAdded: student(func(e StudentEvent) notify.Notification {
		return success("New student added: " + e.Name)
	}),
	EventStudentUpdated: student(func(e StudentEvent) notify.Notification {
		return info("Student updated: " + e.Name)
	}),
	EventStudentDeleted: student(func(e StudentEvent) notify.Notification {
		return info("Student deleted: " + e.Name)
	}),
	EventStudentRoomTransfer: student(func(e StudentEvent) notify.Notification {
		if e.OldRoomNumber != "" {
			return info(fmt.Sprintf("%s transferred from Room %s to Room %s", e.StudentName, e.OldRoomNumber, e.NewRoomNumber))
		}
		return info(fmt.Sprintf("%s assigned to Room %s", e.StudentName, e.NewRoomNumber))
	}),
	EventStudentsBulkTransfer: student(func(e StudentEvent) notify.Notification {
		return info(fmt.Sprintf("Bulk transfer: %s students transferred", e.Count.Num()))
	}),

	EventRoomAdded: room(func(e RoomEvent) notify.Notification {
		return success(fmt.Sprintf("New room added: %s", e.RoomNumber))
	}),
	EventRoomStatusChanged: room(func(e RoomEvent) notify.Notification {
		return info(fmt.Sprintf("Room %s status changed to %s", e.RoomNumber, e.Status))
	}),
	EventRoomDeleted: room(func(e RoomEvent) notify.Notification {
		return info(fmt.Sprintf("Room deleted: %s", e.RoomNumber))
	}),
	EventRoomsBulkUpdated: room(func(e RoomEvent) notify.Notification {
		return info(fmt.Sprintf("Bulk room update: %s rooms updated to %s", e.Count.Num(), e.NewStatus))
	}),

	EventNewComplaint: complaint(func(e ComplaintEvent) notify.Notification {
		return notify.Notification{Message: "New complaint: " + e.Message, Level: notify.LevelWarning}
	}),
	EventComplaintUpdated: complaint(func(e ComplaintEvent) notify.Notification {
		return info("Complaint updated: " + e.Message)
	}),
	EventComplaintDeleted: complaint(func(e ComplaintEvent) notify.Notification {
		return info("Complaint deleted: " + e.Message)
	}),

	EventSystemNotification: system(func(e SystemMessage) notify.Notification {
		return notify.Notification{Message: e.Message, Level: levelOr(e.Type, notify.LevelInfo)}
	}),
	EventSystemBroadcast: system(func(e SystemMessage) notify.Notification {
		return notify.Notification{Message: e.Sender + ": " + e.Message, Level: notify.LevelInfo, Persistent: true}
	}),
	EventSystemAlert: system(func(e SystemMessage) notify.Notification {
		return notify.Notification{Message: e.Message, Level: levelOr(e.Type, notify.LevelWarning), Persistent: true}
	}),
	EventFinancialAlert: system(func(e SystemMessage) notify.Notification {
		return notify.Notification{Message: "Financial Alert: " + e.Message, Level: notify.LevelWarning, Persistent: true}
	}),
	EventMaintenanceAlert: func(data interface{}) (notify.Notification, error) {
		var e MaintenanceAlert
		if err := socket.DecodeData(data, &e); err != nil && !mistyped(err) {
			return notify.Notification{}, err
		}
		level := notify.LevelWarning
		if e.Priority == "urgent" {
			level = notify.LevelError
		}
		return notify.Notification{Message: "Maintenance: " + e.Message, Level: level, Persistent: e.RequiresAttention}, nil
	},

	socket.EventError: func(interface{}) (notify.Notification, error) {
		return notify.Notification{Message: "Real-time connection error", Level: notify.LevelError}, nil
	},
}

// Render returns the notification shown for a server event. ok is false for
// events that do not notify.
func Render(event socket.Event, data interface{}) (n notify.Notification, ok bool, err error) {
	fn, ok := renderers[event]
	if !ok {
		return notify.Notification{}, false, nil
	}
	n, err = fn(data)
	if err != nil {
		return notify.Notification{}, false, fmt.Errorf("render %s: %w", event, err)
	}
	return n, true, nil
}

func info(msg string) notify.Notification {
	return notify.Notification{Message: msg, Level: notify.LevelInfo}
}

func success(msg string) notify.Notification {
	return notify.Notification{Message: msg, Level: notify.LevelSuccess}
}

// levelOr maps a server supplied type, which may be a non-level value such as
// "broadcast", falling back to def when it is empty.
func levelOr(t string, def notify.Level) notify.Level {
	if t == "" {
		return def
	}
	return notify.ParseLevel(t)
}

// decodeWith renders from a partially decoded payload when some fields have
// the wrong type; those fields keep their zero value.
func decodeWith[T any](render func(T) notify.Notification) renderFunc {
	return func(data interface{}) (notify.Notification, error) {
		var e T
		if err := socket.DecodeData(data, &e); err != nil && !mistyped(err) {
			return notify.Notification{}, err
		}
		return render(e), nil
	}
}

func mistyped(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

var (
	fee       = decodeWith[FeeEvent]
	student   = decodeWith[StudentEvent]
	room      = decodeWith[RoomEvent]
	complaint = decodeWith[ComplaintEvent]
	system    = decodeWith[SystemMessage]
)
