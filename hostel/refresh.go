package hostel

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/socket"
)

// A page implements whichever of these it can refresh. Updates only calls the
// ones present, and only while the page path matches.
type (
	FeesRefresher interface {
		RefreshFees()
	}
	StudentsRefresher interface {
		RefreshStudents()
	}
	RoomsRefresher interface {
		RefreshRooms()
	}
	ComplaintsRefresher interface {
		RefreshComplaints()
	}
	DashboardUpdater interface {
		UpdateDashboardStats(stats json.RawMessage)
	}
	// PageReloader is implemented by pages that show data tables. They are
	// reloaded after data changes while the user is idle.
	PageReloader interface {
		ReloadPage()
	}
)

type section struct {
	path string
	// bind returns the view's refresh method, or nil when it has none.
	bind func(view interface{}) func()
}

var (
	feesSection = section{path: "/fees", bind: func(v interface{}) func() {
		if r, ok := v.(FeesRefresher); ok {
			return r.RefreshFees
		}
		return nil
	}}
	studentsSection = section{path: "/students", bind: func(v interface{}) func() {
		if r, ok := v.(StudentsRefresher); ok {
			return r.RefreshStudents
		}
		return nil
	}}
	roomsSection = section{path: "/rooms", bind: func(v interface{}) func() {
		if r, ok := v.(RoomsRefresher); ok {
			return r.RefreshRooms
		}
		return nil
	}}
	complaintsSection = section{path: "/complaints", bind: func(v interface{}) func() {
		if r, ok := v.(ComplaintsRefresher); ok {
			return r.RefreshComplaints
		}
		return nil
	}}
)

var refreshes = map[socket.Event]section{
	EventFeePaid:           feesSection,
	EventFeeUpdated:        feesSection,
	EventFeeDeleted:        feesSection,
	EventStudentAdded:      studentsSection,
	EventStudentUpdated:    studentsSection,
	EventStudentDeleted:    studentsSection,
	EventRoomAdded:         roomsSection,
	EventRoomStatusChanged: roomsSection,
	EventRoomDeleted:       roomsSection,
	EventNewComplaint:      complaintsSection,
	EventComplaintUpdated:  complaintsSection,
	EventComplaintDeleted:  complaintsSection,
}

var reloads = map[socket.Event]bool{
	EventFeeAdded:          true,
	EventFeeUpdated:        true,
	EventFeeDeleted:        true,
	EventStudentAdded:      true,
	EventStudentUpdated:    true,
	EventRoomAdded:         true,
	EventRoomStatusChanged: true,
}

// isDashboard reports whether path shows the dashboard.
func isDashboard(path string) bool {
	return path == "/" || strings.Contains(path, "/dashboard")
}

// refresher runs page refreshes and reloads after a delay. Pending ones are
// cancelled by stop.
type refresher struct {
	page  string
	view  interface{}
	delay time.Duration

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	stopped bool
}

func newRefresher(page string, view interface{}, delay time.Duration) *refresher {
	return &refresher{
		page:    page,
		view:    view,
		delay:   delay,
		pending: make(map[*time.Timer]struct{}),
	}
}

// schedule queues the refresh for event. It reports whether one was queued.
func (r *refresher) schedule(event socket.Event) bool {
	sec, ok := refreshes[event]
	if !ok || !strings.Contains(r.page, sec.path) {
		return false
	}
	fn := sec.bind(r.view)
	if fn == nil {
		return false
	}
	return r.after(r.delay, fn)
}

func (r *refresher) after(delay time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.mu.Lock()
		_, live := r.pending[t]
		delete(r.pending, t)
		r.mu.Unlock()
		if live {
			fn()
		}
	})
	r.pending[t] = struct{}{}
	return true
}

func (r *refresher) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for t := range r.pending {
		t.Stop()
		delete(r.pending, t)
	}
}
