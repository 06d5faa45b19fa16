package hostel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/debug"
	"github.com/kleeedolinux/hostel-realtime/notify"
	"github.com/kleeedolinux/hostel-realtime/socket"
)

// Client is the part of *socket.Client that Updates uses.
type Client interface {
	On(event socket.Event, fn socket.Listener) socket.ListenerID
	Off(event socket.Event, id socket.ListenerID) bool
	Dispatch(event socket.Event, data interface{})
	Send(event socket.Event, payload interface{}) error
}

// Notifier shows notifications. *notify.Surface implements it.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// Updates turns server events into notifications and page refreshes for the
// page currently shown, and sends the application's requests.
type Updates struct {
	client   Client
	notifier Notifier
	log      *slog.Logger

	page         string
	view         interface{}
	refreshDelay time.Duration
	reloadDelay  time.Duration
	idleAfter    time.Duration
	now          func() time.Time

	mu          sync.Mutex
	ctx         context.Context
	listeners   []listener
	refresher   *refresher
	rooms       []string
	rejoin      []string
	dropped     bool
	onlineUsers int
	lastTouch   time.Time
}

type listener struct {
	event socket.Event
	id    socket.ListenerID
}

type Option func(*Updates)

func WithLogger(log *slog.Logger) Option {
	return func(u *Updates) {
		u.log = log
	}
}

// WithPage sets the path of the page on screen and the view refreshed when its
// data changes. view may implement any of the refresher interfaces.
func WithPage(path string, view interface{}) Option {
	return func(u *Updates) {
		u.page = path
		u.view = view
	}
}

func WithRefreshDelay(d time.Duration) Option {
	return func(u *Updates) {
		u.refreshDelay = d
	}
}

// WithReload sets how long after a data change a PageReloader is reloaded, and
// how long the user must have been idle for the reload to happen.
func WithReload(delay, idle time.Duration) Option {
	return func(u *Updates) {
		u.reloadDelay = delay
		u.idleAfter = idle
	}
}

func NewUpdates(client Client, notifier Notifier, opts ...Option) *Updates {
	u := &Updates{
		client:       client,
		notifier:     notifier,
		log:          debug.Discard(),
		refreshDelay: time.Second,
		reloadDelay:  500 * time.Millisecond,
		idleAfter:    5 * time.Second,
		now:          time.Now,
		ctx:          context.Background(),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Start registers the listeners on the client. On the dashboard page it also
// asks for fresh statistics. ctx bounds desktop notifications.
func (u *Updates) Start(ctx context.Context) {
	u.mu.Lock()
	if u.refresher != nil {
		u.mu.Unlock()
		return
	}
	u.ctx = ctx
	u.refresher = newRefresher(u.page, u.view, u.refreshDelay)
	u.mu.Unlock()

	for event := range renderers {
		if event == socket.EventError {
			continue
		}
		u.on(event, u.handleEvent(event))
	}
	u.on(EventUserActivity, u.handleUserActivity)
	u.on(EventDashboardStatsUpdated, u.handleDashboardStats)
	u.on(socket.EventError, u.handleServerError)
	u.on(EventJoinedRoom, u.handleAck(EventJoinedRoom))
	u.on(EventLeftRoom, u.handleAck(EventLeftRoom))
	u.on(EventSubscribed, u.handleAck(EventSubscribed))
	u.on(EventBroadcastSent, u.handleAck(EventBroadcastSent))
	u.on(EventOnlineUsers, u.handleOnlineUsers)
	u.on(socket.EventDisconnected, u.handleDisconnected)
	u.on(socket.EventConnected, u.handleConnected)

	if isDashboard(u.page) {
		if err := u.RequestDashboardUpdate(""); err != nil {
			u.log.Warn("initial dashboard update request failed", "error", err)
		}
	}
}

// Stop removes the listeners and cancels pending page refreshes. Start may be
// called again afterwards.
func (u *Updates) Stop() {
	u.mu.Lock()
	listeners := u.listeners
	u.listeners = nil
	r := u.refresher
	u.refresher = nil
	u.mu.Unlock()

	for _, l := range listeners {
		u.client.Off(l.event, l.id)
	}
	if r != nil {
		r.stop()
	}
}

func (u *Updates) on(event socket.Event, fn socket.Listener) {
	id := u.client.On(event, fn)

	u.mu.Lock()
	u.listeners = append(u.listeners, listener{event: event, id: id})
	u.mu.Unlock()
}

func (u *Updates) context() context.Context {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ctx
}

func (u *Updates) handleEvent(event socket.Event) socket.Listener {
	return func(data interface{}) error {
		n, ok, err := Render(event, data)
		if ok {
			u.notifier.Notify(u.context(), n)
		}

		u.mu.Lock()
		r := u.refresher
		u.mu.Unlock()
		if r == nil {
			return err
		}
		if r.schedule(event) {
			u.log.Debug("page refresh scheduled", "event", string(event), "page", u.page)
		}
		if p, ok := u.view.(PageReloader); ok && reloads[event] {
			r.after(u.reloadDelay, func() {
				if !u.idle() {
					u.log.Debug("page reload skipped, user active", "event", string(event))
					return
				}
				p.ReloadPage()
			})
		}
		return err
	}
}

// Touch records a user interaction. Pages are not reloaded for a while after one.
func (u *Updates) Touch() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastTouch = u.now()
}

func (u *Updates) idle() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastTouch.IsZero() || u.now().Sub(u.lastTouch) > u.idleAfter
}

func (u *Updates) handleUserActivity(data interface{}) error {
	var a UserActivity
	if err := socket.DecodeData(data, &a); err != nil {
		return err
	}
	u.log.Info("user activity", "user_id", a.UserID.String(), "activity", a.Activity)
	return nil
}

func (u *Updates) handleDashboardStats(data interface{}) error {
	var stats DashboardStats
	if err := socket.DecodeData(data, &stats); err != nil {
		return err
	}
	u.log.Debug("dashboard stats updated", "hostel_id", stats.HostelID.String())

	u.client.Dispatch(EventDashboardUpdate, data)

	if d, ok := u.view.(DashboardUpdater); ok {
		d.UpdateDashboardStats(stats.Stats)
	}
	return nil
}

func (u *Updates) handleServerError(data interface{}) error {
	var e ServerError
	_ = socket.DecodeData(data, &e)
	u.log.Error("realtime server error", "message", e.Message)

	n, _, _ := Render(socket.EventError, data)
	u.notifier.Notify(u.context(), n)
	return nil
}

func (u *Updates) handleAck(event socket.Event) socket.Listener {
	return func(data interface{}) error {
		var raw interface{}
		_ = socket.DecodeData(data, &raw)
		u.log.Info("server acknowledged request", "event", string(event), "data", raw)
		return nil
	}
}

func (u *Updates) handleOnlineUsers(data interface{}) error {
	var o OnlineUsers
	if err := socket.DecodeData(data, &o); err != nil {
		return err
	}

	u.mu.Lock()
	u.onlineUsers = o.Count
	u.mu.Unlock()

	u.log.Info("online users", "count", o.Count)
	return nil
}

func (u *Updates) handleDisconnected(interface{}) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.dropped {
		u.rejoin = append([]string(nil), u.rooms...)
		u.dropped = true
	}
	return nil
}

// handleConnected rejoins the hostel rooms that were joined when the previous
// connection dropped and are still wanted. Rooms joined while disconnected went
// out with the queued messages.
func (u *Updates) handleConnected(interface{}) error {
	u.mu.Lock()
	if !u.dropped {
		u.mu.Unlock()
		return nil
	}
	var rooms []string
	for _, id := range u.rejoin {
		if u.joinedLocked(id) {
			rooms = append(rooms, id)
		}
	}
	u.rejoin = nil
	u.dropped = false
	u.mu.Unlock()

	for _, id := range rooms {
		if err := u.client.Send(EventJoinHostelRoom, hostelPayload{HostelID: id}); err != nil {
			return err
		}
	}
	if len(rooms) > 0 {
		u.log.Info("rejoined hostel rooms", "rooms", rooms)
	}
	return nil
}

// OnlineUsers returns the count from the last online_users reply.
func (u *Updates) OnlineUsers() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.onlineUsers
}

// Rooms returns the hostel rooms joined with JoinHostelRoom.
func (u *Updates) Rooms() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.rooms...)
}
