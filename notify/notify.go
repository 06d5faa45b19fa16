// Package notify is the user-facing notification surface: a connection status
// indicator, transient and persistent notifications, and desktop notifications for
// persistent ones when the user permits them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kleeedolinux/hostel-realtime/debug"
)

// Title is used for desktop notifications.
const Title = "Hostel Management System"

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel accepts the level names used in server payloads; anything else is info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelSuccess, LevelWarning, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

type Notification struct {
	Message    string
	Level      Level
	Persistent bool
}

// Status is the current content of the connection indicator.
type Status struct {
	Text    string
	Level   Level
	Visible bool
}

// Desktop raises OS-level notifications.
type Desktop interface {
	Permitted() bool
	Show(ctx context.Context, title, body string) error
}

type Surface struct {
	log     *slog.Logger
	desktop Desktop
	sink    func(Notification)

	hideAfter time.Duration

	mu     sync.Mutex
	status Status
	hide   *time.Timer
	gen    uint64
}

type Option func(*Surface)

func WithLogger(log *slog.Logger) Option {
	return func(s *Surface) {
		s.log = log
	}
}

func WithDesktop(d Desktop) Option {
	return func(s *Surface) {
		s.desktop = d
	}
}

// WithSink forwards every notification to fn, e.g. a terminal or UI renderer.
func WithSink(fn func(Notification)) Option {
	return func(s *Surface) {
		s.sink = fn
	}
}

// WithSuccessHide sets how long success statuses stay visible. Zero keeps them.
func WithSuccessHide(d time.Duration) Option {
	return func(s *Surface) {
		s.hideAfter = d
	}
}

func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		log:       debug.Discard(),
		hideAfter: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShowStatus updates the connection indicator. Success statuses hide themselves.
func (s *Surface) ShowStatus(text string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.status = Status{Text: text, Level: level, Visible: true}
	if s.hide != nil {
		s.hide.Stop()
		s.hide = nil
	}

	if level == LevelSuccess && s.hideAfter > 0 {
		gen := s.gen
		s.hide = time.AfterFunc(s.hideAfter, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen == gen {
				s.status.Visible = false
			}
		})
	}

	s.log.Info("connection status", "status", text, "level", string(level))
}

func (s *Surface) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Notify shows n. Persistent notifications also go to the desktop when permitted.
func (s *Surface) Notify(ctx context.Context, n Notification) {
	if n.Level == "" {
		n.Level = LevelInfo
	}

	s.log.Info("notification", "level", string(n.Level), "message", n.Message, "persistent", n.Persistent)
	if s.sink != nil {
		s.sink(n)
	}

	if !n.Persistent || s.desktop == nil || !s.desktop.Permitted() {
		return
	}
	if err := s.desktop.Show(ctx, Title, n.Message); err != nil {
		s.log.Warn("desktop notification failed", "error", err)
	}
}
