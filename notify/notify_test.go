package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDesktop struct {
	mu        sync.Mutex
	permitted bool
	err       error
	shown     []string
}

func (f *fakeDesktop) Permitted() bool { return f.permitted }

func (f *fakeDesktop) Show(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, title+": "+body)
	return f.err
}

func (f *fakeDesktop) getShown() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shown...)
}

func TestSurface_NotifyDesktop(t *testing.T) {
	tests := []struct {
		name       string
		permitted  bool
		persistent bool
		wantShown  int
	}{
		{name: "persistent and permitted", permitted: true, persistent: true, wantShown: 1},
		{name: "transient", permitted: true, persistent: false, wantShown: 0},
		{name: "not permitted", permitted: false, persistent: true, wantShown: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desktop := &fakeDesktop{permitted: tt.permitted}
			var sunk []Notification
			s := NewSurface(WithDesktop(desktop), WithSink(func(n Notification) { sunk = append(sunk, n) }))

			s.Notify(context.Background(), Notification{Message: "Warden: lights out", Persistent: tt.persistent})

			require.Len(t, sunk, 1)
			assert.Equal(t, LevelInfo, sunk[0].Level)
			assert.Len(t, desktop.getShown(), tt.wantShown)
		})
	}
}

func TestSurface_DesktopErrorIsSwallowed(t *testing.T) {
	desktop := &fakeDesktop{permitted: true, err: errors.New("no display")}
	s := NewSurface(WithDesktop(desktop))

	assert.NotPanics(t, func() {
		s.Notify(context.Background(), Notification{Message: "x", Level: LevelWarning, Persistent: true})
	})
	assert.Equal(t, []string{Title + ": x"}, desktop.getShown())
}

func TestSurface_SuccessStatusAutoHides(t *testing.T) {
	s := NewSurface(WithSuccessHide(20 * time.Millisecond))

	s.ShowStatus("Connected", LevelSuccess)
	assert.True(t, s.Status().Visible)

	require.Eventually(t, func() bool { return !s.Status().Visible }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Connected", s.Status().Text)
}

func TestSurface_NewStatusCancelsHide(t *testing.T) {
	s := NewSurface(WithSuccessHide(20 * time.Millisecond))

	s.ShowStatus("Connected", LevelSuccess)
	s.ShowStatus("Disconnected", LevelError)

	time.Sleep(60 * time.Millisecond)
	st := s.Status()
	assert.True(t, st.Visible)
	assert.Equal(t, "Disconnected", st.Text)
	assert.Equal(t, LevelError, st.Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarning, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelSuccess, ParseLevel("success"))
	assert.Equal(t, LevelInfo, ParseLevel("broadcast"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}
