package debug

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseLevel(tc.in), "ParseLevel(%q)", tc.in)
	}
}

func TestPrintfRespectsDebugFlag(t *testing.T) {
	prev := slog.Default()
	prevDebug := Debug
	t.Cleanup(func() {
		slog.SetDefault(prev)
		Debug = prevDebug
	})

	var buf bytes.Buffer
	Disable()
	NewLogger(&buf, "debug")

	Printf("hidden %d", 1)
	assert.Empty(t, buf.String())

	Enable()
	Printf("visible %d", 2)
	require.Contains(t, buf.String(), "visible 2")
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	prevDebug := Debug
	t.Cleanup(func() {
		slog.SetDefault(prev)
		Debug = prevDebug
	})
	Disable()

	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info("quiet")
	log.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
