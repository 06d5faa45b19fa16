package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	Debug bool
)

func init() {
	debugEnv, exists := os.LookupEnv("HOSTEL_RT_DEBUG")
	if exists {
		if val, err := strconv.ParseBool(debugEnv); err == nil {
			Debug = val
		}
	}
}

// Printf traces wire-level activity through the default slog logger when
// debugging is enabled.
func Printf(format string, v ...interface{}) {
	if Debug {
		slog.Debug(fmt.Sprintf(format, v...))
	}
}

func Enable() {
	Debug = true
}

func Disable() {
	Debug = false
}

// ParseLevel maps a textual level to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON structured logger and installs it as the slog default.
// Debug tracing forces the debug level so Printf output is not filtered.
func NewLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	lvl := ParseLevel(level)
	if Debug {
		lvl = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	})

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

// Discard returns a logger that drops everything. Used as the zero-value logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
