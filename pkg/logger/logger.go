package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init initializes the global slog logger with a text handler. Sink and
// level may be overridden via env vars for tests and production:
// CHATRELAY_LOG_SINK (e.g. "file:/path/to/log") and CHATRELAY_LOG_LEVEL.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). An empty level falls back to
// the CHATRELAY_LOG_LEVEL env var, then to info.
func InitWithLevel(level string) {
	sink := os.Getenv("CHATRELAY_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("CHATRELAY_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

func ensure() *slog.Logger {
	if Log == nil {
		InitWithLevel("")
	}
	return Log
}

func Debug(msg string, args ...any) { ensure().Debug(msg, args...) }
func Info(msg string, args ...any)  { ensure().Info(msg, args...) }
func Warn(msg string, args ...any)  { ensure().Warn(msg, args...) }
func Error(msg string, args ...any) { ensure().Error(msg, args...) }
