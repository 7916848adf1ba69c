package moqclient

import (
	"log/slog"
	"os"
	"sync"
)

var initOnce sync.Once

// Init performs process-wide library setup: it installs the slog default
// handler according to MOQ_LOG_LEVEL. It is idempotent; calling it more
// than once is a no-op.
func Init() {
	initOnce.Do(func() {
		level := logLevelFromEnv(os.Getenv("MOQ_LOG_LEVEL"))
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	})
}

// traceLevel has no native slog equivalent; it is mapped one step below
// LevelDebug, matching the convention of treating trace as "debug minus
// four" used by several slog-based logging wrappers.
const traceLevel = slog.LevelDebug - 4

func logLevelFromEnv(v string) slog.Level {
	switch v {
	case "trace":
		return traceLevel
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
