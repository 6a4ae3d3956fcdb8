// Package logger provides the process-wide structured logger shared by
// vibetunnel-fwd and vibetunneld: a slog.Logger writing to stdout and,
// optionally, a log file, with short clock-time timestamps.
package logger

import (
	"io"
	"log/slog"
	"math"
	"os"
)

var Log *slog.Logger

// silentLevel is above any real slog level, so a "silent" verbosity logs
// nothing without needing a separate on/off switch in every call site.
const silentLevel = slog.Level(math.MaxInt)

// levelVerbose sits between Info and Debug for "verbose" (-v) output.
const levelVerbose = slog.LevelInfo - 2

// ParseVerbosity maps the spec's named verbosity levels to a slog.Level.
// Unrecognized names fall back to "info".
func ParseVerbosity(name string) slog.Level {
	switch name {
	case "silent":
		return silentLevel
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "verbose":
		return levelVerbose
	case "debug":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// LevelFromCount maps a -q/-v/-vv/-vvv style count (negative quiets,
// positive raises verbosity) onto a slog.Level, anchored at "info".
func LevelFromCount(count int) slog.Level {
	switch {
	case count <= -1:
		return silentLevel
	case count == 0:
		return slog.LevelInfo
	case count == 1:
		return levelVerbose
	default:
		return slog.LevelDebug
	}
}

// Init initializes the global logger at the given slog.Level, writing to
// stdout and, if logFile is non-empty, appending to that file as well.
func Init(level slog.Level, logFile string) error {
	// Set up multi-writer (stdout + file)
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	multiWriter := io.MultiWriter(writers...)

	// Create handler with custom options
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten time format
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)

	return nil
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
