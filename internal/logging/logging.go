// Package logging configures the relay's structured logger.
//
// Levels mirror funkyd's LogLevel enum (error < warn < info < debug) and
// the original C relay's -d/-dd CLI shortcut, backed by zerolog instead
// of a hand-rolled sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is the relay's own level enum, kept distinct from zerolog.Level
// so CLI parsing stays independent of the logging backend.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// root is the base logger all component loggers derive from.
var root = zerolog.New(io.Discard)

// Init sets up the root logger writing to w (os.Stderr in production,
// a buffer in tests) at the given level.
func Init(w io.Writer, level Level) {
	zerolog.TimeFieldFormat = time.RFC3339
	root = zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
}

// For returns a logger scoped to a named component, e.g. logging.For("cache").
func For(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// queryRoot is the independent query logger (funkyd's QueryLogger):
// always debug level, intended for a separate sink than diagnostics.
var queryRoot = zerolog.New(io.Discard)

func InitQueryLog(w io.Writer) {
	queryRoot = zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

func Query() zerolog.Logger {
	return queryRoot
}

// OpenSink opens a log destination by name, mirroring funkyd's
// getLoggerHandle: "" discards, "/dev/stderr"/"/dev/stdout" map to the
// process streams, anything else is appended to as a file.
func OpenSink(location string) (io.Writer, error) {
	switch location {
	case "":
		return io.Discard, nil
	case "/dev/stderr":
		return os.Stderr, nil
	case "/dev/stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(location, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("could not open log sink %q: %w", location, err)
		}
		return f, nil
	}
}
