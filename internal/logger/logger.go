// Package logger provides the process-wide structured logger. Every
// subsystem logs through a Component child so lines are filterable per
// concern (store, dispatch, pipeline, ...).
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// serviceName tags every line emitted by this process.
const serviceName = "relay"

// Logger wraps zerolog for structured logging.
type Logger struct {
	zerolog.Logger
}

// New builds the root logger. Console output is always on; a non-empty
// logFile adds an append-only file next to it. Unknown levels fall back
// to info rather than failing startup.
func New(level string, logFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := io.Writer(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	if logFile != "" {
		file, err := openLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	root := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{root}, nil
}

// Component returns a child logger tagged with the subsystem name. The
// relay wires one per component at startup; packages never retag
// themselves, so a logger handed down keeps its origin.
func (l *Logger) Component(name string) *Logger {
	child := l.With().Str("component", name).Logger()
	return &Logger{child}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// Global is the root logger instance for convenience.
var Global *Logger

// Init initializes the global logger.
func Init(level string, logFile string) error {
	l, err := New(level, logFile)
	if err != nil {
		return err
	}
	Global = l
	return nil
}

// Get returns the global logger, or a no-op logger before Init.
func Get() *Logger {
	if Global == nil {
		return &Logger{zerolog.Nop()}
	}
	return Global
}
