// Package logging provides the leveled, structured logger used throughout
// the core, built on charmbracelet/log. Call sites pass key-value pairs
// rather than pre-formatted strings, matching the shape used across
// internal/dispatch and internal/worker.
package logging

import (
	"io"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel mirrors charmlog's levels so callers don't need to import the
// third-party package directly.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) charm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config holds logger construction options.
type Config struct {
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	Sync    bool // accepted for callers; NewLogger does not read it
	NoColor bool
}

// DefaultConfig returns text format, info level, stderr.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// Logger wraps a charmbracelet/log.Logger with the key-value call
// convention used everywhere in this codebase.
type Logger struct {
	inner *charmlog.Logger
}

// NewLogger builds a Logger from config (nil uses DefaultConfig).
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	opts := charmlog.Options{
		Level:           config.Level.charm(),
		ReportTimestamp: true,
	}
	if config.Format == "json" {
		opts.Formatter = charmlog.JSONFormatter
	} else {
		opts.Formatter = charmlog.TextFormatter
	}

	inner := charmlog.NewWithOptions(output, opts)
	if config.NoColor {
		inner.SetColorProfile(0) // termenv.Ascii, avoided as a direct import
	}
	return &Logger{inner: inner}
}

// WithCore attaches a core id to every subsequent log line from the
// returned logger.
func (l *Logger) WithCore(core uint16) *Logger {
	return &Logger{inner: l.inner.With("core_id", core)}
}

// WithClient attaches a client id.
func (l *Logger) WithClient(client uint16) *Logger {
	return &Logger{inner: l.inner.With("client_id", client)}
}

// WithWorker attaches a worker index, the per-goroutine log context used
// by internal/worker.
func (l *Logger) WithWorker(worker int) *Logger {
	return &Logger{inner: l.inner.With("worker_id", worker)}
}

// WithMessage attaches a message's packed id and opcode name.
func (l *Logger) WithMessage(id uint32, op string) *Logger {
	return &Logger{inner: l.inner.With("msg_id", id, "op", op)}
}

// WithError attaches an error value to the logger's context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{inner: l.inner.With("error", err)}
}

func (l *Logger) Debug(msg string, keyvals ...any) { l.inner.Debug(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...any)  { l.inner.Info(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...any)  { l.inner.Warn(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...any) { l.inner.Error(msg, keyvals...) }

// Printf-style variants, kept for call sites that build their own message
// rather than passing key-value pairs.
func (l *Logger) Debugf(format string, args ...any) { l.inner.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.inner.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.inner.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.inner.Errorf(format, args...) }
func (l *Logger) Printf(format string, args ...any) { l.inner.Infof(format, args...) }

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Default returns the process-wide default logger, creating it lazily.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

func Debug(msg string, keyvals ...any) { Default().Debug(msg, keyvals...) }
func Info(msg string, keyvals ...any)  { Default().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...any)  { Default().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...any) { Default().Error(msg, keyvals...) }
