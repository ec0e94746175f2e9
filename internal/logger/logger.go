// Package logger provides structured logging for entitymeta.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with entitymeta-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for humans
	Output     io.Writer
	WithCaller bool
}

// New creates a structured logger. An unknown level falls back to info.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "entitymeta").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(z zerolog.Logger) *Logger {
	return &Logger{zlog: z}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// With returns a child logger carrying one extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(key, value).Logger()}
}

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// LogDbOperation logs database operation with structured fields
func (l *Logger) LogDbOperation(operation string, duration time.Duration, recordCount int64, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}

	event.Str("operation", operation).
		Dur("duration_ms", duration).
		Int64("record_count", recordCount).
		Msg("database operation completed")
}
