package core

import (
	"io"
	"maps"

	"github.com/rs/zerolog"

	"github.com/sammcj/gollama-planner/logging"
)

// Logger wraps the logging package for the plan service and carries context
// fields added with With.
type Logger struct {
	level  string
	fields map[string]any
}

// NewLogger initialises file logging with rotation.
func NewLogger(level, filePath string) (*Logger, error) {
	if err := logging.Init(level, filePath); err != nil {
		return nil, err
	}
	return &Logger{level: level}, nil
}

// NewWriterLogger sends all log output to w instead of a file.
func NewWriterLogger(level string, w io.Writer) (*Logger, error) {
	if err := logging.InitWriter(level, w); err != nil {
		return nil, err
	}
	return &Logger{level: level}, nil
}

func (l *Logger) event(e *zerolog.Event) *zerolog.Event {
	if len(l.fields) == 0 {
		return e
	}
	return e.Fields(l.fields)
}

func (l *Logger) Debug(msg string) {
	l.event(logging.DebugLogger.Debug()).Msg(msg)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.event(logging.DebugLogger.Debug()).Msgf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.event(logging.InfoLogger.Info()).Msg(msg)
}

func (l *Logger) Infof(format string, args ...any) {
	l.event(logging.InfoLogger.Info()).Msgf(format, args...)
}

// Warnf logs planner decisions the caller may not expect, like a reduced context.
func (l *Logger) Warnf(format string, args ...any) {
	l.event(logging.InfoLogger.Warn()).Msgf(format, args...)
}

func (l *Logger) Error(msg string) {
	l.event(logging.ErrorLogger.Error()).Msg(msg)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.event(logging.ErrorLogger.Error()).Msgf(format, args...)
}

// With returns a logger that adds key=value to every message. The receiver
// is left unchanged.
func (l *Logger) With(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields is With for several fields at once.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	maps.Copy(merged, l.fields)
	maps.Copy(merged, fields)
	return &Logger{level: l.level, fields: merged}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() string {
	return l.level
}
