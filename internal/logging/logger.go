// Package logging provides the printf-style, typed-nil-safe component
// logger used across the orchestration core, in the same idiom as the
// teacher's internal/logging package (ComponentLogger, OrNop, IsNil): a
// thin formatting adapter over a structured backend rather than a
// standalone logging library, here backed by log/slog.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the interface every component-owning package depends on.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// componentLogger formats messages with fmt.Sprintf and writes them
// through a slog.Logger tagged with the owning component's name.
type componentLogger struct {
	component string
	base      *slog.Logger
}

// NewComponentLogger returns a Logger tagged with component, writing
// through the process-wide slog default handler.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component, base: slog.Default()}
}

// NewComponentLoggerWithHandler is used by the config/CLI layer once the
// configured log level/format is known, to build a component logger
// against a freshly-configured handler instead of the zero-value default.
func NewComponentLoggerWithHandler(component string, handler slog.Handler) Logger {
	return &componentLogger{component: component, base: slog.New(handler)}
}

func (c *componentLogger) Debug(format string, args ...interface{}) {
	c.base.Debug(fmt.Sprintf(format, args...), slog.String("component", c.component))
}

func (c *componentLogger) Info(format string, args ...interface{}) {
	c.base.Info(fmt.Sprintf(format, args...), slog.String("component", c.component))
}

func (c *componentLogger) Warn(format string, args ...interface{}) {
	c.base.Warn(fmt.Sprintf(format, args...), slog.String("component", c.component))
}

func (c *componentLogger) Error(format string, args ...interface{}) {
	c.base.Error(fmt.Sprintf(format, args...), slog.String("component", c.component))
}

// nopLogger discards everything; returned by OrNop so call sites never
// need a nil check before logging.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// IsNil reports whether l is a nil interface or a typed nil pointer
// wrapped in the interface — the classic Go trap where `var l Logger =
// (*componentLogger)(nil)` is != nil as an interface comparison.
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	if cl, ok := l.(*componentLogger); ok {
		return cl == nil
	}
	return false
}

// OrNop returns l, or a no-op Logger if l is nil (including a typed nil).
func OrNop(l Logger) Logger {
	if IsNil(l) {
		return nopLogger{}
	}
	return l
}

// NewDefaultHandler builds the slog.Handler the CLI wires up from
// configuration: text or JSON, to stderr, at a configurable level.
func NewDefaultHandler(level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}
