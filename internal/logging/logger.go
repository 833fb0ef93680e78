// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps charmbracelet/log into the leveled, field-based
// logger used throughout lywaf. The wire transport (syslog, file rotation)
// is external to the core — this package only standardises the
// call shape: Info/Warn/Error/Debug with alternating key-value fields.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the leveled, structured logger passed to every component.
type Logger struct {
	l *charmlog.Logger
}

// New creates a Logger writing to w at the given level ("debug", "info",
// "warn", "error"; unrecognised values default to "info").
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	cl := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	cl.SetLevel(parseLevel(level))
	return &Logger{l: cl}
}

// Default returns a Logger writing to stderr at Info level.
func Default() *Logger { return New(os.Stderr, "info") }

func parseLevel(level string) charmlog.Level {
	switch level {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// With returns a child Logger that always includes the given fields.
func (lg *Logger) With(keyvals ...any) *Logger {
	return &Logger{l: lg.l.With(keyvals...)}
}

func (lg *Logger) Debug(msg string, keyvals ...any) { lg.l.Debug(msg, keyvals...) }
func (lg *Logger) Info(msg string, keyvals ...any)  { lg.l.Info(msg, keyvals...) }
func (lg *Logger) Warn(msg string, keyvals ...any)  { lg.l.Warn(msg, keyvals...) }
func (lg *Logger) Error(msg string, keyvals ...any) { lg.l.Error(msg, keyvals...) }
