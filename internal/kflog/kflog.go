// Package kflog is the workflow engine's logging facade. It is kept nearly
// as-is from the teacher's own log package, renamed and re-exported here so
// every internal/* package has one obvious import rather than reaching
// directly into kaflow-go/log.
package kflog

import (
	"github.com/kataras/golog"

	kglog "github.com/devyk/kaflow-go/log"
)

// Logger is the shared logging interface: Debug/Info/Warn/Error, each
// printf-style.
type Logger = kglog.Logger

// Level mirrors the teacher's LogLevel enum.
type Level = kglog.LogLevel

const (
	LevelDebug = kglog.LogLevelDebug
	LevelInfo  = kglog.LogLevelInfo
	LevelWarn  = kglog.LogLevelWarn
	LevelError = kglog.LogLevelError
	LevelNone  = kglog.LogLevelNone
)

// Default returns the process-wide default logger.
func Default() Logger { return kglog.GetDefaultLogger() }

// SetDefault installs l as the process-wide default logger.
func SetDefault(l Logger) { kglog.SetDefaultLogger(l) }

// New builds a golog-backed Logger at the given level, matching the
// teacher's GologLogger — the engine's production logger.
func New(level Level) Logger {
	l := kglog.NewGologLogger(golog.Default)
	l.SetLevel(level)
	return l
}

// Debug logs through the current default logger.
func Debug(format string, v ...any) { kglog.Debug(format, v...) }

// Info logs through the current default logger.
func Info(format string, v ...any) { kglog.Info(format, v...) }

// Warn logs through the current default logger.
func Warn(format string, v ...any) { kglog.Warn(format, v...) }

// Error logs through the current default logger.
func Error(format string, v ...any) { kglog.Error(format, v...) }
