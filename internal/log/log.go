// Package log provides the small logging facade used across raftcore.
//
// Every component logs through the package-level functions so the backend
// can be swapped with SetLogger (e.g. in tests, or by an embedder that
// wants its own sink) without threading a logger through every
// constructor.
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is an active logging object that generates lines of output.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	// Bug records an invariant breach distinctly from expected shutdown
	// signals so operators can tell "this group crashed" from "this group
	// stopped because it was asked to."
	Bug(groupID uint64, args ...interface{})
}

var (
	mu      sync.RWMutex
	current Logger = newZerologLogger()
)

// SetLogger replaces the default logger used by package-level helpers.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debug(args ...interface{})                 { get().Debug(args...) }
func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Info(args ...interface{})                  { get().Info(args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warn(args ...interface{})                  { get().Warn(args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Error(args ...interface{})                 { get().Error(args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }
func Bug(groupID uint64, args ...interface{})   { get().Bug(groupID, args...) }

// zerologLogger is the default Logger backend.
type zerologLogger struct {
	zl zerolog.Logger
}

func newZerologLogger() *zerologLogger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

func (z *zerologLogger) Debug(args ...interface{}) { z.zl.Debug().Msg(fmt.Sprint(args...)) }
func (z *zerologLogger) Debugf(format string, args ...interface{}) {
	z.zl.Debug().Msgf(format, args...)
}
func (z *zerologLogger) Info(args ...interface{}) { z.zl.Info().Msg(fmt.Sprint(args...)) }
func (z *zerologLogger) Infof(format string, args ...interface{}) {
	z.zl.Info().Msgf(format, args...)
}
func (z *zerologLogger) Warn(args ...interface{}) { z.zl.Warn().Msg(fmt.Sprint(args...)) }
func (z *zerologLogger) Warnf(format string, args ...interface{}) {
	z.zl.Warn().Msgf(format, args...)
}
func (z *zerologLogger) Error(args ...interface{}) { z.zl.Error().Msg(fmt.Sprint(args...)) }
func (z *zerologLogger) Errorf(format string, args ...interface{}) {
	z.zl.Error().Msgf(format, args...)
}

// Bug logs at error level tagged "bug" and "group" so a log pipeline can
// alert on it distinctly from ordinary error logs.
func (z *zerologLogger) Bug(groupID uint64, args ...interface{}) {
	z.zl.Error().Uint64("group", groupID).Bool("bug", true).Msg(fmt.Sprint(args...))
}
