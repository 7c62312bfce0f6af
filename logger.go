package imap

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger is the logging surface shared by the client and the flag sync
// engine. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithAttrs(args ...any) Logger
}

// holder lets an interface value live behind an atomic.Pointer.
type holder struct{ Logger }

var current atomic.Pointer[holder]

func init() {
	SetLogger(nil)
}

// NewTextLogger returns a Logger writing slog text records at or above
// level to w.
func NewTextLogger(w io.Writer, level slog.Level) Logger {
	return SlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// SetLogger replaces the package logger; every record it receives carries
// component=imap. nil restores the default text logger on stderr at info.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = NewTextLogger(os.Stderr, slog.LevelInfo)
	}
	current.Store(&holder{logger.WithAttrs("component", "imap")})
}

// SetSlogLogger is SetLogger for a *slog.Logger.
func SetSlogLogger(logger *slog.Logger) {
	SetLogger(SlogLogger(logger))
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return nil
	}
	return slogAdapter{logger}
}

type slogAdapter struct {
	*slog.Logger
}

func (s slogAdapter) WithAttrs(args ...any) Logger {
	return slogAdapter{s.With(args...)}
}

// CurrentLogger returns the package logger.
func CurrentLogger() Logger {
	return current.Load().Logger
}

// connectionLogger tags the package logger with the connection number and,
// once one is open, the mailbox.
func connectionLogger(connNum int, folder string) Logger {
	args := []any{"conn", connNum}
	if folder != "" {
		args = append(args, "mailbox", folder)
	}
	return CurrentLogger().WithAttrs(args...)
}

// debugLog is gated on Verbose so protocol tracing costs nothing when off.
func debugLog(connNum int, folder string, msg string, args ...any) {
	if Verbose {
		connectionLogger(connNum, folder).Debug(msg, args...)
	}
}

func warnLog(connNum int, folder string, msg string, args ...any) {
	connectionLogger(connNum, folder).Warn(msg, args...)
}

func errorLog(connNum int, folder string, msg string, args ...any) {
	connectionLogger(connNum, folder).Error(msg, args...)
}
