package i965

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/i965/internal/brw"
	"github.com/gogpu/i965/internal/winsys/halws"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for i965 and its sub-packages.
// By default the driver produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by the driver:
//   - [slog.LevelDebug]: atom runs, cache uploads, pool wraps, batch submits
//   - [slog.LevelInfo]: context creation, HAL adapter selection
//   - [slog.LevelWarn]: pool exhaustion retries, constrained URB layouts
//
// Example:
//
//	i965.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	brw.SetLogger(l)
	halws.SetLogger(l)
}

// Logger returns the current logger used by i965.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
