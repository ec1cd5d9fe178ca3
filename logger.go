package bssr

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogUnhandledServeError(err error)
	LogImplicitFlushError(err error)
	LogTransportError(err error)
	LogRenderError(err error)
	LogStackReloaded(entry string, generation uint64)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogUnhandledServeError(err error) {
	l.Logger.Printf("bssr: unhandled server error: %s", err)
}

func (l stdLogger) LogImplicitFlushError(err error) {
	l.Logger.Printf("bssr: error while flushing implicitly: %s", err)
}

func (l stdLogger) LogTransportError(err error) {
	l.Logger.Printf("bssr: error while writing response: %s", err)
}

func (l stdLogger) LogRenderError(err error) {
	l.Logger.Printf("bssr: fallback render failed: %s", err)
}

func (l stdLogger) LogStackReloaded(entry string, generation uint64) {
	l.Logger.Printf("bssr: stack %d built from entry %q", generation, entry)
}

// NewStdLogger returns a Logger that prints to l, or to the default logger when l is nil.
func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}

	return stdLogger{l}
}

type TestLogger struct {
	tb testing.TB

	NumLogUnhandledServeError int64
	NumLogImplicitFlushError  int64
	NumLogTransportError      int64
	NumLogRenderError         int64
	NumLogStackReloaded       int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogUnhandledServeError(err error) {
	atomic.AddInt64(&l.NumLogUnhandledServeError, 1)
	l.tb.Logf("bssr: unhandled server error: %s", err)
}

func (l *TestLogger) LogImplicitFlushError(err error) {
	atomic.AddInt64(&l.NumLogImplicitFlushError, 1)
	l.tb.Logf("bssr: error while flushing implicitly: %s", err)
}

func (l *TestLogger) LogTransportError(err error) {
	atomic.AddInt64(&l.NumLogTransportError, 1)
	l.tb.Logf("bssr: error while writing response: %s", err)
}

func (l *TestLogger) LogRenderError(err error) {
	atomic.AddInt64(&l.NumLogRenderError, 1)
	l.tb.Logf("bssr: fallback render failed: %s", err)
}

func (l *TestLogger) LogStackReloaded(entry string, generation uint64) {
	atomic.AddInt64(&l.NumLogStackReloaded, 1)
	l.tb.Logf("bssr: stack %d built from entry %q", generation, entry)
}

var _ Logger = &TestLogger{}
