package bserve

import (
	"context"
	"time"
)

// Timeouts
//
// The middleware stack buffers its response, so a handler that runs into the server's write timeout
// loses its whole response without the chance to answer with an error. A two-tier approach avoids
// that:
//
//  1. Server-level timeouts derived from BSSR_WRITE_TIMEOUT bound the connection.
//  2. A per-request context deadline, set by the bridge, that expires a small buffer before the write
//     timeout so the handler (and outbound calls that honor the context) stop in time for the error
//     response to be written. It stays in place until the response was written, a streamed body that
//     runs into it is aborted.
//
// Responses rendered for declined requests are only bound by the write timeout.

// DefaultDeadlineBuffer is the default time reserved before the write timeout for error responses.
const DefaultDeadlineBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// WriteTimeout is the time from reading the request headers to writing the last response byte.
	WriteTimeout time.Duration

	// DeadlineBuffer is subtracted from the write timeout for the per-request deadline. Defaults to
	// DefaultDeadlineBuffer.
	DeadlineBuffer time.Duration
}

// RequestTimeout returns how long the middleware stack may take per request. It is zero when no
// write timeout is configured.
func (tc TimeoutConfig) RequestTimeout() time.Duration {
	buffer := tc.DeadlineBuffer
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	timeout := tc.WriteTimeout - buffer
	if timeout <= 0 {
		timeout = tc.WriteTimeout // fallback if buffer >= timeout
	}

	return max(timeout, 0)
}

// ServerTimeouts returns the http.Server timeout values. A zero write timeout disables all of them.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	if tc.WriteTimeout <= 0 {
		return 0, 0, 0, 0
	}

	timeout := tc.RequestTimeout()

	readHeaderTimeout = min(timeout, 5*time.Second)
	readTimeout = timeout
	writeTimeout = tc.WriteTimeout
	idleTimeout = 2 * tc.WriteTimeout

	return readHeaderTimeout, readTimeout, writeTimeout, idleTimeout
}

// RequestDeadline returns the context deadline for the current request.
// Returns the zero time and false if no deadline is set.
func RequestDeadline(ctx context.Context) (time.Time, bool) {
	return ctx.Deadline()
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}

	return max(time.Until(deadline), 0)
}
