// Package api provides the control-plane client and its error types.
package api

import (
	"errors"
	"fmt"

	"github.com/vesselhq/vessel-agent/internal/httpc"
)

// ErrEnrollmentRequired indicates no client token exists yet; only
// InstallClient may be called.
var ErrEnrollmentRequired = errors.New("client token missing, enrollment required")

// ErrNoProviders indicates the store holds no enabled storage provider.
var ErrNoProviders = errors.New("no enabled storage providers")

// ServerError is an HTTP 5xx or an explicit API-level failure. Retriable.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: server error: status %d: %s", e.Status, e.Body)
}

// ClientError is an HTTP 4xx. Not retriable except 408 and 429.
type ClientError struct {
	Status int
	Body   string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("api: client error: status %d: %s", e.Status, e.Body)
}

// statusError converts a non-2xx status into the taxonomy.
func statusError(status int, body string) error {
	if status >= 500 {
		return &ServerError{Status: status, Body: body}
	}
	return &ClientError{Status: status, Body: body}
}

// IsRetriable reports whether the upload manager should retry after err:
// timeouts, connection failures, 5xx, and the two retriable 4xx codes.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if httpc.IsTimeout(err) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return true
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status == 408 || ce.Status == 429
	}
	if httpc.IsProtocol(err) || httpc.IsTLS(err) {
		// Malformed frames and failed handshakes do not improve on retry
		// within the same run.
		return false
	}
	// Remaining failures are socket-level (reset, refused, broken pipe).
	return true
}
