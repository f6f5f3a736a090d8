package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Message is a single chat message. Order within a conversation is
// chronological and preserved end-to-end.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrNotConfigured indicates a backend that has no credentials and cannot
// be called at all.
var ErrNotConfigured = errors.New("backend not configured")

// Error is a failed call to a backend: a network failure, a timeout, or a
// non-success response. The router records these into the circuit breaker.
type Error struct {
	Backend string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s returned status %d", e.Backend, e.Status)
	}
	return fmt.Sprintf("%s request failed: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newHTTPClient builds an http.Client with a short connect timeout and a
// total timeout scaled to the expected backend latency.
func newHTTPClient(total, connect time.Duration) *http.Client {
	return &http.Client{
		Timeout: total,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
		},
	}
}
