package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no matching reply arrives within the window.
	ErrTimeout = errors.New("timeout waiting for user data")
	// ErrTransportFailure matches every *TransportError via errors.Is.
	ErrTransportFailure = errors.New("transport failure")
	// ErrMalformedReply marks a matched reply that lacks the fields a caller needs.
	ErrMalformedReply = errors.New("malformed reply")
	// ErrNoUser is returned when the session carries no authenticated user.
	ErrNoUser = errors.New("session has no user")
	// ErrClosed is returned when the inbound stream closes under a pending request.
	ErrClosed = errors.New("bridge inbound stream closed")
)

// TransportError reports a failed hand-off to the host transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrTransportFailure, e.Op)
	}

	return fmt.Sprintf("%s: %s: %v", ErrTransportFailure, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}
