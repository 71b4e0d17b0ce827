package client

import (
	"errors"
	"fmt"
)

// Kind classifies client errors so callers can branch on failure mode
// without matching message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConnection: transport could not be opened, closed unexpectedly
	// during handshake, or reconnection was exhausted.
	KindConnection
	// KindAuthentication: the server rejected the admission token for a
	// restricted channel.
	KindAuthentication
	// KindSubscription: the server rejected a subscribe request for a
	// non-auth reason.
	KindSubscription
	// KindProtocol: malformed envelope, unexpected first envelope, or a
	// pusher:error outside a subscribe context.
	KindProtocol
	// KindTimeout: a subscribe waiter or handshake deadline elapsed.
	KindTimeout
	// KindPrecondition: the caller violated an API contract.
	KindPrecondition
	// KindConfiguration: required configuration is missing or invalid.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindSubscription:
		return "subscription"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindPrecondition:
		return "precondition"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the error type surfaced by the client facade.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown when err is not a client
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
