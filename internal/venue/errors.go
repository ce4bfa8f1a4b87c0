package venue

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a reply that is not valid JSON or lacks a required field.
	ErrProtocol = errors.New("venue protocol error")
	// ErrBuyUnconfirmed means a buy was written but its acknowledgment was lost.
	// The order may exist on the venue, so it is never resent.
	ErrBuyUnconfirmed = errors.New("buy dispatched but acknowledgment lost")
	// ErrReconnected means the connection was replaced during a read. Streams
	// subscribed on the old connection are gone.
	ErrReconnected = errors.New("connection replaced while awaiting reply")
)

// TransportError wraps socket level failures (closed, reset, TLS, dial).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("venue %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AuthError is returned by Connect when the venue rejects the token.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorize rejected: %s (%s)", e.Message, e.Code)
}

// VenueError is an error object carried in a reply to a request.
type VenueError struct {
	MsgType string
	Code    string
	Message string
}

func (e *VenueError) Error() string {
	if e.MsgType == "" {
		return fmt.Sprintf("venue error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("venue %s error %s: %s", e.MsgType, e.Code, e.Message)
}
