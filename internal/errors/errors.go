package errors

import (
	"errors"
	"fmt"
)

// Client-side errors.
var (
	ErrNotReady           = errors.New("live channel is not ready")
	ErrEmptyMessage       = errors.New("message body is empty")
	ErrConversationClosed = errors.New("conversation was closed")
	ErrNoMorePages        = errors.New("no older messages")
	ErrUnknownMessage     = errors.New("message is not in the conversation")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// DecodeError reports a malformed inbound payload. The payload is
// discarded and no state changes.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding payload: %s: %v", e.Reason, e.Err)
	}

	return "decoding payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a live channel connection failure. It is never
// fatal: the channel reports it and reconnects.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// RequestError reports a failed request against the REST API. Transient
// is set for network failures and for statuses worth retrying.
type RequestError struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %v", e.Op, e.Status, e.Err)
	}

	return e.Op + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// RequestError marked transient, meaning a retry affordance makes sense.
func IsTransient(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Transient
}

// IsDecode reports whether err (or any error in its chain) is a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
