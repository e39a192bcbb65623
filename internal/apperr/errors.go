// Package apperr defines the error taxonomy shared by every transport hop.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrNotConfigured      = errors.New("notion token not configured")
	ErrTimeout            = errors.New("timed out waiting for reply")
	ErrTransportFailure   = errors.New("messaging bridge unreachable")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrMalformedItem      = errors.New("malformed item")
)

// RemoteRejectedError is a non-2xx answer from the remote document API.
type RemoteRejectedError struct {
	Status  int
	Message string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected (%d): %s", e.Status, e.Message)
}

// Envelope error codes. They travel in bus.Message.Code.
const (
	CodeNotConfigured = "not_configured"
	CodeTimeout       = "timeout"
	CodeTransport     = "transport"
	CodeRemote        = "remote"
	CodeNetwork       = "network"
)

// Code returns the envelope code for err, defaulting to CodeTransport.
func Code(err error) string {
	var rr *RemoteRejectedError
	switch {
	case errors.As(err, &rr):
		return CodeRemote
	case errors.Is(err, ErrNotConfigured):
		return CodeNotConfigured
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrNetworkUnreachable):
		return CodeNetwork
	default:
		return CodeTransport
	}
}

// Status returns the remote HTTP status carried by err, or 0.
func Status(err error) int {
	var rr *RemoteRejectedError
	if errors.As(err, &rr) {
		return rr.Status
	}
	return 0
}

// FromEnvelope rebuilds a typed error from the fields of a failure envelope.
func FromEnvelope(code string, status int, message string) error {
	if message == "" {
		message = "unknown error"
	}
	switch code {
	case CodeRemote:
		return &RemoteRejectedError{Status: status, Message: message}
	case CodeNotConfigured:
		return fmt.Errorf("%w: %s", ErrNotConfigured, message)
	case CodeTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, message)
	case CodeNetwork:
		return fmt.Errorf("%w: %s", ErrNetworkUnreachable, message)
	}
	if status > 0 {
		return &RemoteRejectedError{Status: status, Message: message}
	}
	return fmt.Errorf("%w: %s", ErrTransportFailure, message)
}
