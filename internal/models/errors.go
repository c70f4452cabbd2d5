package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by storage when an entity does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidTransition is returned for a subscription state change that is not allowed.
	ErrInvalidTransition = errors.New("invalid subscription state transition")
)

// ErrorKind classifies a protocol level failure.
type ErrorKind string

const (
	KindNotFound  ErrorKind = "not-found"
	KindForbidden ErrorKind = "forbidden"
	KindInvalid   ErrorKind = "invalid"
)

// ProtocolError is a policy rejection carrying a machine readable reason.
type ProtocolError struct {
	Kind    ErrorKind
	Reason  ReasonCode
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewProtocolError builds a ProtocolError with the default message for reason.
func NewProtocolError(kind ErrorKind, reason ReasonCode) *ProtocolError {
	return &ProtocolError{Kind: kind, Reason: reason, Message: reason.Message()}
}

// Invalid builds a ProtocolError for malformed input.
func Invalid(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// AsProtocolError unwraps err into a ProtocolError if it is one.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
