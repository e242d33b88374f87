// Package relayerr implements the relay's error taxonomy: a small,
// closed set of error kinds that every layer wraps its failures in, so
// callers can branch with errors.As instead of parsing messages.
package relayerr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind int

const (
	// KindFraming covers preamble/direction/flag/CRC mismatches,
	// over-length payloads, and error-direction ('!') frames.
	KindFraming Kind = iota
	// KindUnknownMessage covers message ids outside the catalog.
	KindUnknownMessage
	// KindIO covers serial open/read/write failures.
	KindIO
	// KindIdentityTimeout covers the watchdog tripping because GPS
	// was never received within the bound.
	KindIdentityTimeout
	// KindConfiguration covers unparseable or invalid CLI input.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindUnknownMessage:
		return "unknown_message"
	case KindIO:
		return "io"
	case KindIdentityTimeout:
		return "identity_timeout"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module returns
// for taxonomy-covered failures.
type Error struct {
	Kind Kind
	// Port names the link the error occurred on, empty for
	// process-wide errors (e.g. configuration).
	Port string
	// MsgID is set for framing errors carrying a message id (an
	// error-direction reply) and for unknown-message errors.
	MsgID uint16
	// Err is the underlying cause, if any.
	Err error
	// Msg is a short human-readable description.
	Msg string
}

func (e *Error) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Port, e.describe())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.describe())
}

func (e *Error) describe() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &relayerr.Error{Kind: relayerr.KindFraming})
// style matching by comparing the dynamic Kind value.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Framing builds a KindFraming error.
func Framing(port string, msg string, cause error) *Error {
	return &Error{Kind: KindFraming, Port: port, Msg: msg, Err: cause}
}

// FramingDirectionError builds the specific KindFraming error for an
// error-direction ('!') frame, carrying the message id it concerns.
func FramingDirectionError(port string, msgID uint16) *Error {
	return &Error{Kind: KindFraming, Port: port, MsgID: msgID, Msg: "controller returned an error-direction frame"}
}

// UnknownMessage builds a KindUnknownMessage error.
func UnknownMessage(port string, msgID uint16) *Error {
	return &Error{Kind: KindUnknownMessage, Port: port, MsgID: msgID, Msg: "message id not in catalog"}
}

// IO builds a KindIO error.
func IO(port string, msg string, cause error) *Error {
	return &Error{Kind: KindIO, Port: port, Msg: msg, Err: cause}
}

// IdentityTimeout builds a KindIdentityTimeout error.
func IdentityTimeout(port string) *Error {
	return &Error{Kind: KindIdentityTimeout, Port: port, Msg: "no GPS fix received within watchdog bound"}
}

// Configuration builds a KindConfiguration error.
func Configuration(msg string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Msg: msg, Err: cause}
}
