// Package apperr defines the error taxonomy shared by services and the HTTP
// layer. Callers match on Kind instead of parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind int

const (
	// KindInternal is an unexpected failure with no business meaning.
	KindInternal Kind = iota
	// KindNotFound means a referenced user, boat, booking or payment is missing.
	KindNotFound
	// KindValidation means a request violates a business rule (bad date
	// range, no matching window, bad payload).
	KindValidation
	// KindConflict means the candidate interval overlaps an existing booking.
	KindConflict
	// KindGatewayDeclined means the gateway rejected the charge for a
	// business reason (declined card).
	KindGatewayDeclined
	// KindGatewayUnavailable means the gateway was unreachable or timed out.
	KindGatewayUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindGatewayDeclined:
		return "gateway_declined"
	case KindGatewayUnavailable:
		return "gateway_unavailable"
	default:
		return "internal"
	}
}

// Error is a tagged domain error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two apperr.Errors match when their kinds match, so callers can
// use errors.Is(err, apperr.Conflict("")) style sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a tagged error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a tagged error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFound tags a missing-entity failure.
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// Validation tags a business-rule violation.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Conflict tags an interval overlap.
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// GatewayDeclined tags a business-level gateway rejection.
func GatewayDeclined(msg string) *Error { return New(KindGatewayDeclined, msg) }

// GatewayUnavailable tags an infrastructure-level gateway failure.
func GatewayUnavailable(msg string, err error) *Error {
	return Wrap(KindGatewayUnavailable, msg, err)
}

// KindOf extracts the kind from any error; non-tagged errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
