// Package apperr defines the typed errors the service layer returns and the
// web layer maps to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindExternal            Kind = "external_api"
	KindMalformedPrediction Kind = "malformed_prediction"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal"
)

// Error is an application error with a kind, the operation that failed and
// a message safe to show to API clients.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var prefix string
	if e.Op != "" {
		prefix = e.Op + ": "
	}
	if e.Err != nil {
		return fmt.Sprintf("%s%s: %v", prefix, e.Message, e.Err)
	}
	return prefix + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.NotFound)
// style checks work against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// LogFields returns structured logging attributes for the error.
func (e *Error) LogFields() []any {
	fields := []any{"error_kind", string(e.Kind), "error_message", e.Message}
	if e.Op != "" {
		fields = append(fields, "op", e.Op)
	}
	if e.Err != nil {
		fields = append(fields, "internal_error", e.Err.Error())
	}
	return fields
}

// Kind-only sentinels for errors.Is.
var (
	Validation          = &Error{Kind: KindValidation}
	NotFound            = &Error{Kind: KindNotFound}
	Conflict            = &Error{Kind: KindConflict}
	External            = &Error{Kind: KindExternal}
	MalformedPrediction = &Error{Kind: KindMalformedPrediction}
	Timeout             = &Error{Kind: KindTimeout}
	Internal            = &Error{Kind: KindInternal}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(err error, kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func NewValidation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

func NewNotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Sprintf(format, args...))
}

func NewConflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of the first *Error in err's
// chain, or a generic message for untyped errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
