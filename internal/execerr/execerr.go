// Package execerr defines the error taxonomy shared by the wallet pool, the
// endpoint pool and the swap pipeline.
package execerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error by how a caller must react to it.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeTransport       Code = "TRANSPORT"
	CodeRejectedOnChain Code = "REJECTED_ON_CHAIN"
	CodeTimeout         Code = "TIMEOUT"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeBusy            Code = "BUSY"
	CodeFillUnavailable Code = "FILL_UNAVAILABLE"
)

// Retryable reports whether errors of this code may be retried with the same input.
// Only transport failures qualify; a timeout means the outcome is unknown and
// must be reconciled first.
func (c Code) Retryable() bool { return c == CodeTransport }

var (
	ErrWalletNotFound        = New(CodeNotFound, "wallet not found")
	ErrPoolEmpty             = New(CodeUnavailable, "endpoint pool empty")
	ErrCredentialUnavailable = New(CodeUnavailable, "signing credential unavailable")
	ErrInvalidCredential     = New(CodeInvalidArgument, "invalid credential")
	ErrInvalidIntent         = New(CodeInvalidArgument, "invalid swap intent")
	ErrEndpointUnavailable   = New(CodeTransport, "endpoint unavailable")
	ErrWalletBusy            = New(CodeBusy, "wallet busy")
	ErrFillUnavailable       = New(CodeFillUnavailable, "fill data unavailable")
	ErrConfirmTimeout        = New(CodeTimeout, "confirmation timed out")
	ErrSubmitAborted         = New(CodeTimeout, "submission aborted, outcome unknown")
	ErrSentUnconfirmed       = New(CodeTimeout, "sent, confirmation unknown")
	ErrRejected              = New(CodeRejectedOnChain, "transaction rejected")
)

// Error is the typed error returned across the core.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a cause to a copy of base.
func Wrap(base *Error, cause error) *Error {
	e := base.clone()
	e.cause = cause
	return e
}

// With returns a copy of e carrying an extra metadata pair.
func (e *Error) With(key, value string) *Error {
	c := e.clone()
	if c.metadata == nil {
		c.metadata = make(map[string]string, 1)
	}
	c.metadata[key] = value
	return c
}

func (e *Error) clone() *Error {
	c := &Error{code: e.code, message: e.message, cause: e.cause}
	if len(e.metadata) > 0 {
		c.metadata = make(map[string]string, len(e.metadata))
		for k, v := range e.metadata {
			c.metadata[k] = v
		}
	}
	return c
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.code, e.message)
	if len(e.metadata) > 0 {
		keys := make([]string, 0, len(e.metadata))
		for k := range e.metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.metadata[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on code and message, so sentinels sharing a code stay distinct.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && e.message == t.message
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the human readable message without metadata or cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// From extracts the outermost *Error in err's chain.
func From(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeUnknown for untyped errors.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// Retryable reports whether err may be retried with the same input.
func Retryable(err error) bool {
	return CodeOf(err).Retryable()
}
