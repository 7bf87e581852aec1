package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"net"
	"sort"
	"strings"
	"syscall"
)

// PlatformError is implemented by every error created by this package.
// Use As to recover it from a wrapped chain.
type PlatformError interface {
	error

	// Code returns the classification of the failure.
	Code() ErrorCode

	// Context returns a copy of the key/value pairs attached to the error.
	Context() map[string]any

	// Unwrap returns the underlying cause, if any.
	Unwrap() error
}

type platformError struct {
	code    ErrorCode
	message string
	context map[string]any
	cause   error
}

func (e *platformError) Error() string {
	var b strings.Builder
	b.WriteString(e.message)

	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.context[k])
		}
		b.WriteString(")")
	}

	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *platformError) Code() ErrorCode { return e.code }

func (e *platformError) Context() map[string]any {
	return maps.Clone(e.context)
}

func (e *platformError) Unwrap() error { return e.cause }

// New creates a PlatformError without an underlying cause.
//
//nolint:ireturn // callers match on the PlatformError interface.
func New(code ErrorCode, message string) PlatformError {
	return &platformError{code: code, message: message}
}

// Newf creates a PlatformError with a formatted message.
//
//nolint:ireturn // callers match on the PlatformError interface.
func Newf(code ErrorCode, format string, args ...any) PlatformError {
	return &platformError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: message, cause: err}
}

// WrapWithContext attaches a code, message and key/value context to err.
// A nil err yields nil.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]any) error {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: message, context: maps.Clone(ctx), cause: err}
}

// GetCode returns the code of the outermost PlatformError in err's chain,
// or CodeUnknown when there is none.
func GetCode(err error) ErrorCode {
	var pe PlatformError
	if As(err, &pe) {
		return pe.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(PlatformError); ok && pe.Code() == code { //nolint:errorlint // walking the chain by hand
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsCancelled reports whether err stems from context cancellation, either
// directly or through a CodeCancelled PlatformError.
func IsCancelled(err error) bool {
	return stderrors.Is(err, context.Canceled) || HasCode(err, CodeCancelled)
}

// networkMessages are substrings that identify an unreachable host when the
// error lost its type on the way up, e.g. through an HTTP client wrapper.
var networkMessages = []string{
	"ENOTFOUND",
	"no such host",
	"connection refused",
	"network is unreachable",
	"no route to host",
}

// ClassifyNetwork reports whether err means the remote host could not be
// reached at all: DNS resolution or connection establishment failed.
func ClassifyNetwork(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	if Is(err, syscall.ECONNREFUSED) || Is(err, syscall.ENETUNREACH) || Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	msg := err.Error()
	for _, m := range networkMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
