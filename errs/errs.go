// Package errs defines the error kinds surfaced by the metrics pipeline and
// the rules for turning them into user-facing messages.
package errs

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind categorizes a pipeline failure.
type Kind int

const (
	FormatError Kind = iota + 1
	ValidationError
	SecurityError
	TimeoutError
	ConnectionError
	ParseError
	PersistenceError
	RateLimitError
)

func (k Kind) String() string {
	switch k {
	case FormatError:
		return "FormatError"
	case ValidationError:
		return "ValidationError"
	case SecurityError:
		return "SecurityError"
	case TimeoutError:
		return "TimeoutError"
	case ConnectionError:
		return "ConnectionError"
	case ParseError:
		return "ParseError"
	case PersistenceError:
		return "PersistenceError"
	case RateLimitError:
		return "RateLimitError"
	}
	return "UnknownError"
}

const (
	redacted          = "[REDACTED]"
	genericRejection  = "connection to internal hosts is not allowed"
	defaultFailureMsg = "connection failed"
)

var ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// Error is a categorized error. It implements the error interface.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RedactIPs replaces every IPv4 literal in s.
func RedactIPs(s string) string {
	return ipv4Pattern.ReplaceAllString(s, redacted)
}

// Public renders err the way it may be shown to the caller. Security
// rejections never describe the blocklist, input errors are returned as-is,
// everything else has literal addresses stripped.
func Public(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		msg := RedactIPs(err.Error())
		if msg == "" {
			return defaultFailureMsg
		}
		return msg
	}
	switch e.Kind {
	case SecurityError:
		return genericRejection
	case FormatError, ValidationError, RateLimitError:
		return e.Message
	}
	msg := RedactIPs(e.Error())
	if msg == "" {
		return defaultFailureMsg
	}
	return msg
}
