// Package apperr defines the closed set of error kinds returned by the
// media operations, so callers can branch on a kind instead of on
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind names a category of failure.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindInvalidURL   Kind = "invalid_url"
	KindNetwork      Kind = "network"
	KindPermission   Kind = "permission"
	KindUnavailable  Kind = "unavailable"
	KindFormat       Kind = "format"
	KindConversion   Kind = "conversion"
	KindOutput       Kind = "output"
	KindToolMissing  Kind = "tool_missing"
	KindBusy         Kind = "busy"
	KindInternal     Kind = "internal"
)

// Error is a failure tagged with a Kind.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "download" or "convert".
	Op string
	// Subject is the file path or URL the operation was working on.
	Subject string
	// Msg is a human readable description.
	Msg string
	Err error
}

// New creates an Error. err may be nil.
func New(kind Kind, op, subject, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Msg: msg, Err: err}
}

// E returns a bare Error of the given kind, for use with errors.Is.
func E(kind Kind) *Error {
	return &Error{Kind: kind}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Subject)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare kind sentinel created by E with the
// same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Subject != "" || t.Msg != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
