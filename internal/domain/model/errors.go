package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the administrative error taxonomy.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindUpstream          ErrorKind = "upstream_error"
	KindInternal          ErrorKind = "internal_error"
)

// Error is a classified failure. It is produced where the failure happens
// and carried unchanged to the administrative boundary.
type Error struct {
	Kind   ErrorKind
	ID     int64 // set for KindNotFound
	Reason string
	Err    error

	// Rejected marks a KindInvalidCredential raised because the credential
	// itself was refused, either by upstream auth or by local token checks.
	Rejected bool
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNotFound:
		return fmt.Sprintf("credential %d not found", e.ID)
	case e.Err != nil && e.Reason != "":
		return e.Reason + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Reason
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err,
// &Error{Kind: KindNotFound}) works regardless of id or reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ID == 0 || t.ID == e.ID)
}

// NotFound reports that credential id does not exist or was deleted.
func NotFound(id int64) *Error {
	return &Error{Kind: KindNotFound, ID: id}
}

// InvalidCredential reports malformed or rejected credential material.
func InvalidCredential(reason string) *Error {
	return &Error{Kind: KindInvalidCredential, Reason: reason}
}

// Rejected reports credential material that upstream or a local check
// refused outright. Only these count toward automatic disabling.
func Rejected(reason string) *Error {
	return &Error{Kind: KindInvalidCredential, Reason: reason, Rejected: true}
}

// Upstream reports a network, timeout, or upstream service failure.
func Upstream(reason string, err error) *Error {
	return &Error{Kind: KindUpstream, Reason: reason, Err: err}
}

// Internal reports any other failure.
func Internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Err: err}
}

// AsError extracts the classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first classified error in err's chain, or
// the empty kind when err carries none.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRejected reports whether err carries a credential rejection.
func IsRejected(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindInvalidCredential && e.Rejected
}
