// Package errs defines the error taxonomy shared by the sign-in driver,
// the deep-link relay client, and the payment builders.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch on failure class
// without string matching.
type Kind string

const (
	// KindPrecondition marks an operation attempted before its required
	// setup, e.g. signing through a relay client that never connected.
	KindPrecondition Kind = "precondition"
	// KindAddressMismatch marks a signer address that disagrees with the
	// address the signature was requested for.
	KindAddressMismatch Kind = "address_mismatch"
	// KindTimeout marks a bounded wait that elapsed without a result.
	KindTimeout Kind = "timeout"
	// KindRelay marks an explicit error payload returned by the relay
	// or the wallet behind it. Never retried.
	KindRelay Kind = "relay"
	// KindRemoteCall marks an error result from the identity-issuing
	// service or another remote collaborator.
	KindRemoteCall Kind = "remote_call"
	// KindExpired marks a session identity used past its safety margin.
	KindExpired Kind = "expired"
	// KindUnsupportedNetwork marks a payment requirement referencing a
	// network the client cannot service.
	KindUnsupportedNetwork Kind = "unsupported_network"
)

// Error carries a taxonomy kind, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err carries no taxonomy kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
