// Package orcherr defines the closed error-kind taxonomy shared by every
// orchestrator component, modeled on the teacher's sentinel-error pattern
// (process.IsBeforeStartErr) but generalized to a typed kind instead of a
// single boolean check.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds a step, operation, or
// component may fail with.
type Kind string

const (
	KindUnknownMethod      Kind = "unknown-method"
	KindScriptParse        Kind = "script-parse"
	KindUnboundVariable    Kind = "unbound-variable"
	KindPathEscape         Kind = "path-escape"
	KindCloneFailed        Kind = "clone-failed"
	KindDownloadFailed      Kind = "download-failed"
	KindArchiveInvalid     Kind = "archive-invalid"
	KindVenvFailed         Kind = "venv-failed"
	KindShellNonzero       Kind = "shell-nonzero"
	KindTimeout            Kind = "timeout"
	KindReadinessTimeout   Kind = "readiness-timeout"
	KindPortBusy           Kind = "port-busy"
	KindTunnelOpenFailed   Kind = "tunnel-open-failed"
	KindTunnelDead         Kind = "tunnel-dead"
	KindInputCancelled     Kind = "input-cancelled"
	KindIllegalState       Kind = "illegal-state"
	KindDiskFull           Kind = "disk-full"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the carrier every failing step or operation returns.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that wraps cause, using cause's message if message is empty.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// Is reports whether err carries the given kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// untyped errors — every failure surfaced to a caller must carry a kind.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}
