// Package sxnerr defines the error taxonomy shared across the engine.
//
// Every error the engine returns to a caller carries a Kind so that
// propagation policy (abort vs. rollback vs. record-and-continue) and,
// at the CLI boundary, an exit code, can be derived without string
// matching.
package sxnerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error for propagation and exit-code purposes.
type Kind int

const (
	// KindValidation covers schema mismatches, bad name charsets, unknown
	// fields, cyclic dependencies, and disallowed commands.
	KindValidation Kind = iota
	// KindNotFound covers missing sessions, projects, source files, and
	// templates.
	KindNotFound
	// KindConflict covers duplicate session names and optimistic-lock
	// mismatches.
	KindConflict
	// KindSecurity covers path escapes, unreadable paths, and
	// non-whitelisted commands.
	KindSecurity
	// KindExecution covers nonzero exits, timeouts, and template
	// syntax/render failures.
	KindExecution
	// KindStorage covers migration failures, integrity violations, and
	// connection/transaction failures.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindSecurity:
		return "security"
	case KindExecution:
		return "execution"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the process exit code the CLI entry point
// returns. 0 is reserved for success and is never returned by ExitCode.
func (k Kind) ExitCode() int {
	switch k {
	case KindValidation:
		return 2
	case KindSecurity:
		return 3
	case KindConflict:
		return 4
	default:
		return 1
	}
}

// Error is the engine's typed error. It wraps an underlying cause while
// preserving the Kind for callers that branch on it with errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
