// Package errs defines the error taxonomy exposed by sdval: typestring
// violations, value/type mismatches, API misuse, and the error-carrying
// "expected" unwrap. Each type wraps a containerd/errdefs category sentinel
// so callers can match either on the concrete sdval type (errors.As) or on
// the coarse category (errdefs.IsInvalidArgument, etc.), the same two-tier
// scheme moby-moby uses against containerd service errors.
package errs

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// TypestringError reports a grammar violation: an unknown type code, a
// tuple arity below 2, or trailing characters after a complete parse.
type TypestringError struct {
	Type string
	Pos  int
	Kind string // "InvalidChar", "NumberTooSmall", "TrailingChars"
}

func (e *TypestringError) Error() string {
	return fmt.Sprintf("typestring: %s at position %d in %q", e.Kind, e.Pos, marker(e.Type, e.Pos))
}

func (e *TypestringError) Unwrap() error { return errdefs.ErrInvalidArgument }

// ValueMismatchError reports that value bytes do not conform to their
// declared type: truncated payload, bad tuple/list/map framing, or (when
// produced by the conversion engine) a narrowed numeric value out of
// range. Offset is a byte offset into the *value* buffer, not the type
// string (contrast TypeMismatchError and TypestringError, whose Pos
// indexes into a type string).
type ValueMismatchError struct {
	Type   string
	Offset int
	Kind   string // "val" (truncated/short), "framing" (bad length/tag/arity)
	Msg    string
}

func (e *ValueMismatchError) Error() string {
	return fmt.Sprintf("value mismatch (%s) at value-offset %d against type %q: %s", e.Kind, e.Offset, e.Type, e.Msg)
}

func (e *ValueMismatchError) Unwrap() error { return errdefs.ErrInvalidArgument }

// TypeMismatchError reports that a conversion from Source to Target is not
// possible under the supplied policy. Pos is a byte offset into Source
// marking the first incompatible subtree; the printed form inserts a '*'
// there for diagnostic purposes, per spec.
type TypeMismatchError struct {
	Source string
	Target string
	Pos    int
	Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot convert %q to %q: %s (at %s)",
		e.Source, e.Target, e.Reason, marker(e.Source, e.Pos))
}

func (e *TypeMismatchError) Unwrap() error { return errdefs.ErrFailedPrecondition }

// ApiError reports programmatic misuse of the wview API: requesting a set
// of an ancestor with a descendant, erasing a tuple below arity 2, inserting
// a mismatched type into a typed container, and similar.
type ApiError struct {
	Op  string
	Msg string
}

func (e *ApiError) Error() string { return fmt.Sprintf("api error in %s: %s", e.Op, e.Msg) }

func (e *ApiError) Unwrap() error { return errdefs.ErrInvalidArgument }

// NotSerializableError reports that a host binding could not infer a type
// for a native value under guess mode.
type NotSerializableError struct {
	Msg string
}

func (e *NotSerializableError) Error() string { return "not serializable: " + e.Msg }

func (e *NotSerializableError) Unwrap() error { return errdefs.ErrInvalidArgument }

// ExpectedWithError is returned when unwrapping an `expected` (x/X) value
// that currently holds an error rather than a value. It carries the
// embedded error triple's fields so callers can inspect them without a
// second decode.
type ExpectedWithError struct {
	ErrType    string
	ErrMessage string
}

func (e *ExpectedWithError) Error() string {
	return fmt.Sprintf("expected holds error %q: %s", e.ErrType, e.ErrMessage)
}

func (e *ExpectedWithError) Unwrap() error { return errdefs.ErrUnknown }

// ParseError reports a failure in the text parser/printer (component F):
// an unexpected character, an unterminated literal, a numeric literal
// that overflows its inferred width, or a printer asked to render a type
// its output format cannot express.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at byte %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return errdefs.ErrInvalidArgument }

// marker inserts '*' at byte offset pos in s for diagnostic rendering,
// clamping to the string bounds.
func marker(s string, pos int) string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s) {
		pos = len(s)
	}
	return s[:pos] + "*" + s[pos:]
}
