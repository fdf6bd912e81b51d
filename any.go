// Package sdval is the root of the self-describing value library: the
// `Any` container (component D) that pairs a parsed type (package
// grammar) with its serialized value bytes, plus the text parser and
// printer (component F) that translate between that container and a
// compact human-readable notation. Package convert does the actual
// cross-type conversion work; Any.ConvertTo and GetAs are thin
// wrappers over it.
package sdval

import (
	"bytes"

	"github.com/skiprope/sdval/convert"
	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/scan"
)

// Any is an immutable (type, value) pair: a type-grammar node plus the
// exact serialized bytes it describes. It is the currency the rest of
// the library passes around — wview opens a mutable edit tree over one,
// convert produces a new one from an old one under a different type.
type Any struct {
	typ   *grammar.Node
	value []byte
}

// New validates value against typ with the scanner and, on success,
// returns the Any pairing them. Trailing bytes after the scanned value
// are rejected: an Any always holds a complete, exactly-sized value.
func New(typ *grammar.Node, value []byte) (Any, error) {
	consumed, err := scan.Scan(typ, value)
	if err != nil {
		return Any{}, err
	}
	if consumed != len(value) {
		return Any{}, &errs.ValueMismatchError{
			Type: typ.String(), Offset: consumed, Kind: "framing",
			Msg: "trailing bytes after scanned value",
		}
	}
	return Any{typ: typ, value: value}, nil
}

// NewType parses typ and delegates to New.
func NewType(typ string, value []byte) (Any, error) {
	n, err := grammar.Parse(typ)
	if err != nil {
		return Any{}, err
	}
	return New(n, value)
}

// NewFromType default-materializes typ: the canonical zero value per
// grammar.DefaultValue.
func NewFromType(typ *grammar.Node) Any {
	return Any{typ: typ, value: grammar.DefaultValue(typ)}
}

// NewFromText parses text with the guess-mode text parser (component F),
// inferring a type from the literal's shape.
func NewFromText(text string) (Any, error) {
	return ParseString(text)
}

// Type returns a's type node.
func (a Any) Type() *grammar.Node { return a.typ }

// TypeString returns a's type's canonical string.
func (a Any) TypeString() string { return a.typ.String() }

// Bytes returns a's raw value bytes. Callers must not mutate the
// returned slice; Any is meant to be treated as immutable.
func (a Any) Bytes() []byte { return a.value }

// IsZero reports whether a is the zero Any (no type set), distinct from
// a void-typed Any with zero-length value.
func (a Any) IsZero() bool { return a.typ == nil }

// Equal reports structural byte equality on canonical form: same type
// string, same value bytes.
func (a Any) Equal(other Any) bool {
	if a.typ == nil || other.typ == nil {
		return a.typ == other.typ
	}
	return a.typ.Equal(other.typ) && bytes.Equal(a.value, other.value)
}

// ConvertTo produces a new Any of target's type from a's value, per the
// conversion engine's policy-gated rules.
func (a Any) ConvertTo(target *grammar.Node, policy convert.Policy) (Any, error) {
	out, err := convert.Serialized(a.typ, a.value, target, policy)
	if err != nil {
		return Any{}, err
	}
	return Any{typ: target, value: out}, nil
}

// CantConvertTo reports why a cannot convert to target under policy, or
// nil if it can.
func (a Any) CantConvertTo(target *grammar.Node, policy convert.Policy) error {
	return convert.CantConvert(a.typ, target, policy, a.value)
}

// Print renders a in the canonical annotated text form (component F).
func (a Any) Print() (string, error) {
	return Print(a)
}

// PrintJSON renders a as JSON-compatible text, refusing types the JSON
// subset cannot express (tuples, expected, expected-void, error, and maps
// whose keys are not strings). An absent optional prints as null, a
// present one as its value, and an `a` prints as its embedded value
// wherever it occurs.
func (a Any) PrintJSON() (string, error) {
	return PrintJSON(a)
}
