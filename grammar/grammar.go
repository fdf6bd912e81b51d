// Package grammar parses, validates, walks, and default-materializes
// sdval type strings (component A). A type string is a finite sequence
// of single-character type codes over the alphabet in spec.md §3; this
// package turns that string into a Node tree once, so the rest of the
// library (scanner, conversion engine, wview) can recurse over structure
// instead of re-lexing text.
package grammar

import (
	"strconv"
	"strings"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/wire"
)

// Kind identifies the shape a Node describes.
type Kind int

const (
	Void Kind = iota
	Bool
	Byte
	Int32
	Int64
	Double
	String
	List
	Map
	Tuple
	Optional
	Expected
	ExpectedVoid
	Error
	Any
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Byte:
		return "byte"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Double:
		return "double"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	case Tuple:
		return "tuple"
	case Optional:
		return "optional"
	case Expected:
		return "expected"
	case ExpectedVoid:
		return "expected_void"
	case Error:
		return "error"
	case Any:
		return "any"
	}
	return "unknown"
}

// Node is one node of a parsed type string. Elem is used by List,
// Optional, and Expected; Key/Val by Map; Fields by Tuple. All other
// kinds are leaves.
type Node struct {
	Kind   Kind
	Elem   *Node
	Key    *Node
	Val    *Node
	Fields []*Node
}

// Parse parses s as a complete type string. It fails with TrailingChars
// if characters remain after a full top-level parse.
func Parse(s string) (*Node, error) {
	n, next, err := parseAt(s, 0)
	if err != nil {
		return nil, err
	}
	if next != len(s) {
		return nil, &errs.TypestringError{Type: s, Pos: next, Kind: "TrailingChars"}
	}
	return n, nil
}

// ParseOne parses a single type node starting at s[0], without requiring
// the rest of s to be empty. It returns the node and the number of bytes
// consumed.
func ParseOne(s string) (*Node, int, error) {
	return parseAt(s, 0)
}

func parseAt(s string, i int) (*Node, int, error) {
	if i >= len(s) {
		return &Node{Kind: Void}, i, nil
	}
	switch s[i] {
	case 'b':
		return &Node{Kind: Bool}, i + 1, nil
	case 'c':
		return &Node{Kind: Byte}, i + 1, nil
	case 'i':
		return &Node{Kind: Int32}, i + 1, nil
	case 'I':
		return &Node{Kind: Int64}, i + 1, nil
	case 'd':
		return &Node{Kind: Double}, i + 1, nil
	case 's':
		return &Node{Kind: String}, i + 1, nil
	case 'X':
		return &Node{Kind: ExpectedVoid}, i + 1, nil
	case 'e':
		return &Node{Kind: Error}, i + 1, nil
	case 'a':
		return &Node{Kind: Any}, i + 1, nil
	case 'l':
		elem, next, err := parseAt(s, i+1)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: List, Elem: elem}, next, nil
	case 'o':
		elem, next, err := parseAt(s, i+1)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: Optional, Elem: elem}, next, nil
	case 'x':
		elem, next, err := parseAt(s, i+1)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: Expected, Elem: elem}, next, nil
	case 'm':
		key, next, err := parseAt(s, i+1)
		if err != nil {
			return nil, 0, err
		}
		val, next2, err := parseAt(s, next)
		if err != nil {
			return nil, 0, err
		}
		return &Node{Kind: Map, Key: key, Val: val}, next2, nil
	case 't':
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 {
			return nil, 0, &errs.TypestringError{Type: s, Pos: i + 1, Kind: "InvalidChar"}
		}
		count, convErr := strconv.Atoi(s[i+1 : j])
		if convErr != nil {
			return nil, 0, &errs.TypestringError{Type: s, Pos: i + 1, Kind: "InvalidChar"}
		}
		if count < 2 {
			return nil, 0, &errs.TypestringError{Type: s, Pos: i + 1, Kind: "NumberTooSmall"}
		}
		fields := make([]*Node, 0, count)
		pos := j
		for f := 0; f < count; f++ {
			fn, next, err := parseAt(s, pos)
			if err != nil {
				return nil, 0, err
			}
			fields = append(fields, fn)
			pos = next
		}
		return &Node{Kind: Tuple, Fields: fields}, pos, nil
	default:
		return nil, 0, &errs.TypestringError{Type: s, Pos: i, Kind: "InvalidChar"}
	}
}

// String reconstructs the canonical type string for n.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case Void:
		return ""
	case Bool:
		return "b"
	case Byte:
		return "c"
	case Int32:
		return "i"
	case Int64:
		return "I"
	case Double:
		return "d"
	case String:
		return "s"
	case ExpectedVoid:
		return "X"
	case Error:
		return "e"
	case Any:
		return "a"
	case List:
		return "l" + n.Elem.String()
	case Optional:
		return "o" + n.Elem.String()
	case Expected:
		return "x" + n.Elem.String()
	case Map:
		return "m" + n.Key.String() + n.Val.String()
	case Tuple:
		var b strings.Builder
		b.WriteByte('t')
		b.WriteString(strconv.Itoa(len(n.Fields)))
		for _, f := range n.Fields {
			b.WriteString(f.String())
		}
		return b.String()
	}
	return ""
}

// Equal reports whether n and other describe the same type.
func (n *Node) Equal(other *Node) bool {
	return n.String() == other.String()
}

// Walk performs a pre-order traversal of n, calling fn on n and every
// descendant. Traversal stops at the first non-nil error.
func Walk(n *Node, fn func(*Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	switch n.Kind {
	case List, Optional, Expected:
		return Walk(n.Elem, fn)
	case Map:
		if err := Walk(n.Key, fn); err != nil {
			return err
		}
		return Walk(n.Val, fn)
	case Tuple:
		for _, f := range n.Fields {
			if err := Walk(f, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// DefaultValue materializes the canonical zero value for n's type: zero
// for numerics, empty string/list/map, an absent optional, an `expected`
// holding its target's default (the "success" state), and a void-typed,
// zero-length `any`.
func DefaultValue(n *Node) []byte {
	switch n.Kind {
	case Void:
		return nil
	case Bool, Byte:
		return []byte{0}
	case Int32:
		return wire.EncodeI32(0)
	case Int64:
		return wire.EncodeI64(0)
	case Double:
		return wire.EncodeDouble(0)
	case String, List, Map:
		return wire.EncodeU32(0)
	case Tuple:
		var buf []byte
		for _, f := range n.Fields {
			buf = append(buf, DefaultValue(f)...)
		}
		return buf
	case Optional:
		return []byte{0}
	case Expected:
		buf := []byte{1}
		return append(buf, DefaultValue(n.Elem)...)
	case ExpectedVoid:
		return []byte{1}
	case Error:
		// (type: "", message: "", aux: void-typed empty any) — the
		// "no error" sentinel.
		buf := wire.EncodeU32(0)
		buf = append(buf, wire.EncodeU32(0)...)
		buf = append(buf, wire.EncodeU32(0)...)
		buf = append(buf, wire.EncodeU32(0)...)
		return buf
	case Any:
		buf := wire.EncodeU32(0)
		buf = append(buf, wire.EncodeU32(0)...)
		return buf
	}
	return nil
}
