package wview

import (
	"bytes"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
)

// Set replaces n's type and value with other's current (flattened)
// content, then disowns n's existing children: any handle obtained
// before this call now reports Disowned() on next access, in O(1)
// regardless of subtree size, since disowning works by bumping n's
// generation counter rather than walking the old subtree.
func (n *Node) Set(other *Node) error {
	val, err := other.Flatten()
	if err != nil {
		return err
	}
	n.typ = other.typ
	n.raw = []*Chunk{n.alloc.NewOwned(val)}
	n.children = nil
	n.tag = 0
	n.embType = nil
	n.bumpGen()
	return nil
}

// SetVoid sets n's type to void and its value to zero bytes. Only
// permitted where void is a legal occupant: a free-standing node (no
// parent) or the payload slot of an `any`.
func (n *Node) SetVoid() error {
	if n.parent != nil && n.parent.typ.Kind != grammar.Any {
		return &errs.ApiError{Op: "SetVoid", Msg: "void is not permitted in this context"}
	}
	n.typ = &grammar.Node{Kind: grammar.Void}
	n.raw = nil
	n.children = nil
	n.tag = 0
	n.embType = nil
	n.bumpGen()
	return nil
}

// Erase removes the i-th child from a list, map, tuple, or optional.
// Tuple arity must remain at least 2. The removed child is disowned.
func (n *Node) Erase(i int) error {
	if err := n.ensureChildren(); err != nil {
		return err
	}
	switch n.typ.Kind {
	case grammar.List, grammar.Map:
		if i < 0 || i >= len(n.children) {
			return &errs.ApiError{Op: "Erase", Msg: "index out of range"}
		}
		n.children = append(n.children[:i:i], n.children[i+1:]...)

	case grammar.Tuple:
		if len(n.children) <= 2 {
			return &errs.ApiError{Op: "Erase", Msg: "tuple arity would drop below 2"}
		}
		if i < 0 || i >= len(n.children) {
			return &errs.ApiError{Op: "Erase", Msg: "index out of range"}
		}
		n.children = append(n.children[:i:i], n.children[i+1:]...)
		n.typ = tupleTypeOf(n.children)

	case grammar.Optional:
		if i != 0 || len(n.children) == 0 {
			return &errs.ApiError{Op: "Erase", Msg: "optional holds no element"}
		}
		n.children = []*Node{}
		n.tag = 0

	default:
		return &errs.ApiError{Op: "Erase", Msg: "type does not support erase"}
	}
	n.bumpGen()
	return nil
}

// InsertAfter inserts other as a new child positioned after index i
// (i == -1 prepends). The inserted value's type must be compatible with
// the container: equal element type for lists and maps, any type for
// tuples (arity grows by one), and exactly one matching-type element for
// a currently-empty optional.
func (n *Node) InsertAfter(i int, other *Node) error {
	if err := n.ensureChildren(); err != nil {
		return err
	}
	switch n.typ.Kind {
	case grammar.List:
		if !other.typ.Equal(n.typ.Elem) {
			return &errs.ApiError{Op: "InsertAfter", Msg: "element type mismatch"}
		}
		child, err := n.adopt(other)
		if err != nil {
			return err
		}
		n.children = insertAt(n.children, i, child)

	case grammar.Map:
		if !other.typ.Equal(entryTupleType(n.typ)) {
			return &errs.ApiError{Op: "InsertAfter", Msg: "entry type mismatch"}
		}
		child, err := n.adopt(other)
		if err != nil {
			return err
		}
		n.children = insertAt(n.children, i, child)

	case grammar.Tuple:
		child, err := n.adopt(other)
		if err != nil {
			return err
		}
		n.children = insertAt(n.children, i, child)
		n.typ = tupleTypeOf(n.children)

	case grammar.Optional:
		if len(n.children) != 0 {
			return &errs.ApiError{Op: "InsertAfter", Msg: "optional already holds a value"}
		}
		if !other.typ.Equal(n.typ.Elem) {
			return &errs.ApiError{Op: "InsertAfter", Msg: "element type mismatch"}
		}
		child, err := n.adopt(other)
		if err != nil {
			return err
		}
		n.children = []*Node{child}
		n.tag = 1

	default:
		return &errs.ApiError{Op: "InsertAfter", Msg: "type does not support insert"}
	}
	n.bumpGen()
	return nil
}

// SwapContentWith exchanges n and other's type, value, and materialized
// children. Forbidden when either is an ancestor of the other.
func (n *Node) SwapContentWith(other *Node) error {
	if n == other {
		return nil
	}
	if n.isAncestorOf(other) || other.isAncestorOf(n) {
		return &errs.ApiError{Op: "SwapContentWith", Msg: "ancestor/descendant swap forbidden"}
	}
	n.typ, other.typ = other.typ, n.typ
	n.raw, other.raw = other.raw, n.raw
	n.children, other.children = other.children, n.children
	n.tag, other.tag = other.tag, n.tag
	n.embType, other.embType = other.embType, n.embType
	n.bumpGen()
	other.bumpGen()
	return nil
}

// LinearSearch scans a list-of-tuples (or list-of-values) for the
// occurrence-th position whose leading columns equal key's columns. It
// returns -1 with a nil error when no such position exists.
func (n *Node) LinearSearch(key *Node, occurrence int) (int, error) {
	if n.typ.Kind != grammar.List {
		return -1, &errs.ApiError{Op: "LinearSearch", Msg: "linear_search requires a list"}
	}
	if err := n.ensureChildren(); err != nil {
		return -1, err
	}
	seen := 0
	for i, c := range n.children {
		match, err := c.hasLeadingColumns(key)
		if err != nil {
			return -1, err
		}
		if !match {
			continue
		}
		if seen == occurrence {
			return i, nil
		}
		seen++
	}
	return -1, nil
}

func (n *Node) hasLeadingColumns(key *Node) (bool, error) {
	if n.typ.Kind == grammar.Tuple && key.typ.Kind == grammar.Tuple {
		if len(key.typ.Fields) > len(n.typ.Fields) {
			return false, nil
		}
		if err := n.ensureChildren(); err != nil {
			return false, err
		}
		if err := key.ensureChildren(); err != nil {
			return false, err
		}
		for i := range key.typ.Fields {
			a, err := n.children[i].Flatten()
			if err != nil {
				return false, err
			}
			b, err := key.children[i].Flatten()
			if err != nil {
				return false, err
			}
			if !bytes.Equal(a, b) {
				return false, nil
			}
		}
		return true, nil
	}
	if !n.typ.Equal(key.typ) {
		return false, nil
	}
	a, err := n.Flatten()
	if err != nil {
		return false, err
	}
	b, err := key.Flatten()
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

// adopt detaches other's current content into a freshly owned chunk
// under n, so the new child no longer shares a live tree with other.
func (n *Node) adopt(other *Node) (*Node, error) {
	val, err := other.Flatten()
	if err != nil {
		return nil, err
	}
	return &Node{
		alloc: n.alloc, typ: other.typ,
		raw: []*Chunk{n.alloc.NewOwned(val)},
		parent: n, parentGen: n.gen,
	}, nil
}

func insertAt(list []*Node, i int, v *Node) []*Node {
	pos := i + 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(list) {
		pos = len(list)
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = v
	return list
}

func tupleTypeOf(children []*Node) *grammar.Node {
	fields := make([]*grammar.Node, len(children))
	for i, c := range children {
		fields[i] = c.typ
	}
	return &grammar.Node{Kind: grammar.Tuple, Fields: fields}
}
