package wview

import (
	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/scan"
	"github.com/skiprope/sdval/wire"
)

// Node is a handle into a lazily parsed edit tree over a serialized
// value. Accessing Child(i) materializes this node's children on first
// use; until then the node is just its type plus a raw chunk list.
type Node struct {
	alloc Allocator
	typ   *grammar.Node

	// raw holds this node's own value bytes, valid only as long as
	// children is nil. Once children are materialized, flatten always
	// reconstructs from them instead — see flatten.go.
	raw []*Chunk

	children []*Node // nil until first Child/NumChildren access

	// tag distinguishes the present/absent or ok/error arm for Optional,
	// Expected, and ExpectedVoid. Unused for other kinds.
	tag int

	// embType is the embedded type of an Any node's single child.
	embType *grammar.Node

	parent    *Node
	parentGen uint64

	gen uint64
}

// errorTupleNode is the fixed (type: s, message: s, aux: a) shape behind
// the `e` code and the error arm of `x`/`X`.
var errorTupleNode = &grammar.Node{
	Kind: grammar.Tuple,
	Fields: []*grammar.Node{
		{Kind: grammar.String},
		{Kind: grammar.String},
		{Kind: grammar.Any},
	},
}

// New builds a root Node over value, which must scan against typ exactly
// (no trailing bytes) — a wview always starts from a complete serialized
// value, never a fragment.
func New(alloc Allocator, typ *grammar.Node, value []byte) (*Node, error) {
	consumed, err := scan.Scan(typ, value)
	if err != nil {
		return nil, err
	}
	if consumed != len(value) {
		return nil, &errs.ValueMismatchError{
			Type: typ.String(), Offset: consumed, Kind: "framing",
			Msg: "trailing bytes after scanned value",
		}
	}
	return &Node{alloc: alloc, typ: typ, raw: []*Chunk{alloc.NewBorrowed(value)}}, nil
}

// Type returns n's current type.
func (n *Node) Type() *grammar.Node { return n.typ }

// TypeString returns n's current type's canonical string.
func (n *Node) TypeString() string { return n.typ.String() }

// Disowned reports whether n's former parent has since replaced or
// restructured the subtree n used to belong to. A disowned node remains
// fully readable and editable; its edits simply no longer propagate
// anywhere, since there is nowhere left to propagate to.
func (n *Node) Disowned() bool {
	return n.parent != nil && n.parent.gen != n.parentGen
}

// Child returns the i-th child, materializing the child list on first
// access. The returned handle's generation bookkeeping is refreshed, so
// a handle obtained this way is never itself considered disowned.
func (n *Node) Child(i int) (*Node, error) {
	if err := n.ensureChildren(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(n.children) {
		return nil, &errs.ApiError{Op: "Child", Msg: "index out of range"}
	}
	c := n.children[i]
	c.parentGen = n.gen
	return c, nil
}

// NumChildren materializes and counts n's children.
func (n *Node) NumChildren() (int, error) {
	if err := n.ensureChildren(); err != nil {
		return 0, err
	}
	return len(n.children), nil
}

func (n *Node) bumpGen() { n.gen++ }

func (n *Node) newChild(typ *grammar.Node, raw []byte) *Node {
	return &Node{
		alloc: n.alloc, typ: typ,
		raw: []*Chunk{n.alloc.NewBorrowed(raw)},
		parent: n, parentGen: n.gen,
	}
}

func (n *Node) isAncestorOf(other *Node) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// entryTupleType is the synthetic per-entry shape used for a map's
// children: a 2-field tuple of (key, value), letting erase/insert treat
// map entries the same way they treat list elements and tuple fields.
func entryTupleType(m *grammar.Node) *grammar.Node {
	return &grammar.Node{Kind: grammar.Tuple, Fields: []*grammar.Node{m.Key, m.Val}}
}

func (n *Node) ensureChildren() error {
	if n.children != nil {
		return nil
	}
	raw := concatChunks(n.raw)

	switch n.typ.Kind {
	case grammar.List:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		off := wire.LenPrefix
		children := make([]*Node, 0, count)
		for i := uint32(0); i < count; i++ {
			elemLen, err := scan.Scan(n.typ.Elem, raw[off:])
			if err != nil {
				return err
			}
			children = append(children, n.newChild(n.typ.Elem, raw[off:off+elemLen]))
			off += elemLen
		}
		n.children = children

	case grammar.Map:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		entryTyp := entryTupleType(n.typ)
		off := wire.LenPrefix
		children := make([]*Node, 0, count)
		for i := uint32(0); i < count; i++ {
			kLen, err := scan.Scan(n.typ.Key, raw[off:])
			if err != nil {
				return err
			}
			vLen, err := scan.Scan(n.typ.Val, raw[off+kLen:])
			if err != nil {
				return err
			}
			entryLen := kLen + vLen
			children = append(children, n.newChild(entryTyp, raw[off:off+entryLen]))
			off += entryLen
		}
		n.children = children

	case grammar.Tuple:
		off := 0
		children := make([]*Node, len(n.typ.Fields))
		for i, f := range n.typ.Fields {
			fLen, err := scan.Scan(f, raw[off:])
			if err != nil {
				return err
			}
			children[i] = n.newChild(f, raw[off:off+fLen])
			off += fLen
		}
		n.children = children

	case grammar.Optional:
		if len(raw) < 1 {
			return tagShort(n)
		}
		n.tag = int(raw[0])
		if raw[0] != 0 {
			elemLen, err := scan.Scan(n.typ.Elem, raw[1:])
			if err != nil {
				return err
			}
			n.children = []*Node{n.newChild(n.typ.Elem, raw[1:1+elemLen])}
		} else {
			n.children = []*Node{}
		}

	case grammar.Expected:
		if len(raw) < 1 {
			return tagShort(n)
		}
		n.tag = int(raw[0])
		if raw[0] == 1 {
			elemLen, err := scan.Scan(n.typ.Elem, raw[1:])
			if err != nil {
				return err
			}
			n.children = []*Node{n.newChild(n.typ.Elem, raw[1:1+elemLen])}
		} else {
			errLen, err := scan.Scan(errorTupleNode, raw[1:])
			if err != nil {
				return err
			}
			n.children = []*Node{n.newChild(errorTupleNode, raw[1:1+errLen])}
		}

	case grammar.ExpectedVoid:
		if len(raw) < 1 {
			return tagShort(n)
		}
		n.tag = int(raw[0])
		if raw[0] == 1 {
			n.children = []*Node{}
		} else {
			errLen, err := scan.Scan(errorTupleNode, raw[1:])
			if err != nil {
				return err
			}
			n.children = []*Node{n.newChild(errorTupleNode, raw[1:1+errLen])}
		}

	case grammar.Error:
		n.children = []*Node{n.newChild(errorTupleNode, raw)}

	case grammar.Any:
		tlen, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		off := wire.LenPrefix
		embType, err := grammar.Parse(string(raw[off : off+int(tlen)]))
		if err != nil {
			return err
		}
		off += int(tlen)
		vlen, err := wire.DecodeU32(raw[off:])
		if err != nil {
			return err
		}
		off += wire.LenPrefix
		n.embType = embType
		n.children = []*Node{n.newChild(embType, raw[off:off+int(vlen)])}

	default:
		n.children = []*Node{}
	}
	return nil
}

func tagShort(n *Node) error {
	return &errs.ValueMismatchError{Type: n.typ.String(), Offset: 0, Kind: "val", Msg: "truncated tag byte"}
}

func concatChunks(chunks []*Chunk) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c.data)
	}
	buf := make([]byte, 0, total)
	for _, c := range chunks {
		buf = append(buf, c.data...)
	}
	return buf
}
