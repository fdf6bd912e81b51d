package wview

import (
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/wire"
)

// Flatten walks n's chunk list (or, once children are materialized, its
// children) and produces the complete serialized value bytes for n's
// current type — a single allocation sized by FlattenSize, filled by one
// O(final size) pass.
func (n *Node) Flatten() ([]byte, error) {
	size, err := n.FlattenSize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := n.FlattenTo(buf); err != nil {
		return nil, err
	}
	metrics.FlattenBytes(int64(size))
	return buf, nil
}

// FlattenSize computes the exact byte length Flatten will produce,
// without allocating the output buffer.
func (n *Node) FlattenSize() (int, error) {
	if n.children == nil {
		return chunkListLen(n.raw), nil
	}
	switch n.typ.Kind {
	case grammar.List, grammar.Map:
		size := wire.LenPrefix
		for _, c := range n.children {
			s, err := c.FlattenSize()
			if err != nil {
				return 0, err
			}
			size += s
		}
		return size, nil

	case grammar.Tuple:
		size := 0
		for _, c := range n.children {
			s, err := c.FlattenSize()
			if err != nil {
				return 0, err
			}
			size += s
		}
		return size, nil

	case grammar.Optional:
		if n.tag == 0 {
			return 1, nil
		}
		s, err := n.children[0].FlattenSize()
		if err != nil {
			return 0, err
		}
		return 1 + s, nil

	case grammar.Expected, grammar.ExpectedVoid:
		s, err := n.children[0].FlattenSize()
		if err != nil {
			return 0, err
		}
		return 1 + s, nil

	case grammar.Error:
		return n.children[0].FlattenSize()

	case grammar.Any:
		s, err := n.children[0].FlattenSize()
		if err != nil {
			return 0, err
		}
		return 2*wire.LenPrefix + len(n.children[0].typ.String()) + s, nil
	}
	return 0, nil
}

// FlattenTo writes n's flattened value bytes into buf, which must be at
// least FlattenSize(n) long, and returns the number of bytes written.
func (n *Node) FlattenTo(buf []byte) (int, error) {
	if n.children == nil {
		return copyChunks(buf, n.raw), nil
	}

	off := 0
	switch n.typ.Kind {
	case grammar.List, grammar.Map:
		copy(buf[off:], wire.EncodeU32(uint32(len(n.children))))
		off += wire.LenPrefix
		for _, c := range n.children {
			w, err := c.FlattenTo(buf[off:])
			if err != nil {
				return 0, err
			}
			off += w
		}

	case grammar.Tuple:
		for _, c := range n.children {
			w, err := c.FlattenTo(buf[off:])
			if err != nil {
				return 0, err
			}
			off += w
		}

	case grammar.Optional:
		buf[off] = byte(n.tag)
		off++
		if n.tag != 0 {
			w, err := n.children[0].FlattenTo(buf[off:])
			if err != nil {
				return 0, err
			}
			off += w
		}

	case grammar.Expected, grammar.ExpectedVoid:
		buf[off] = byte(n.tag)
		off++
		w, err := n.children[0].FlattenTo(buf[off:])
		if err != nil {
			return 0, err
		}
		off += w

	case grammar.Error:
		w, err := n.children[0].FlattenTo(buf[off:])
		if err != nil {
			return 0, err
		}
		off += w

	case grammar.Any:
		typStr := n.children[0].typ.String()
		copy(buf[off:], wire.EncodeU32(uint32(len(typStr))))
		off += wire.LenPrefix
		off += copy(buf[off:], typStr)

		valSize, err := n.children[0].FlattenSize()
		if err != nil {
			return 0, err
		}
		copy(buf[off:], wire.EncodeU32(uint32(valSize)))
		off += wire.LenPrefix

		w, err := n.children[0].FlattenTo(buf[off:])
		if err != nil {
			return 0, err
		}
		off += w
	}
	return off, nil
}

func chunkListLen(chunks []*Chunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.data)
	}
	return n
}

func copyChunks(dst []byte, chunks []*Chunk) int {
	off := 0
	for _, c := range chunks {
		off += copy(dst[off:], c.data)
	}
	return off
}
