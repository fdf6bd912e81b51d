package wview_test

import (
	"bytes"
	"testing"

	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/wire"
	"github.com/skiprope/sdval/wview"
	"gotest.tools/v3/assert"
)

func intList(t *testing.T, values ...int32) (*grammar.Node, []byte) {
	t.Helper()
	typ, err := grammar.Parse("li")
	assert.NilError(t, err)
	var buf []byte
	buf = append(buf, wire.EncodeU32(uint32(len(values)))...)
	for _, v := range values {
		buf = append(buf, wire.EncodeI32(v)...)
	}
	return typ, buf
}

func TestFlattenBeforeEditEqualsInput(t *testing.T) {
	typ, value := intList(t, 1, 2, 3, 4)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	out, err := n.Flatten()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, value)
}

func TestEraseFirstElement(t *testing.T) {
	typ, value := intList(t, 1, 2, 3, 4)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	assert.NilError(t, n.Erase(0))
	assert.Equal(t, n.TypeString(), "li")

	out, err := n.Flatten()
	assert.NilError(t, err)

	_, want := intList(t, 2, 3, 4)
	assert.DeepEqual(t, out, want)
}

func TestEraseThenInsertAfterRestoresByteEquality(t *testing.T) {
	typ, value := intList(t, 1, 2, 3, 4)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	erased, err := n.Child(0)
	assert.NilError(t, err)
	erasedVal, err := erased.Flatten()
	assert.NilError(t, err)

	assert.NilError(t, n.Erase(0))

	elemTyp, _ := grammar.Parse("i")
	restored, err := wview.New(wview.NewRefcountAllocator(), elemTyp, erasedVal)
	assert.NilError(t, err)

	assert.NilError(t, n.InsertAfter(-1, restored))

	out, err := n.Flatten()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, value)
}

func TestSetReplacesSubtreeAndDisownsChildren(t *testing.T) {
	typ, value := intList(t, 1, 2, 3)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	child, err := n.Child(0)
	assert.NilError(t, err)
	assert.Assert(t, !child.Disowned())

	replacementTyp, _ := grammar.Parse("li")
	_, replacementVal := intList(t, 9, 9)
	replacement, err := wview.New(wview.NewRefcountAllocator(), replacementTyp, replacementVal)
	assert.NilError(t, err)

	assert.NilError(t, n.Set(replacement))
	assert.Assert(t, child.Disowned())

	out, err := n.Flatten()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, replacementVal)
}

func TestDisownedNodeEditsDoNotAffectOriginalTree(t *testing.T) {
	typ, value := intList(t, 1, 2, 3)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	child, err := n.Child(0)
	assert.NilError(t, err)

	replacementTyp, _ := grammar.Parse("li")
	_, replacementVal := intList(t, 9)
	replacement, err := wview.New(wview.NewRefcountAllocator(), replacementTyp, replacementVal)
	assert.NilError(t, err)
	assert.NilError(t, n.Set(replacement))

	// child is now disowned; editing it must not perturb n.
	otherTyp, _ := grammar.Parse("i")
	other, err := wview.New(wview.NewRefcountAllocator(), otherTyp, wire.EncodeI32(777))
	assert.NilError(t, err)
	assert.NilError(t, child.Set(other))

	out, err := n.Flatten()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, replacementVal)
}

func TestSwapContentWithIsSelfInverse(t *testing.T) {
	aTyp, _ := grammar.Parse("i")
	a, err := wview.New(wview.NewRefcountAllocator(), aTyp, wire.EncodeI32(1))
	assert.NilError(t, err)
	bTyp, _ := grammar.Parse("i")
	b, err := wview.New(wview.NewRefcountAllocator(), bTyp, wire.EncodeI32(2))
	assert.NilError(t, err)

	assert.NilError(t, a.SwapContentWith(b))
	assert.NilError(t, a.SwapContentWith(b))

	av, err := a.Flatten()
	assert.NilError(t, err)
	bv, err := b.Flatten()
	assert.NilError(t, err)
	assert.DeepEqual(t, av, wire.EncodeI32(1))
	assert.DeepEqual(t, bv, wire.EncodeI32(2))
}

func TestSwapContentWithForbidsAncestorDescendant(t *testing.T) {
	typ, value := intList(t, 1, 2)
	n, err := wview.New(wview.NewRefcountAllocator(), typ, value)
	assert.NilError(t, err)

	child, err := n.Child(0)
	assert.NilError(t, err)

	err = n.SwapContentWith(child)
	assert.ErrorContains(t, err, "ancestor/descendant")
}

func TestLinearSearchFindsOccurrence(t *testing.T) {
	tupTyp, _ := grammar.Parse("t2is")
	var value []byte
	value = append(value, wire.EncodeU32(3)...)
	value = append(value, wire.EncodeI32(1)...)
	value = append(value, wire.EncodeBytes([]byte("a"))...)
	value = append(value, wire.EncodeI32(2)...)
	value = append(value, wire.EncodeBytes([]byte("b"))...)
	value = append(value, wire.EncodeI32(1)...)
	value = append(value, wire.EncodeBytes([]byte("c"))...)

	listTyp := &grammar.Node{Kind: grammar.List, Elem: tupTyp}
	n, err := wview.New(wview.NewRefcountAllocator(), listTyp, value)
	assert.NilError(t, err)

	// A single-column key has no valid type string (tuple arity must be
	// >= 2), so it is built directly rather than through grammar.Parse.
	keyTyp := &grammar.Node{Kind: grammar.Tuple, Fields: []*grammar.Node{{Kind: grammar.Int32}}}
	key, err := wview.New(wview.NewRefcountAllocator(), keyTyp, wire.EncodeI32(1))
	assert.NilError(t, err)

	pos, err := n.LinearSearch(key, 1)
	assert.NilError(t, err)
	assert.Equal(t, pos, 2)
}

func TestArenaAllocatorsPassSameBattery(t *testing.T) {
	for _, alloc := range []wview.Allocator{
		wview.NewRefcountAllocator(),
		wview.NewLocalArena(),
	} {
		typ, value := intList(t, 1, 2, 3)
		n, err := wview.New(alloc, typ, value)
		assert.NilError(t, err)
		assert.NilError(t, n.Erase(1))

		out, err := n.Flatten()
		assert.NilError(t, err)

		_, want := intList(t, 1, 3)
		assert.Assert(t, bytes.Equal(out, want))
	}
}
