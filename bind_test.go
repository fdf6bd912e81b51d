package sdval_test

import (
	"testing"

	"github.com/skiprope/sdval"
	"github.com/skiprope/sdval/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignPrimitives(t *testing.T) {
	a, err := sdval.Assign(int32(5), sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "i", a.TypeString())

	b, err := sdval.Assign("hi", sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "s", b.TypeString())
}

func TestAssignSliceAndMap(t *testing.T) {
	a, err := sdval.Assign([]int32{1, 2, 3}, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "li", a.TypeString())

	m, err := sdval.Assign(map[string]int32{"a": 1}, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "msi", m.TypeString())
}

func TestAssignNilPointerIsAbsentOptional(t *testing.T) {
	var p *int32
	a, err := sdval.Assign(p, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "oi", a.TypeString())
	assert.Equal(t, []byte{0}, a.Bytes())
}

func TestAssignStructBecomesTuple(t *testing.T) {
	type pair struct {
		A int32
		B string
	}
	a, err := sdval.Assign(pair{A: 1, B: "x"}, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "t2is", a.TypeString())
}

func TestGetAsRoundTrip(t *testing.T) {
	a, err := sdval.Assign(int32(7), sdval.ModeLiberal)
	require.NoError(t, err)

	n, err := sdval.GetAs[int64](a, convert.PolicyInts)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestGetAsStruct(t *testing.T) {
	type pair struct {
		A int32
		B string
	}
	a, err := sdval.Assign(pair{A: 1, B: "x"}, sdval.ModeLiberal)
	require.NoError(t, err)

	got, err := sdval.GetAs[pair](a, convert.PolicyNone)
	require.NoError(t, err)
	assert.Equal(t, pair{A: 1, B: "x"}, got)
}

func TestGetAsSameAnyIsPassthrough(t *testing.T) {
	a, err := sdval.NewFromText("5")
	require.NoError(t, err)
	got, err := sdval.GetAs[sdval.Any](a, convert.PolicyNone)
	require.NoError(t, err)
	assert.True(t, a.Equal(got))
}

// enumColor is a host enum that cannot be serialized through ordinary
// shape inference (its natural Go shape is a bare int), so it supplies a
// surrogate instead.
type enumColor int

const (
	colorRed enumColor = iota
	colorGreen
	colorBlue
)

func (c enumColor) ToSurrogate() (sdval.Any, error) {
	names := []string{"red", "green", "blue"}
	return sdval.NewFromText(`"` + names[c] + `"`)
}

func TestSurrogateBypassesShapeInference(t *testing.T) {
	a, err := sdval.Assign(colorGreen, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "s", a.TypeString())
	printed, _ := a.Print()
	assert.Equal(t, `<s>"green"`, printed)
}

// hookedValue exercises the pre/post-serialize and post-deserialize
// hooks, recording whether each ran and with what outcome.
type hookedValue struct {
	V      int32
	Note   string
	preRan bool
	postOK *bool
}

func (h *hookedValue) PreSerialize() error {
	h.preRan = true
	return nil
}

func (h *hookedValue) PostSerialize(ok bool) {
	h.postOK = &ok
}

func TestSerializeHooksRunBalanced(t *testing.T) {
	h := &hookedValue{V: 3, Note: "x"}
	_, err := sdval.Assign(h, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.True(t, h.preRan)
	require.NotNil(t, h.postOK)
	assert.True(t, *h.postOK)
}
