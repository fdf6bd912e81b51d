package convert_test

import (
	"errors"
	"testing"

	"github.com/skiprope/sdval/convert"
	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/wire"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func parse(t *testing.T, typ string) *grammar.Node {
	t.Helper()
	n, err := grammar.Parse(typ)
	assert.NilError(t, err)
	return n
}

func TestIdentityCopy(t *testing.T) {
	i := parse(t, "i")
	out, err := convert.Serialized(i, wire.EncodeI32(4242), i, convert.PolicyNone)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, wire.EncodeI32(4242))
}

func TestWideningRequiresPolicy(t *testing.T) {
	i, I := parse(t, "i"), parse(t, "I")
	_, err := convert.Serialized(i, wire.EncodeI32(4242), I, convert.PolicyNone)
	var tme *errs.TypeMismatchError
	assert.Assert(t, errors.As(err, &tme))

	out, err := convert.Serialized(i, wire.EncodeI32(4242), I, convert.PolicyInts)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, wire.EncodeI64(4242))
}

func TestNarrowingInRange(t *testing.T) {
	i, c := parse(t, "i"), parse(t, "c")
	out, err := convert.Serialized(i, wire.EncodeI32(200), c, convert.PolicyIntsNarrowing)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, wire.EncodeByte(200))
}

func TestNarrowingOutOfRange(t *testing.T) {
	I, i := parse(t, "I"), parse(t, "i")
	_, err := convert.Serialized(I, wire.EncodeI64(4242424242), i, convert.PolicyIntsNarrowing)
	var vme *errs.ValueMismatchError
	assert.Assert(t, errors.As(err, &vme))
}

func TestBoolNumeric(t *testing.T) {
	b, i := parse(t, "b"), parse(t, "i")
	out, err := convert.Serialized(i, wire.EncodeI32(7), b, convert.PolicyBool)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, wire.EncodeBool(true))

	out, err = convert.Serialized(b, wire.EncodeBool(false), i, convert.PolicyBool)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, wire.EncodeI32(0))
}

func TestWrapAndUnwrapAny(t *testing.T) {
	i, a := parse(t, "i"), parse(t, "a")
	wrapped, err := convert.Serialized(i, wire.EncodeI32(9), a, convert.PolicyAny)
	assert.NilError(t, err)

	back, err := convert.Serialized(a, wrapped, i, convert.PolicyAny)
	assert.NilError(t, err)
	assert.DeepEqual(t, back, wire.EncodeI32(9))
}

func TestListElementWidening(t *testing.T) {
	li, lI := parse(t, "li"), parse(t, "lI")
	var value []byte
	value = append(value, wire.EncodeU32(2)...)
	value = append(value, wire.EncodeI32(1)...)
	value = append(value, wire.EncodeI32(2)...)

	out, err := convert.Serialized(li, value, lI, convert.PolicyInts)
	assert.NilError(t, err)

	var want []byte
	want = append(want, wire.EncodeU32(2)...)
	want = append(want, wire.EncodeI64(1)...)
	want = append(want, wire.EncodeI64(2)...)
	assert.DeepEqual(t, out, want)
}

func TestMapKeyConversionReorders(t *testing.T) {
	// Keys as `c` sort 1, 2, 200 (single bytes); widened to `i` they must
	// still come out ascending by their new (4-byte) serialization.
	mci, mii := parse(t, "mci"), parse(t, "mii")
	var value []byte
	value = append(value, wire.EncodeU32(3)...)
	value = append(value, wire.EncodeByte(1)...)
	value = append(value, wire.EncodeI32(10)...)
	value = append(value, wire.EncodeByte(2)...)
	value = append(value, wire.EncodeI32(20)...)
	value = append(value, wire.EncodeByte(200)...)
	value = append(value, wire.EncodeI32(30)...)

	out, err := convert.Serialized(mci, value, mii, convert.PolicyInts)
	assert.NilError(t, err)

	var want []byte
	want = append(want, wire.EncodeU32(3)...)
	want = append(want, wire.EncodeI32(1)...)
	want = append(want, wire.EncodeI32(10)...)
	want = append(want, wire.EncodeI32(2)...)
	want = append(want, wire.EncodeI32(20)...)
	want = append(want, wire.EncodeI32(200)...)
	want = append(want, wire.EncodeI32(30)...)
	assert.DeepEqual(t, out, want)
}

func TestOptionalLiftAndDecay(t *testing.T) {
	i, oi := parse(t, "i"), parse(t, "oi")
	lifted, err := convert.Serialized(i, wire.EncodeI32(5), oi, convert.PolicyNone)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(lifted, 1+4))
	assert.Equal(t, lifted[0], byte(1))

	present := append([]byte{1}, wire.EncodeI32(5)...)
	back, err := convert.Serialized(oi, present, i, convert.PolicyAux)
	assert.NilError(t, err)
	assert.DeepEqual(t, back, wire.EncodeI32(5))

	absent := []byte{0}
	def, err := convert.Serialized(oi, absent, i, convert.PolicyAux)
	assert.NilError(t, err)
	assert.DeepEqual(t, def, wire.EncodeI32(0))
}

func TestExpectedLiftAndDecay(t *testing.T) {
	i, xi := parse(t, "i"), parse(t, "xi")
	lifted, err := convert.Serialized(i, wire.EncodeI32(5), xi, convert.PolicyNone)
	assert.NilError(t, err)
	assert.Equal(t, lifted[0], byte(1))

	present := append([]byte{1}, wire.EncodeI32(5)...)
	back, err := convert.Serialized(xi, present, i, convert.PolicyExpected)
	assert.NilError(t, err)
	assert.DeepEqual(t, back, wire.EncodeI32(5))

	var errTriple []byte
	errTriple = append(errTriple, wire.EncodeBytes([]byte("boom"))...)
	errTriple = append(errTriple, wire.EncodeBytes([]byte("bad input"))...)
	errTriple = append(errTriple, wire.EncodeU32(0)...)
	errTriple = append(errTriple, wire.EncodeU32(0)...)
	absent := append([]byte{0}, errTriple...)

	_, err = convert.Serialized(xi, absent, i, convert.PolicyExpected)
	var ewe *errs.ExpectedWithError
	assert.Assert(t, errors.As(err, &ewe))
	assert.Equal(t, ewe.ErrType, "boom")
	assert.Equal(t, ewe.ErrMessage, "bad input")
}

func TestExpectedVoidRoundTrip(t *testing.T) {
	xi, X := parse(t, "xi"), parse(t, "X")

	present := append([]byte{1}, wire.EncodeI32(5)...)
	asVoid, err := convert.Serialized(xi, present, X, convert.PolicyExpected)
	assert.NilError(t, err)
	assert.DeepEqual(t, asVoid, []byte{1})

	back, err := convert.Serialized(X, []byte{1}, xi, convert.PolicyExpected)
	assert.NilError(t, err)
	assert.Equal(t, back[0], byte(1))
	assert.DeepEqual(t, back[1:], wire.EncodeI32(0))
}

func TestListOfAnyToListOfExpectedRecoversPerElement(t *testing.T) {
	la, lxi := parse(t, "la"), parse(t, "lxi")

	goodAny := wrapAny(t, "i", wire.EncodeI32(4))
	badAny := wrapAny(t, "s", wire.EncodeBytes([]byte("nope")))

	var value []byte
	value = append(value, wire.EncodeU32(2)...)
	value = append(value, goodAny...)
	value = append(value, badAny...)

	out, err := convert.Serialized(la, value, lxi, convert.PolicyAny.With(convert.PolicyAux))
	assert.NilError(t, err)

	count, err := wire.DecodeU32(out)
	assert.NilError(t, err)
	assert.Equal(t, count, uint32(2))

	off := wire.LenPrefix
	assert.Equal(t, out[off], byte(1))
	off++
	v, err := wire.DecodeI32(out[off:])
	assert.NilError(t, err)
	assert.Equal(t, v, int32(4))
	off += 4

	assert.Equal(t, out[off], byte(0))
}

func wrapAny(t *testing.T, typ string, value []byte) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, wire.EncodeBytes([]byte(typ))...)
	buf = append(buf, wire.EncodeBytes(value)...)
	return buf
}
