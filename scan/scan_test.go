package scan_test

import (
	"errors"
	"testing"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/scan"
	"github.com/skiprope/sdval/wire"
	"gotest.tools/v3/assert"
)

func TestScanPrimitives(t *testing.T) {
	for _, test := range []struct {
		name  string
		typ   string
		value []byte
		want  int
	}{
		{"bool", "b", []byte{1}, 1},
		{"byte", "c", []byte{0x42}, 1},
		{"i32", "i", wire.EncodeI32(4242), 4},
		{"i64", "I", wire.EncodeI64(4242), 8},
		{"double", "d", wire.EncodeDouble(3.5), 8},
		{"string", "s", wire.EncodeBytes([]byte("hi")), 4 + 2},
		{"empty list", "li", wire.EncodeU32(0), 4},
		{"void", "", nil, 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			consumed, err := scan.ScanType(test.typ, test.value)
			assert.NilError(t, err)
			assert.Equal(t, consumed, test.want)
		})
	}
}

func TestScanTruncated(t *testing.T) {
	_, err := scan.ScanType("I", []byte{1, 2, 3})
	assert.ErrorContains(t, err, "value mismatch")
	var vme *errs.ValueMismatchError
	assert.Assert(t, errors.As(err, &vme))
}

func TestScanList(t *testing.T) {
	var value []byte
	value = append(value, wire.EncodeU32(3)...)
	value = append(value, wire.EncodeI32(1)...)
	value = append(value, wire.EncodeI32(2)...)
	value = append(value, wire.EncodeI32(3)...)
	consumed, err := scan.ScanType("li", value)
	assert.NilError(t, err)
	assert.Equal(t, consumed, len(value))
}

func TestScanAnySelfContained(t *testing.T) {
	// a payload wrapping an `i` value of 4242
	inner := wire.EncodeI32(4242)
	var value []byte
	value = append(value, wire.EncodeU32(1)...) // type length
	value = append(value, 'i')
	value = append(value, wire.EncodeU32(uint32(len(inner)))...)
	value = append(value, inner...)

	consumed, err := scan.ScanType("a", value)
	assert.NilError(t, err)
	assert.Equal(t, consumed, len(value))
}

func TestScanAnyLengthMismatch(t *testing.T) {
	var value []byte
	value = append(value, wire.EncodeU32(1)...)
	value = append(value, 'i')
	value = append(value, wire.EncodeU32(10)...) // claims 10 bytes, only 4 follow
	value = append(value, wire.EncodeI32(1)...)

	_, err := scan.ScanType("a", value)
	assert.ErrorContains(t, err, "value mismatch")
}

func TestScanExpectedTagBranches(t *testing.T) {
	present := append([]byte{1}, wire.EncodeI32(7)...)
	consumed, err := scan.ScanType("xi", present)
	assert.NilError(t, err)
	assert.Equal(t, consumed, 1+4)

	var errTriple []byte
	errTriple = append(errTriple, wire.EncodeBytes([]byte("t"))...)
	errTriple = append(errTriple, wire.EncodeBytes([]byte("m"))...)
	errTriple = append(errTriple, wire.EncodeU32(0)...) // any type len 0
	errTriple = append(errTriple, wire.EncodeU32(0)...) // any value len 0
	absent := append([]byte{0}, errTriple...)
	consumed, err = scan.ScanType("xi", absent)
	assert.NilError(t, err)
	assert.Equal(t, consumed, 1+len(errTriple))
}

