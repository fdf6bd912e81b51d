// Package wire implements the primitive binary codec (component B):
// fixed-width integers and doubles in big-endian, and the u32-length-
// prefixed framing used for strings, lists, maps, and any-payloads. No
// alignment, no endianness configuration — the format is fixed per spec.
package wire

import (
	"encoding/binary"
	"math"
)

// LenPrefix is the width, in bytes, of every variable-length framing
// prefix in the format.
const LenPrefix = 4

// EncodeBool encodes a boolean as a single 0x00/0x01 byte.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a single boolean byte.
func DecodeBool(b []byte) (bool, error) {
	if len(b) < 1 {
		return false, errShort(1, len(b))
	}
	return b[0] != 0, nil
}

// EncodeByte encodes a single byte/char value.
func EncodeByte(v byte) []byte { return []byte{v} }

// DecodeByte decodes a single byte/char value.
func DecodeByte(b []byte) (byte, error) {
	if len(b) < 1 {
		return 0, errShort(1, len(b))
	}
	return b[0], nil
}

// EncodeI32 encodes a 32-bit integer, big-endian.
func EncodeI32(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeI32 decodes a 32-bit integer, big-endian.
func DecodeI32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, errShort(4, len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// EncodeI64 encodes a 64-bit integer, big-endian.
func EncodeI64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// DecodeI64 decodes a 64-bit integer, big-endian.
func DecodeI64(b []byte) (int64, error) {
	if len(b) < 8 {
		return 0, errShort(8, len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// EncodeDouble encodes an IEEE-754 double, big-endian.
func EncodeDouble(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// DecodeDouble decodes an IEEE-754 double, big-endian.
func DecodeDouble(b []byte) (float64, error) {
	if len(b) < 8 {
		return 0, errShort(8, len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// EncodeU32 encodes a length/count prefix, big-endian.
func EncodeU32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// DecodeU32 decodes a length/count prefix, big-endian.
func DecodeU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, errShort(4, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// EncodeBytes encodes a u32 length prefix followed by raw bytes, the
// framing shared by `s` (UTF-8 strings) and `lc` (reserved byte strings).
func EncodeBytes(v []byte) []byte {
	buf := make([]byte, 0, LenPrefix+len(v))
	buf = append(buf, EncodeU32(uint32(len(v)))...)
	buf = append(buf, v...)
	return buf
}

// DecodeBytes reads a u32-length-prefixed byte run starting at b[0] and
// returns the payload plus the number of bytes consumed (prefix+payload).
func DecodeBytes(b []byte) (payload []byte, consumed int, err error) {
	n, err := DecodeU32(b)
	if err != nil {
		return nil, 0, err
	}
	total := LenPrefix + int(n)
	if len(b) < total {
		return nil, 0, errShort(total, len(b))
	}
	return b[LenPrefix:total], total, nil
}

type shortError struct {
	need, have int
}

func (e *shortError) Error() string {
	return "wire: short buffer"
}

func errShort(need, have int) error { return &shortError{need, have} }

// ShortBuffer reports whether err indicates the buffer was too short to
// decode the requested primitive, distinguishing it from malformed
// content.
func ShortBuffer(err error) bool {
	_, ok := err.(*shortError)
	return ok
}
