// Package scan implements the scanner (component C): validating that a
// byte slice matches a type without decoding the values it contains. The
// scanner only checks structural sizes — UTF-8 validity of `s` payloads is
// not enforced here; strings are opaque bytes at this layer, per spec.
package scan

import (
	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/internal/telemetry"
	"github.com/skiprope/sdval/wire"
)

// metrics is the package-wide ambient telemetry sink, a Metrics with no
// counters (so every recording call is a no-op) until a caller opts in
// via SetMetrics — the same default-off
// pattern containerd/log uses for its package-level logger.
var metrics = &telemetry.Metrics{}

// SetMetrics installs m as the counter sink for every scan this package
// performs from then on.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// Scan validates that value conforms to the type described by n, and
// returns the number of bytes of value that the type's payload consumes.
// Scan does not require len(value) to equal the returned count; callers
// that want an exact-fit check should compare themselves (the root Any
// constructor does exactly that).
func Scan(n *grammar.Node, value []byte) (consumed int, err error) {
	consumed, err = scanNode(n, value, 0)
	if err != nil {
		metrics.ScanFailed(n.Kind.String())
		return 0, err
	}
	metrics.ScanPerformed(n.Kind.String())
	return consumed, nil
}

// ScanType parses typ and scans value against it in one call.
func ScanType(typ string, value []byte) (consumed int, err error) {
	n, err := grammar.Parse(typ)
	if err != nil {
		return 0, err
	}
	return Scan(n, value)
}

func scanNode(n *grammar.Node, b []byte, pos int) (int, error) {
	switch n.Kind {
	case grammar.Void:
		return 0, nil

	case grammar.Bool, grammar.Byte:
		if len(b) < 1 {
			return 0, valErr(n, pos, "value shorter than type demands")
		}
		return 1, nil

	case grammar.Int32:
		if len(b) < 4 {
			return 0, valErr(n, pos, "value shorter than type demands")
		}
		return 4, nil

	case grammar.Int64, grammar.Double:
		if len(b) < 8 {
			return 0, valErr(n, pos, "value shorter than type demands")
		}
		return 8, nil

	case grammar.String:
		_, consumed, err := wire.DecodeBytes(b)
		if err != nil {
			return 0, valErr(n, pos, "truncated length-prefixed string")
		}
		return consumed, nil

	case grammar.List:
		count, err := wire.DecodeU32(b)
		if err != nil {
			return 0, valErr(n, pos, "truncated list count")
		}
		off := wire.LenPrefix
		for i := uint32(0); i < count; i++ {
			if off > len(b) {
				return 0, valErr(n, pos+off, "truncated list element")
			}
			n2, err := scanNode(n.Elem, b[off:], pos+off)
			if err != nil {
				return 0, err
			}
			off += n2
		}
		return off, nil

	case grammar.Map:
		count, err := wire.DecodeU32(b)
		if err != nil {
			return 0, valErr(n, pos, "truncated map count")
		}
		off := wire.LenPrefix
		for i := uint32(0); i < count; i++ {
			if off > len(b) {
				return 0, valErr(n, pos+off, "truncated map entry")
			}
			kn, err := scanNode(n.Key, b[off:], pos+off)
			if err != nil {
				return 0, err
			}
			off += kn
			vn, err := scanNode(n.Val, b[off:], pos+off)
			if err != nil {
				return 0, err
			}
			off += vn
		}
		return off, nil

	case grammar.Tuple:
		off := 0
		for _, f := range n.Fields {
			if off > len(b) {
				return 0, valErr(n, pos+off, "truncated tuple field")
			}
			fn, err := scanNode(f, b[off:], pos+off)
			if err != nil {
				return 0, err
			}
			off += fn
		}
		return off, nil

	case grammar.Optional:
		if len(b) < 1 {
			return 0, valErr(n, pos, "truncated optional tag")
		}
		if b[0] == 0 {
			return 1, nil
		}
		inner, err := scanNode(n.Elem, b[1:], pos+1)
		if err != nil {
			return 0, err
		}
		return 1 + inner, nil

	case grammar.Expected:
		if len(b) < 1 {
			return 0, valErr(n, pos, "truncated expected tag")
		}
		if b[0] == 1 {
			inner, err := scanNode(n.Elem, b[1:], pos+1)
			if err != nil {
				return 0, err
			}
			return 1 + inner, nil
		}
		inner, err := scanNode(errorNode, b[1:], pos+1)
		if err != nil {
			return 0, err
		}
		return 1 + inner, nil

	case grammar.ExpectedVoid:
		if len(b) < 1 {
			return 0, valErr(n, pos, "truncated expected-void tag")
		}
		if b[0] == 1 {
			return 1, nil
		}
		inner, err := scanNode(errorNode, b[1:], pos+1)
		if err != nil {
			return 0, err
		}
		return 1 + inner, nil

	case grammar.Error:
		return scanNode(errorNode, b, pos)

	case grammar.Any:
		tlen, err := wire.DecodeU32(b)
		if err != nil {
			return 0, valErr(n, pos, "truncated any type length")
		}
		off := wire.LenPrefix
		if off+int(tlen) > len(b) {
			return 0, valErr(n, pos+off, "truncated any type bytes")
		}
		embeddedType := string(b[off : off+int(tlen)])
		off += int(tlen)

		vlen, err := wire.DecodeU32(b[off:])
		if err != nil {
			return 0, valErr(n, pos+off, "truncated any value length")
		}
		off += wire.LenPrefix
		if off+int(vlen) > len(b) {
			return 0, valErr(n, pos+off, "truncated any value bytes")
		}

		inner, err := grammar.Parse(embeddedType)
		if err != nil {
			return 0, err
		}
		innerConsumed, err := scanNode(inner, b[off:off+int(vlen)], pos+off)
		if err != nil {
			return 0, err
		}
		if innerConsumed != int(vlen) {
			return 0, valErr(n, pos+off, "any value length does not match embedded type")
		}
		off += int(vlen)
		return off, nil
	}
	return 0, valErr(n, pos, "unreachable kind")
}

// errorNode is the fixed tuple shape (type: s, message: s, aux: a) that
// backs the `e` code and the error arm of `x`/`X`.
var errorNode = &grammar.Node{
	Kind: grammar.Tuple,
	Fields: []*grammar.Node{
		{Kind: grammar.String},
		{Kind: grammar.String},
		{Kind: grammar.Any},
	},
}

func valErr(n *grammar.Node, offset int, msg string) error {
	return &errs.ValueMismatchError{Type: n.String(), Offset: offset, Kind: "val", Msg: msg}
}
