// Package convert implements the conversion engine (component E): given a
// source type, a target type, and a policy, it decides whether a
// conversion is possible and, when source bytes are supplied, produces
// the converted bytes. This is a two-pass design per spec.md §4.E: a
// type-only feasibility walk builds a transform plan (§buildPlan in
// plan.go), then the plan executes against the source bytes to produce
// the target bytes. Output buffers grow as converted bytes are appended;
// their length is not computed before execution.
package convert

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/internal/telemetry"
	"github.com/skiprope/sdval/scan"
	"github.com/skiprope/sdval/wire"
)

// metrics is the package-wide ambient telemetry sink, a Metrics with no
// counters (so every recording call is a no-op) until a caller opts in
// via SetMetrics — the same default-off
// pattern containerd/log uses for its package-level logger.
var metrics = &telemetry.Metrics{}

// SetMetrics installs m as the counter sink for every conversion this
// package performs from then on.
func SetMetrics(m *telemetry.Metrics) { metrics = m }

// CantConvert reports whether converting source to target is possible
// under policy. With value supplied, value-dependent failures (e.g. a
// narrowed integer out of range) are also detected; without it, only
// type-structural feasibility is checked. Returns nil when conversion is
// possible.
func CantConvert(source, target *grammar.Node, policy Policy, value []byte) error {
	p, err := buildPlan(source, target, policy)
	if err != nil {
		metrics.ConversionRejected(err.Error())
		return err
	}
	if value == nil {
		return nil
	}
	if _, err := execute(p, value, policy); err != nil {
		metrics.ConversionRejected(err.Error())
		return err
	}
	return nil
}

// Serialized converts value (of type source) to the bytes of type target
// under policy, or reports why it cannot.
func Serialized(source *grammar.Node, value []byte, target *grammar.Node, policy Policy) ([]byte, error) {
	p, err := buildPlan(source, target, policy)
	if err != nil {
		metrics.ConversionRejected(err.Error())
		return nil, err
	}
	consumed, err := scan.Scan(source, value)
	if err != nil {
		metrics.ConversionRejected(err.Error())
		return nil, err
	}
	out, err := execute(p, value[:consumed], policy)
	if err != nil {
		metrics.ConversionRejected(err.Error())
		return nil, err
	}
	metrics.ConversionPerformed()
	return out, nil
}

func execute(p *plan, value []byte, policy Policy) ([]byte, error) {
	switch p.op {
	case opCopy:
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil

	case opWidenInt:
		v, err := readInt(p.source.Kind, value)
		if err != nil {
			return nil, err
		}
		return writeInt(p.target.Kind, v)

	case opNarrowInt:
		v, err := readInt(p.source.Kind, value)
		if err != nil {
			return nil, err
		}
		return writeInt(p.target.Kind, v)

	case opIntToDouble:
		v, err := readInt(p.source.Kind, value)
		if err != nil {
			return nil, err
		}
		return wire.EncodeDouble(float64(v)), nil

	case opDoubleToInt:
		d, err := wire.DecodeDouble(value)
		if err != nil {
			return nil, err
		}
		return writeInt(p.target.Kind, int64(d))

	case opNumericToBool:
		v, err := readInt(p.source.Kind, value)
		if err != nil {
			return nil, err
		}
		return wire.EncodeBool(v != 0), nil

	case opBoolToNumeric:
		b, err := wire.DecodeBool(value)
		if err != nil {
			return nil, err
		}
		v := int64(0)
		if b {
			v = 1
		}
		return writeInt(p.target.Kind, v)

	case opDoubleToBool:
		d, err := wire.DecodeDouble(value)
		if err != nil {
			return nil, err
		}
		return wire.EncodeBool(d != 0), nil

	case opBoolToDouble:
		b, err := wire.DecodeBool(value)
		if err != nil {
			return nil, err
		}
		if b {
			return wire.EncodeDouble(1), nil
		}
		return wire.EncodeDouble(0), nil

	case opWrapAny:
		buf := wire.EncodeBytes([]byte(p.source.String()))
		buf = append(buf, wire.EncodeBytes(value)...)
		return buf, nil

	case opUnwrapAny:
		embType, embBytes, err := splitAny(value)
		if err != nil {
			return nil, err
		}
		embNode, err := grammar.Parse(embType)
		if err != nil {
			return nil, err
		}
		innerPlan, err := buildPlan(embNode, p.target, policy)
		if err != nil {
			return nil, err
		}
		return execute(innerPlan, embBytes, policy)

	case opList:
		return executeList(p, value, policy)

	case opMap:
		return executeMap(p, value, policy)

	case opTuple:
		return executeTuple(p, value, policy)

	case opOptionalElem:
		return executeOptional(p, value, policy)

	case opExpectedElem:
		return executeExpected(p, value, policy)

	case opExpectedToExpectedVoid:
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 1 {
			return []byte{1}, nil
		}
		return append([]byte{0}, value[1:]...), nil

	case opExpectedVoidToExpected:
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 1 {
			return append([]byte{1}, grammar.DefaultValue(p.target.Elem)...), nil
		}
		return append([]byte{0}, value[1:]...), nil

	case opErrorToExpected, opErrorToExpectedVoid:
		return append([]byte{0}, value...), nil

	case opListOfAnyToListOfExpected:
		return executeListOfAnyToExpected(p, value, policy)
	}
	return nil, fmt.Errorf("convert: unhandled op %d", p.op)
}

func executeList(p *plan, value []byte, policy Policy) ([]byte, error) {
	count, err := wire.DecodeU32(value)
	if err != nil {
		return nil, err
	}
	off := wire.LenPrefix
	out := wire.EncodeU32(count)
	for i := uint32(0); i < count; i++ {
		elemLen, err := scan.Scan(p.source.Elem, value[off:])
		if err != nil {
			return nil, err
		}
		converted, err := execute(p.elem, value[off:off+elemLen], policy)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
		off += elemLen
	}
	return out, nil
}

func executeMap(p *plan, value []byte, policy Policy) ([]byte, error) {
	count, err := wire.DecodeU32(value)
	if err != nil {
		return nil, err
	}
	type entry struct{ k, v []byte }
	entries := make([]entry, 0, count)
	off := wire.LenPrefix
	for i := uint32(0); i < count; i++ {
		kLen, err := scan.Scan(p.source.Key, value[off:])
		if err != nil {
			return nil, err
		}
		kBytes := value[off : off+kLen]
		off += kLen

		vLen, err := scan.Scan(p.source.Val, value[off:])
		if err != nil {
			return nil, err
		}
		vBytes := value[off : off+vLen]
		off += vLen

		ck, err := execute(p.key, kBytes, policy)
		if err != nil {
			return nil, err
		}
		cv, err := execute(p.val, vBytes, policy)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{ck, cv})
	}
	// Converted keys may sort differently than the source's keys (e.g. a
	// widened integer key's byte representation differs), so the map
	// invariant — ascending order by the target key's serialized bytes —
	// is re-established here rather than assumed from source order.
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].k, entries[j].k) < 0 })
	out := wire.EncodeU32(count)
	for _, e := range entries {
		out = append(out, e.k...)
		out = append(out, e.v...)
	}
	return out, nil
}

func executeTuple(p *plan, value []byte, policy Policy) ([]byte, error) {
	off := 0
	var out []byte
	for i, f := range p.fields {
		fLen, err := scan.Scan(p.source.Fields[i], value[off:])
		if err != nil {
			return nil, err
		}
		converted, err := execute(f, value[off:off+fLen], policy)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
		off += fLen
	}
	return out, nil
}

func executeOptional(p *plan, value []byte, policy Policy) ([]byte, error) {
	switch {
	case p.source.Kind == grammar.Optional && p.target.Kind == grammar.Optional:
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 0 {
			return []byte{0}, nil
		}
		converted, err := execute(p.elem, value[1:], policy)
		if err != nil {
			return nil, err
		}
		return append([]byte{1}, converted...), nil

	case p.target.Kind == grammar.Optional:
		// Lift: source is a plain T, always succeeds.
		converted, err := execute(p.elem, value, policy)
		if err != nil {
			return nil, err
		}
		return append([]byte{1}, converted...), nil

	default:
		// Decay: oT -> U. Absent yields U's default.
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 0 {
			return grammar.DefaultValue(p.target), nil
		}
		return execute(p.elem, value[1:], policy)
	}
}

func executeExpected(p *plan, value []byte, policy Policy) ([]byte, error) {
	switch {
	case p.source.Kind == grammar.Expected && p.target.Kind == grammar.Expected:
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 1 {
			converted, err := execute(p.elem, value[1:], policy)
			if err != nil {
				return nil, err
			}
			return append([]byte{1}, converted...), nil
		}
		return append([]byte{0}, value[1:]...), nil

	case p.target.Kind == grammar.Expected:
		// Lift: source is a plain T, always succeeds.
		converted, err := execute(p.elem, value, policy)
		if err != nil {
			return nil, err
		}
		return append([]byte{1}, converted...), nil

	default:
		// Decay: xT -> U. An absent value means the expected held an
		// error; unwrapping it is the one place this engine raises the
		// distinguished ExpectedWithError.
		if len(value) < 1 {
			return nil, tagShort(p)
		}
		if value[0] == 0 {
			typ, msg, _, err := decodeErrorTriple(value[1:])
			if err != nil {
				return nil, err
			}
			return nil, &errs.ExpectedWithError{ErrType: typ, ErrMessage: msg}
		}
		return execute(p.elem, value[1:], policy)
	}
}

func executeListOfAnyToExpected(p *plan, value []byte, policy Policy) ([]byte, error) {
	count, err := wire.DecodeU32(value)
	if err != nil {
		return nil, err
	}
	off := wire.LenPrefix
	out := wire.EncodeU32(count)
	targetElem := p.target.Elem.Elem
	for i := uint32(0); i < count; i++ {
		anyLen, err := scan.Scan(p.source.Elem, value[off:])
		if err != nil {
			return nil, err
		}
		anyBytes := value[off : off+anyLen]
		off += anyLen

		embType, embBytes, err := splitAny(anyBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, convertOneToExpected(embType, embBytes, targetElem, policy)...)
	}
	return out, nil
}

// convertOneToExpected attempts to convert one any-wrapped element to
// targetElem, producing tag1+value on success or tag0+embedded-error on
// failure — the "recoverable locally" behavior of spec.md §7.
func convertOneToExpected(embType string, embBytes []byte, targetElem *grammar.Node, policy Policy) []byte {
	embNode, err := grammar.Parse(embType)
	if err == nil {
		var innerPlan *plan
		innerPlan, err = buildPlan(embNode, targetElem, policy)
		if err == nil {
			var converted []byte
			converted, err = execute(innerPlan, embBytes, policy)
			if err == nil {
				return append([]byte{1}, converted...)
			}
		}
	}
	return embedErrorTag0(embType, err)
}

func embedErrorTag0(srcType string, cause error) []byte {
	buf := []byte{0}
	buf = append(buf, wire.EncodeBytes([]byte(srcType))...)
	buf = append(buf, wire.EncodeBytes([]byte(cause.Error()))...)
	buf = append(buf, wire.EncodeU32(0)...) // aux any: void, type-len 0
	buf = append(buf, wire.EncodeU32(0)...) // aux any: value-len 0
	return buf
}

func splitAny(value []byte) (typ string, payload []byte, err error) {
	tlen, err := wire.DecodeU32(value)
	if err != nil {
		return "", nil, err
	}
	off := wire.LenPrefix
	if off+int(tlen) > len(value) {
		return "", nil, &errs.ValueMismatchError{Kind: "val", Msg: "truncated any type bytes"}
	}
	typ = string(value[off : off+int(tlen)])
	off += int(tlen)

	vlen, err := wire.DecodeU32(value[off:])
	if err != nil {
		return "", nil, err
	}
	off += wire.LenPrefix
	if off+int(vlen) > len(value) {
		return "", nil, &errs.ValueMismatchError{Kind: "val", Msg: "truncated any value bytes"}
	}
	return typ, value[off : off+int(vlen)], nil
}

func decodeErrorTriple(b []byte) (typ, msg string, aux []byte, err error) {
	typPayload, c1, err := wire.DecodeBytes(b)
	if err != nil {
		return "", "", nil, err
	}
	off := c1
	msgPayload, c2, err := wire.DecodeBytes(b[off:])
	if err != nil {
		return "", "", nil, err
	}
	off += c2
	return string(typPayload), string(msgPayload), b[off:], nil
}

func readInt(k grammar.Kind, b []byte) (int64, error) {
	switch k {
	case grammar.Byte:
		v, err := wire.DecodeByte(b)
		return int64(v), err
	case grammar.Int32:
		v, err := wire.DecodeI32(b)
		return int64(v), err
	case grammar.Int64:
		return wire.DecodeI64(b)
	}
	return 0, fmt.Errorf("convert: not a numeric kind: %v", k)
}

func writeInt(k grammar.Kind, v int64) ([]byte, error) {
	switch k {
	case grammar.Byte:
		if v < 0 || v > 255 {
			return nil, rangeErr(k, v)
		}
		return wire.EncodeByte(byte(v)), nil
	case grammar.Int32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, rangeErr(k, v)
		}
		return wire.EncodeI32(int32(v)), nil
	case grammar.Int64:
		return wire.EncodeI64(v), nil
	}
	return nil, fmt.Errorf("convert: not a numeric kind: %v", k)
}

func rangeErr(k grammar.Kind, v int64) error {
	return &errs.ValueMismatchError{
		Type: k.String(), Offset: 0, Kind: "val",
		Msg: fmt.Sprintf("value %d out of range for %s", v, k),
	}
}

func tagShort(p *plan) error {
	return &errs.ValueMismatchError{Type: p.source.String(), Offset: 0, Kind: "val", Msg: "truncated tag byte"}
}
