package sdval

import (
	"strconv"
	"strings"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/wire"
)

// Print renders a in the canonical annotated form: the type string in
// angle brackets followed by the value literal, e.g. `<t2is>(1,"x")`,
// except when a's own type is `a`, in which case the embedded `<T>v`
// rendering produced for the payload already carries the wrapping and a
// second one would double it up.
func Print(a Any) (string, error) {
	if a.typ.Kind == grammar.Any {
		s, _, err := renderValue(a.typ, a.value)
		return s, err
	}
	s, _, err := renderValue(a.typ, a.value)
	if err != nil {
		return "", err
	}
	return "<" + a.typ.String() + ">" + s, nil
}

// renderValue renders raw (a's value bytes for type typ) as canonical
// text and returns how many bytes of raw it consumed, mirroring the
// scanner's structural recursion.
func renderValue(typ *grammar.Node, raw []byte) (string, int, error) {
	switch typ.Kind {
	case grammar.Void:
		return "", 0, nil

	case grammar.Bool:
		v, err := wire.DecodeBool(raw)
		if err != nil {
			return "", 0, err
		}
		if v {
			return "true", 1, nil
		}
		return "false", 1, nil

	case grammar.Byte:
		v, err := wire.DecodeByte(raw)
		if err != nil {
			return "", 0, err
		}
		return "'" + escapeQuoted(string(rune(v)), '\'') + "'", 1, nil

	case grammar.Int32:
		v, err := wire.DecodeI32(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.FormatInt(int64(v), 10), 4, nil

	case grammar.Int64:
		v, err := wire.DecodeI64(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.FormatInt(v, 10), 8, nil

	case grammar.Double:
		v, err := wire.DecodeDouble(raw)
		if err != nil {
			return "", 0, err
		}
		return formatDouble(v), 8, nil

	case grammar.String:
		payload, consumed, err := wire.DecodeBytes(raw)
		if err != nil {
			return "", 0, err
		}
		return `"` + escapeQuoted(string(payload), '"') + `"`, consumed, nil

	case grammar.List:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		var parts []string
		for i := uint32(0); i < count; i++ {
			s, n, err := renderValue(typ.Elem, raw[off:])
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, s)
			off += n
		}
		return "[" + strings.Join(parts, ",") + "]", off, nil

	case grammar.Map:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		var parts []string
		for i := uint32(0); i < count; i++ {
			ks, kn, err := renderValue(typ.Key, raw[off:])
			if err != nil {
				return "", 0, err
			}
			off += kn
			vs, vn, err := renderValue(typ.Val, raw[off:])
			if err != nil {
				return "", 0, err
			}
			off += vn
			parts = append(parts, ks+":"+vs)
		}
		return "{" + strings.Join(parts, ",") + "}", off, nil

	case grammar.Tuple:
		off := 0
		var parts []string
		for _, f := range typ.Fields {
			s, n, err := renderValue(f, raw[off:])
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, s)
			off += n
		}
		return "(" + strings.Join(parts, ",") + ")", off, nil

	case grammar.Optional:
		if len(raw) < 1 {
			return "", 0, &errs.ParseError{Pos: 0, Msg: "truncated optional tag"}
		}
		if raw[0] == 0 {
			return "", 1, nil
		}
		s, n, err := renderValue(typ.Elem, raw[1:])
		return s, 1 + n, err

	case grammar.Expected:
		if len(raw) < 1 {
			return "", 0, &errs.ParseError{Pos: 0, Msg: "truncated expected tag"}
		}
		if raw[0] == 1 {
			s, n, err := renderValue(typ.Elem, raw[1:])
			return s, 1 + n, err
		}
		s, n, err := renderErrTriple(raw[1:])
		return s, 1 + n, err

	case grammar.ExpectedVoid:
		if len(raw) < 1 {
			return "", 0, &errs.ParseError{Pos: 0, Msg: "truncated expected_void tag"}
		}
		if raw[0] == 1 {
			return "", 1, nil
		}
		s, n, err := renderErrTriple(raw[1:])
		return s, 1 + n, err

	case grammar.Error:
		return renderErrTriple(raw)

	case grammar.Any:
		tlen, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		embType, err := grammar.Parse(string(raw[off : off+int(tlen)]))
		if err != nil {
			return "", 0, err
		}
		off += int(tlen)
		vlen, err := wire.DecodeU32(raw[off:])
		if err != nil {
			return "", 0, err
		}
		off += wire.LenPrefix
		s, _, err := renderValue(embType, raw[off:off+int(vlen)])
		if err != nil {
			return "", 0, err
		}
		off += int(vlen)
		return "<" + embType.String() + ">" + s, off, nil
	}
	return "", 0, &errs.ParseError{Pos: 0, Msg: "unprintable type " + typ.String()}
}

func renderErrTriple(raw []byte) (string, int, error) {
	off := 0
	typ, n, err := wire.DecodeBytes(raw[off:])
	if err != nil {
		return "", 0, err
	}
	off += n
	msg, n, err := wire.DecodeBytes(raw[off:])
	if err != nil {
		return "", 0, err
	}
	off += n
	aux, n, err := renderValue(&grammar.Node{Kind: grammar.Any}, raw[off:])
	if err != nil {
		return "", 0, err
	}
	off += n
	return `err("` + escapeQuoted(string(typ), '"') + `","` + escapeQuoted(string(msg), '"') + `",` + aux + `)`, off, nil
}

// formatDouble renders v so that reparsing always infers `d`: a bare
// integral value like 5 prints as "5.0", never "5".
func formatDouble(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func escapeQuoted(s string, quote byte) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case rune(quote):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// PrintJSON renders a as JSON-compatible text: booleans, numbers,
// strings, arrays, and objects with string keys only. It refuses types
// the JSON subset cannot express.
func PrintJSON(a Any) (string, error) {
	s, _, err := renderJSON(a.typ, a.value)
	return s, err
}

func renderJSON(typ *grammar.Node, raw []byte) (string, int, error) {
	switch typ.Kind {
	case grammar.Void:
		return "null", 0, nil

	case grammar.Bool:
		v, err := wire.DecodeBool(raw)
		if err != nil {
			return "", 0, err
		}
		if v {
			return "true", 1, nil
		}
		return "false", 1, nil

	case grammar.Byte:
		v, err := wire.DecodeByte(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.Itoa(int(v)), 1, nil

	case grammar.Int32:
		v, err := wire.DecodeI32(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.FormatInt(int64(v), 10), 4, nil

	case grammar.Int64:
		v, err := wire.DecodeI64(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.FormatInt(v, 10), 8, nil

	case grammar.Double:
		v, err := wire.DecodeDouble(raw)
		if err != nil {
			return "", 0, err
		}
		return strconv.FormatFloat(v, 'g', -1, 64), 8, nil

	case grammar.String:
		payload, consumed, err := wire.DecodeBytes(raw)
		if err != nil {
			return "", 0, err
		}
		return `"` + escapeQuoted(string(payload), '"') + `"`, consumed, nil

	case grammar.List:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		var parts []string
		for i := uint32(0); i < count; i++ {
			s, n, err := renderJSON(typ.Elem, raw[off:])
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, s)
			off += n
		}
		return "[" + strings.Join(parts, ",") + "]", off, nil

	case grammar.Map:
		if typ.Key.Kind != grammar.String {
			return "", 0, &errs.ParseError{Pos: 0, Msg: "JSON cannot express a map with a non-string key"}
		}
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		var parts []string
		for i := uint32(0); i < count; i++ {
			ks, kn, err := renderJSON(typ.Key, raw[off:])
			if err != nil {
				return "", 0, err
			}
			off += kn
			vs, vn, err := renderJSON(typ.Val, raw[off:])
			if err != nil {
				return "", 0, err
			}
			off += vn
			parts = append(parts, ks+":"+vs)
		}
		return "{" + strings.Join(parts, ",") + "}", off, nil

	case grammar.Optional:
		if len(raw) < 1 {
			return "", 0, &errs.ParseError{Pos: 0, Msg: "truncated optional tag"}
		}
		if raw[0] == 0 {
			return "null", 1, nil
		}
		s, n, err := renderJSON(typ.Elem, raw[1:])
		return s, 1 + n, err

	case grammar.Any:
		tlen, err := wire.DecodeU32(raw)
		if err != nil {
			return "", 0, err
		}
		off := wire.LenPrefix
		embType, err := grammar.Parse(string(raw[off : off+int(tlen)]))
		if err != nil {
			return "", 0, err
		}
		off += int(tlen)
		vlen, err := wire.DecodeU32(raw[off:])
		if err != nil {
			return "", 0, err
		}
		off += wire.LenPrefix
		s, _, err := renderJSON(embType, raw[off:off+int(vlen)])
		if err != nil {
			return "", 0, err
		}
		off += int(vlen)
		return s, off, nil
	}
	return "", 0, &errs.ParseError{Pos: 0, Msg: "JSON cannot express type " + typ.String()}
}
