package sdval

import (
	"strconv"
	"strings"

	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/wire"
)

/*
This is a recursive-descent reading of the compact annotated notation in
spec.md §4.F. It grew out of the table-driven JSON PDA this package used
to carry: that table is a clean fit for a grammar with a fixed, small set
of literal shapes, but once tuples, explicit any-wrapping (`<T>v`), and
error literals enter the picture the type of a value has to be inferred
as parsing proceeds rather than looked up in a fixed transition table, so
a hand-written descent reads better than bolting those cases onto the
table. The trailing-comma leniency the table version had is kept here.
*/

// Mode controls how an untyped (guess-mode) parse resolves a container
// whose elements don't all share one inferred type.
type Mode int

const (
	// ModeStrict rejects heterogeneous list/map elements outright.
	ModeStrict Mode = iota
	// ModeLiberal wraps each element individually in `a` and types the
	// container `la`/`m*a`.
	ModeLiberal
	// ModeJSON behaves exactly like ModeLiberal; JSON-compatible output
	// comes from PrintJSON (see printer.go), which takes no Mode.
	ModeJSON
)

// ParseString parses text under ModeLiberal, the default for
// NewFromText: most text a caller hand-writes mixes literal shapes
// (e.g. a list holding a small integer, inferred as `i`, next to one too
// large for int32, inferred as `I`)
// without meaning to invoke strict-mode rejection.
func ParseString(text string) (Any, error) {
	return ParseStringMode(text, ModeLiberal)
}

// ParseStringMode parses text, inferring a type bottom-up from the
// literal shapes present, reconciling heterogeneous containers according
// to mode.
func ParseStringMode(text string, mode Mode) (Any, error) {
	p := &textParser{input: text, mode: mode}
	p.skipWS()
	v, err := p.parseValue()
	if err != nil {
		return Any{}, err
	}
	p.skipWS()
	if p.pos != len(p.input) {
		return Any{}, p.errorf("trailing characters after value")
	}
	return v, nil
}

// ParseTyped parses text against a known expected type, resolving the
// ambiguities guess mode can't: an empty optional, the void arm of `X`,
// and an `a` literal that omits its `<T>` prefix because the context
// already supplies T.
func ParseTyped(text string, typ *grammar.Node) (Any, error) {
	p := &textParser{input: text, mode: ModeLiberal}
	p.skipWS()
	v, err := p.parseTyped(typ)
	if err != nil {
		return Any{}, err
	}
	p.skipWS()
	if p.pos != len(p.input) {
		return Any{}, p.errorf("trailing characters after value")
	}
	return v, nil
}

type textParser struct {
	input string
	pos   int
	mode  Mode
}

func (p *textParser) errorf(msg string) error {
	return &errs.ParseError{Pos: p.pos, Msg: msg}
}

func (p *textParser) eof() bool { return p.pos >= len(p.input) }

func (p *textParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *textParser) skipWS() {
	for !p.eof() {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *textParser) consumeByte(b byte) bool {
	if !p.eof() && p.input[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *textParser) expectByte(b byte) error {
	if !p.consumeByte(b) {
		return p.errorf("expected '" + string(b) + "'")
	}
	return nil
}

func (p *textParser) consumeLiteral(lit string) bool {
	if strings.HasPrefix(p.input[p.pos:], lit) {
		p.pos += len(lit)
		return true
	}
	return false
}

// parseValue parses one guess-mode value, inferring its type from shape.
func (p *textParser) parseValue() (Any, error) {
	p.skipWS()
	if p.eof() {
		return Any{typ: &grammar.Node{Kind: grammar.Void}, value: nil}, nil
	}
	switch p.peek() {
	case '"':
		return p.parseStringLit()
	case '\'':
		return p.parseCharLit()
	case '(':
		return p.parseTupleLit()
	case '[':
		return p.parseListLit()
	case '{':
		return p.parseMapLit()
	case '<':
		return p.parseAnyLit()
	}
	if p.consumeLiteral("true") {
		return Any{typ: &grammar.Node{Kind: grammar.Bool}, value: wire.EncodeBool(true)}, nil
	}
	if p.consumeLiteral("false") {
		return Any{typ: &grammar.Node{Kind: grammar.Bool}, value: wire.EncodeBool(false)}, nil
	}
	if strings.HasPrefix(p.input[p.pos:], "err(") {
		return p.parseErrLit()
	}
	if isNumberStart(p.peek()) {
		return p.parseNumberLit()
	}
	return Any{}, p.errorf("unrecognized value")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isNumberStart(b byte) bool { return isDigit(b) || b == '-' }

func (p *textParser) parseStringLit() (Any, error) {
	s, err := p.readQuoted('"')
	if err != nil {
		return Any{}, err
	}
	return Any{typ: &grammar.Node{Kind: grammar.String}, value: wire.EncodeBytes([]byte(s))}, nil
}

func (p *textParser) parseCharLit() (Any, error) {
	s, err := p.readQuoted('\'')
	if err != nil {
		return Any{}, err
	}
	if len([]rune(s)) != 1 {
		return Any{}, p.errorf("char literal must be exactly one character")
	}
	return Any{typ: &grammar.Node{Kind: grammar.Byte}, value: []byte{[]byte(s)[0]}}, nil
}

// readQuoted reads a quote-delimited literal starting at the current
// position (p.peek() must be quote) with backslash escapes, and returns
// its decoded contents.
func (p *textParser) readQuoted(quote byte) (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		if p.eof() {
			return "", &errs.ParseError{Pos: start, Msg: "unterminated quoted literal"}
		}
		c := p.input[p.pos]
		if c == quote {
			p.pos++
			return sb.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.eof() {
				return "", &errs.ParseError{Pos: start, Msg: "unterminated escape"}
			}
			switch e := p.input[p.pos]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\'', '\\', '/':
				sb.WriteByte(e)
			default:
				return "", p.errorf("unknown escape sequence")
			}
			p.pos++
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
}

func (p *textParser) parseNumberLit() (Any, error) {
	start := p.pos
	if p.consumeByte('-') {
		if p.eof() || !isDigit(p.peek()) {
			return Any{}, p.errorf("expected digit after '-'")
		}
	}
	if p.peek() == '.' {
		return Any{}, p.errorf("leading '.' without a digit")
	}
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
	}
	isDouble := false
	if p.consumeByte('.') {
		isDouble = true
		if p.eof() || !isDigit(p.peek()) {
			return Any{}, p.errorf("expected digit after '.'")
		}
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
		}
	}
	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		isDouble = true
		p.pos++
		if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
			p.pos++
		}
		if p.eof() || !isDigit(p.peek()) {
			return Any{}, p.errorf("expected digit in exponent")
		}
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
		}
	}
	text := p.input[start:p.pos]

	if isDouble {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Any{}, &errs.ParseError{Pos: start, Msg: "invalid double literal"}
		}
		return Any{typ: &grammar.Node{Kind: grammar.Double}, value: wire.EncodeDouble(f)}, nil
	}

	if i32, err := strconv.ParseInt(text, 10, 32); err == nil {
		return Any{typ: &grammar.Node{Kind: grammar.Int32}, value: wire.EncodeI32(int32(i32))}, nil
	}
	if i64, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Any{typ: &grammar.Node{Kind: grammar.Int64}, value: wire.EncodeI64(i64)}, nil
	}
	return Any{}, &errs.ParseError{Pos: start, Msg: "integer overflow"}
}

// parseValueList reads a comma-separated, optionally trailing-comma-
// terminated list of values up to (but not consuming) close.
func (p *textParser) parseValueList(close byte) ([]Any, error) {
	var vals []Any
	p.skipWS()
	if p.peek() == close {
		return vals, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		p.skipWS()
		if p.consumeByte(',') {
			p.skipWS()
			if p.peek() == close {
				return vals, nil
			}
			continue
		}
		return vals, nil
	}
}

func (p *textParser) parseTupleLit() (Any, error) {
	p.pos++ // '('
	vals, err := p.parseValueList(')')
	if err != nil {
		return Any{}, err
	}
	if err := p.expectByte(')'); err != nil {
		return Any{}, err
	}
	if len(vals) < 2 {
		return Any{}, p.errorf("tuple literal needs at least 2 elements")
	}
	fields := make([]*grammar.Node, len(vals))
	var buf []byte
	for i, v := range vals {
		fields[i] = v.typ
		buf = append(buf, v.value...)
	}
	return Any{typ: &grammar.Node{Kind: grammar.Tuple, Fields: fields}, value: buf}, nil
}

func (p *textParser) parseListLit() (Any, error) {
	p.pos++ // '['
	vals, err := p.parseValueList(']')
	if err != nil {
		return Any{}, err
	}
	if err := p.expectByte(']'); err != nil {
		return Any{}, err
	}
	return p.buildList(vals)
}

func (p *textParser) buildList(vals []Any) (Any, error) {
	elemTyp, homogeneous := unifyTypes(valueTypes(vals))
	if !homogeneous {
		if p.mode == ModeStrict {
			return Any{}, p.errorf("list elements do not share one type under strict mode")
		}
		wrapped, err := wrapEach(vals)
		if err != nil {
			return Any{}, err
		}
		vals = wrapped
		elemTyp = &grammar.Node{Kind: grammar.Any}
	}
	if elemTyp == nil {
		elemTyp = &grammar.Node{Kind: grammar.Any} // empty literal list: most permissive element type
	}
	buf := wire.EncodeU32(uint32(len(vals)))
	for _, v := range vals {
		buf = append(buf, v.value...)
	}
	return Any{typ: &grammar.Node{Kind: grammar.List, Elem: elemTyp}, value: buf}, nil
}

func (p *textParser) parseMapLit() (Any, error) {
	p.pos++ // '{'
	var keys, vals []Any
	p.skipWS()
	for p.peek() != '}' {
		k, err := p.parseValue()
		if err != nil {
			return Any{}, err
		}
		p.skipWS()
		if err := p.expectByte(':'); err != nil {
			return Any{}, err
		}
		p.skipWS()
		v, err := p.parseValue()
		if err != nil {
			return Any{}, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
		p.skipWS()
		if p.consumeByte(',') {
			p.skipWS()
			continue
		}
		break
	}
	if err := p.expectByte('}'); err != nil {
		return Any{}, err
	}
	return p.buildMap(keys, vals)
}

func (p *textParser) buildMap(keys, vals []Any) (Any, error) {
	keyTyp, keysHomogeneous := unifyTypes(valueTypes(keys))
	valTyp, valsHomogeneous := unifyTypes(valueTypes(vals))
	if !keysHomogeneous {
		if p.mode == ModeStrict {
			return Any{}, p.errorf("map keys do not share one type under strict mode")
		}
		wrapped, err := wrapEach(keys)
		if err != nil {
			return Any{}, err
		}
		keys = wrapped
		keyTyp = &grammar.Node{Kind: grammar.Any}
	}
	if !valsHomogeneous {
		if p.mode == ModeStrict {
			return Any{}, p.errorf("map values do not share one type under strict mode")
		}
		wrapped, err := wrapEach(vals)
		if err != nil {
			return Any{}, err
		}
		vals = wrapped
		valTyp = &grammar.Node{Kind: grammar.Any}
	}
	if keyTyp == nil {
		keyTyp = &grammar.Node{Kind: grammar.Any}
	}
	if valTyp == nil {
		valTyp = &grammar.Node{Kind: grammar.Any}
	}

	entries := make([]kvEntry, len(keys))
	for i := range keys {
		entries[i] = kvEntry{key: keys[i].value, val: vals[i].value}
	}
	sortEntriesByKey(entries)

	buf := wire.EncodeU32(uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.key...)
		buf = append(buf, e.val...)
	}
	return Any{typ: &grammar.Node{Kind: grammar.Map, Key: keyTyp, Val: valTyp}, value: buf}, nil
}

// kvEntry is a serialized map entry awaiting canonical key-order sort;
// shared between the text parser's map-building code and bind.go's.
type kvEntry struct{ key, val []byte }

func sortEntriesByKey(entries []kvEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && lessBytes(entries[j].key, entries[j-1].key); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// parseAnyLit parses `<T>v`: an explicit type string, then a value
// parsed under that type via parseTyped (so its internal optionals,
// expecteds, and nested anys read unambiguously).
func (p *textParser) parseAnyLit() (Any, error) {
	p.pos++ // '<'
	start := p.pos
	for !p.eof() && p.peek() != '>' {
		p.pos++
	}
	if err := p.expectByte('>'); err != nil {
		return Any{}, err
	}
	typStr := p.input[start : p.pos-1]
	embType, err := grammar.Parse(typStr)
	if err != nil {
		return Any{}, err
	}
	inner, err := p.parseTyped(embType)
	if err != nil {
		return Any{}, err
	}
	buf := wire.EncodeBytes([]byte(typStr))
	buf = append(buf, wire.EncodeU32(uint32(len(inner.value)))...)
	buf = append(buf, inner.value...)
	return Any{typ: &grammar.Node{Kind: grammar.Any}, value: buf}, nil
}

// parseErrLit parses `err("type","message",<T>v)` into an Error-typed
// Any carrying the (type, message, aux) triple.
func (p *textParser) parseErrLit() (Any, error) {
	p.pos += len("err(")
	p.skipWS()
	typ, err := p.parseStringLit()
	if err != nil {
		return Any{}, err
	}
	p.skipWS()
	if err := p.expectByte(','); err != nil {
		return Any{}, err
	}
	p.skipWS()
	msg, err := p.parseStringLit()
	if err != nil {
		return Any{}, err
	}
	p.skipWS()
	if err := p.expectByte(','); err != nil {
		return Any{}, err
	}
	p.skipWS()
	aux, err := p.parseAnyLit()
	if err != nil {
		return Any{}, err
	}
	p.skipWS()
	if err := p.expectByte(')'); err != nil {
		return Any{}, err
	}
	buf := append([]byte{}, typ.value...)
	buf = append(buf, msg.value...)
	buf = append(buf, aux.value...)
	return Any{typ: &grammar.Node{Kind: grammar.Error}, value: buf}, nil
}

// parseTyped parses one value under a known expected type, resolving the
// ambiguities guess mode can't.
func (p *textParser) parseTyped(typ *grammar.Node) (Any, error) {
	p.skipWS()
	switch typ.Kind {
	case grammar.Void:
		return Any{typ: typ, value: nil}, nil

	case grammar.Optional:
		save := p.pos
		p.skipWS()
		if p.eof() || p.peek() == ')' || p.peek() == ']' || p.peek() == '}' || p.peek() == ',' {
			p.pos = save
			return Any{typ: typ, value: []byte{0}}, nil
		}
		inner, err := p.parseTyped(typ.Elem)
		if err != nil {
			return Any{}, err
		}
		return Any{typ: typ, value: append([]byte{1}, inner.value...)}, nil

	case grammar.Expected:
		if strings.HasPrefix(p.input[p.pos:], "err(") {
			errAny, err := p.parseErrLit()
			if err != nil {
				return Any{}, err
			}
			return Any{typ: typ, value: append([]byte{0}, errAny.value...)}, nil
		}
		inner, err := p.parseTyped(typ.Elem)
		if err != nil {
			return Any{}, err
		}
		return Any{typ: typ, value: append([]byte{1}, inner.value...)}, nil

	case grammar.ExpectedVoid:
		if strings.HasPrefix(p.input[p.pos:], "err(") {
			errAny, err := p.parseErrLit()
			if err != nil {
				return Any{}, err
			}
			return Any{typ: typ, value: append([]byte{0}, errAny.value...)}, nil
		}
		return Any{typ: typ, value: []byte{1}}, nil

	case grammar.Error:
		return p.parseErrLit()

	case grammar.Any:
		if p.peek() == '<' {
			return p.parseAnyLit()
		}
		inner, err := p.parseValue()
		if err != nil {
			return Any{}, err
		}
		typStr := inner.typ.String()
		buf := wire.EncodeBytes([]byte(typStr))
		buf = append(buf, wire.EncodeU32(uint32(len(inner.value)))...)
		buf = append(buf, inner.value...)
		return Any{typ: typ, value: buf}, nil

	case grammar.List:
		if err := p.expectByte('['); err != nil {
			return Any{}, err
		}
		var buf []byte
		count := uint32(0)
		p.skipWS()
		for p.peek() != ']' {
			elem, err := p.parseTyped(typ.Elem)
			if err != nil {
				return Any{}, err
			}
			buf = append(buf, elem.value...)
			count++
			p.skipWS()
			if p.consumeByte(',') {
				p.skipWS()
				continue
			}
			break
		}
		if err := p.expectByte(']'); err != nil {
			return Any{}, err
		}
		return Any{typ: typ, value: append(wire.EncodeU32(count), buf...)}, nil

	case grammar.Map:
		if err := p.expectByte('{'); err != nil {
			return Any{}, err
		}
		var entries []kvEntry
		p.skipWS()
		for p.peek() != '}' {
			k, err := p.parseTyped(typ.Key)
			if err != nil {
				return Any{}, err
			}
			p.skipWS()
			if err := p.expectByte(':'); err != nil {
				return Any{}, err
			}
			p.skipWS()
			v, err := p.parseTyped(typ.Val)
			if err != nil {
				return Any{}, err
			}
			entries = append(entries, kvEntry{k.value, v.value})
			p.skipWS()
			if p.consumeByte(',') {
				p.skipWS()
				continue
			}
			break
		}
		if err := p.expectByte('}'); err != nil {
			return Any{}, err
		}
		sortEntriesByKey(entries)
		buf := wire.EncodeU32(uint32(len(entries)))
		for _, e := range entries {
			buf = append(buf, e.key...)
			buf = append(buf, e.val...)
		}
		return Any{typ: typ, value: buf}, nil

	case grammar.Tuple:
		if err := p.expectByte('('); err != nil {
			return Any{}, err
		}
		var buf []byte
		p.skipWS()
		for i, f := range typ.Fields {
			if i > 0 {
				if err := p.expectByte(','); err != nil {
					return Any{}, err
				}
				p.skipWS()
			}
			elem, err := p.parseTyped(f)
			if err != nil {
				return Any{}, err
			}
			buf = append(buf, elem.value...)
			p.skipWS()
		}
		if err := p.expectByte(')'); err != nil {
			return Any{}, err
		}
		return Any{typ: typ, value: buf}, nil

	default:
		// Bool, Byte, Int32, Int64, Double, String: same literal shapes as
		// guess mode, just checked against the demanded kind.
		v, err := p.parseValue()
		if err != nil {
			return Any{}, err
		}
		if v.typ.Kind != typ.Kind {
			coerced, ok := coerceNumericLit(v, typ.Kind)
			if !ok {
				return Any{}, p.errorf("literal does not match expected type " + typ.String())
			}
			v = coerced
		}
		return Any{typ: typ, value: v.value}, nil
	}
}

// coerceNumericLit widens a literal parsed as one numeric kind (guess
// mode always prefers the narrowest fit) into the wider kind a typed
// parse demands, e.g. a plain "5" against an expected `I` or `d` field.
func coerceNumericLit(v Any, want grammar.Kind) (Any, bool) {
	switch v.typ.Kind {
	case grammar.Int32:
		i32, _ := wire.DecodeI32(v.value)
		switch want {
		case grammar.Int64:
			return Any{typ: &grammar.Node{Kind: grammar.Int64}, value: wire.EncodeI64(int64(i32))}, true
		case grammar.Double:
			return Any{typ: &grammar.Node{Kind: grammar.Double}, value: wire.EncodeDouble(float64(i32))}, true
		}
	case grammar.Int64:
		i64, _ := wire.DecodeI64(v.value)
		if want == grammar.Double {
			return Any{typ: &grammar.Node{Kind: grammar.Double}, value: wire.EncodeDouble(float64(i64))}, true
		}
	}
	return Any{}, false
}

func valueTypes(vals []Any) []*grammar.Node {
	types := make([]*grammar.Node, len(vals))
	for i, v := range vals {
		types[i] = v.typ
	}
	return types
}

// unifyTypes reports the common type of types, or ok=false if they are
// not all equal. Zero types yield (nil, true): the type is left
// undetermined and the caller picks a fallback element type.
func unifyTypes(types []*grammar.Node) (*grammar.Node, bool) {
	if len(types) == 0 {
		return nil, true
	}
	first := types[0]
	for _, t := range types[1:] {
		if !t.Equal(first) {
			return nil, false
		}
	}
	return first, true
}

// wrapEach wraps every value in `a`, used when a container's elements
// don't already share one type and the active mode permits promoting it
// to a heterogeneous `la`/`m*a` shape.
func wrapEach(vals []Any) ([]Any, error) {
	out := make([]Any, len(vals))
	for i, v := range vals {
		typStr := v.typ.String()
		buf := wire.EncodeBytes([]byte(typStr))
		buf = append(buf, wire.EncodeU32(uint32(len(v.value)))...)
		buf = append(buf, v.value...)
		out[i] = Any{typ: &grammar.Node{Kind: grammar.Any}, value: buf}
	}
	return out, nil
}
