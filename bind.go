package sdval

import (
	"reflect"

	"github.com/skiprope/sdval/convert"
	"github.com/skiprope/sdval/errs"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/scan"
	"github.com/skiprope/sdval/wire"
)

// Surrogate lets a host type hand the binding layer a ready-made Any
// instead of going through shape inference — the escape hatch for enums
// and other types whose natural Go shape doesn't match their wire shape.
type Surrogate interface {
	ToSurrogate() (Any, error)
}

// PreSerializeHook runs immediately before a value is walked for
// serialization.
type PreSerializeHook interface {
	PreSerialize() error
}

// PostSerializeHook runs after serialization finishes, success or not;
// ok reports which. It runs on every exit path once PreSerialize (if the
// value has one) has succeeded, including when a nested component's
// serialization failed; it does not run when PreSerialize returns an
// error.
type PostSerializeHook interface {
	PostSerialize(ok bool)
}

// PostDeserializeHook runs after GetAs has successfully decoded a value
// into the host type.
type PostDeserializeHook interface {
	PostDeserialize() error
}

var (
	sdvalAnyType      = reflect.TypeOf(Any{})
	anyInterfaceType  = reflect.TypeOf((*any)(nil)).Elem()
	surrogateType     = reflect.TypeOf((*Surrogate)(nil)).Elem()
	preSerializeType  = reflect.TypeOf((*PreSerializeHook)(nil)).Elem()
	postSerializeType = reflect.TypeOf((*PostSerializeHook)(nil)).Elem()
)

// Assign serializes v under guess mode: the type is inferred from v's Go
// shape, reconciling heterogeneous slice/map elements according to mode.
func Assign(v any, mode Mode) (Any, error) {
	return assignValue(reflect.ValueOf(v), mode)
}

// AssignTyped serializes v, then converts the guessed result to typ,
// widening/wrapping/lifting as needed (and failing where convert.Policy
// would, under the most permissive policy).
func AssignTyped(v any, typ *grammar.Node) (Any, error) {
	a, err := Assign(v, ModeLiberal)
	if err != nil {
		return Any{}, err
	}
	return a.ConvertTo(typ, convert.PolicyAll)
}

func assignValue(rv reflect.Value, mode Mode) (a Any, err error) {
	if !rv.IsValid() {
		return Any{typ: &grammar.Node{Kind: grammar.Void}}, nil
	}

	var pre PreSerializeHook
	var post PostSerializeHook
	if rv.Type().Implements(preSerializeType) {
		pre = rv.Interface().(PreSerializeHook)
	}
	if rv.Type().Implements(postSerializeType) {
		post = rv.Interface().(PostSerializeHook)
	}
	if pre != nil {
		if err := pre.PreSerialize(); err != nil {
			return Any{}, err
		}
	}
	if post != nil {
		defer func() { post.PostSerialize(err == nil) }()
	}

	if rv.Type().Implements(surrogateType) {
		return rv.Interface().(Surrogate).ToSurrogate()
	}
	if rv.Type() == sdvalAnyType {
		return rv.Interface().(Any), nil
	}
	return assignShape(rv, mode)
}

func assignShape(rv reflect.Value, mode Mode) (Any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return Any{typ: &grammar.Node{Kind: grammar.Bool}, value: wire.EncodeBool(rv.Bool())}, nil

	case reflect.Uint8:
		return Any{typ: &grammar.Node{Kind: grammar.Byte}, value: wire.EncodeByte(byte(rv.Uint()))}, nil

	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Any{typ: &grammar.Node{Kind: grammar.Int32}, value: wire.EncodeI32(int32(rv.Int()))}, nil

	case reflect.Uint16, reflect.Uint32:
		return Any{typ: &grammar.Node{Kind: grammar.Int32}, value: wire.EncodeI32(int32(rv.Uint()))}, nil

	case reflect.Int, reflect.Int64:
		return Any{typ: &grammar.Node{Kind: grammar.Int64}, value: wire.EncodeI64(rv.Int())}, nil

	case reflect.Uint, reflect.Uint64:
		return Any{typ: &grammar.Node{Kind: grammar.Int64}, value: wire.EncodeI64(int64(rv.Uint()))}, nil

	case reflect.Float32, reflect.Float64:
		return Any{typ: &grammar.Node{Kind: grammar.Double}, value: wire.EncodeDouble(rv.Float())}, nil

	case reflect.String:
		return Any{typ: &grammar.Node{Kind: grammar.String}, value: wire.EncodeBytes([]byte(rv.String()))}, nil

	case reflect.Ptr:
		if rv.IsNil() {
			return Any{
				typ:   &grammar.Node{Kind: grammar.Optional, Elem: staticType(rv.Type().Elem())},
				value: []byte{0},
			}, nil
		}
		inner, err := assignValue(rv.Elem(), mode)
		if err != nil {
			return Any{}, err
		}
		return Any{
			typ:   &grammar.Node{Kind: grammar.Optional, Elem: inner.typ},
			value: append([]byte{1}, inner.value...),
		}, nil

	case reflect.Slice:
		if rv.IsNil() {
			return Any{
				typ:   &grammar.Node{Kind: grammar.List, Elem: staticType(rv.Type().Elem())},
				value: wire.EncodeU32(0),
			}, nil
		}
		fallthrough
	case reflect.Array:
		vals := make([]Any, rv.Len())
		for i := range vals {
			v, err := assignValue(rv.Index(i), mode)
			if err != nil {
				return Any{}, err
			}
			vals[i] = v
		}
		return buildListAny(vals, mode)

	case reflect.Map:
		keys := rv.MapKeys()
		kAnys := make([]Any, len(keys))
		vAnys := make([]Any, len(keys))
		for i, k := range keys {
			ka, err := assignValue(k, mode)
			if err != nil {
				return Any{}, err
			}
			va, err := assignValue(rv.MapIndex(k), mode)
			if err != nil {
				return Any{}, err
			}
			kAnys[i], vAnys[i] = ka, va
		}
		return buildMapAny(kAnys, vAnys, mode)

	case reflect.Struct:
		var fields []*grammar.Node
		var buf []byte
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).PkgPath != "" {
				continue
			}
			fv, err := assignValue(rv.Field(i), mode)
			if err != nil {
				return Any{}, err
			}
			fields = append(fields, fv.typ)
			buf = append(buf, fv.value...)
		}
		if len(fields) < 2 {
			return Any{}, &errs.NotSerializableError{
				Msg: "struct needs at least 2 exported fields to serialize as a tuple",
			}
		}
		return Any{typ: &grammar.Node{Kind: grammar.Tuple, Fields: fields}, value: buf}, nil

	case reflect.Interface:
		if rv.IsNil() {
			return Any{typ: &grammar.Node{Kind: grammar.Void}}, nil
		}
		return assignValue(rv.Elem(), mode)
	}
	return Any{}, &errs.NotSerializableError{Msg: "cannot infer a type for Go kind " + rv.Kind().String()}
}

func buildListAny(vals []Any, mode Mode) (Any, error) {
	elemTyp, homogeneous := unifyTypes(valueTypes(vals))
	if !homogeneous {
		if mode == ModeStrict {
			return Any{}, &errs.NotSerializableError{Msg: "list elements do not share one type under strict mode"}
		}
		wrapped, err := wrapEach(vals)
		if err != nil {
			return Any{}, err
		}
		vals = wrapped
		elemTyp = &grammar.Node{Kind: grammar.Any}
	}
	if elemTyp == nil {
		elemTyp = &grammar.Node{Kind: grammar.Any}
	}
	buf := wire.EncodeU32(uint32(len(vals)))
	for _, v := range vals {
		buf = append(buf, v.value...)
	}
	return Any{typ: &grammar.Node{Kind: grammar.List, Elem: elemTyp}, value: buf}, nil
}

func buildMapAny(keys, vals []Any, mode Mode) (Any, error) {
	keyTyp, keysHomogeneous := unifyTypes(valueTypes(keys))
	valTyp, valsHomogeneous := unifyTypes(valueTypes(vals))
	if !keysHomogeneous {
		if mode == ModeStrict {
			return Any{}, &errs.NotSerializableError{Msg: "map keys do not share one type under strict mode"}
		}
		wrapped, err := wrapEach(keys)
		if err != nil {
			return Any{}, err
		}
		keys = wrapped
		keyTyp = &grammar.Node{Kind: grammar.Any}
	}
	if !valsHomogeneous {
		if mode == ModeStrict {
			return Any{}, &errs.NotSerializableError{Msg: "map values do not share one type under strict mode"}
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
		entries[i] = kvEntry{keys[i].value, vals[i].value}
	}
	sortEntriesByKey(entries)

	buf := wire.EncodeU32(uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.key...)
		buf = append(buf, e.val...)
	}
	return Any{typ: &grammar.Node{Kind: grammar.Map, Key: keyTyp, Val: valTyp}, value: buf}, nil
}

// staticType infers a grammar type from a Go static type alone (no
// value available), used for nil pointers/slices/maps whose element type
// would otherwise be undiscoverable.
func staticType(t reflect.Type) *grammar.Node {
	switch t.Kind() {
	case reflect.Bool:
		return &grammar.Node{Kind: grammar.Bool}
	case reflect.Uint8:
		return &grammar.Node{Kind: grammar.Byte}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint16, reflect.Uint32:
		return &grammar.Node{Kind: grammar.Int32}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return &grammar.Node{Kind: grammar.Int64}
	case reflect.Float32, reflect.Float64:
		return &grammar.Node{Kind: grammar.Double}
	case reflect.String:
		return &grammar.Node{Kind: grammar.String}
	case reflect.Ptr:
		return &grammar.Node{Kind: grammar.Optional, Elem: staticType(t.Elem())}
	case reflect.Slice, reflect.Array:
		return &grammar.Node{Kind: grammar.List, Elem: staticType(t.Elem())}
	case reflect.Map:
		return &grammar.Node{Kind: grammar.Map, Key: staticType(t.Key()), Val: staticType(t.Elem())}
	case reflect.Struct:
		var fields []*grammar.Node
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			fields = append(fields, staticType(f.Type))
		}
		if len(fields) < 2 {
			return &grammar.Node{Kind: grammar.Any}
		}
		return &grammar.Node{Kind: grammar.Tuple, Fields: fields}
	}
	return &grammar.Node{Kind: grammar.Any}
}

// goTypeFor is staticType's inverse: the Go type GetAs builds when
// decoding an `a` payload into a plain `any`-typed field, since there is
// no host struct definition to target.
func goTypeFor(typ *grammar.Node) reflect.Type {
	switch typ.Kind {
	case grammar.Bool:
		return reflect.TypeOf(false)
	case grammar.Byte:
		return reflect.TypeOf(byte(0))
	case grammar.Int32:
		return reflect.TypeOf(int32(0))
	case grammar.Int64:
		return reflect.TypeOf(int64(0))
	case grammar.Double:
		return reflect.TypeOf(float64(0))
	case grammar.String:
		return reflect.TypeOf("")
	case grammar.List:
		return reflect.SliceOf(goTypeFor(typ.Elem))
	case grammar.Map:
		return reflect.MapOf(goTypeFor(typ.Key), goTypeFor(typ.Val))
	case grammar.Optional:
		return reflect.PointerTo(goTypeFor(typ.Elem))
	case grammar.Any:
		return sdvalAnyType
	}
	return anyInterfaceType
}

// GetAs converts a to T's inferred type under policy, then decodes the
// converted bytes into a fresh T. T == Any is a pass-through: a is
// already one.
func GetAs[T any](a Any, policy convert.Policy) (T, error) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()

	if t == sdvalAnyType {
		rv := reflect.ValueOf(&zero).Elem()
		rv.Set(reflect.ValueOf(a))
		return zero, nil
	}

	target := staticType(t)
	converted, err := a.ConvertTo(target, policy)
	if err != nil {
		return zero, err
	}
	rv := reflect.New(t).Elem()
	if err := decodeInto(rv, converted.typ, converted.value); err != nil {
		return zero, err
	}
	result := rv.Interface().(T)
	if post, ok := any(result).(PostDeserializeHook); ok {
		if err := post.PostDeserialize(); err != nil {
			return zero, err
		}
	}
	return result, nil
}

// decodeInto writes raw (of type typ) into rv, the reverse of
// assignShape/staticType.
func decodeInto(rv reflect.Value, typ *grammar.Node, raw []byte) error {
	switch typ.Kind {
	case grammar.Void:
		return nil

	case grammar.Bool:
		v, err := wire.DecodeBool(raw)
		if err != nil {
			return err
		}
		rv.SetBool(v)
		return nil

	case grammar.Byte:
		v, err := wire.DecodeByte(raw)
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
		return nil

	case grammar.Int32:
		v, err := wire.DecodeI32(raw)
		if err != nil {
			return err
		}
		if rv.Kind() == reflect.Uint || rv.Kind() == reflect.Uint8 || rv.Kind() == reflect.Uint16 ||
			rv.Kind() == reflect.Uint32 || rv.Kind() == reflect.Uint64 {
			rv.SetUint(uint64(v))
		} else {
			rv.SetInt(int64(v))
		}
		return nil

	case grammar.Int64:
		v, err := wire.DecodeI64(raw)
		if err != nil {
			return err
		}
		if rv.Kind() == reflect.Uint || rv.Kind() == reflect.Uint8 || rv.Kind() == reflect.Uint16 ||
			rv.Kind() == reflect.Uint32 || rv.Kind() == reflect.Uint64 {
			rv.SetUint(uint64(v))
		} else {
			rv.SetInt(v)
		}
		return nil

	case grammar.Double:
		v, err := wire.DecodeDouble(raw)
		if err != nil {
			return err
		}
		rv.SetFloat(v)
		return nil

	case grammar.String:
		payload, _, err := wire.DecodeBytes(raw)
		if err != nil {
			return err
		}
		rv.SetString(string(payload))
		return nil

	case grammar.Optional:
		if len(raw) < 1 {
			return &errs.ValueMismatchError{Type: typ.String(), Offset: 0, Kind: "val", Msg: "truncated optional tag"}
		}
		if raw[0] == 0 {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.Kind() == reflect.Ptr {
			elem := reflect.New(rv.Type().Elem())
			if err := decodeInto(elem.Elem(), typ.Elem, raw[1:]); err != nil {
				return err
			}
			rv.Set(elem)
			return nil
		}
		return decodeInto(rv, typ.Elem, raw[1:])

	case grammar.List:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		off := wire.LenPrefix
		slice := reflect.MakeSlice(rv.Type(), int(count), int(count))
		for i := uint32(0); i < count; i++ {
			elemLen, err := scan.Scan(typ.Elem, raw[off:])
			if err != nil {
				return err
			}
			if err := decodeInto(slice.Index(int(i)), typ.Elem, raw[off:off+elemLen]); err != nil {
				return err
			}
			off += elemLen
		}
		rv.Set(slice)
		return nil

	case grammar.Map:
		count, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		off := wire.LenPrefix
		m := reflect.MakeMapWithSize(rv.Type(), int(count))
		for i := uint32(0); i < count; i++ {
			kLen, err := scan.Scan(typ.Key, raw[off:])
			if err != nil {
				return err
			}
			kv := reflect.New(rv.Type().Key()).Elem()
			if err := decodeInto(kv, typ.Key, raw[off:off+kLen]); err != nil {
				return err
			}
			off += kLen

			vLen, err := scan.Scan(typ.Val, raw[off:])
			if err != nil {
				return err
			}
			vv := reflect.New(rv.Type().Elem()).Elem()
			if err := decodeInto(vv, typ.Val, raw[off:off+vLen]); err != nil {
				return err
			}
			off += vLen

			m.SetMapIndex(kv, vv)
		}
		rv.Set(m)
		return nil

	case grammar.Tuple:
		off := 0
		fi := 0
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).PkgPath != "" {
				continue
			}
			if fi >= len(typ.Fields) {
				return &errs.ApiError{Op: "GetAs", Msg: "tuple has fewer fields than the destination struct"}
			}
			f := typ.Fields[fi]
			fLen, err := scan.Scan(f, raw[off:])
			if err != nil {
				return err
			}
			if err := decodeInto(rv.Field(i), f, raw[off:off+fLen]); err != nil {
				return err
			}
			off += fLen
			fi++
		}
		return nil

	case grammar.Any:
		tlen, err := wire.DecodeU32(raw)
		if err != nil {
			return err
		}
		off := wire.LenPrefix
		embType, err := grammar.Parse(string(raw[off : off+int(tlen)]))
		if err != nil {
			return err
		}
		off += int(tlen)
		vlen, err := wire.DecodeU32(raw[off:])
		if err != nil {
			return err
		}
		off += wire.LenPrefix
		embVal := raw[off : off+int(vlen)]

		if rv.Type() == sdvalAnyType {
			rv.Set(reflect.ValueOf(Any{typ: embType, value: embVal}))
			return nil
		}
		if rv.Kind() == reflect.Interface {
			nv := reflect.New(goTypeFor(embType)).Elem()
			if err := decodeInto(nv, embType, embVal); err != nil {
				return err
			}
			rv.Set(nv)
			return nil
		}
		return decodeInto(rv, embType, embVal)
	}
	return &errs.NotSerializableError{Msg: "cannot decode into Go kind " + rv.Kind().String()}
}
