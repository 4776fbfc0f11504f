package sqlmap

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/syssam/sqlmap/schema/field"
)

// encodeValue converts a field's in-memory value to the scalar bound as a
// statement parameter.
func encodeValue(f *FieldSpec, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
		v = rv.Interface()
	}
	switch f.Codec {
	case field.CodecEnum:
		if rv.Kind() != reflect.String {
			return nil, fmt.Errorf("sqlmap: enum field %q requires a string value, got %T", f.Name, v)
		}
		s := rv.String()
		if s == "" && f.Nullable {
			return nil, nil
		}
		if len(f.EnumValues) > 0 && !containsString(f.EnumValues, s) {
			return nil, fmt.Errorf("sqlmap: value %q is not valid for enum field %q", s, f.Name)
		}
		return s, nil
	case field.CodecJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("sqlmap: encoding JSON field %q: %w", f.Name, err)
		}
		return string(b), nil
	case field.CodecCustom:
		enc, err := f.CustomCodec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("sqlmap: encoding field %q: %w", f.Name, err)
		}
		return enc, nil
	}
	return v, nil
}

// decodeValue assigns a stored scalar to the struct field backing a column.
// A NULL leaves value fields zero and pointer fields nil.
func decodeValue(f *FieldSpec, stored any, dst reflect.Value) error {
	if stored == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := decodeScalar(f, stored, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	return decodeScalar(f, stored, dst)
}

func decodeScalar(f *FieldSpec, stored any, dst reflect.Value) error {
	switch f.Codec {
	case field.CodecJSON:
		b, err := storedBytes(stored)
		if err != nil {
			return fmt.Errorf("sqlmap: decoding JSON field %q: %w", f.Name, err)
		}
		if err := json.Unmarshal(b, dst.Addr().Interface()); err != nil {
			return fmt.Errorf("sqlmap: decoding JSON field %q: %w", f.Name, err)
		}
		return nil
	case field.CodecCustom:
		v, err := f.CustomCodec.Decode(stored)
		if err != nil {
			return fmt.Errorf("sqlmap: decoding field %q: %w", f.Name, err)
		}
		return assignScalar(f, v, dst)
	}
	// Enums decode like plain scalars. A stored value outside the declared
	// set is preserved as-is rather than rejected on read.
	return assignScalar(f, stored, dst)
}

// assignScalar bridges the scalar types drivers actually hand back to the
// declared struct field type.
func assignScalar(f *FieldSpec, stored any, dst reflect.Value) error {
	sv := reflect.ValueOf(stored)
	st := sv.Type()
	switch {
	case st.AssignableTo(dst.Type()):
		dst.Set(sv)
		return nil
	case st.ConvertibleTo(dst.Type()) && compatibleKinds(st.Kind(), dst.Kind()):
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	switch dst.Kind() {
	case reflect.String:
		if b, ok := stored.([]byte); ok {
			dst.SetString(string(b))
			return nil
		}
	case reflect.Bool:
		switch n := stored.(type) {
		case int64:
			dst.SetBool(n != 0)
			return nil
		case bool:
			dst.SetBool(n)
			return nil
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			if s, ok := stored.(string); ok {
				dst.SetBytes([]byte(s))
				return nil
			}
		}
	}
	if dst.Type() == reflect.TypeOf(time.Time{}) {
		if s, ok := storedString(stored); ok {
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					dst.Set(reflect.ValueOf(t))
					return nil
				}
			}
		}
	}
	return fmt.Errorf("sqlmap: cannot assign %T to field %q (%s)", stored, f.Name, dst.Type())
}

// compatibleKinds limits reflect conversion to numeric widenings and string
// conversions that preserve meaning. It keeps int64 column values out of
// string fields, where Convert would produce a rune.
func compatibleKinds(src, dst reflect.Kind) bool {
	num := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Uint64 || k == reflect.Float32 || k == reflect.Float64
	}
	if num(src) && num(dst) {
		return true
	}
	return src == reflect.String && dst == reflect.String
}

func storedBytes(stored any) ([]byte, error) {
	switch v := stored.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("expected text, got %T", stored)
	}
}

func storedString(stored any) (string, bool) {
	switch v := stored.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
