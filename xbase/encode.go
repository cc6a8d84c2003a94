package xbase

import (
	"encoding"
	"encoding/base64"
	"reflect"
)

// Marshal converts a struct tagged with `dbf` into a Record. Nil pointers
// become null fields.
func Marshal(v interface{}) (Record, error) {
	typ, err := valueType(v)
	if err != nil {
		return nil, err
	}
	descs, err := cachedFields(typeKey{defaultTag, typ})
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, &UnsupportedTypeError{Type: rv.Type()}
		}
		rv = rv.Elem()
	}
	rec := make(Record, len(descs))
	for _, d := range descs {
		fv, err := rv.FieldByIndexErr(d.index)
		if err != nil {
			// nil embedded pointer
			rec[d.name] = nil
			continue
		}
		val, err := encodeValue(fv)
		if err != nil {
			return nil, &FieldError{Field: d.name, Err: err}
		}
		rec[d.name] = val
	}
	return rec, nil
}

// encodeValue reduces a struct field to one of the values understood by the
// field formatters.
func encodeValue(v reflect.Value) (interface{}, error) {
	for {
		if !v.IsValid() {
			return nil, nil
		}
		if v.Type() == timeType {
			return v.Interface(), nil
		}
		if v.Kind() != reflect.Ptr && v.Kind() != reflect.Interface {
			break
		}
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	if v.CanAddr() {
		if m, ok := v.Addr().Interface().(Marshaler); ok {
			return marshalDBF(m, v.Type())
		}
	}
	if m, ok := v.Interface().(Marshaler); ok {
		return marshalDBF(m, v.Type())
	}
	if m, ok := v.Interface().(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return nil, &MarshalerError{Type: v.Type(), MarshalerType: "MarshalText", Err: err}
		}
		return string(b), nil
	}

	typ := v.Type()
	switch typ.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes()), nil
		}
	}
	return nil, &UnsupportedTypeError{Type: typ}
}

func marshalDBF(m Marshaler, typ reflect.Type) (interface{}, error) {
	b, err := m.MarshalDBF()
	if err != nil {
		return nil, &MarshalerError{Type: typ, MarshalerType: "MarshalDBF", Err: err}
	}
	return string(b), nil
}
