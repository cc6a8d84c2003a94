package xbase

import (
	"reflect"
	"strings"
	"time"
	"unicode"
)

var timeType = reflect.TypeOf(time.Time{})

// valueType returns the struct type behind v, following pointers and interfaces.
func valueType(v interface{}) (reflect.Type, error) {
	if v == nil {
		return nil, &UnsupportedTypeError{}
	}
	typ := walkType(reflect.TypeOf(v))
	if typ.Kind() != reflect.Struct {
		return nil, &UnsupportedTypeError{Type: typ}
	}
	return typ, nil
}

func walkType(typ reflect.Type) reflect.Type {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ
}

func isNilFixed(i interface{}) bool {
	if i == nil {
		return true
	}
	switch reflect.TypeOf(i).Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Slice:
		return reflect.ValueOf(i).IsNil()
	}
	return false
}

// String utils

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
