package xbase

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("xbase: malformed file")

// FormatError reports a header, descriptor or record area that cannot be
// interpreted as a dBASE III table.
type FormatError struct {
	Offset int64
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	s := fmt.Sprintf("xbase: format error at offset %d: %s", e.Offset, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// IOError wraps a failure of the underlying storage.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return "xbase: " + e.Op + ": " + e.Err.Error()
	}
	return "xbase: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// FieldError reports a value that could not be encoded into, or decoded from,
// a single field. RecNo is 1-based and zero when unknown.
type FieldError struct {
	Field string
	RecNo int64
	Err   error
}

func (e *FieldError) Error() string {
	if e.RecNo > 0 {
		return fmt.Sprintf("xbase: record %d: field %q: %v", e.RecNo, e.Field, e.Err)
	}
	return fmt.Sprintf("xbase: field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// UnsupportedTypeError is returned when a Go value has no DBF representation.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	if e.Type == nil {
		return "xbase: unsupported type: nil"
	}
	return "xbase: unsupported type: " + e.Type.String()
}

// MarshalerError wraps an error returned by a Marshaler or TextMarshaler.
type MarshalerError struct {
	Type          reflect.Type
	MarshalerType string
	Err           error
}

func (e *MarshalerError) Error() string {
	return "xbase: error calling " + e.MarshalerType + " for type " + e.Type.String() + ": " + e.Err.Error()
}

func (e *MarshalerError) Unwrap() error { return e.Err }
