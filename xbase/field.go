package xbase

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	maxFieldNameLen = 10
	maxFieldLen     = 255
)

const (
	defaultLFieldLen = 1
	defaultDFieldLen = 8
)

const dateLayout = "20060102"

// FieldType is the single letter type code of a field.
// https://www.dbase.com/Knowledgebase/INT/db7_file_fmt.htm
type FieldType byte

const (
	FieldType_Character FieldType = 'C'
	FieldType_Numeric   FieldType = 'N'
	FieldType_Date      FieldType = 'D'
	FieldType_Logical   FieldType = 'L'
)

func (t FieldType) String() string {
	return string([]byte{byte(t)})
}

func (t FieldType) valid() bool {
	switch t {
	case FieldType_Character, FieldType_Numeric, FieldType_Date, FieldType_Logical:
		return true
	}
	return false
}

// descriptor is the 32 byte field block as stored in the header.
type descriptor struct {
	Name   [11]byte
	Type   byte
	Offset uint32 // reserved, always zero on disk
	Len    byte
	Dec    byte
	Filler [14]byte
}

// Field describes one column of a table.
type Field struct {
	name   string
	typ    FieldType
	length int
	dec    int
	// offset inside the record buffer, after the deletion flag.
	offset int
}

// NewField returns a validated field description.
//
// Examples:
//
//	NewField("NAME", "C", 24, 0)
//	NewField("COUNT", "N", 8, 0)
//	NewField("PRICE", "N", 12, 2)
//	NewField("FLAG", "L", 0, 0)
//	NewField("DATE", "D", 0, 0)
func NewField(name string, typ string, length, dec int) (f *Field, err error) {
	f = &Field{}
	// do not change the call order
	if err = f.setName(name); err != nil {
		return nil, err
	}
	if err = f.setType(typ); err != nil {
		return nil, err
	}
	if err = f.setLen(length); err != nil {
		return nil, err
	}
	if err = f.setDec(dec); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Field) Name() string    { return f.name }
func (f *Field) Type() FieldType { return f.typ }
func (f *Field) Len() int        { return f.length }
func (f *Field) Dec() int        { return f.dec }

func (f *Field) String() string {
	if f.typ == FieldType_Numeric {
		return fmt.Sprintf("%s %s(%d,%d)", f.name, f.typ, f.length, f.dec)
	}
	return fmt.Sprintf("%s %s(%d)", f.name, f.typ, f.length)
}

// fieldKey normalizes a field name the way it is stored in a descriptor.
func fieldKey(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) > maxFieldNameLen {
		name = name[:maxFieldNameLen]
	}
	return name
}

func (f *Field) setName(name string) error {
	if !isASCII(name) {
		return fmt.Errorf("field name %q is not ASCII", name)
	}
	name = fieldKey(name)
	if len(name) == 0 {
		return fmt.Errorf("empty field name")
	}
	f.name = name
	return nil
}

func (f *Field) setType(typ string) error {
	typ = strings.ToUpper(strings.TrimSpace(typ))
	if len(typ) == 0 {
		return fmt.Errorf("empty field type")
	}
	t := FieldType(typ[0])
	if !t.valid() {
		return fmt.Errorf("invalid field type: got %s, want C, N, L, D", t)
	}
	f.typ = t
	return nil
}

func (f *Field) setLen(length int) error {
	switch f.typ {
	case FieldType_Character, FieldType_Numeric:
		if length <= 0 || length > maxFieldLen {
			return fmt.Errorf("invalid field len: got %d, want 0 < len <= %d", length, maxFieldLen)
		}
	case FieldType_Logical:
		length = defaultLFieldLen
	case FieldType_Date:
		length = defaultDFieldLen
	}
	f.length = length
	return nil
}

func (f *Field) setDec(dec int) error {
	if f.typ != FieldType_Numeric {
		f.dec = 0
		return nil
	}
	if dec < 0 {
		return fmt.Errorf("invalid field dec: got %d, want dec >= 0", dec)
	}
	if f.length <= 2 && dec > 0 {
		return fmt.Errorf("invalid field dec: got %d, want 0", dec)
	}
	if f.length > 2 && dec > f.length-2 {
		return fmt.Errorf("invalid field dec: got %d, want dec <= %d", dec, f.length-2)
	}
	f.dec = dec
	return nil
}

// read parses one descriptor. The caller has already consumed its first byte.
func (f *Field) read(first byte, reader io.Reader) error {
	var b [fieldSize]byte
	b[0] = first
	if _, err := io.ReadFull(reader, b[1:]); err != nil {
		return err
	}
	var d descriptor
	if err := binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, &d); err != nil {
		return err
	}
	name := d.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	f.name = strings.TrimSpace(string(name))
	f.typ = FieldType(d.Type)
	f.length = int(d.Len)
	f.dec = int(d.Dec)
	if !f.typ.valid() {
		return fmt.Errorf("field %q: unknown type code 0x%02X", f.name, d.Type)
	}
	if f.length == 0 {
		return fmt.Errorf("field %q: zero length", f.name)
	}
	return nil
}

func (f *Field) write(writer io.Writer) error {
	var d descriptor
	copy(d.Name[:maxFieldNameLen], f.name)
	d.Type = byte(f.typ)
	d.Len = byte(f.length)
	d.Dec = byte(f.dec)
	return binary.Write(writer, binary.LittleEndian, &d)
}

// Buffer

func (f *Field) buffer(recordBuf []byte) []byte {
	return recordBuf[f.offset : f.offset+f.length]
}

// setBuffer fills the field slot with value, left aligned, space padded and
// cut at the field length.
func (f *Field) setBuffer(recordBuf []byte, value []byte) {
	buf := f.buffer(recordBuf)
	n := copy(buf, value)
	for i := n; i < len(buf); i++ {
		buf[i] = ' '
	}
}

// Get value

func (f *Field) value(recordBuf []byte, cm *charmap.Charmap) (interface{}, error) {
	buf := f.buffer(recordBuf)
	switch f.typ {
	case FieldType_Character:
		return decodeText(bytes.TrimRight(buf, " \x00"), cm), nil
	case FieldType_Numeric:
		return f.numericValue(buf)
	case FieldType_Date:
		return dateValue(buf), nil
	case FieldType_Logical:
		return boolValue(buf[0]), nil
	}
	return nil, fmt.Errorf("unsupported field type %s", f.typ)
}

func (f *Field) numericValue(buf []byte) (interface{}, error) {
	s := strings.Trim(string(buf), " \x00")
	if s == "" || strings.Trim(s, "*") == "" {
		return nil, nil
	}
	if f.dec == 0 {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid numeric %q", ErrFormat, s)
	}
	return v, nil
}

func dateValue(buf []byte) interface{} {
	s := strings.Trim(string(buf), " \x00")
	if s == "" || strings.Trim(s, "0") == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return d
}

func boolValue(b byte) interface{} {
	switch b {
	case 'T', 't', 'Y', 'y':
		return true
	case 'F', 'f', 'N', 'n':
		return false
	}
	return nil
}

// Set value

func (f *Field) setValue(recordBuf []byte, value interface{}, cm *charmap.Charmap) error {
	switch f.typ {
	case FieldType_Character:
		return f.setStringValue(recordBuf, value, cm)
	case FieldType_Numeric:
		return f.setNumericValue(recordBuf, value)
	case FieldType_Date:
		f.setBuffer(recordBuf, []byte(formatDate(value)))
		return nil
	case FieldType_Logical:
		f.setBuffer(recordBuf, []byte{formatBool(value)})
		return nil
	}
	return fmt.Errorf("unsupported field type %s", f.typ)
}

func (f *Field) setStringValue(recordBuf []byte, value interface{}, cm *charmap.Charmap) error {
	s, err := textOf(value)
	if err != nil {
		return err
	}
	f.setBuffer(recordBuf, encodeText(s, cm))
	return nil
}

// setNumericValue writes value right aligned. A null integer field is left
// blank while a null decimal field is written as zero, which is what the
// legacy consumer has always received.
func (f *Field) setNumericValue(recordBuf []byte, value interface{}) error {
	var s string
	if f.dec == 0 {
		if value == nil {
			f.setBuffer(recordBuf, nil)
			return nil
		}
		i, _, err := numberOf(value)
		if err != nil {
			return err
		}
		s = strconv.FormatInt(i, 10)
	} else {
		var x float64
		if value != nil {
			var err error
			if _, x, err = numberOf(value); err != nil {
				return err
			}
		}
		s = strconv.FormatFloat(x, 'f', f.dec, 64)
	}
	// too wide values keep their leftmost characters
	f.setBuffer(recordBuf, []byte(padLeft(s, f.length)))
	return nil
}

func formatDate(value interface{}) string {
	blank := strings.Repeat(" ", defaultDFieldLen)
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return blank
		}
		return v.Format(dateLayout)
	case *time.Time:
		if v == nil || v.IsZero() {
			return blank
		}
		return v.Format(dateLayout)
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range []string{time.DateOnly, dateLayout} {
			if d, err := time.Parse(layout, v); err == nil {
				return d.Format(dateLayout)
			}
		}
	}
	return blank
}

func formatBool(value interface{}) byte {
	switch v := value.(type) {
	case nil:
		return ' '
	case bool:
		if v {
			return 'T'
		}
		return 'F'
	case string:
		switch v {
		case "T", "t", "Y", "y":
			return 'T'
		case "F", "f", "N", "n":
			return 'F'
		}
		return ' '
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return formatBool(i)
		}
		return ' '
	}
	if _, x, ok := reflectNumber(reflect.ValueOf(value)); ok {
		switch x {
		case 1:
			return 'T'
		case 0:
			return 'F'
		}
	}
	return ' '
}

// numberOf converts value to an integer, truncated toward zero, and to a float.
func numberOf(value interface{}) (int64, float64, error) {
	switch v := value.(type) {
	case string:
		return parseNumber(v)
	case json.Number:
		return parseNumber(v.String())
	case bool:
		if v {
			return 1, 1, nil
		}
		return 0, 0, nil
	}
	if i, x, ok := reflectNumber(reflect.ValueOf(value)); ok {
		return i, x, nil
	}
	return 0, 0, &UnsupportedTypeError{Type: reflect.TypeOf(value)}
}

func parseNumber(s string) (int64, float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, float64(i), nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", s)
	}
	return int64(x), x, nil
}

func reflectNumber(v reflect.Value) (int64, float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(v.Float()), v.Float(), true
	}
	return 0, 0, false
}

// textOf renders a value for a Character field.
func textOf(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.Number:
		return v.String(), nil
	case time.Time:
		if v.IsZero() {
			return "", nil
		}
		return v.Format(time.DateOnly), nil
	case bool:
		return strconv.FormatBool(v), nil
	case Marshaler:
		b, err := v.MarshalDBF()
		if err != nil {
			return "", &MarshalerError{Type: reflect.TypeOf(value), MarshalerType: "MarshalDBF", Err: err}
		}
		return string(b), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	}
	return "", &UnsupportedTypeError{Type: rv.Type()}
}

// encodeText converts s to the code page. Runes the code page cannot
// represent become '?'.
func encodeText(s string, cm *charmap.Charmap) []byte {
	if isASCII(s) {
		return []byte(s)
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := cm.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// decodeText never fails: bytes without a mapping decode to U+FFFD.
func decodeText(b []byte, cm *charmap.Charmap) string {
	if isASCII(string(b)) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(cm.DecodeByte(c))
	}
	return sb.String()
}
