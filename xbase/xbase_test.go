package xbase

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record layout of testFields: flag(1) NAME(20) FLAG(1) COUNT(5) PRICE(9) DATE(8)
const (
	testHeaderLen = headerSize + 5*fieldSize + 1
	testRecSize   = 1 + 20 + 1 + 5 + 9 + 8
	offName       = 1
	offFlag       = 21
	offCount      = 22
	offPrice      = 27
	offDate       = 36
)

var testDate = time.Date(2021, 2, 12, 0, 0, 0, 0, time.UTC)

func testFields(t *testing.T) []*Field {
	t.Helper()
	var fields []*Field
	for _, def := range []struct {
		name, typ   string
		length, dec int
	}{
		{"NAME", "C", 20, 0},
		{"FLAG", "L", 0, 0},
		{"COUNT", "N", 5, 0},
		{"PRICE", "N", 9, 2},
		{"DATE", "D", 0, 0},
	} {
		f, err := NewField(def.name, def.typ, def.length, def.dec)
		require.NoError(t, err)
		fields = append(fields, f)
	}
	return fields
}

func testRecords() []Record {
	return []Record{
		{"NAME": "Abc", "FLAG": true, "COUNT": 123, "PRICE": 123.45, "DATE": testDate},
		{},
		{"name": "Peña", "flag": false, "count": int64(-321), "price": -54.32, "date": "2021-02-12"},
	}
}

func writeTable(t *testing.T, fields []*Field, rows []Record) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, fields, len(rows), Options{ModDate: testDate})
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, b []byte, opts Options) []Record {
	t.Helper()
	r, err := NewReader(bytes.NewReader(b), opts)
	require.NoError(t, err)
	var out []Record
	for rec, err := range r.All() {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func recordAt(b []byte, n int) []byte {
	start := testHeaderLen + n*testRecSize
	return b[start : start+testRecSize]
}

func TestWriteHeader(t *testing.T) {
	b := writeTable(t, testFields(t), testRecords())

	require.Equal(t, dbfId, b[0])
	require.Equal(t, []byte{121, 2, 12}, b[1:4])
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[4:8]))
	require.Equal(t, uint16(testHeaderLen), binary.LittleEndian.Uint16(b[8:10]))
	require.Equal(t, uint16(testRecSize), binary.LittleEndian.Uint16(b[10:12]))
	require.Equal(t, make([]byte, 20), b[12:32])
	require.Equal(t, headerEnd, b[testHeaderLen-1])
	require.Equal(t, fileEnd, b[len(b)-1])
	require.Len(t, b, testHeaderLen+3*testRecSize+1)
}

func TestWriteFieldDescriptors(t *testing.T) {
	b := writeTable(t, testFields(t), nil)

	price := b[headerSize+3*fieldSize : headerSize+4*fieldSize]
	require.Equal(t, []byte("PRICE\x00\x00\x00\x00\x00\x00"), price[0:11])
	require.Equal(t, byte('N'), price[11])
	require.Equal(t, []byte{0, 0, 0, 0}, price[12:16])
	require.Equal(t, byte(9), price[16])
	require.Equal(t, byte(2), price[17])
	require.Equal(t, make([]byte, 14), price[18:32])

	date := b[headerSize+4*fieldSize : headerSize+5*fieldSize]
	require.Equal(t, byte('D'), date[11])
	require.Equal(t, byte(8), date[16])
	require.Len(t, b, testHeaderLen+1)
}

func TestWriteRecords(t *testing.T) {
	b := writeTable(t, testFields(t), testRecords())

	r := recordAt(b, 0)
	require.Equal(t, byte(' '), r[0])
	require.Equal(t, []byte("Abc                 "), r[offName:offFlag])
	require.Equal(t, []byte("T"), r[offFlag:offCount])
	require.Equal(t, []byte("  123"), r[offCount:offPrice])
	require.Equal(t, []byte("   123.45"), r[offPrice:offDate])
	require.Equal(t, []byte("20210212"), r[offDate:])

	// null values
	r = recordAt(b, 1)
	require.Equal(t, bytes.Repeat([]byte(" "), 20), r[offName:offFlag])
	require.Equal(t, []byte(" "), r[offFlag:offCount])
	require.Equal(t, []byte("     "), r[offCount:offPrice])
	require.Equal(t, []byte("     0.00"), r[offPrice:offDate])
	require.Equal(t, []byte("        "), r[offDate:])

	r = recordAt(b, 2)
	require.Equal(t, []byte("Pe\xf1a"), r[offName:offName+4])
	require.Equal(t, []byte("F"), r[offFlag:offCount])
	require.Equal(t, []byte(" -321"), r[offCount:offPrice])
	require.Equal(t, []byte("   -54.32"), r[offPrice:offDate])
	require.Equal(t, []byte("20210212"), r[offDate:])
}

func TestRoundTrip(t *testing.T) {
	b := writeTable(t, testFields(t), testRecords())
	got := readAll(t, b, Options{})
	require.Len(t, got, 3)

	require.Equal(t, Record{"NAME": "Abc", "FLAG": true, "COUNT": int64(123), "PRICE": 123.45, "DATE": testDate}, got[0])
	// null decimal numerics come back as zero, every other null stays null
	require.Equal(t, Record{"NAME": "", "FLAG": nil, "COUNT": nil, "PRICE": float64(0), "DATE": nil}, got[1])
	require.Equal(t, Record{"NAME": "Peña", "FLAG": false, "COUNT": int64(-321), "PRICE": -54.32, "DATE": testDate}, got[2])
}

func TestNumericTruncation(t *testing.T) {
	f, err := NewField("N", "N", 3, 0)
	require.NoError(t, err)
	b := writeTable(t, []*Field{f}, []Record{{"N": 12345}})
	start := headerSize + fieldSize + 1
	slot := b[start+1 : start+4]
	require.Len(t, slot, 3)
	require.Equal(t, []byte("123"), slot)
	require.Len(t, b, start+4+1)
}

func TestCharacterTruncation(t *testing.T) {
	f, err := NewField("C", "C", 4, 0)
	require.NoError(t, err)
	b := writeTable(t, []*Field{f}, []Record{{"C": "abcdefgh"}})
	got := readAll(t, b, Options{})
	require.Equal(t, "abcd", got[0]["C"])
}

func TestLogicalValues(t *testing.T) {
	f, err := NewField("L", "L", 0, 0)
	require.NoError(t, err)
	tests := []struct {
		in   interface{}
		want byte
	}{
		{true, 'T'}, {1, 'T'}, {"T", 'T'}, {"t", 'T'}, {"Y", 'T'}, {"y", 'T'},
		{false, 'F'}, {0, 'F'}, {"F", 'F'}, {"f", 'F'}, {"N", 'F'}, {"n", 'F'},
		{nil, ' '}, {"?", ' '}, {2, ' '}, {"1", ' '},
	}
	for _, tt := range tests {
		buf := []byte("  ")
		f.offset = 1
		require.NoError(t, f.setValue(buf, tt.in, nil))
		assert.Equal(t, tt.want, buf[1], "value %#v", tt.in)
	}
}

func TestDateValues(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{testDate, "20210212"},
		{&testDate, "20210212"},
		{"2021-02-12", "20210212"},
		{"20210212", "20210212"},
		{"12/02/2021", "        "},
		{"", "        "},
		{nil, "        "},
		{time.Time{}, "        "},
		{42, "        "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDate(tt.in), "value %#v", tt.in)
	}
}

func TestEncodingTolerance(t *testing.T) {
	f, err := NewField("NAME", "C", 6, 0)
	require.NoError(t, err)
	b := writeTable(t, []*Field{f}, []Record{{"NAME": "x"}})
	start := headerSize + fieldSize + 1
	copy(b[start+1:], []byte{'P', 'e', 0xF1, 'a', 0x81, ' '})

	got := readAll(t, b, Options{})
	name, ok := got[0]["NAME"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(name, "Peña"))
	require.True(t, utf8.ValidString(name))

	got = readAll(t, b, Options{CodePage: 437})
	require.Equal(t, "Pe±aü", got[0]["NAME"])

	got = readAll(t, b, Options{CodePage: 1252})
	require.IsType(t, "", got[0]["NAME"])
}

func TestUnencodableText(t *testing.T) {
	f, err := NewField("NAME", "C", 6, 0)
	require.NoError(t, err)
	b := writeTable(t, []*Field{f}, []Record{{"NAME": "a€b"}})
	got := readAll(t, b, Options{})
	require.Equal(t, "a?b", got[0]["NAME"])

	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, []*Field{f}, 1, Options{CodePage: 1252})
	require.NoError(t, err)
	require.NoError(t, w.Write(Record{"NAME": "a€b"}))
	require.NoError(t, w.Close())
	got = readAll(t, buf.Bytes(), Options{CodePage: 1252})
	require.Equal(t, "a€b", got[0]["NAME"])
}

func TestNumericValues(t *testing.T) {
	f, err := NewField("N", "N", 6, 1)
	require.NoError(t, err)
	f.offset = 0
	buf := make([]byte, 6)
	for _, tt := range []struct {
		in   interface{}
		want string
	}{
		{12.34, "  12.3"},
		{7, "   7.0"},
		{"3.5", "   3.5"},
		{"", "   0.0"},
		{nil, "   0.0"},
		{float32(1.5), "   1.5"},
		{1234567.0, "123456"},
	} {
		require.NoError(t, f.setValue(buf, tt.in, nil))
		assert.Equal(t, tt.want, string(buf), "value %#v", tt.in)
	}

	g, err := NewField("I", "N", 4, 0)
	require.NoError(t, err)
	buf = make([]byte, 4)
	for _, tt := range []struct {
		in   interface{}
		want string
	}{
		{12, "  12"},
		{3.9, "   3"},
		{"42", "  42"},
		{uint8(7), "   7"},
		{true, "   1"},
		{nil, "    "},
	} {
		require.NoError(t, g.setValue(buf, tt.in, nil))
		assert.Equal(t, tt.want, string(buf), "value %#v", tt.in)
	}

	err = g.setValue(buf, "abc", nil)
	require.Error(t, err)
	err = g.setValue(buf, []int{1}, nil)
	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
}

func TestReadNumeric(t *testing.T) {
	f, err := NewField("N", "N", 6, 0)
	require.NoError(t, err)
	for _, tt := range []struct {
		in   string
		want interface{}
	}{
		{"   -12", int64(-12)},
		{"  12.5", 12.5},
		{"      ", nil},
		{"******", nil},
		{"\x00\x00\x00\x00\x00\x00", nil},
	} {
		v, err := f.value([]byte(tt.in), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "slot %q", tt.in)
	}
	_, err = f.value([]byte("  12ab"), nil)
	require.ErrorIs(t, err, ErrFormat)
}

func TestWriterErrors(t *testing.T) {
	a, err := NewField("A", "C", 2, 0)
	require.NoError(t, err)
	a2, err := NewField("a", "N", 2, 0)
	require.NoError(t, err)

	_, err = NewWriter(io.Discard, []*Field{a, a2}, 0, Options{})
	require.ErrorContains(t, err, "duplicate field name")

	_, err = NewWriter(io.Discard, nil, 0, Options{})
	require.Error(t, err)

	_, err = NewWriter(io.Discard, []*Field{a}, 0, Options{CodePage: 1})
	require.ErrorContains(t, err, "unsupported code page")

	w, err := NewWriter(io.Discard, []*Field{a}, 2, Options{})
	require.NoError(t, err)
	err = w.Write(Record{"B": "x"})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "B", fe.Field)
	require.NoError(t, w.Write(Record{"a": "x"}))
	require.ErrorContains(t, w.Close(), "header declares 2 records, 1 written")
}

func TestWriteFileOpen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.dbf")
	require.NoError(t, WriteFile(name, testFields(t), testRecords(), Options{}))

	fi, err := os.Stat(name)
	require.NoError(t, err)
	require.Equal(t, int64(testHeaderLen+3*testRecSize+1), fi.Size())

	db, err := Open(name, Options{})
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, int64(3), db.RecCount())
	require.Len(t, db.Fields(), 5)
	now := time.Now()
	require.Equal(t, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), db.ModDate())

	rec, err := db.Next()
	require.NoError(t, err)
	require.Equal(t, "Abc", rec["NAME"])
	require.Equal(t, int64(1), db.RecNo())
	_, err = db.Next()
	require.NoError(t, err)
	_, err = db.Next()
	require.NoError(t, err)
	_, err = db.Next()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, db.Close())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.dbf"), Options{})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	require.ErrorIs(t, err, fs.ErrNotExist)

	err = WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir.dbf"), testFields(t), nil, Options{})
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, "create", ioErr.Op)
}

func TestReadFormatErrors(t *testing.T) {
	valid := writeTable(t, testFields(t), testRecords())
	patch := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return f(b)
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:10]},
		{"truncated descriptors", valid[:headerSize+40]},
		{"record length", patch(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[10:12], testRecSize+1)
			return b
		})},
		{"header length too small", patch(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[8:10], 40)
			return b
		})},
		{"missing terminator", patch(func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[8:10], 100)
			return b
		})},
		{"unknown type", patch(func(b []byte) []byte {
			b[headerSize+11] = 'X'
			return b
		})},
		{"zero length", patch(func(b []byte) []byte {
			b[headerSize+16] = 0
			return b
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data), Options{})
			require.ErrorIs(t, err, ErrFormat)
			var fe *FormatError
			require.True(t, errors.As(err, &fe))
		})
	}
}

func TestReadTruncatedRecord(t *testing.T) {
	valid := writeTable(t, testFields(t), testRecords())
	r, err := NewReader(bytes.NewReader(valid[:len(valid)-10]), Options{})
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, ErrFormat)
	// sticky
	_, err = r.Next()
	require.ErrorIs(t, err, ErrFormat)
}

func TestReadDeletedRecord(t *testing.T) {
	b := writeTable(t, testFields(t), testRecords())
	recordAt(b, 0)[0] = recDeleted
	r, err := NewReader(bytes.NewReader(b), Options{})
	require.NoError(t, err)
	require.Equal(t, int64(3), r.RecCount())
	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "", rec["NAME"])
	require.Equal(t, int64(2), r.RecNo())
}

func TestReadExtraHeaderBytes(t *testing.T) {
	f, err := NewField("A", "C", 3, 0)
	require.NoError(t, err)
	b := writeTable(t, []*Field{f}, []Record{{"A": "xyz"}})
	// a FoxPro style backlink area after the terminator
	hl := headerSize + fieldSize + 1
	padded := append(append(append([]byte(nil), b[:hl]...), make([]byte, 263)...), b[hl:]...)
	binary.LittleEndian.PutUint16(padded[8:10], uint16(hl+263))
	got := readAll(t, padded, Options{})
	require.Equal(t, []Record{{"A": "xyz"}}, got)
}
