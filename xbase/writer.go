package xbase

import (
	"bufio"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Writer serializes a table to an io.Writer in a single sequential pass.
// The record count is part of the header and must be known up front.
type Writer struct {
	w         *bufio.Writer
	header    *header
	fields    []*Field
	byName    map[string]*Field
	rawBuffer []byte
	cm        *charmap.Charmap
	recCount  int64
	written   int64
	closed    bool
}

// NewWriter validates fields and writes the table header. Close must be
// called after the last record to append the end of file marker.
func NewWriter(w io.Writer, fields []*Field, recCount int, opts Options) (*Writer, error) {
	cm, err := opts.charmap()
	if err != nil {
		return nil, err
	}
	if recCount < 0 {
		return nil, fmt.Errorf("xbase: negative record count %d", recCount)
	}
	db := &Writer{
		w:        bufio.NewWriter(w),
		header:   newHeader(),
		byName:   make(map[string]*Field, len(fields)),
		cm:       cm,
		recCount: int64(recCount),
	}
	if err := db.setFields(fields); err != nil {
		return nil, err
	}
	db.header.setFieldCount(len(db.fields))
	db.header.RecSize = uint16(len(db.rawBuffer))
	db.header.RecCount = uint32(recCount)
	db.header.setModDate(opts.modDate())

	if err := db.header.write(db.w); err != nil {
		return nil, &IOError{Op: "write header", Err: err}
	}
	for _, f := range db.fields {
		if err := f.write(db.w); err != nil {
			return nil, &IOError{Op: "write field", Err: err}
		}
	}
	if err := db.w.WriteByte(headerEnd); err != nil {
		return nil, &IOError{Op: "write header", Err: err}
	}
	return db, nil
}

// setFields copies the schema and assigns record buffer offsets.
func (db *Writer) setFields(fields []*Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("xbase: file structure undefined")
	}
	offset := 1 // deleted mark
	for _, f := range fields {
		if f == nil {
			return fmt.Errorf("xbase: nil field")
		}
		if _, ok := db.byName[f.name]; ok {
			return fmt.Errorf("xbase: duplicate field name %q", f.name)
		}
		c := *f
		c.offset = offset
		offset += c.length
		db.fields = append(db.fields, &c)
		db.byName[c.name] = &c
	}
	if offset > 0xFFFF {
		return fmt.Errorf("xbase: record length %d exceeds %d", offset, 0xFFFF)
	}
	if headerSize+len(fields)*fieldSize+1 > 0xFFFF {
		return fmt.Errorf("xbase: too many fields: %d", len(fields))
	}
	db.rawBuffer = make([]byte, offset)
	return nil
}

// Fields returns the schema being written.
func (db *Writer) Fields() []*Field {
	return db.fields
}

// Write appends one record. Field names are matched case-insensitively,
// missing fields are null and unknown fields are an error. Values wider than
// their field are truncated silently.
func (db *Writer) Write(rec Record) error {
	if db.closed {
		return fmt.Errorf("xbase: write on closed writer")
	}
	if db.written >= db.recCount {
		return fmt.Errorf("xbase: record count %d exceeded", db.recCount)
	}
	values := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		name := fieldKey(k)
		if _, ok := db.byName[name]; !ok {
			return &FieldError{Field: k, RecNo: db.written + 1, Err: fmt.Errorf("not in schema")}
		}
		if _, dup := values[name]; dup {
			return &FieldError{Field: k, RecNo: db.written + 1, Err: fmt.Errorf("given more than once")}
		}
		values[name] = v
	}

	db.rawBuffer[0] = recActive
	for _, f := range db.fields {
		if err := f.setValue(db.rawBuffer, values[f.name], db.cm); err != nil {
			return &FieldError{Field: f.name, RecNo: db.written + 1, Err: err}
		}
	}
	if _, err := db.w.Write(db.rawBuffer); err != nil {
		return &IOError{Op: "write record", Err: err}
	}
	db.written++
	return nil
}

// Encode writes the exported fields of a tagged struct as one record.
// A nil value writes a record with every field null.
func (db *Writer) Encode(v interface{}) error {
	if isNilFixed(v) {
		return db.Write(Record{})
	}
	rec, err := Marshal(v)
	if err != nil {
		return err
	}
	return db.Write(rec)
}

// Close appends the end of file marker and flushes. It does not close the
// underlying writer.
func (db *Writer) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	if db.written != db.recCount {
		return fmt.Errorf("xbase: header declares %d records, %d written", db.recCount, db.written)
	}
	if err := db.w.WriteByte(fileEnd); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if err := db.w.Flush(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}
	return nil
}
