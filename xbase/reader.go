package xbase

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Reader decodes a table one record at a time. It is not restartable:
// reopen the file to read it again.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	name   string
	header *header
	fields []*Field
	// rawBuffer is the current record buffer.
	rawBuffer []byte
	cm        *charmap.Charmap
	offset    int64
	recNo     int64
	err       error
}

// NewReader parses the header and field descriptors of r.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	cm, err := opts.charmap()
	if err != nil {
		return nil, err
	}
	db := &Reader{
		r:      bufio.NewReader(r),
		header: newHeader(),
		cm:     cm,
	}
	if err := db.readHeader(); err != nil {
		return nil, err
	}
	if err := db.readFields(); err != nil {
		return nil, err
	}
	db.rawBuffer = make([]byte, int(db.header.RecSize))
	return db, nil
}

func (db *Reader) readHeader() error {
	if err := db.header.read(db.r); err != nil {
		return db.readError(err, "file header")
	}
	db.offset = headerSize
	if db.header.DataOffset < headerSize+fieldSize+1 {
		return &FormatError{Offset: 8, Msg: fmt.Sprintf("header length %d too small", db.header.DataOffset)}
	}
	return nil
}

func (db *Reader) readFields() error {
	dataOffset := int64(db.header.DataOffset)
	db.fields = make([]*Field, 0, db.header.fieldCount())
	offset := 1 // deleted mark
	for {
		b, err := db.r.ReadByte()
		if err != nil {
			return db.readError(err, "field descriptor")
		}
		if b == headerEnd {
			db.offset++
			break
		}
		if db.offset+fieldSize+1 > dataOffset {
			return &FormatError{Offset: db.offset, Msg: fmt.Sprintf("no header terminator within header length %d", dataOffset)}
		}
		f := &Field{}
		if err := f.read(b, db.r); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return db.readError(err, "field descriptor")
			}
			return &FormatError{Offset: db.offset, Msg: "bad field descriptor", Err: err}
		}
		f.offset = offset
		offset += f.length
		db.fields = append(db.fields, f)
		db.offset += fieldSize
	}
	if len(db.fields) == 0 {
		return &FormatError{Offset: db.offset, Msg: "no fields"}
	}
	if offset != int(db.header.RecSize) {
		return &FormatError{Offset: 10, Msg: fmt.Sprintf("record length %d, fields need %d", db.header.RecSize, offset)}
	}
	// dBASE IV and FoxPro may keep extra bytes after the terminator.
	if extra := dataOffset - db.offset; extra > 0 {
		if _, err := db.r.Discard(int(extra)); err != nil {
			return db.readError(err, "header padding")
		}
		db.offset = dataOffset
	}
	return nil
}

// readError classifies a read failure: running out of bytes is a format
// problem, anything else comes from the storage.
func (db *Reader) readError(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Offset: db.offset, Msg: "truncated " + what, Err: err}
	}
	return &IOError{Op: "read", Path: db.name, Err: err}
}

// Fields returns the schema of the table.
func (db *Reader) Fields() []*Field {
	return db.fields
}

// RecCount returns the number of records declared in the header, deleted
// records included.
func (db *Reader) RecCount() int64 {
	return int64(db.header.RecCount)
}

// RecNo returns the number of the last record read. Numbering starts from 1.
func (db *Reader) RecNo() int64 {
	return db.recNo
}

// ModDate returns the modification date of the table.
func (db *Reader) ModDate() time.Time {
	return db.header.modDate()
}

// Next returns the next active record, or io.EOF once every declared record
// has been read. Records flagged as deleted are skipped.
func (db *Reader) Next() (Record, error) {
	for {
		if db.err != nil {
			return nil, db.err
		}
		if db.recNo >= db.RecCount() {
			return nil, io.EOF
		}
		if _, err := io.ReadFull(db.r, db.rawBuffer); err != nil {
			db.err = db.readError(err, fmt.Sprintf("record %d", db.recNo+1))
			return nil, db.err
		}
		db.offset += int64(len(db.rawBuffer))
		db.recNo++
		if db.rawBuffer[0] == recDeleted {
			continue
		}
		rec := make(Record, len(db.fields))
		for _, f := range db.fields {
			v, err := f.value(db.rawBuffer, db.cm)
			if err != nil {
				return nil, &FieldError{Field: f.name, RecNo: db.recNo, Err: err}
			}
			rec[f.name] = v
		}
		return rec, nil
	}
}

// All ranges over the remaining records. Iteration stops after the first
// error, which is yielded with a nil record.
func (db *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := db.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the file opened by Open. It is a no-op for readers built
// with NewReader.
func (db *Reader) Close() error {
	if db.closer == nil {
		return nil
	}
	c := db.closer
	db.closer = nil
	return c.Close()
}
