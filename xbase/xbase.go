// Package xbase reads and writes dBASE III (.dbf) tables without memo files.
//
// A file is a 32 byte header, one 32 byte descriptor per field, a 0x0D
// terminator, fixed width records prefixed by a deletion flag, and a trailing
// 0x1A marker. Text fields are stored in a single byte code page which is
// chosen explicitly through Options on both sides of an exchange.
package xbase

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	dbfId     byte = 0x03
	headerEnd byte = 0x0D
	fileEnd   byte = 0x1A
)

const (
	fieldSize  = 32
	headerSize = 32
)

const (
	recActive  byte = ' '
	recDeleted byte = '*'
)

// DefaultCodePage is Latin-1, the code page of the legacy CAPRE files.
const DefaultCodePage = 28591

// Record is one row keyed by field name. A nil value is a null field.
type Record map[string]interface{}

// Options configures a Reader or a Writer.
type Options struct {
	// CodePage selects the encoding of Character fields. Zero means DefaultCodePage.
	CodePage int
	// ModDate is written as the last modification date. Zero means now.
	ModDate time.Time
}

func (o Options) charmap() (*charmap.Charmap, error) {
	if o.CodePage == 0 {
		return charmap.ISO8859_1, nil
	}
	return CodePage(o.CodePage)
}

func (o Options) modDate() time.Time {
	if o.ModDate.IsZero() {
		return time.Now()
	}
	return o.ModDate
}

type cPage struct {
	page int
	cm   *charmap.Charmap
}

var cPages = []cPage{
	{page: 437, cm: charmap.CodePage437},         // US MS-DOS
	{page: 850, cm: charmap.CodePage850},         // International MS-DOS
	{page: 1252, cm: charmap.Windows1252},        // Windows ANSI
	{page: 10000, cm: charmap.Macintosh},         // Standard Macintosh
	{page: 852, cm: charmap.CodePage852},         // Eastern European MS-DOS
	{page: 866, cm: charmap.CodePage866},         // Russian MS-DOS
	{page: 865, cm: charmap.CodePage865},         // Nordic MS-DOS
	{page: 1255, cm: charmap.Windows1255},        // Hebrew Windows
	{page: 1256, cm: charmap.Windows1256},        // Arabic Windows
	{page: 10007, cm: charmap.MacintoshCyrillic}, // Russian Macintosh
	{page: 1250, cm: charmap.Windows1250},        // Eastern European Windows
	{page: 1251, cm: charmap.Windows1251},        // Russian Windows
	{page: 1254, cm: charmap.Windows1254},        // Turkish Windows
	{page: 1253, cm: charmap.Windows1253},        // Greek Windows
	{page: 28591, cm: charmap.ISO8859_1},         // Latin-1
	{page: 28605, cm: charmap.ISO8859_15},        // Latin-9
}

// CodePage returns the character map of a supported code page.
//
// Supported code pages:
//
//	437   - US MS-DOS
//	850   - International MS-DOS
//	1252  - Windows ANSI
//	10000 - Standard Macintosh
//	852   - Eastern European MS-DOS
//	866   - Russian MS-DOS
//	865   - Nordic MS-DOS
//	1255  - Hebrew Windows
//	1256  - Arabic Windows
//	10007 - Russian Macintosh
//	1250  - Eastern European Windows
//	1251  - Russian Windows
//	1254  - Turkish Windows
//	1253  - Greek Windows
//	28591 - ISO 8859-1 (Latin-1)
//	28605 - ISO 8859-15 (Latin-9)
func CodePage(page int) (*charmap.Charmap, error) {
	for i := range cPages {
		if cPages[i].page == page {
			return cPages[i].cm, nil
		}
	}
	return nil, fmt.Errorf("xbase: unsupported code page %d", page)
}

// WriteFile creates name and writes fields and rows to it as a complete DBF
// table. An existing file is overwritten. On failure the file may be left
// incomplete and must be discarded by the caller.
func WriteFile(name string, fields []*Field, rows []Record, opts Options) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return &IOError{Op: "create", Path: name, Err: err}
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Path: name, Err: cerr}
		}
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = name
		}
	}()

	w, err := NewWriter(file, fields, len(rows), opts)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err = w.Write(row); err != nil {
			return err
		}
	}
	return w.Close()
}

// Open opens an existing DBF file for sequential reading. The returned Reader
// owns the file and releases it on Close.
func Open(name string, opts Options) (*Reader, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, &IOError{Op: "open", Path: name, Err: err}
	}
	r, err := NewReader(file, opts)
	if err != nil {
		_ = file.Close()
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = name
		}
		return nil, err
	}
	r.closer = file
	r.name = name
	return r, nil
}
