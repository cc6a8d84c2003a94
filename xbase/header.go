package xbase

import (
	"encoding/binary"
	"io"
	"time"
)

// header is the 32 byte file header.
type header struct {
	Id         byte
	ModYear    byte // years since 1900
	ModMonth   byte
	ModDay     byte
	RecCount   uint32
	DataOffset uint16 // header length, terminator included
	RecSize    uint16 // deletion flag included
	Filler     [20]byte
}

func newHeader() *header {
	return &header{Id: dbfId}
}

func (h *header) modDate() time.Time {
	if h.ModMonth == 0 || h.ModDay == 0 {
		return time.Time{}
	}
	return time.Date(1900+int(h.ModYear), time.Month(h.ModMonth), int(h.ModDay), 0, 0, 0, 0, time.UTC)
}

func (h *header) setModDate(d time.Time) {
	h.ModYear = byte(d.Year() - 1900)
	h.ModMonth = byte(d.Month())
	h.ModDay = byte(d.Day())
}

// fieldCount is the number of descriptors implied by DataOffset.
func (h *header) fieldCount() int {
	return (int(h.DataOffset) - headerSize - 1) / fieldSize
}

func (h *header) setFieldCount(count int) {
	h.DataOffset = uint16(headerSize + count*fieldSize + 1)
}

func (h *header) read(reader io.Reader) error {
	return binary.Read(reader, binary.LittleEndian, h)
}

func (h *header) write(writer io.Writer) error {
	return binary.Write(writer, binary.LittleEndian, h)
}
