package staging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/golang/snappy"
)

// Each block in a table file has:
//
//	length: uvarint
//	data:   uint8[length]
//	type:   uint8
//	crc:    uint32, castagnoli over data and type
const blockTrailerSize = 5

const maxBlockSize = math.MaxInt32

const (
	noCompression     byte = 0
	snappyCompression byte = 1
)

var (
	ErrCorrupt = errors.New("staging: corrupted table file")

	crcTable = crc32.MakeTable(crc32.Castagnoli)
)

// writeBlock appends raw to w, snappy-compressed when that saves at least
// an eighth of its size.
func writeBlock(w io.Writer, raw []byte) error {
	contents, t := raw, noCompression
	if compressed := snappy.Encode(nil, raw); len(compressed) < len(raw)-len(raw)/8 {
		contents, t = compressed, snappyCompression
	}
	buf := make([]byte, 0, binary.MaxVarintLen64+len(contents)+blockTrailerSize)
	buf = binary.AppendUvarint(buf, uint64(len(contents)))
	buf = append(buf, contents...)
	buf = append(buf, t)
	crc := crc32.Update(crc32.Checksum(contents, crcTable), crcTable, []byte{t})
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	_, err := w.Write(buf)
	return err
}

// readBlock returns the uncompressed contents of the next block, or io.EOF
// at a clean end of file.
func readBlock(r *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, corrupt("truncated block length", err)
	}
	if n > maxBlockSize {
		return nil, corrupt(fmt.Sprintf("bad block length %d", n), nil)
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)+blockTrailerSize); err != nil {
		return nil, corrupt("truncated block read", err)
	}
	contents := buf.Bytes()
	t := contents[n]
	want := binary.LittleEndian.Uint32(contents[n+1:])
	if crc32.Checksum(contents[:n+1], crcTable) != want {
		return nil, corrupt("block checksum mismatch", nil)
	}
	switch t {
	case noCompression:
		return contents[:n], nil
	case snappyCompression:
		data, err := snappy.Decode(nil, contents[:n])
		if err != nil {
			return nil, corrupt("corrupted compressed block contents", err)
		}
		return data, nil
	}
	return nil, corrupt(fmt.Sprintf("bad block type %d", t), nil)
}

func corrupt(msg string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, msg, err)
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, msg)
}
