package xbase

// RecordReader provides sequential access to the records of a table.
//
// If there is no data left to be read, Next returns (nil, io.EOF).
//
// It is implemented by Reader.
type RecordReader interface {
	Fields() []*Field
	Next() (Record, error)
}

// RecordWriter provides the interface for writing a single DBF record.
//
// It is implemented by Writer.
type RecordWriter interface {
	Write(Record) error
}

// Marshaler is the interface implemented by types that can marshal themselves
// into the text of a Character field.
type Marshaler interface {
	MarshalDBF() ([]byte, error)
}

var (
	_ RecordReader = (*Reader)(nil)
	_ RecordWriter = (*Writer)(nil)
)
