package staging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"
)

var tableRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Row is one staged row keyed by lowercase column name. Numbers are
// json.Number, dates are YYYY-MM-DD strings.
type Row map[string]interface{}

// Session is one staged table set. It is safe for concurrent use.
type Session struct {
	id  ksid.ID
	dir string

	mu   sync.RWMutex
	meta Meta
}

// ID returns the session id.
func (sess *Session) ID() string {
	return sess.id.String()
}

// Meta returns a copy of the session metadata.
func (sess *Session) Meta() Meta {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.meta
}

// SetFarmName records the farm name of the session.
func (sess *Session) SetFarmName(name string) error {
	return sess.update(func(m *Meta) { m.FarmName = name })
}

func (sess *Session) update(fn func(*Meta)) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	prev := sess.meta
	fn(&sess.meta)
	if err := sess.saveMeta(); err != nil {
		sess.meta = prev
		return err
	}
	return nil
}

func (sess *Session) tablePath(table string) (string, error) {
	if !tableRe.MatchString(table) {
		return "", fmt.Errorf("staging: invalid table name %q", table)
	}
	return filepath.Join(sess.dir, table+".tbl"), nil
}

// Insert appends rows to table as one block. Each row holds one value per
// column. Values are normalised before storage: time.Time becomes
// YYYY-MM-DD, bool becomes 1 or 0 and strings are trimmed.
func (sess *Session) Insert(table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	path, err := sess.tablePath(table)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, values := range rows {
		if len(values) != len(columns) {
			return fmt.Errorf("staging: %s row %d has %d values for %d columns", table, i, len(values), len(columns))
		}
		row := make(Row, len(columns))
		for j, c := range columns {
			row[strings.ToLower(c)] = Normalize(values[j])
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to marshal %s row %d: %w", table, i, err)
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	if err := writeBlock(f, buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s block: %w", table, err)
	}
	return f.Close()
}

// Normalize converts a decoded DBF value to its staged form.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.Format(time.DateOnly)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.DateOnly)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return strings.TrimSpace(x)
	}
	return v
}

// Rows iterates over the rows of table in insertion order. A table that was
// never written is empty.
func (sess *Session) Rows(table string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		path, err := sess.tablePath(table)
		if err != nil {
			yield(nil, err)
			return
		}
		sess.mu.RLock()
		defer sess.mu.RUnlock()

		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, fmt.Errorf("failed to open table file %s: %w", path, err))
			}
			return
		}
		defer func() {
			_ = f.Close()
		}()

		r := bufio.NewReader(f)
		for {
			block, err := readBlock(r)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", path, err))
				return
			}
			dec := json.NewDecoder(bytes.NewReader(block))
			dec.UseNumber()
			for {
				var row Row
				if err := dec.Decode(&row); err == io.EOF {
					break
				} else if err != nil {
					yield(nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err))
					return
				}
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// SelectAll returns every row of table.
func (sess *Session) SelectAll(table string) ([]Row, error) {
	var rows []Row
	for row, err := range sess.Rows(table) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Count returns the number of rows in table.
func (sess *Session) Count(table string) (int, error) {
	n := 0
	for _, err := range sess.Rows(table) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// First returns the first row of table, or false if it is empty.
func (sess *Session) First(table string) (Row, bool, error) {
	for row, err := range sess.Rows(table) {
		if err != nil {
			return nil, false, err
		}
		return row, true, nil
	}
	return nil, false, nil
}
