package capre

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tsingsun/capre/internal/fileset"
	"github.com/tsingsun/capre/internal/staging"
	"github.com/tsingsun/capre/xbase"
)

const (
	// DefaultBatchSize is the number of rows staged per block.
	DefaultBatchSize = 500

	defaultFarmName = "Sin nombre"
)

var (
	ErrSessionExists = errors.New("capre: a session for this herd already exists")
	ErrFileTooLarge  = errors.New("capre: file too large")
)

// Importer stages a validated file set.
type Importer struct {
	Store *staging.Store
	// Options select the code page the files were written in.
	Options xbase.Options
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// MaxFileSize rejects larger files before reading them. Zero disables
	// the check.
	MaxFileSize int64
	// DeviceID scopes the duplicate check and is recorded on the session.
	DeviceID string
	Log      *slog.Logger
}

// ImportResult summarises a successful import.
type ImportResult struct {
	SessionID string
	Prefix    string
	FarmName  string
	// Counts maps the table name to the number of staged rows.
	Counts map[string]int
}

func (imp *Importer) log() *slog.Logger {
	if imp.Log == nil {
		return slog.Default()
	}
	return imp.Log
}

// Import stages the three tables of set in a new session. Either every table
// is staged or the session is deleted.
func (imp *Importer) Import(ctx context.Context, set *fileset.Set) (_ *ImportResult, err error) {
	exists, farm, err := imp.Store.ExistsByPrefix(set.Prefix, imp.DeviceID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q (%s); delete it before importing", ErrSessionExists, set.Prefix, farm)
	}
	for _, t := range Tables {
		path, ok := set.Paths[t.Num]
		if !ok {
			return nil, fmt.Errorf("%w: tabla%d", fileset.ErrMissingTable, t.Num)
		}
		if err := imp.checkSize(path); err != nil {
			return nil, err
		}
	}

	sess, err := imp.Store.Create(set.Prefix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if derr := imp.Store.Delete(sess.ID()); derr != nil {
				imp.log().Error("failed to delete partial session", "id", sess.ID(), "err", derr)
			}
		}
	}()

	res := &ImportResult{SessionID: sess.ID(), Prefix: set.Prefix, FarmName: defaultFarmName, Counts: make(map[string]int, len(Tables))}
	for _, t := range Tables {
		n, err := imp.importTable(ctx, sess, t, set.Paths[t.Num])
		if err != nil {
			return nil, err
		}
		res.Counts[t.Name] = n
		if t.Num == 1 {
			if row, ok, err := sess.First(t.Name); err != nil {
				return nil, err
			} else if ok {
				if name, _ := row["nombre"].(string); name != "" {
					res.FarmName = name
				}
			}
		}
	}
	if err := sess.SetFarmName(res.FarmName); err != nil {
		return nil, err
	}
	if imp.DeviceID != "" {
		if err := imp.Store.SetDevice(sess.ID(), imp.DeviceID); err != nil {
			return nil, err
		}
	}
	imp.log().Info("imported", "session", res.SessionID, "prefix", res.Prefix, "farm", res.FarmName,
		"tabla1", res.Counts["tabla1"], "tabla2", res.Counts["tabla2"], "tabla3", res.Counts["tabla3"])
	return res, nil
}

func (imp *Importer) checkSize(path string) error {
	if imp.MaxFileSize <= 0 {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return &xbase.IOError{Op: "stat", Path: path, Err: err}
	}
	if fi.Size() > imp.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, fi.Size(), imp.MaxFileSize)
	}
	return nil
}

func (imp *Importer) importTable(ctx context.Context, sess *staging.Session, t *Table, path string) (int, error) {
	db, err := xbase.Open(path, imp.Options)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = db.Close()
	}()

	size := imp.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batch := make([][]interface{}, 0, size)
	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sess.Insert(t.Name, t.Columns, batch); err != nil {
			return err
		}
		imp.log().Debug("staged batch", "table", t.Name, "rows", len(batch))
		batch = batch[:0]
		return nil
	}

	count := 0
	for rec, err := range db.All() {
		if err != nil {
			return count, fmt.Errorf("%s: %w", t.Name, err)
		}
		batch = append(batch, columnValues(rec, t.Columns))
		count++
		if len(batch) >= size {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// columnValues picks the values of columns out of rec. Field names match
// case-insensitively and columns missing from the file are null.
func columnValues(rec xbase.Record, columns []string) []interface{} {
	upper := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		upper[strings.ToUpper(k)] = v
	}
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = upper[strings.ToUpper(c)]
	}
	return values
}
