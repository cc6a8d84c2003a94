package capre

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tsingsun/capre/internal/fileset"
	"github.com/tsingsun/capre/internal/staging"
	"github.com/tsingsun/capre/xbase"
)

const (
	defaultExportPrefix = "export"
	defaultHerdName     = "HATO"
)

// Exporter writes a staged session back as three DBF files.
type Exporter struct {
	Store   *staging.Store
	Options xbase.Options
	Log     *slog.Logger
}

// ExportResult lists the written files.
type ExportResult struct {
	Prefix   string
	FarmName string
	// Paths maps the table number to the written file.
	Paths map[int]string
}

// Export writes <prefix>_capre_tabla{1,2,3}.dbf into dir. If any table
// fails, none of the three files is left behind.
func (e *Exporter) Export(ctx context.Context, sessionID, dir string) (*ExportResult, error) {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	sess, err := e.Store.Open(sessionID)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{Prefix: sess.Meta().PrefixCode, FarmName: defaultHerdName, Paths: make(map[int]string, len(Tables))}
	if res.Prefix == "" {
		res.Prefix = defaultExportPrefix
	}
	if row, ok, err := sess.First("tabla1"); err != nil {
		return nil, err
	} else if ok {
		if name := herdOf(row).Nombre; name != "" {
			res.FarmName = name
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &xbase.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	for _, t := range Tables {
		res.Paths[t.Num] = filepath.Join(dir, fileset.FileName(res.Prefix, t.Num))
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, t := range Tables {
		path := res.Paths[t.Num]
		eg.Go(func() error {
			rows, err := sess.SelectAll(t.Name)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var recs []xbase.Record
			if t.Num == 1 {
				if recs, err = herdRecords(rows); err != nil {
					return fmt.Errorf("%s: %w", t.Name, err)
				}
			} else {
				recs = toRecords(t.Fields, rows)
			}
			if err := xbase.WriteFile(path, t.Fields, recs, e.Options); err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
			log.Debug("exported table", "table", t.Name, "rows", len(rows), "path", path)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, p := range res.Paths {
			_ = os.Remove(p)
		}
		return nil, err
	}
	log.Info("exported", "session", sessionID, "prefix", res.Prefix, "dir", dir)
	return res, nil
}

func toRecords(fields []*xbase.Field, rows []staging.Row) []xbase.Record {
	recs := make([]xbase.Record, len(rows))
	for i, row := range rows {
		rec := make(xbase.Record, len(fields))
		for _, f := range fields {
			rec[f.Name()] = row[strings.ToLower(f.Name())]
		}
		recs[i] = rec
	}
	return recs
}
