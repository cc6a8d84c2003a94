package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tsingsun/capre/internal/config"
	"github.com/tsingsun/capre/xbase"
)

type inspectField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Len  int    `yaml:"len"`
	Dec  int    `yaml:"dec,omitempty"`
}

type inspectReport struct {
	File     string                   `yaml:"file"`
	Modified string                   `yaml:"modified,omitempty"`
	Records  int64                    `yaml:"records"`
	Fields   []inspectField           `yaml:"fields"`
	Rows     []map[string]interface{} `yaml:"rows,omitempty"`
}

func cmdInspect(w io.Writer, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	n := fs.Int("n", 10, "Number of records to dump")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: capre inspect [-n N] FILE")
	}
	return inspect(w, fs.Arg(0), *n, cfg.Options())
}

// inspect writes a YAML report of the header, the fields and the first n
// live records of the file at path.
func inspect(w io.Writer, path string, n int, opts xbase.Options) error {
	db, err := xbase.Open(path, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	rep := inspectReport{File: path, Records: db.RecCount()}
	if d := db.ModDate(); !d.IsZero() {
		rep.Modified = d.Format(time.DateOnly)
	}
	for _, f := range db.Fields() {
		rep.Fields = append(rep.Fields, inspectField{Name: f.Name(), Type: f.Type().String(), Len: f.Len(), Dec: f.Dec()})
	}
	for rec, err := range db.All() {
		if len(rep.Rows) >= n {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", db.RecNo(), err)
		}
		row := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			if t, ok := v.(time.Time); ok {
				v = t.Format(time.DateOnly)
			}
			row[k] = v
		}
		rep.Rows = append(rep.Rows, row)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&rep); err != nil {
		return err
	}
	return enc.Close()
}
