package capre

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tsingsun/capre/internal/staging"
	"github.com/tsingsun/capre/xbase"
)

// herdOf reads a staged tabla1 row. Dates that do not parse and non numeric
// sums become nil.
func herdOf(row staging.Row) Herd {
	return Herd{
		Hato:      rowString(row, "hato"),
		Nombre:    rowString(row, "nombre"),
		Propieta:  rowString(row, "propieta"),
		FecUltPrb: rowDate(row, "fecultprb"),
		FecPrbAct: rowDate(row, "fecprbact"),
		SumLec:    rowInt(row, "sumlec"),
		ElaboraA:  rowString(row, "elaboraa"),
	}
}

// herdRecords converts staged tabla1 rows to records of the export layout.
func herdRecords(rows []staging.Row) ([]xbase.Record, error) {
	recs := make([]xbase.Record, len(rows))
	for i, row := range rows {
		rec, err := xbase.Marshal(herdOf(row))
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

func rowString(row staging.Row, col string) string {
	s, _ := row[col].(string)
	return strings.TrimSpace(s)
}

func rowDate(row staging.Row, col string) *time.Time {
	s := rowString(row, col)
	if s == "" {
		return nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &d
}

func rowInt(row staging.Row, col string) *int64 {
	var i int64
	switch v := row[col].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, err := v.Float64()
			if err != nil {
				return nil
			}
			n = int64(f)
		}
		i = n
	case int64:
		i = v
	case int:
		i = int64(v)
	case float64:
		i = int64(v)
	default:
		return nil
	}
	return &i
}

func formatDay(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}
