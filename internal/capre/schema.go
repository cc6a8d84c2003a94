// Package capre moves the three CAPRE tables between DBF files and the
// staging store.
//
// tabla1 holds the herd header, tabla2 and tabla3 hold animals with the same
// layout.
package capre

import (
	"fmt"
	"strings"
	"time"

	"github.com/tsingsun/capre/xbase"
)

// Herd is the layout of tabla1 as it is exported.
type Herd struct {
	Hato      string     `dbf:"HATO,len:10"`
	Nombre    string     `dbf:"NOMBRE,len:30"`
	Propieta  string     `dbf:"PROPIETA,len:30"`
	FecUltPrb *time.Time `dbf:"FECULTPRB"`
	FecPrbAct *time.Time `dbf:"FECPRBACT"`
	SumLec    *int64     `dbf:"SUMLEC,len:10"`
	ElaboraA  string     `dbf:"ELABORAA,len:20"`
}

// Animal is the layout of tabla2 and tabla3.
type Animal struct {
	CodInt    string     `dbf:"CODINT,len:10"`
	Orejera   string     `dbf:"OREJERA,len:10"`
	Nombre    string     `dbf:"NOMBRE,len:15"`
	Registro  string     `dbf:"REGISTRO,len:15"`
	Estado    string     `dbf:"ESTADO,len:1"`
	FecEst    *time.Time `dbf:"FECEST"`
	UltLec    *float64   `dbf:"ULTLEC,len:6,dec:1"`
	DiaLec    *int64     `dbf:"DIALEC,len:4"`
	NumSer    *int64     `dbf:"NUMSER,len:3"`
	FecUltSer *time.Time `dbf:"FECULTSER"`
	Pac       string     `dbf:"PAC,len:1"`
	NumReb    *int64     `dbf:"NUMREB,len:3"`
	FecSer    *time.Time `dbf:"FECSER"`
	Toro      string     `dbf:"TORO,len:15"`
	FecSeca   *time.Time `dbf:"FECSECA"`
	FecChp    *time.Time `dbf:"FECCHP"`
	PaNew     string     `dbf:"PANEW,len:1"`
	FecParto  *time.Time `dbf:"FECPARTO"`
	OreCria1  string     `dbf:"ORECRIA1,len:10"`
	NomCria1  string     `dbf:"NOMCRIA1,len:15"`
	SexCria1  string     `dbf:"SEXCRIA1,len:1"`
	OreCria2  string     `dbf:"ORECRIA2,len:10"`
	NomCria2  string     `dbf:"NOMCRIA2,len:15"`
	SexCria2  string     `dbf:"SEXCRIA2,len:1"`
	Cart      string     `dbf:"CART,len:1"`
	FecSale   *time.Time `dbf:"FECSALE"`
	MotSale   string     `dbf:"MOTSALE,len:1"`
	Ord1      *float64   `dbf:"ORD1,len:6,dec:1"`
	Ord2      *float64   `dbf:"ORD2,len:6,dec:1"`
	Ord3      *float64   `dbf:"ORD3,len:6,dec:1"`
	TipoParto string     `dbf:"TIPOPARTO,len:1"`
	Hacer1    string     `dbf:"HACER1,len:1"`
	Hacer2    string     `dbf:"HACER2,len:1"`
	Calor     string     `dbf:"CALOR,len:1"`
	Nuevo     *int64     `dbf:"NUEVO,len:1"`
	CodTor    string     `dbf:"CODTOR,len:10"`
	Clasi     string     `dbf:"CLASI,len:5"`
	Ptos      *int64     `dbf:"PTOS,len:4"`
}

// Table describes one of the three files of a set.
type Table struct {
	Num  int
	Name string
	// Fields is the layout written on export.
	Fields []*xbase.Field
	// Columns are the staged columns read on import, lowercase.
	Columns []string
}

// Tables lists tabla1, tabla2 and tabla3 in import order.
var Tables = []*Table{
	{Num: 1, Name: "tabla1", Fields: mustFields(Herd{}), Columns: herdColumns},
	{Num: 2, Name: "tabla2", Fields: mustFields(Animal{})},
	{Num: 3, Name: "tabla3", Fields: mustFields(Animal{})},
}

// herdColumns keeps ELABORAU, which the exported layout drops.
var herdColumns = []string{
	"hato", "nombre", "propieta", "fecultprb",
	"elaborau", "fecprbact", "elaboraa", "sumlec",
}

func init() {
	for _, t := range Tables {
		if t.Columns == nil {
			t.Columns = columnsOf(t.Fields)
		}
	}
}

// TableByNum returns the table numbered n.
func TableByNum(n int) (*Table, error) {
	for _, t := range Tables {
		if t.Num == n {
			return t, nil
		}
	}
	return nil, fmt.Errorf("capre: no table %d", n)
}

func columnsOf(fields []*xbase.Field) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = strings.ToLower(f.Name())
	}
	return cols
}

func mustFields(v interface{}) []*xbase.Field {
	fields, err := xbase.Fields(v)
	if err != nil {
		panic(err)
	}
	return fields
}
