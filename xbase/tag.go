package xbase

import (
	"reflect"
	"strconv"
	"strings"
)

const defaultTag = "dbf"

// tag is a parsed `dbf:"NAME,type:C,len:20,dec:2"` struct tag.
type tag struct {
	name    string
	prefix  string
	empty   bool
	ignore  bool
	inline  bool
	dbfType string
	length  int //field length
	decimal int //decimal count
}

func parseTag(tagname string, field reflect.StructField) (t tag) {
	tags := strings.Split(field.Tag.Get(tagname), ",")
	if len(tags) == 1 && tags[0] == "" {
		t.name = field.Name
		t.empty = true
		t.dbfType = inferType(field.Type)
		return
	}

	switch tags[0] {
	case "-":
		t.ignore = true
		return
	case "":
		t.name = field.Name
	default:
		t.name = tags[0]
	}
	for _, tagOpt := range tags[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(tagOpt), ":")
		switch key {
		case "inline":
			if walkType(field.Type).Kind() == reflect.Struct {
				t.inline = true
				t.prefix = tags[0]
			}
		case "len", "length":
			t.length, _ = strconv.Atoi(val)
		case "dec", "decimal":
			t.decimal, _ = strconv.Atoi(val)
		case "type":
			if val != "" {
				//only 1 byte
				t.dbfType = strings.ToUpper(val[:1])
			}
		}
	}
	if t.dbfType == "" {
		t.dbfType = inferType(field.Type)
	}
	return
}

// inferType picks the field type of a Go type once, when the schema is built.
func inferType(typ reflect.Type) string {
	typ = walkType(typ)
	if typ == timeType {
		return string(FieldType_Date)
	}
	switch typ.Kind() {
	case reflect.String:
		return string(FieldType_Character)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return string(FieldType_Numeric)
	case reflect.Bool:
		return string(FieldType_Logical)
	}
	return ""
}
