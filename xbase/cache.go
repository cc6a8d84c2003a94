package xbase

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

type fieldDescription struct {
	name  string
	typ   reflect.Type
	tag   tag
	index []int
}

type fieldDescriptions []fieldDescription

type typeKey struct {
	tag string
	reflect.Type
}

// buildFields lists the tagged fields of a struct type in declaration order.
// Embedded structs without a tag, and fields tagged inline, are flattened.
func buildFields(k typeKey) (fieldDescriptions, error) {
	var out fieldDescriptions
	seen := make(map[string][]int)
	var walk func(typ reflect.Type, index []int, prefix string) error
	walk = func(typ reflect.Type, index []int, prefix string) error {
		for i := 0; i < typ.NumField(); i++ {
			sf := typ.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				// unexported field
				continue
			}
			tag := parseTag(k.tag, sf)
			if tag.ignore {
				continue
			}
			ft := walkType(sf.Type)
			idx := makeIndex(index, i)
			if ft.Kind() == reflect.Struct && ft != timeType && ((sf.Anonymous && tag.empty) || tag.inline) {
				if err := walk(ft, idx, prefix+tag.prefix); err != nil {
					return err
				}
				continue
			}
			if sf.PkgPath != "" {
				// ignore embedded unexported non-struct fields.
				continue
			}
			name := strings.ToUpper(prefix + tag.name)
			if prev, ok := seen[name]; ok {
				// the shallower field wins, like Go's own promotion rules
				if len(prev) < len(idx) {
					continue
				}
				return fmt.Errorf("xbase: %s: duplicate field %q", k.Type, name)
			}
			seen[name] = idx
			out = append(out, fieldDescription{name: name, typ: ft, tag: tag, index: idx})
		}
		return nil
	}
	if err := walk(k.Type, nil, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func makeIndex(index []int, v int) []int {
	out := make([]int, len(index), len(index)+1)
	copy(out, index)
	return append(out, v)
}

type cachedEntry struct {
	fields fieldDescriptions
	err    error
}

var fieldCache = struct {
	mtx sync.RWMutex
	m   map[typeKey]cachedEntry
}{m: make(map[typeKey]cachedEntry)}

func cachedFields(k typeKey) (fieldDescriptions, error) {
	fieldCache.mtx.RLock()
	e, ok := fieldCache.m[k]
	fieldCache.mtx.RUnlock()

	if ok {
		return e.fields, e.err
	}

	fields, err := buildFields(k)

	fieldCache.mtx.Lock()
	fieldCache.m[k] = cachedEntry{fields: fields, err: err}
	fieldCache.mtx.Unlock()

	return fields, err
}

// Fields derives a table schema from the dbf tags of a struct type.
//
//	type Animal struct {
//		Code  string    `dbf:"CODINT,type:C,len:10"`
//		Milk  float64   `dbf:"ULTLEC,len:6,dec:1"`
//		Birth time.Time `dbf:"FECPARTO"`
//	}
func Fields(v interface{}) ([]*Field, error) {
	typ, err := valueType(v)
	if err != nil {
		return nil, err
	}
	descs, err := cachedFields(typeKey{defaultTag, typ})
	if err != nil {
		return nil, err
	}
	fields := make([]*Field, 0, len(descs))
	for _, d := range descs {
		f, err := NewField(d.name, d.tag.dbfType, d.tag.length, d.tag.decimal)
		if err != nil {
			return nil, fmt.Errorf("xbase: %s.%s: %w", typ, d.name, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
