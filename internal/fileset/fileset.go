// Package fileset validates the three table files of one CAPRE extraction
// before any of them is read.
package fileset

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Tables are the table numbers every set must contain exactly once.
var Tables = []int{1, 2, 3}

var nameRe = regexp.MustCompile(`(?i)^(\d+_\d+)_capre_tabla([123])\.dbf$`)

var (
	ErrFileCount      = errors.New("fileset: exactly 3 .dbf files are required")
	ErrPrefixMismatch = errors.New("fileset: files belong to different farms")
	ErrDuplicateTable = errors.New("fileset: table given more than once")
	ErrMissingTable   = errors.New("fileset: tabla1, tabla2 and tabla3 are all required")
)

// UnrecognizedFilenameError is returned for a name that does not follow
// <prefix>_capre_tabla<N>.dbf.
type UnrecognizedFilenameError struct {
	Name string
}

func (e *UnrecognizedFilenameError) Error() string {
	return fmt.Sprintf("fileset: unrecognized file name %q, want <prefix>_capre_tabla<1|2|3>.dbf", e.Name)
}

// Name is a parsed table file name.
type Name struct {
	Prefix string
	Table  int
}

// FileName returns the canonical file name of table in the set prefix.
func FileName(prefix string, table int) string {
	return fmt.Sprintf("%s_capre_tabla%d.dbf", prefix, table)
}

// ParseName extracts the farm prefix and the table number from the base name
// of path.
func ParseName(path string) (Name, error) {
	base := filepath.Base(path)
	m := nameRe.FindStringSubmatch(base)
	if m == nil {
		return Name{}, &UnrecognizedFilenameError{Name: base}
	}
	n, _ := strconv.Atoi(m[2])
	return Name{Prefix: m[1], Table: n}, nil
}

// Set is a validated group of table files sharing one prefix.
type Set struct {
	Prefix string
	// Paths maps the table number to the path it was offered under.
	Paths map[int]string
}

// Validate checks that paths is exactly one file for each of tables 1, 2
// and 3, all with the same prefix. No file is opened.
func Validate(paths []string) (*Set, error) {
	if len(paths) != len(Tables) {
		return nil, fmt.Errorf("%w: got %d", ErrFileCount, len(paths))
	}
	s := &Set{Paths: make(map[int]string, len(Tables))}
	for _, p := range paths {
		n, err := ParseName(p)
		if err != nil {
			return nil, err
		}
		if s.Prefix == "" {
			s.Prefix = n.Prefix
		} else if s.Prefix != n.Prefix {
			return nil, fmt.Errorf("%w: %q and %q", ErrPrefixMismatch, s.Prefix, n.Prefix)
		}
		if prev, ok := s.Paths[n.Table]; ok {
			return nil, fmt.Errorf("%w: tabla%d in %q and %q", ErrDuplicateTable, n.Table, filepath.Base(prev), filepath.Base(p))
		}
		s.Paths[n.Table] = p
	}
	for _, t := range Tables {
		if _, ok := s.Paths[t]; !ok {
			return nil, fmt.Errorf("%w: tabla%d", ErrMissingTable, t)
		}
	}
	return s, nil
}

// Find groups candidate names by prefix and returns the complete sets, in
// prefix order. Names that do not match the convention are ignored.
func Find(paths []string) []*Set {
	byPrefix := make(map[string][]string)
	for _, p := range paths {
		n, err := ParseName(p)
		if err != nil {
			continue
		}
		byPrefix[n.Prefix] = append(byPrefix[n.Prefix], p)
	}
	var out []*Set
	for _, group := range byPrefix {
		if s, err := Validate(group); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}
