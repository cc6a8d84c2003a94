package fileset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	s, err := Validate([]string{"01_02_capre_tabla1.dbf", "01_02_capre_tabla2.dbf", "01_02_capre_tabla3.dbf"})
	require.NoError(t, err)
	require.Equal(t, "01_02", s.Prefix)
	require.Equal(t, map[int]string{
		1: "01_02_capre_tabla1.dbf",
		2: "01_02_capre_tabla2.dbf",
		3: "01_02_capre_tabla3.dbf",
	}, s.Paths)
}

func TestValidateCaseAndPaths(t *testing.T) {
	s, err := Validate([]string{"/tmp/up/05_0111_CAPRE_TABLA3.DBF", "05_0111_Capre_Tabla1.dbf", "x/05_0111_capre_tabla2.dbf"})
	require.NoError(t, err)
	require.Equal(t, "05_0111", s.Prefix)
	require.Equal(t, "/tmp/up/05_0111_CAPRE_TABLA3.DBF", s.Paths[3])
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  error
	}{
		{"two files", []string{"01_02_capre_tabla1.dbf", "01_02_capre_tabla2.dbf"}, ErrFileCount},
		{"four files", []string{"01_02_capre_tabla1.dbf", "01_02_capre_tabla2.dbf", "01_02_capre_tabla3.dbf", "01_02_capre_tabla3.dbf"}, ErrFileCount},
		{"prefix mismatch", []string{"01_02_capre_tabla1.dbf", "01_03_capre_tabla2.dbf", "01_02_capre_tabla3.dbf"}, ErrPrefixMismatch},
		{"duplicate table", []string{"01_02_capre_tabla1.dbf", "01_02_capre_tabla1.dbf", "01_02_capre_tabla3.dbf"}, ErrDuplicateTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.files)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateUnrecognized(t *testing.T) {
	for _, bad := range []string{
		"01_02_capre_tabla4.dbf",
		"0102_capre_tabla1.dbf",
		"ab_02_capre_tabla1.dbf",
		"01_02_capre_tabla1.dbf.bak",
		"01_02_tabla1.dbf",
	} {
		_, err := Validate([]string{bad, "01_02_capre_tabla2.dbf", "01_02_capre_tabla3.dbf"})
		var ue *UnrecognizedFilenameError
		assert.ErrorAs(t, err, &ue, bad)
	}
}

func TestParseName(t *testing.T) {
	n, err := ParseName("dir/12_345_capre_tabla2.dbf")
	require.NoError(t, err)
	require.Equal(t, Name{Prefix: "12_345", Table: 2}, n)
	require.Equal(t, "12_345_capre_tabla2.dbf", FileName(n.Prefix, n.Table))
}

func TestFind(t *testing.T) {
	sets := Find([]string{
		"readme.txt",
		"02_01_capre_tabla1.dbf",
		"01_02_capre_tabla3.dbf",
		"01_02_capre_tabla1.dbf",
		"02_01_capre_tabla2.dbf",
		"01_02_capre_tabla2.dbf",
	})
	require.Len(t, sets, 1)
	require.Equal(t, "01_02", sets[0].Prefix)
}
