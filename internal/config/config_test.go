package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, &Config{
		DataDir:     "./data",
		UploadDir:   "./uploads",
		ExportDir:   "./exports",
		CodePage:    28591,
		BatchSize:   500,
		MaxFileSize: 16 << 20,
		LogLevel:    "info",
	}, cfg)
	l, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, l)
	require.Equal(t, 28591, cfg.Options().CodePage)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capre.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/capre/data
code_page: 850
batch_size: 100
log_level: debug
`), 0o644))
	t.Setenv("CAPRE_BATCH_SIZE", "250")
	t.Setenv("CAPRE_DEVICE_ID", "station-1")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/capre/data", cfg.DataDir)
	require.Equal(t, "./exports", cfg.ExportDir)
	require.Equal(t, 850, cfg.CodePage)
	require.Equal(t, 250, cfg.BatchSize)
	require.Equal(t, "station-1", cfg.DeviceID)
	l, err := cfg.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, l)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	for _, body := range []string{
		"code_page: 932\n",
		"batch_size: 0\n",
		"log_level: loud\n",
		"max_file_size: -1\n",
	} {
		path := filepath.Join(t.TempDir(), "capre.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		require.Error(t, err, body)
	}
}
