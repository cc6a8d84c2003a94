package capre

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

var nameCleaner = strings.NewReplacer(" ", "_", "/", "-", `\`, "-")

// BundleName returns the archive name <prefix>_<farm>.zip with the farm name
// made safe for a file name.
func BundleName(res *ExportResult) string {
	return fmt.Sprintf("%s_%s.zip", res.Prefix, nameCleaner.Replace(res.FarmName))
}

// Bundle writes the exported files of res to w as a deflated ZIP archive.
func Bundle(w io.Writer, res *ExportResult) error {
	nums := make([]int, 0, len(res.Paths))
	for n := range res.Paths {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	zw := zip.NewWriter(w)
	for _, n := range nums {
		if err := addFile(zw, res.Paths[n]); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	modified := time.Now()
	if fi, err := f.Stat(); err == nil {
		modified = fi.ModTime()
	}
	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	return nil
}

// WriteBundle writes the archive of res into dir and returns its path. A
// failed archive is removed.
func WriteBundle(res *ExportResult, dir string) (string, error) {
	path := filepath.Join(dir, BundleName(res))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Bundle(f, res); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
