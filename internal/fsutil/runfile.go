package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// RunFileSuffixes are the file suffixes recognized as run files, plain first.
var RunFileSuffixes = []string{".json", ".json.gz", ".json.zst"}

// IsRunFile reports whether name carries one of RunFileSuffixes.
func IsRunFile(name string) bool {
	for _, suffix := range RunFileSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// RunFileStem strips the run-file suffix from the base name of path.
func RunFileStem(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".json.zst", ".json.gz", ".json"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// ListRunFiles returns the run files directly inside dir, sorted by name. Names in exclude are skipped.
func ListRunFiles(dir string, exclude ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsRunFile(entry.Name()) {
			continue
		}
		if _, ok := skip[entry.Name()]; ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadRunFile reads path, decompressing .gz and .zst transparently.
func ReadRunFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch {
	case strings.HasSuffix(path, ".zst"):
		decoder, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer decoder.Close()
		data, err := io.ReadAll(decoder)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", filepath.Base(path), err)
		}
		return data, nil
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", filepath.Base(path), err)
		}
		return data, nil
	}
	return io.ReadAll(f)
}

// WriteZstd compresses data into path.
func WriteZstd(path string, data []byte) error {
	dest, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	return dest.Close()
}
