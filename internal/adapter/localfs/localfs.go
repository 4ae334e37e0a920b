// Package localfs lists, writes and removes stage files on the local disk.
package localfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/victor-cakess/hometown/internal/domain"
)

// List returns the regular files in dir matching pattern, sorted by name.
// A missing directory yields an empty list.
func List(dir, pattern string) ([]domain.FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}
	sort.Strings(matches)

	files := make([]domain.FileInfo, 0, len(matches))
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if !st.Mode().IsRegular() {
			continue
		}
		files = append(files, domain.FileInfo{Name: filepath.Base(m), ModTime: st.ModTime()})
	}
	return files, nil
}

// Paths joins dir with each file name.
func Paths(dir string, files []domain.FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(dir, f.Name)
	}
	return out
}

// WriteFile writes data to path through a temporary file and a rename so a
// crash never leaves a truncated file under the final name.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", domain.ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrPersistence, path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write %s: %v", domain.ErrPersistence, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close %s: %v", domain.ErrPersistence, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename %s: %v", domain.ErrPersistence, path, err)
	}
	return nil
}

// RemoveMatching deletes every file in dir matching pattern and returns how
// many were removed.
func RemoveMatching(dir, pattern string) (int, error) {
	files, err := List(dir, pattern)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range Paths(dir, files) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: remove %s: %v", domain.ErrPersistence, p, err)
		}
		removed++
	}
	return removed, nil
}

// Remove deletes path, ignoring a missing file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrPersistence, path, err)
	}
	return nil
}

// ReadMetadata loads the extraction metadata file.
func ReadMetadata(path string) (domain.ExtractionMetadata, error) {
	var md domain.ExtractionMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		return md, err
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("%w: decode %s: %v", domain.ErrValidation, path, err)
	}
	return md, nil
}

// WriteMetadata replaces the extraction metadata file.
func WriteMetadata(path string, md domain.ExtractionMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", domain.ErrPersistence, err)
	}
	return WriteFile(path, data)
}
