package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const tempDirName = ".tmp"

// LocalStorage persists files on disk under a base directory. Every relative
// path is resolved inside the base directory; ".." segments cannot escape it.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	if err := os.MkdirAll(filepath.Join(baseDir, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save atomically writes the given bytes to the relative path under the base dir.
func (s *LocalStorage) Save(rel string, data []byte) (string, error) {
	tmp, err := s.CreateTemp()
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := s.Commit(tmp.Name(), rel); err != nil {
		return "", err
	}
	return rel, nil
}

// CreateTemp opens a scratch file inside the storage area. Callers either
// Commit it or remove it.
func (s *LocalStorage) CreateTemp() (*os.File, error) {
	file, err := os.CreateTemp(filepath.Join(s.baseDir, tempDirName), "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return file, nil
}

// Commit moves a finished temp file to its final relative path.
func (s *LocalStorage) Commit(tmpPath, rel string) error {
	path := s.resolve(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("prepare directory: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("move file into place: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	file, err := os.Open(s.resolve(rel))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Exists reports whether a regular file is stored at rel.
func (s *LocalStorage) Exists(rel string) bool {
	info, err := os.Stat(s.resolve(rel))
	return err == nil && info.Mode().IsRegular()
}

// List returns the sorted names of regular files directly under relDir.
// A missing directory yields an empty list.
func (s *LocalStorage) List(relDir string) ([]string, error) {
	entries, err := os.ReadDir(s.resolve(relDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored file. It reports whether a file was removed.
func (s *LocalStorage) Delete(rel string) (bool, error) {
	if err := os.Remove(s.resolve(rel)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete file: %w", err)
	}
	return true, nil
}

func (s *LocalStorage) resolve(rel string) string {
	return filepath.Join(s.baseDir, filepath.Clean(string(filepath.Separator)+rel))
}
