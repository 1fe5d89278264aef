package storage

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidName is returned when a name has no usable final path component.
var ErrInvalidName = errors.New("invalid file name")

// SanitizeFilename reduces name to its final path component. Both slash and
// backslash count as separators.
func SanitizeFilename(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	return base, nil
}

// AttachmentStore keeps auxiliary artifacts of a file, one directory per
// content hash.
type AttachmentStore struct {
	fs *LocalStorage
}

// NewAttachmentStore prepares the attachment area under baseDir.
func NewAttachmentStore(baseDir string) (*AttachmentStore, error) {
	fs, err := NewLocalStorage(baseDir)
	if err != nil {
		return nil, err
	}
	return &AttachmentStore{fs: fs}, nil
}

// Put stores data under key using the sanitized filename and returns that name.
func (a *AttachmentStore) Put(key, filename string, data []byte) (string, error) {
	dir, err := checkKey(key)
	if err != nil {
		return "", err
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	if _, err := a.fs.Save(path.Join(dir, name), data); err != nil {
		return "", err
	}
	return name, nil
}

// List returns the attachment names stored under key.
func (a *AttachmentStore) List(key string) ([]string, error) {
	dir, err := checkKey(key)
	if err != nil {
		return nil, err
	}
	return a.fs.List(dir)
}

// Remove deletes the named attachment and returns the names actually removed.
func (a *AttachmentStore) Remove(key, filename string) ([]string, error) {
	dir, err := checkKey(key)
	if err != nil {
		return nil, err
	}
	name, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	removed, err := a.fs.Delete(path.Join(dir, name))
	if err != nil {
		return nil, err
	}
	if !removed {
		return []string{}, nil
	}
	return []string{name}, nil
}

func checkKey(key string) (string, error) {
	name, err := SanitizeFilename(key)
	if err != nil || name != key || strings.HasPrefix(key, ".") {
		return "", ErrInvalidName
	}
	return key, nil
}
