package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalDialer serves a directory tree as the transfer endpoint. It is meant
// for development setups where workers share a volume with the frontend.
type LocalDialer struct {
	root string
}

// NewLocalDialer prepares root as the endpoint directory.
func NewLocalDialer(root string) (*LocalDialer, error) {
	if root == "" {
		return nil, fmt.Errorf("local transfer root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create transfer root: %w", err)
	}
	return &LocalDialer{root: root}, nil
}

// Dial opens a session rooted at the endpoint directory.
func (d *LocalDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(&localBackend{root: d.root}, "/"), nil
}

type localBackend struct {
	root string
}

func (b *localBackend) path(p string) string {
	return filepath.Join(b.root, filepath.FromSlash(filepath.Clean("/"+p)))
}

func (b *localBackend) mkdirAll(p string) error {
	return os.MkdirAll(b.path(p), 0o755)
}

func (b *localBackend) store(p string, r io.Reader) error {
	file, err := os.Create(b.path(p))
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close() //nolint:errcheck
		return err
	}
	return file.Close()
}

func (b *localBackend) rename(from, to string) error {
	return os.Rename(b.path(from), b.path(to))
}

func (b *localBackend) retrieve(p string) (io.ReadCloser, error) {
	return os.Open(b.path(p))
}

func (b *localBackend) remove(p string) error {
	return os.Remove(b.path(p))
}

func (b *localBackend) close() error {
	return nil
}
