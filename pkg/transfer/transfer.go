// Package transfer moves scan artifacts to and from the worker cluster's
// file-transfer endpoint. Objects live in one directory per scan and are
// named by the sha256 of their content.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/pkg/config"
)

// Supported protocols.
const (
	ProtocolFTP   = "ftp"
	ProtocolFTPS  = "ftps"
	ProtocolSFTP  = "sftp"
	ProtocolLocal = "local"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transfer connection closed")

// Conn is one open connection to the transfer endpoint.
type Conn interface {
	// MakeDir creates dir if it does not exist yet.
	MakeDir(dir string) error
	// Upload stores r under dir, named by the sha256 of what was written,
	// and returns that digest with the byte count.
	Upload(dir string, r io.Reader) (string, int64, error)
	// Download writes the object dir/name to w.
	Download(dir, name string, w io.Writer) (int64, error)
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// backend is the protocol-specific part of a connection. Paths are slash
// separated and already rooted.
type backend interface {
	mkdirAll(p string) error
	store(p string, r io.Reader) error
	rename(from, to string) error
	retrieve(p string) (io.ReadCloser, error)
	remove(p string) error
	close() error
}

// Session implements Conn on top of a protocol backend.
type Session struct {
	b      backend
	root   string
	closed bool
}

func newSession(b backend, root string) *Session {
	return &Session{b: b, root: root}
}

// MakeDir creates the scan directory; existing directories are accepted.
func (s *Session) MakeDir(dir string) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.b.mkdirAll(s.join(dir)); err != nil {
		return fmt.Errorf("make directory %s: %w", dir, err)
	}
	return nil
}

// Upload streams r to a temporary object while hashing it, then renames the
// object to its digest.
func (s *Session) Upload(dir string, r io.Reader) (string, int64, error) {
	if s.closed {
		return "", 0, ErrClosed
	}
	tmp := s.join(dir, "."+uuid.NewString()+".part")
	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(r, hasher)}
	if err := s.b.store(tmp, counter); err != nil {
		_ = s.b.remove(tmp)
		return "", counter.n, fmt.Errorf("store object: %w", err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if err := s.b.rename(tmp, s.join(dir, digest)); err != nil {
		_ = s.b.remove(tmp)
		return "", counter.n, fmt.Errorf("rename object to %s: %w", digest, err)
	}
	return digest, counter.n, nil
}

// Download copies the remote object into w.
func (s *Session) Download(dir, name string, w io.Writer) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	rc, err := s.b.retrieve(s.join(dir, name))
	if err != nil {
		return 0, fmt.Errorf("retrieve %s/%s: %w", dir, name, err)
	}
	n, copyErr := io.Copy(w, rc)
	closeErr := rc.Close()
	if copyErr != nil {
		return n, fmt.Errorf("read %s/%s: %w", dir, name, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("finish %s/%s: %w", dir, name, closeErr)
	}
	return n, nil
}

// Close releases the connection. Calling it more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.b.close()
}

func (s *Session) join(elem ...string) string {
	return path.Join(append([]string{s.root}, elem...)...)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// NewDialer returns the dialer for the configured protocol.
func NewDialer(cfg config.TransferConfig, logger *zap.Logger) (Dialer, error) {
	switch cfg.Protocol {
	case ProtocolFTP, ProtocolFTPS:
		return NewFTPDialer(cfg), nil
	case ProtocolSFTP, "":
		return NewSFTPDialer(cfg, logger)
	case ProtocolLocal:
		return NewLocalDialer(cfg.Root)
	default:
		return nil, fmt.Errorf("unsupported transfer protocol %q", cfg.Protocol)
	}
}
