package transfer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/noah-isme/filescan-registry/pkg/config"
)

const statusDirectoryExists = 521

// FTPDialer connects over plain FTP, or FTP with explicit TLS when the
// protocol is ftps.
type FTPDialer struct {
	cfg config.TransferConfig
}

// NewFTPDialer builds an FTP dialer from config.
func NewFTPDialer(cfg config.TransferConfig) *FTPDialer {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	return &FTPDialer{cfg: cfg}
}

// Dial connects and logs in.
func (d *FTPDialer) Dial(ctx context.Context) (Conn, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if d.cfg.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(d.cfg.Timeout))
	}
	if d.cfg.Protocol == ProtocolFTPS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: d.cfg.TLSInsecure, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial ftp %s: %w", addr, err)
	}
	if err := conn.Login(d.cfg.Username, d.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login as %s: %w", d.cfg.Username, err)
	}
	return newSession(&ftpBackend{conn: conn}, d.cfg.Root), nil
}

// ftpClient is the subset of *ftp.ServerConn the backend drives.
type ftpClient interface {
	MakeDir(path string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Retr(path string) (*ftp.Response, error)
	Delete(path string) error
	Quit() error
}

type ftpBackend struct {
	conn ftpClient
}

// mkdirAll creates every missing segment; FTP has no recursive MKD.
func (b *ftpBackend) mkdirAll(p string) error {
	current := ""
	for i, segment := range strings.Split(p, "/") {
		if segment == "" {
			if i == 0 {
				current = "/"
			}
			continue
		}
		current = path.Join(current, segment)
		err := b.conn.MakeDir(current)
		if err == nil || dirExists(err) {
			continue
		}
		if mkdirRefused(err) && b.isDir(current) {
			continue
		}
		return err
	}
	return nil
}

func (b *ftpBackend) store(p string, r io.Reader) error {
	return b.conn.Stor(p, r)
}

func (b *ftpBackend) rename(from, to string) error {
	return b.conn.Rename(from, to)
}

func (b *ftpBackend) retrieve(p string) (io.ReadCloser, error) {
	return b.conn.Retr(p)
}

func (b *ftpBackend) remove(p string) error {
	return b.conn.Delete(p)
}

func (b *ftpBackend) close() error {
	return b.conn.Quit()
}

// isDir checks p by entering it, then returns to the previous working
// directory.
func (b *ftpBackend) isDir(p string) bool {
	cwd, err := b.conn.CurrentDir()
	if err != nil {
		return false
	}
	if err := b.conn.ChangeDir(p); err != nil {
		return false
	}
	return b.conn.ChangeDir(cwd) == nil
}

// dirExists reports whether a MKD failure says the directory is already there.
func dirExists(err error) bool {
	return ftpStatus(err) == statusDirectoryExists
}

// mkdirRefused reports a 550 reply. Servers send it both for an existing
// directory and for a permission or path problem.
func mkdirRefused(err error) bool {
	return ftpStatus(err) == ftp.StatusFileUnavailable
}

func ftpStatus(err error) int {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return 0
	}
	return protoErr.Code
}
