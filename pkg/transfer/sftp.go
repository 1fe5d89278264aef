package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/noah-isme/filescan-registry/pkg/config"
)

// SFTPDialer connects over SSH and opens an SFTP subsystem.
type SFTPDialer struct {
	cfg     config.TransferConfig
	hostKey ssh.HostKeyCallback
}

// NewSFTPDialer builds an SFTP dialer. Host keys are checked against the
// configured known_hosts file when one is set; without one, any host key is
// accepted and a warning is logged.
func NewSFTPDialer(cfg config.TransferConfig, logger *zap.Logger) (*SFTPDialer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.KnownHostsFile == "" {
		logger.Warn("sftp host key verification disabled",
			zap.String("host", cfg.Host),
			zap.String("hint", "set TRANSFER_KNOWN_HOSTS"),
		)
		return &SFTPDialer{cfg: cfg, hostKey: ssh.InsecureIgnoreHostKey()}, nil //nolint:gosec
	}
	cb, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return &SFTPDialer{cfg: cfg, hostKey: cb}, nil
}

// Dial opens the SSH connection and the SFTP client on top of it.
func (d *SFTPDialer) Dial(ctx context.Context) (Conn, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	dialer := net.Dialer{Timeout: d.cfg.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial sftp %s: %w", addr, err)
	}
	if d.cfg.Timeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(d.cfg.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
		User:            d.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(d.cfg.Password)},
		HostKeyCallback: d.hostKey,
		Timeout:         d.cfg.Timeout,
	})
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = raw.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open sftp subsystem: %w", err)
	}
	return newSession(&sftpBackend{client: sc, ssh: client}, d.cfg.Root), nil
}

type sftpBackend struct {
	client *sftp.Client
	ssh    *ssh.Client
}

func (b *sftpBackend) mkdirAll(p string) error {
	return b.client.MkdirAll(p)
}

func (b *sftpBackend) store(p string, r io.Reader) error {
	file, err := b.client.Create(p)
	if err != nil {
		return err
	}
	if _, err := file.ReadFrom(r); err != nil {
		file.Close() //nolint:errcheck
		return err
	}
	return file.Close()
}

func (b *sftpBackend) rename(from, to string) error {
	return b.client.PosixRename(from, to)
}

func (b *sftpBackend) retrieve(p string) (io.ReadCloser, error) {
	return b.client.Open(p)
}

func (b *sftpBackend) remove(p string) error {
	return b.client.Remove(p)
}

func (b *sftpBackend) close() error {
	return errors.Join(b.client.Close(), b.ssh.Close())
}
