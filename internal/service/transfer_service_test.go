package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/transfer"
)

type recordingConn struct {
	dirs     []string
	uploaded [][]byte
	closed   int
	failOn   int
}

func (c *recordingConn) MakeDir(dir string) error {
	c.dirs = append(c.dirs, dir)
	return nil
}

func (c *recordingConn) Upload(dir string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	c.uploaded = append(c.uploaded, data)
	if c.failOn > 0 && len(c.uploaded) == c.failOn {
		return "", int64(len(data)), errors.New("connection reset by peer")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), int64(len(data)), nil
}

func (c *recordingConn) Download(dir, name string, w io.Writer) (int64, error) {
	return 0, errors.New("550 no such file")
}

func (c *recordingConn) Close() error {
	c.closed++
	return errors.New("already closed by server")
}

type stubDialer struct {
	conn  *recordingConn
	err   error
	dials int
}

func (d *stubDialer) Dial(ctx context.Context) (transfer.Conn, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func writeNamedBySHA(t *testing.T, dir string, content []byte) string {
	t.Helper()
	sum := sha256.Sum256(content)
	p := filepath.Join(dir, hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func TestTransferServiceUploadStopsAtFirstMismatch(t *testing.T) {
	dir := t.TempDir()
	good := writeNamedBySHA(t, dir, []byte("good"))
	bad := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))
	never := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(never, []byte("y"), 0o600))

	conn := &recordingConn{}
	metrics := NewMetricsService()
	svc := NewTransferService(&stubDialer{conn: conn}, "", metrics, nil)

	err := svc.UploadScan(context.Background(), "scan-1", []string{good, bad, never})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrIntegrity)
	assert.Contains(t, err.Error(), "a.bin")
	assert.Len(t, conn.uploaded, 2, "b.bin must never be attempted")
	assert.Equal(t, []string{"scan-1"}, conn.dirs)
	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.transferObjects.WithLabelValues(DirectionUpload, "ok")))
}

func TestTransferServiceUploadMissingLocalFile(t *testing.T) {
	conn := &recordingConn{}
	svc := NewTransferService(&stubDialer{conn: conn}, "", nil, nil)

	err := svc.UploadScan(context.Background(), "scan-1", []string{filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, appErrors.ErrFileSystem)
	assert.Empty(t, conn.uploaded)
	assert.Equal(t, 1, conn.closed)

	err = svc.UploadScan(context.Background(), "scan-1", []string{t.TempDir()})
	assert.ErrorIs(t, err, appErrors.ErrFileSystem)
}

func TestTransferServiceUploadWrapsTransportErrors(t *testing.T) {
	dir := t.TempDir()
	conn := &recordingConn{failOn: 1}
	svc := NewTransferService(&stubDialer{conn: conn}, "", nil, nil)

	err := svc.UploadScan(context.Background(), "scan-1", []string{writeNamedBySHA(t, dir, []byte("a"))})
	assert.ErrorIs(t, err, appErrors.ErrTransfer)
	assert.Equal(t, 1, conn.closed)

	dialer := &stubDialer{err: errors.New("connection refused")}
	svc = NewTransferService(dialer, "", nil, nil)
	err = svc.UploadScan(context.Background(), "scan-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrTransfer)
}

func TestTransferServiceRejectsBadScanID(t *testing.T) {
	dialer := &stubDialer{conn: &recordingConn{}}
	svc := NewTransferService(dialer, "", nil, nil)

	for _, scanID := range []string{"", "..", "a/b", `a\b`} {
		assert.ErrorIs(t, svc.UploadScan(context.Background(), scanID, nil), appErrors.ErrInvalidQuery, scanID)
	}
	_, err := svc.DownloadFileData(context.Background(), "scan-1", "abc")
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedHashType)
	assert.Zero(t, dialer.dials)
}

func TestTransferServiceDownloadFailureClosesConnection(t *testing.T) {
	conn := &recordingConn{}
	svc := NewTransferService(&stubDialer{conn: conn}, t.TempDir(), nil, nil)

	_, err := svc.DownloadFileData(context.Background(), "scan-1", testSHA256)
	assert.ErrorIs(t, err, appErrors.ErrTransfer)
	assert.Equal(t, 1, conn.closed)
}

func TestTransferServiceRoundTripThroughLocalEndpoint(t *testing.T) {
	dialer, err := transfer.NewLocalDialer(t.TempDir())
	require.NoError(t, err)
	spool := t.TempDir()
	svc := NewTransferService(dialer, spool, NewMetricsService(), nil)

	content := []byte("scan artifact")
	local := writeNamedBySHA(t, t.TempDir(), content)
	require.NoError(t, svc.UploadScan(context.Background(), "scan-42", []string{local}))
	require.NoError(t, svc.UploadScan(context.Background(), "scan-42", []string{local}), "re-upload into an existing directory")

	file, err := svc.DownloadFileData(context.Background(), "scan-42", filepath.Base(local))
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	entries, err := os.ReadDir(spool)
	require.NoError(t, err)
	assert.Empty(t, entries, "spool file is anonymous")
}

func TestTransferServiceLogsLocalFaults(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	conn := &recordingConn{}
	svc := NewTransferService(&stubDialer{conn: conn}, "", nil, zap.New(core))

	missing := filepath.Join(t.TempDir(), testSHA256)
	err := svc.UploadScan(context.Background(), "scan-1", []string{missing})
	assert.ErrorIs(t, err, appErrors.ErrFileSystem)

	entries := logs.FilterMessage("local file missing").All()
	require.Len(t, entries, 1)
	assert.Equal(t, missing, entries[0].ContextMap()["path"])
	assert.Contains(t, entries[0].ContextMap(), "error")

	err = svc.UploadScan(context.Background(), "scan-1", []string{t.TempDir()})
	assert.ErrorIs(t, err, appErrors.ErrFileSystem)
	assert.Equal(t, 1, logs.FilterMessage("local path is a directory").Len())
}

func TestTransferServiceSpoolFailureIsTransferError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	conn := &recordingConn{}
	dialer := &stubDialer{conn: conn}
	spoolDir := filepath.Join(t.TempDir(), "missing", "spool")
	svc := NewTransferService(dialer, spoolDir, nil, zap.New(core))

	_, err := svc.DownloadFileData(context.Background(), "scan-1", testSHA256)
	assert.ErrorIs(t, err, appErrors.ErrTransfer)
	assert.False(t, errors.Is(err, appErrors.ErrFileSystem))
	assert.Zero(t, dialer.dials)

	entries := logs.FilterMessage("create spool file failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, spoolDir, entries[0].ContextMap()["spool_dir"])
}
