package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
	"github.com/noah-isme/filescan-registry/pkg/storage"
	"github.com/noah-isme/filescan-registry/pkg/transfer"
)

// TransferService moves scan artifacts to and from the worker cluster.
// Every call opens its own connection and closes it before returning.
type TransferService struct {
	dialer   transfer.Dialer
	spoolDir string
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewTransferService constructs the transfer service. Downloads are spooled
// in spoolDir, or the system temp dir when empty.
func NewTransferService(dialer transfer.Dialer, spoolDir string, metrics *MetricsService, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{dialer: dialer, spoolDir: spoolDir, metrics: metrics, logger: logger}
}

// UploadScan sends localPaths, in order, into the scan's remote directory.
// Each local file must be named by the sha256 of its content; the first
// mismatch stops the batch. Files already sent are left in place.
func (s *TransferService) UploadScan(ctx context.Context, scanID string, localPaths []string) error {
	if err := checkScanID(scanID); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveTransfer(DirectionUpload, time.Since(start)) }()

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		s.logger.Error("transfer connect failed", zap.String("scan_id", scanID), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrTransfer, err, "failed to connect to transfer endpoint")
	}
	defer s.release(conn, scanID)

	if err := conn.MakeDir(scanID); err != nil {
		s.logger.Error("create scan directory failed", zap.String("scan_id", scanID), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrTransfer, err, "failed to create scan directory")
	}
	for _, localPath := range localPaths {
		if err := s.uploadOne(conn, scanID, localPath); err != nil {
			return err
		}
	}
	s.logger.Info("scan uploaded", zap.String("scan_id", scanID), zap.Int("files", len(localPaths)))
	return nil
}

func (s *TransferService) uploadOne(conn transfer.Conn, scanID, localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		s.logger.Error("local file missing", zap.String("scan_id", scanID), zap.String("path", localPath), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrFileSystem, err, fmt.Sprintf("file %s not found", localPath))
	}
	if info.IsDir() {
		s.logger.Error("local path is a directory", zap.String("scan_id", scanID), zap.String("path", localPath))
		return appErrors.Clone(appErrors.ErrFileSystem, fmt.Sprintf("%s is a directory", localPath))
	}
	file, err := os.Open(localPath)
	if err != nil {
		s.logger.Error("open local file failed", zap.String("scan_id", scanID), zap.String("path", localPath), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrFileSystem, err, fmt.Sprintf("failed to open %s", localPath))
	}
	defer file.Close() //nolint:errcheck

	digest, size, err := conn.Upload(scanID, file)
	s.metrics.RecordTransferObject(DirectionUpload, size, err)
	if err != nil {
		s.logger.Error("upload failed", zap.String("scan_id", scanID), zap.String("path", localPath), zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrTransfer, err, fmt.Sprintf("failed to upload %s", filepath.Base(localPath)))
	}

	expected := filepath.Base(localPath)
	if digest != expected {
		s.logger.Error("uploaded file failed integrity check",
			zap.String("scan_id", scanID),
			zap.String("expected", expected),
			zap.String("remote_sha256", digest))
		return appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("integrity error: file %s is corrupted", expected))
	}
	return nil
}

// DownloadFileData fetches one object of a scan into an anonymous temporary
// file positioned at its start. The caller owns and must close the file.
// Every failure, spooling included, is a TransferError.
func (s *TransferService) DownloadFileData(ctx context.Context, scanID, sha256 string) (*os.File, error) {
	if err := checkScanID(scanID); err != nil {
		return nil, err
	}
	if hashtype.Classify(sha256) != hashtype.SHA256 {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedHashType, fmt.Sprintf("hash %q not supported", sha256))
	}
	start := time.Now()
	defer func() { s.metrics.ObserveTransfer(DirectionDownload, time.Since(start)) }()

	spool, err := os.CreateTemp(s.spoolDir, "transfer-*")
	if err != nil {
		s.logger.Error("create spool file failed", zap.String("scan_id", scanID), zap.String("spool_dir", s.spoolDir), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrTransfer, err, "failed to create spool file")
	}
	_ = os.Remove(spool.Name())

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		spool.Close() //nolint:errcheck
		s.logger.Error("transfer connect failed", zap.String("scan_id", scanID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrTransfer, err, "failed to connect to transfer endpoint")
	}
	defer s.release(conn, scanID)

	size, err := conn.Download(scanID, sha256, spool)
	s.metrics.RecordTransferObject(DirectionDownload, size, err)
	if err != nil {
		spool.Close() //nolint:errcheck
		s.logger.Error("download failed", zap.String("scan_id", scanID), zap.String("sha256", sha256), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrTransfer, err, fmt.Sprintf("failed to download %s", sha256))
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		spool.Close() //nolint:errcheck
		s.logger.Error("rewind spool failed", zap.String("scan_id", scanID), zap.String("sha256", sha256), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrTransfer, err, "failed to rewind downloaded data")
	}
	return spool, nil
}

func (s *TransferService) release(conn transfer.Conn, scanID string) {
	if err := conn.Close(); err != nil {
		s.logger.Warn("closing transfer connection failed", zap.String("scan_id", scanID), zap.Error(err))
	}
}

func checkScanID(scanID string) error {
	name, err := storage.SanitizeFilename(scanID)
	if err != nil || name != scanID {
		return appErrors.Clone(appErrors.ErrInvalidQuery, fmt.Sprintf("invalid scan id %q", scanID))
	}
	return nil
}
