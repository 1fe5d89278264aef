package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/internal/dto"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
	"github.com/noah-isme/filescan-registry/pkg/storage"
)

type attachmentStore interface {
	Put(key, filename string, data []byte) (string, error)
	List(key string) ([]string, error)
	Remove(key, filename string) ([]string, error)
}

// AttachmentService manages auxiliary artifacts stored next to a file.
type AttachmentService struct {
	store    attachmentStore
	maxBytes int64
	logger   *zap.Logger
}

// NewAttachmentService constructs the attachment service. A non-positive
// maxBytes disables the size check.
func NewAttachmentService(store attachmentStore, maxBytes int64, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{store: store, maxBytes: maxBytes, logger: logger}
}

// Add stores every payload under the file's sha256 and returns the names used.
// Payloads are checked up front so a bad one stores nothing.
func (s *AttachmentService) Add(ctx context.Context, sha256 string, payloads []dto.NamedPayload) (*dto.AttachmentList, error) {
	key, err := attachmentKey(sha256)
	if err != nil {
		return nil, err
	}
	for _, payload := range payloads {
		if _, err := storage.SanitizeFilename(payload.Filename); err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrInvalidQuery, err, fmt.Sprintf("invalid attachment name %q", payload.Filename))
		}
		if s.maxBytes > 0 && int64(len(payload.Data)) > s.maxBytes {
			return nil, appErrors.Clone(appErrors.ErrInvalidQuery, fmt.Sprintf("attachment %q exceeds %d bytes", payload.Filename, s.maxBytes))
		}
	}

	names := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		name, err := s.store.Put(key, payload.Filename, payload.Data)
		if err != nil {
			s.logger.Error("store attachment failed", zap.String("sha256", key), zap.String("filename", payload.Filename), zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "failed to store attachment")
		}
		names = append(names, name)
	}
	return &dto.AttachmentList{Total: len(names), Filenames: names}, nil
}

// List returns the attachment names of a file; unknown files have none.
func (s *AttachmentService) List(ctx context.Context, sha256 string) (*dto.AttachmentList, error) {
	key, err := attachmentKey(sha256)
	if err != nil {
		return nil, err
	}
	names, err := s.store.List(key)
	if err != nil {
		s.logger.Error("list attachments failed", zap.String("sha256", key), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "failed to list attachments")
	}
	return &dto.AttachmentList{Total: len(names), Filenames: names}, nil
}

// Delete removes one attachment and reports what was removed, which may be nothing.
func (s *AttachmentService) Delete(ctx context.Context, sha256, filename string) (*dto.AttachmentList, error) {
	key, err := attachmentKey(sha256)
	if err != nil {
		return nil, err
	}
	removed, err := s.store.Remove(key, filename)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return nil, appErrors.WrapAs(appErrors.ErrInvalidQuery, err, fmt.Sprintf("invalid attachment name %q", filename))
		}
		s.logger.Error("delete attachment failed", zap.String("sha256", key), zap.String("filename", filename), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "failed to delete attachment")
	}
	return &dto.AttachmentList{Total: len(removed), Filenames: removed}, nil
}

func attachmentKey(sha256 string) (string, error) {
	if hashtype.Classify(sha256) != hashtype.SHA256 {
		return "", appErrors.Clone(appErrors.ErrUnsupportedHashType, fmt.Sprintf("attachments are keyed by sha256, got %q", sha256))
	}
	return strings.ToLower(sha256), nil
}
