package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/internal/dto"
	"github.com/noah-isme/filescan-registry/internal/models"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
	"github.com/noah-isme/filescan-registry/pkg/storage"
)

// sniffLen is how much leading content is buffered for MIME detection.
const sniffLen = 3072

type fileStore interface {
	GetByHash(ctx context.Context, hashType hashtype.Type, value string) (*models.FileRecord, error)
	Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error)
}

type occurrenceWriter interface {
	Create(ctx context.Context, occ *models.Occurrence) error
}

type tagStore interface {
	List(ctx context.Context) ([]models.Tag, error)
	Ensure(ctx context.Context, text string) (*models.Tag, error)
	AttachToFile(ctx context.Context, fileID string, tagID int64) error
	DetachFromFile(ctx context.Context, fileID string, tagID int64) error
	AttachToOccurrence(ctx context.Context, occurrenceID string, tagID int64) error
	DetachFromOccurrence(ctx context.Context, occurrenceID string, tagID int64) error
}

type blobStore interface {
	Put(r io.Reader) (*storage.BlobInfo, error)
	Open(rel string) (*os.File, error)
}

type recordCache interface {
	Record(ctx context.Context, hashType hashtype.Type, value string) (*models.FileRecord, bool)
	Remember(ctx context.Context, record *models.FileRecord)
}

// FileService resolves content records, ingests content and manages tags.
type FileService struct {
	files       fileStore
	occurrences occurrenceWriter
	tags        tagStore
	blobs       blobStore
	cache       recordCache
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewFileService constructs the file service. cache may be nil.
func NewFileService(files fileStore, occurrences occurrenceWriter, tags tagStore, blobs blobStore, cache recordCache, validate *validator.Validate, logger *zap.Logger) *FileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		files:       files,
		occurrences: occurrences,
		tags:        tags,
		blobs:       blobs,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// LoadByHash returns the record whose digest of hashType equals value.
func (s *FileService) LoadByHash(ctx context.Context, hashType hashtype.Type, value string) (*models.FileRecord, error) {
	if !hashType.Valid() || hashtype.Classify(value) != hashType {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedHashType, fmt.Sprintf("hash %q not supported", value))
	}
	value = strings.ToLower(value)

	if s.cache != nil {
		if cached, hit := s.cache.Record(ctx, hashType, value); hit {
			return cached, nil
		}
	}

	record, err := s.files.GetByHash(ctx, hashType, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		s.logger.Error("file lookup failed", zap.String("hash_type", string(hashType)), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load file")
	}
	s.remember(ctx, record)
	return record, nil
}

// LoadBySHA256 is LoadByHash for sha256 digests.
func (s *FileService) LoadBySHA256(ctx context.Context, sha256 string) (*models.FileRecord, error) {
	return s.LoadByHash(ctx, hashtype.SHA256, sha256)
}

// AddTag labels every occurrence of the file.
func (s *FileService) AddTag(ctx context.Context, sha256 string, tagID int64) error {
	record, err := s.LoadBySHA256(ctx, sha256)
	if err != nil {
		return err
	}
	return s.tagError(s.tags.AttachToFile(ctx, record.ID, tagID), "tag not found", "failed to add tag")
}

// RemoveTag removes the label from every occurrence of the file. Removing a
// label the file does not carry is not an error.
func (s *FileService) RemoveTag(ctx context.Context, sha256 string, tagID int64) error {
	record, err := s.LoadBySHA256(ctx, sha256)
	if err != nil {
		return err
	}
	return s.tagError(s.tags.DetachFromFile(ctx, record.ID, tagID), "tag not found", "failed to remove tag")
}

// AddOccurrenceTag labels a single occurrence.
func (s *FileService) AddOccurrenceTag(ctx context.Context, occurrenceID string, tagID int64) error {
	return s.tagError(s.tags.AttachToOccurrence(ctx, occurrenceID, tagID), "tag or occurrence not found", "failed to add tag")
}

// RemoveOccurrenceTag removes the label from a single occurrence.
func (s *FileService) RemoveOccurrenceTag(ctx context.Context, occurrenceID string, tagID int64) error {
	return s.tagError(s.tags.DetachFromOccurrence(ctx, occurrenceID, tagID), "tag or occurrence not found", "failed to remove tag")
}

// ListTags returns every known tag.
func (s *FileService) ListTags(ctx context.Context) ([]models.Tag, error) {
	tags, err := s.tags.List(ctx)
	if err != nil {
		s.logger.Error("list tags failed", zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list tags")
	}
	return tags, nil
}

// CreateTag returns the tag with the given text, creating it if needed.
func (s *FileService) CreateTag(ctx context.Context, req dto.CreateTagRequest) (*models.Tag, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid tag")
	}
	tag, err := s.tags.Ensure(ctx, req.Text)
	if err != nil {
		s.logger.Error("create tag failed", zap.String("text", req.Text), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to create tag")
	}
	return tag, nil
}

// ReadContent opens the stored bytes of record.
func (s *FileService) ReadContent(ctx context.Context, record *models.FileRecord) (io.ReadCloser, error) {
	file, err := s.blobs.Open(record.Path)
	if err != nil {
		s.logger.Error("file content missing for known record",
			zap.String("sha256", record.SHA256),
			zap.String("path", record.Path),
			zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "file content unavailable")
	}
	return file, nil
}

// Ingest stores content and records that it was seen as req.Name in req.ScanID.
// Identical content reuses the existing record and blob.
func (s *FileService) Ingest(ctx context.Context, req dto.IngestRequest) (*models.Occurrence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid ingest request")
	}
	if req.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	name, err := storage.SanitizeFilename(req.Name)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInvalidQuery, err, fmt.Sprintf("invalid file name %q", req.Name))
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(req.Content, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "failed to read content")
	}
	header = header[:n]
	mimeType := mimetype.Detect(header).String()

	info, err := s.blobs.Put(io.MultiReader(bytes.NewReader(header), req.Content))
	if err != nil {
		s.logger.Error("store content failed", zap.String("name", name), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrFileSystem, err, "failed to store content")
	}

	record, err := s.files.Create(ctx, &models.FileRecord{
		SHA256:   info.SHA256,
		SHA1:     info.SHA1,
		MD5:      info.MD5,
		Size:     info.Size,
		MimeType: mimeType,
		Path:     info.Path,
	})
	if err != nil {
		s.logger.Error("register file failed", zap.String("sha256", info.SHA256), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to register file")
	}

	occ := &models.Occurrence{
		Name:   name,
		ScanID: req.ScanID,
		FileID: record.ID,
		SHA256: record.SHA256,
		Size:   record.Size,
		Tags:   []models.Tag{},
	}
	if err := s.occurrences.Create(ctx, occ); err != nil {
		s.logger.Error("record occurrence failed", zap.String("sha256", record.SHA256), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to record occurrence")
	}

	s.remember(ctx, record)
	s.logger.Info("file ingested",
		zap.String("scan_id", req.ScanID),
		zap.String("name", name),
		zap.String("sha256", record.SHA256),
		zap.Bool("known_content", info.Existed))
	return occ, nil
}

func (s *FileService) remember(ctx context.Context, record *models.FileRecord) {
	if s.cache != nil {
		s.cache.Remember(ctx, record)
	}
}

func (s *FileService) tagError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	s.logger.Error("tag update failed", zap.Error(err))
	return appErrors.WrapAs(appErrors.ErrInternal, err, failure)
}
