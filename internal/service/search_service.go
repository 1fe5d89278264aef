package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/internal/dto"
	"github.com/noah-isme/filescan-registry/internal/models"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

// DefaultSearchLimit is the page size used when a request leaves the limit unset.
const DefaultSearchLimit = 25

type occurrenceFinder interface {
	Find(ctx context.Context, filter models.OccurrenceFilter, offset, limit int) ([]models.Occurrence, error)
	Count(ctx context.Context, filter models.OccurrenceFilter) (int, error)
}

type fileRecordLoader interface {
	LoadBySHA256(ctx context.Context, sha256 string) (*models.FileRecord, error)
}

// SearchService answers file lookups by name, hash and tags.
type SearchService struct {
	occurrences  occurrenceFinder
	files        fileRecordLoader
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	defaultLimit int
}

// NewSearchService constructs the search service.
func NewSearchService(occurrences occurrenceFinder, files fileRecordLoader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, defaultLimit int) *SearchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	return &SearchService{
		occurrences:  occurrences,
		files:        files,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
		defaultLimit: defaultLimit,
	}
}

// Search returns one page of occurrences. Results are deduplicated by name.
func (s *SearchService) Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResult, error) {
	if req.Name != nil && req.Hash != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidQuery, "can't find using both name and hash")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInvalidQuery, err, "invalid search parameters")
	}
	limit := s.limit(req.Limit)

	filter := models.OccurrenceFilter{Tags: req.Tags, DistinctName: true}
	if req.Hash != nil {
		hashType := hashtype.Classify(*req.Hash)
		if hashType == hashtype.None {
			return nil, appErrors.Clone(appErrors.ErrUnsupportedHashType, fmt.Sprintf("hash %q not supported", *req.Hash))
		}
		filter.HashType = hashType
		filter.HashValue = strings.ToLower(*req.Hash)
	} else {
		filter.Name = req.Name
	}

	items, total, err := s.page(ctx, "search_occurrences", filter, req.Offset, limit)
	if err != nil {
		return nil, err
	}
	return &dto.SearchResult{Total: total, Offset: req.Offset, Limit: limit, Items: items}, nil
}

// GetBySHA256 returns the file record and a page of every occurrence of it.
func (s *SearchService) GetBySHA256(ctx context.Context, sha256 string, offset, limit int) (*dto.FileDetail, error) {
	if offset < 0 || limit < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidQuery, "offset and limit must not be negative")
	}
	record, err := s.files.LoadBySHA256(ctx, sha256)
	if err != nil {
		return nil, err
	}
	limit = s.limit(limit)

	filter := models.OccurrenceFilter{HashType: hashtype.SHA256, HashValue: record.SHA256}
	items, total, err := s.page(ctx, "file_occurrences", filter, offset, limit)
	if err != nil {
		return nil, err
	}
	return &dto.FileDetail{File: record, Total: total, Offset: offset, Limit: limit, Items: items}, nil
}

func (s *SearchService) limit(requested int) int {
	if requested <= 0 {
		return s.defaultLimit
	}
	return requested
}

// page loads one page and its total. A short first page is its own total.
func (s *SearchService) page(ctx context.Context, label string, filter models.OccurrenceFilter, offset, limit int) ([]models.Occurrence, int, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery(label, time.Since(start)) }()

	items, err := s.occurrences.Find(ctx, filter, offset, limit)
	if err != nil {
		s.logger.Error("occurrence lookup failed", zap.String("query", label), zap.Error(err))
		return nil, 0, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to search files")
	}
	if offset == 0 && len(items) < limit {
		return items, len(items), nil
	}
	total, err := s.occurrences.Count(ctx, filter)
	if err != nil {
		s.logger.Error("occurrence count failed", zap.String("query", label), zap.Error(err))
		return nil, 0, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to count files")
	}
	return items, total, nil
}
