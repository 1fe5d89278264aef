package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/filescan-registry/internal/models"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheService keeps resolved file records under one key per digest, so a
// record loaded by md5 also answers later sha1 and sha256 lookups. Records
// are immutable; entries only expire. Cache faults are logged and treated
// as misses.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Record returns the cached record whose hashType digest is value.
func (s *CacheService) Record(ctx context.Context, hashType hashtype.Type, value string) (*models.FileRecord, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := RecordKey(hashType, value)
	start := time.Now()
	var record models.FileRecord
	err := s.repo.Get(ctx, key, &record)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &record, true
}

// Remember caches record under each of its digests.
func (s *CacheService) Remember(ctx context.Context, record *models.FileRecord) {
	if !s.Enabled() || record == nil {
		return
	}
	digests := map[hashtype.Type]string{
		hashtype.SHA256: record.SHA256,
		hashtype.SHA1:   record.SHA1,
		hashtype.MD5:    record.MD5,
	}
	for hashType, value := range digests {
		if value == "" {
			continue
		}
		key := RecordKey(hashType, value)
		start := time.Now()
		err := s.repo.Set(ctx, key, record, s.ttl)
		s.metrics.ObserveCacheWrite(time.Since(start))
		if err != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			return
		}
	}
}

// RecordKey is the cache key of the record with the given digest.
func RecordKey(hashType hashtype.Type, value string) string {
	return "file:" + string(hashType) + ":" + strings.ToLower(value)
}
