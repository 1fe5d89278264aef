package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/filescan-registry/internal/models"
	appErrors "github.com/noah-isme/filescan-registry/pkg/errors"
	"github.com/noah-isme/filescan-registry/pkg/hashtype"
)

type cacheRepoStub struct {
	values  map[string][]byte
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string][]byte{}}
}

func (r *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.setErr != nil {
		return r.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.values[key] = raw
	r.lastTTL = ttl
	return nil
}

var cachedRecord = &models.FileRecord{
	ID:     "file-1",
	SHA256: testSHA256,
	SHA1:   "a9993e364706816aba3e25717850c26c9cd0d89d",
	MD5:    "900150983cd24fb0d6963f7d28e17f72",
	Size:   3,
}

func TestCacheServiceRemembersEveryDigest(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	_, hit := svc.Record(ctx, hashtype.MD5, cachedRecord.MD5)
	assert.False(t, hit)

	svc.Remember(ctx, cachedRecord)
	assert.Len(t, repo.values, 3)
	assert.Equal(t, time.Minute, repo.lastTTL)

	record, hit := svc.Record(ctx, hashtype.MD5, "900150983CD24FB0D6963F7D28E17F72")
	require.True(t, hit)
	assert.Equal(t, "file-1", record.ID)

	record, hit = svc.Record(ctx, hashtype.SHA1, cachedRecord.SHA1)
	require.True(t, hit)
	assert.Equal(t, testSHA256, record.SHA256)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
}

func TestCacheServiceFaultsAreMisses(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := newCacheRepoStub()
	repo.getErr = errors.New("i/o timeout")
	repo.setErr = errors.New("READONLY replica")
	svc := NewCacheService(repo, nil, 0, zap.New(core), true)
	ctx := context.Background()

	svc.Remember(ctx, cachedRecord)
	_, hit := svc.Record(ctx, hashtype.SHA256, testSHA256)
	assert.False(t, hit)
	assert.Equal(t, 1, logs.FilterMessage("cache set failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("cache get failed").Len())
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	disabled := NewCacheService(repo, nil, 0, nil, false)
	disabled.Remember(context.Background(), cachedRecord)
	assert.Empty(t, repo.values)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	_, hit := nilSvc.Record(context.Background(), hashtype.SHA256, testSHA256)
	assert.False(t, hit)
}
